// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// fileResult builds an ExtractResult the way an analyzer would emit it:
// scope IDs are file-local indices, parents reference those indices.
func fileResult(file string, scopes []ast.ScopeRecord, mounts []ast.MountRecord, candidates []ast.Candidate) *ast.ExtractResult {
	for i := range scopes {
		scopes[i].ID = ast.ScopeID(i)
		scopes[i].File = file
	}
	for i := range mounts {
		mounts[i].File = file
	}
	for i := range candidates {
		candidates[i].File = file
	}
	return &ast.ExtractResult{
		FilePath:   file,
		Candidates: candidates,
		Scopes:     scopes,
		Mounts:     mounts,
	}
}

func TestAddFileRebasesScopeIDs(t *testing.T) {
	table := NewTable()

	table.AddFile(fileResult("a.js",
		[]ast.ScopeRecord{{Name: "app", Parent: ast.NoScope}},
		nil, nil))

	cands := table.AddFile(fileResult("b.js",
		[]ast.ScopeRecord{
			{Name: "outer", Parent: ast.NoScope},
			{Name: "inner", Parent: 0},
		},
		[]ast.MountRecord{{TargetName: "x", Parent: 1}},
		[]ast.Candidate{{Verb: ast.VerbGet, PathFragment: "/x", Scope: 1}}))

	require.Equal(t, 3, table.Len())
	assert.Equal(t, "outer", table.Scope(1).Name)
	assert.Equal(t, ast.ScopeID(1), table.Scope(2).Parent, "inner's parent rebased past a.js's scope")

	require.Len(t, cands, 1)
	assert.Equal(t, ast.ScopeID(2), cands[0].Scope)
}

func TestAddFileKeepsNoScope(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("a.py", []ast.ScopeRecord{{Name: "app", Parent: ast.NoScope}}, nil, nil))

	cands := table.AddFile(fileResult("b.py", nil, nil,
		[]ast.Candidate{{Verb: ast.VerbGet, PathFragment: "/loose", Scope: ast.NoScope}}))

	require.Len(t, cands, 1)
	assert.Equal(t, ast.NoScope, cands[0].Scope)
}

func TestResolveMountsSameFile(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("app.py",
		[]ast.ScopeRecord{
			{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope},
			{Name: "bp", Kind: ast.ScopeRouter, Parent: ast.NoScope},
		},
		[]ast.MountRecord{{TargetName: "bp", Prefix: "/admin", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	bp := table.Scope(1)
	assert.Equal(t, ast.ScopeID(0), bp.Parent)
	assert.Equal(t, "/admin", bp.MountPoint)
	assert.Empty(t, stats.Warnings)
}

func TestResolveMountsCrossFileByModule(t *testing.T) {
	table := NewTable()
	// Two files both declare a scope named "router"; the mount's module
	// path picks the right one.
	table.AddFile(fileResult("src/routes/users.js",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("src/routes/orders.js",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("src/server.js",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}},
		[]ast.MountRecord{{TargetName: "router", TargetModule: "./routes/users", Prefix: "/api/users", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	users := table.Scope(0)
	orders := table.Scope(1)
	assert.Equal(t, ast.ScopeID(2), users.Parent)
	assert.Equal(t, "/api/users", users.MountPoint)
	assert.Equal(t, ast.NoScope, orders.Parent, "orders router must stay unmounted")
	assert.Zero(t, stats.AmbiguousMounts)
	assert.Zero(t, stats.UnresolvedMounts)
}

func TestResolveMountsRenamedImport(t *testing.T) {
	table := NewTable()
	// require('./routes/users') bound locally as userRoutes; the file
	// exports a scope declared under a different name.
	table.AddFile(fileResult("src/routes/users.js",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope, Exported: true}}, nil, nil))
	table.AddFile(fileResult("src/server.js",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}},
		[]ast.MountRecord{{TargetName: "userRoutes", TargetModule: "./routes/users", Prefix: "/api/users", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	router := table.Scope(0)
	assert.Equal(t, ast.ScopeID(1), router.Parent)
	assert.Equal(t, "/api/users", router.MountPoint)
	assert.Zero(t, stats.UnresolvedMounts)
}

func TestResolveMountsPrefersExported(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("a/items.py",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("b/items.py",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope, Exported: true}}, nil, nil))
	table.AddFile(fileResult("main.py",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}},
		[]ast.MountRecord{{TargetName: "router", Prefix: "/items", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	assert.Equal(t, ast.NoScope, table.Scope(0).Parent)
	assert.Equal(t, "/items", table.Scope(1).MountPoint, "exported scope wins the tie")
	assert.Zero(t, stats.AmbiguousMounts)
}

func TestResolveMountsUnresolved(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("main.py",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}},
		[]ast.MountRecord{{TargetName: "ghost", Prefix: "/ghost", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	assert.Equal(t, 1, stats.UnresolvedMounts)
	require.Len(t, stats.Warnings, 1)
	assert.Contains(t, stats.Warnings[0], `"ghost"`)
}

func TestResolveMountsAmbiguous(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("a/r.py",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("b/r.py",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("main.py",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}},
		[]ast.MountRecord{{TargetName: "router", Prefix: "/r", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	assert.Equal(t, 1, stats.AmbiguousMounts)
	assert.Equal(t, ast.NoScope, table.Scope(0).Parent, "ambiguous targets stay unlinked")
	assert.Equal(t, ast.NoScope, table.Scope(1).Parent)
}

func TestResolveMountsRemountKeepsFirst(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("app.py",
		[]ast.ScopeRecord{
			{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope},
			{Name: "bp", Kind: ast.ScopeRouter, Parent: ast.NoScope},
		},
		[]ast.MountRecord{
			{TargetName: "bp", Prefix: "/v1", Parent: 0},
			{TargetName: "bp", Prefix: "/v2", Parent: 0},
		},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)

	assert.Equal(t, "/v1", table.Scope(1).MountPoint)
	assert.Equal(t, 1, stats.AmbiguousMounts)
}

func TestModuleMatchesFile(t *testing.T) {
	cases := []struct {
		module string
		file   string
		want   bool
	}{
		{"./routes/users", "src/routes/users.js", true},
		{"routes.users", "src/routes/users.py", true},
		{"./routes/users", "src/routes/users/index.js", true},
		{"routes.users", "src/routes/users/__init__.py", true},
		// "from admin import bp" records admin.bp; bp lives in admin.py.
		{"admin.bp", "app/admin.py", true},
		{"./routes/users", "src/routes/orders.js", false},
		{"", "src/routes/users.js", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, moduleMatchesFile(tc.module, tc.file),
			"module %q vs file %q", tc.module, tc.file)
	}
}
