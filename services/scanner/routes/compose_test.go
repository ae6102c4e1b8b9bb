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

func composeSingle(t *testing.T, table *Table, cand ast.Candidate) (Endpoint, Stats) {
	t.Helper()
	var stats Stats
	endpoints := NewComposer(table, nil).Compose([]ast.Candidate{cand}, &stats)
	require.Len(t, endpoints, 1)
	return endpoints[0], stats
}

func TestComposeNestedScopes(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("routes/users.py",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, BasePath: "/users", Parent: ast.NoScope, Exported: true}},
		nil, nil))
	table.AddFile(fileResult("main.py",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}},
		[]ast.MountRecord{{TargetName: "router", Prefix: "/api/v1", Parent: 0}},
		nil))

	var stats Stats
	table.ResolveMounts(&stats)
	require.Empty(t, stats.Warnings)

	e, _ := composeSingle(t, table, ast.Candidate{
		Verb:         ast.VerbGet,
		PathFragment: "/{user_id}",
		Handler:      "get_user",
		Scope:        0,
		File:         "routes/users.py",
		Line:         12,
	})

	assert.Equal(t, "/api/v1/users/{user_id}", e.Path, "mount prefix precedes the router's base path")
	assert.Equal(t, ast.VerbGet, e.Verb)
	assert.Equal(t, "get_user", e.Handler)
}

func TestComposeTwoLevelMountChain(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("main.py",
		[]ast.ScopeRecord{{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("api.py",
		[]ast.ScopeRecord{{Name: "api", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("orders.py",
		[]ast.ScopeRecord{{Name: "orders", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))

	// app mounts api at /api/v1; api mounts orders at /orders.
	table.Scope(1).Parent = 0
	table.Scope(1).MountPoint = "/api/v1"
	table.Scope(2).Parent = 1
	table.Scope(2).MountPoint = "/orders"

	e, stats := composeSingle(t, table, ast.Candidate{
		Verb:         ast.VerbPost,
		PathFragment: "/{id}/cancel",
		Scope:        2,
	})
	assert.Equal(t, "/api/v1/orders/{id}/cancel", e.Path)
	assert.Empty(t, stats.Warnings)
}

func TestComposeNoScope(t *testing.T) {
	e, _ := composeSingle(t, NewTable(), ast.Candidate{
		Verb:         ast.VerbGet,
		PathFragment: "/health",
		Scope:        ast.NoScope,
	})
	assert.Equal(t, "/health", e.Path)
}

func TestComposeEmptyFragmentIsRoot(t *testing.T) {
	e, _ := composeSingle(t, NewTable(), ast.Candidate{
		Verb:         ast.VerbGet,
		PathFragment: "",
		Scope:        ast.NoScope,
	})
	assert.Equal(t, "/", e.Path)
}

func TestComposeNormalizesParamStyles(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("routes/items.js",
		[]ast.ScopeRecord{{Name: "router", Kind: ast.ScopeRouter, Parent: ast.NoScope}}, nil, nil))

	e, _ := composeSingle(t, table, ast.Candidate{
		Verb:         ast.VerbGet,
		PathFragment: "/items/:itemId",
		Scope:        0,
	})
	assert.Equal(t, "/items/{itemId}", e.Path)
}

func TestComposeAuthInheritance(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("app.py",
		[]ast.ScopeRecord{
			{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope, Auth: ast.AuthRequired},
			{Name: "bp", Kind: ast.ScopeRouter, Parent: 0, BasePath: "/admin"},
		},
		nil, nil))

	// The candidate's own marker wins over every scope.
	own, _ := composeSingle(t, table, ast.Candidate{
		Verb: ast.VerbGet, PathFragment: "/open", Scope: 1, Auth: ast.AuthNotRequired,
	})
	assert.Equal(t, ast.AuthNotRequired, own.Auth)

	// Without a marker the innermost definite scope decides; bp has none,
	// so app's requirement applies.
	inherited, _ := composeSingle(t, table, ast.Candidate{
		Verb: ast.VerbGet, PathFragment: "/stats", Scope: 1, Auth: ast.AuthUnknown,
	})
	assert.Equal(t, ast.AuthRequired, inherited.Auth)
}

func TestComposeInnermostScopeAuthWins(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("app.py",
		[]ast.ScopeRecord{
			{Name: "app", Kind: ast.ScopeApp, Parent: ast.NoScope, Auth: ast.AuthRequired},
			{Name: "public", Kind: ast.ScopeRouter, Parent: 0, Auth: ast.AuthNotRequired},
		},
		nil, nil))

	e, _ := composeSingle(t, table, ast.Candidate{
		Verb: ast.VerbGet, PathFragment: "/ping", Scope: 1,
	})
	assert.Equal(t, ast.AuthNotRequired, e.Auth)
}

func TestComposeCycleTruncates(t *testing.T) {
	table := NewTable()
	table.AddFile(fileResult("a.js",
		[]ast.ScopeRecord{{Name: "ra", Kind: ast.ScopeRouter, BasePath: "/a", Parent: ast.NoScope}}, nil, nil))
	table.AddFile(fileResult("b.js",
		[]ast.ScopeRecord{{Name: "rb", Kind: ast.ScopeRouter, BasePath: "/b", Parent: ast.NoScope}}, nil, nil))

	// Wire the cycle directly: ra mounted on rb, rb mounted on ra.
	table.Scope(0).Parent = 1
	table.Scope(1).Parent = 0

	e, stats := composeSingle(t, table, ast.Candidate{
		Verb: ast.VerbGet, PathFragment: "/leaf", Scope: 0,
	})

	assert.Equal(t, 1, stats.TruncatedCycles)
	require.Len(t, stats.Warnings, 1)
	assert.Contains(t, stats.Warnings[0], "cycle")
	assert.Equal(t, "/b/a/leaf", e.Path, "chain keeps the prefix collected before the repeat")
}

func TestComposeDepthLimit(t *testing.T) {
	table := NewTable()
	scopes := make([]ast.ScopeRecord, ast.MaxScopeDepth+8)
	for i := range scopes {
		scopes[i] = ast.ScopeRecord{Name: "s", Kind: ast.ScopeRouter, Parent: ast.ScopeID(i) - 1}
	}
	scopes[0].Parent = ast.NoScope
	table.AddFile(fileResult("deep.py", scopes, nil, nil))

	// Must terminate despite the over-deep chain; no cycle is reported.
	_, stats := composeSingle(t, table, ast.Candidate{
		Verb: ast.VerbGet, PathFragment: "/x", Scope: ast.ScopeID(len(scopes) - 1),
	})
	assert.Zero(t, stats.TruncatedCycles)
}
