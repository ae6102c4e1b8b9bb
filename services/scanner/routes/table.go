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
	"path"
	"strings"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// Table is the scan-wide scope table: every ScopeRecord from every file,
// rebased to global IDs, plus the mount registrations awaiting resolution.
//
// Thread Safety:
//
//	Table is NOT safe for concurrent use. Extraction runs in parallel,
//	but results are merged from a single goroutine; the table belongs to
//	that merge step.
type Table struct {
	scopes []ast.ScopeRecord
	mounts []ast.MountRecord
}

// NewTable creates an empty scope table.
func NewTable() *Table {
	return &Table{}
}

// Scope returns a scope by global ID, or nil when out of range.
func (t *Table) Scope(id ast.ScopeID) *ast.ScopeRecord {
	if id < 0 || int(id) >= len(t.scopes) {
		return nil
	}
	return &t.scopes[id]
}

// Len returns the number of scopes in the table.
func (t *Table) Len() int { return len(t.scopes) }

// AddFile merges one file's extraction result into the table and returns
// its candidates with scope references rebased to global IDs.
//
// Call order determines global IDs, so callers feed files in a sorted
// order to keep output deterministic across runs.
func (t *Table) AddFile(result *ast.ExtractResult) []ast.Candidate {
	offset := ast.ScopeID(len(t.scopes))
	rebase := func(id ast.ScopeID) ast.ScopeID {
		if id == ast.NoScope {
			return ast.NoScope
		}
		return id + offset
	}

	for _, s := range result.Scopes {
		s.ID = rebase(s.ID)
		s.Parent = rebase(s.Parent)
		t.scopes = append(t.scopes, s)
	}
	for _, m := range result.Mounts {
		m.Parent = rebase(m.Parent)
		t.mounts = append(t.mounts, m)
	}

	candidates := make([]ast.Candidate, len(result.Candidates))
	for i, c := range result.Candidates {
		c.Scope = rebase(c.Scope)
		candidates[i] = c
	}
	return candidates
}

// ResolveMounts links every pending mount registration to its target
// scope.
//
// Description:
//
//	Resolution is best-effort and never fatal. A same-file scope whose
//	name matches the registration target wins first; otherwise every
//	other file is searched by target name, narrowed by the recorded
//	module path and by export markers. A target matched by exactly one
//	scope gets its Parent set to the mounting scope and its MountPoint to
//	the mount prefix. Zero matches and multiple surviving matches are
//	counted in stats and left unlinked: their endpoints compose from the
//	mounted router's own chain, missing the mount prefix, which is the
//	conservative result.
//
//	A scope mounted more than once keeps its first link; later mounts of
//	the same target are reported as ambiguous.
func (t *Table) ResolveMounts(stats *Stats) {
	for _, m := range t.mounts {
		target := t.findMountTarget(m, stats)
		if target == nil {
			continue
		}
		if target.MountPoint != "" || target.Parent != ast.NoScope {
			stats.AmbiguousMounts++
			stats.warnf("router %q mounted more than once; keeping mount at %s:%d's earlier link",
				m.TargetName, m.File, m.Line)
			continue
		}
		target.Parent = m.Parent
		target.MountPoint = m.Prefix
	}
}

// findMountTarget locates the scope a mount registration refers to.
func (t *Table) findMountTarget(m ast.MountRecord, stats *Stats) *ast.ScopeRecord {
	// Same-file match first: app.use('/x', router) with router declared
	// above it.
	for i := range t.scopes {
		s := &t.scopes[i]
		if s.File == m.File && s.Name == m.TargetName && s.ID != m.Parent {
			return s
		}
	}

	// Cross-file: match by name, narrowed by module path, preferring
	// exported scopes. A module-path match alone also counts for exported
	// scopes: require('./routes/users') binds whatever that file exports,
	// so the local name need not equal the declared one.
	var matches []*ast.ScopeRecord
	for i := range t.scopes {
		s := &t.scopes[i]
		if s.File == m.File {
			continue
		}
		nameMatch := s.Name == m.TargetName
		moduleKnown := m.TargetModule != ""
		moduleMatch := moduleKnown && moduleMatchesFile(m.TargetModule, s.File)
		switch {
		case nameMatch && moduleKnown && !moduleMatch:
			continue
		case nameMatch:
		case moduleMatch && s.Exported:
		default:
			continue
		}
		matches = append(matches, s)
	}
	if len(matches) > 1 {
		var exported []*ast.ScopeRecord
		for _, s := range matches {
			if s.Exported {
				exported = append(exported, s)
			}
		}
		if len(exported) > 0 {
			matches = exported
		}
	}

	switch len(matches) {
	case 0:
		stats.UnresolvedMounts++
		stats.warnf("mount at %s:%d: no router named %q found; endpoints under it keep partial paths",
			m.File, m.Line, m.TargetName)
		return nil
	case 1:
		return matches[0]
	default:
		stats.AmbiguousMounts++
		stats.warnf("mount at %s:%d: %d routers named %q match; leaving unlinked",
			m.File, m.Line, len(matches), m.TargetName)
		return nil
	}
}

// moduleMatchesFile reports whether an import module path plausibly refers
// to a source file: "./routes/users" and "routes.users" both match
// "src/routes/users.js". A dotted path may also name a symbol inside a
// module ("from admin import bp" records "admin.bp"), so the parent
// module's file counts as a match too.
func moduleMatchesFile(module, file string) bool {
	module = strings.TrimPrefix(module, "./")
	module = strings.ReplaceAll(module, ".", "/")
	module = strings.Trim(module, "/")
	if module == "" {
		return false
	}

	stem := strings.TrimSuffix(file, path.Ext(file))
	stem = strings.ReplaceAll(stem, "\\", "/")

	candidates := []string{module}
	if i := strings.LastIndex(module, "/"); i > 0 {
		candidates = append(candidates, module[:i])
	}
	for _, m := range candidates {
		// "routes/users" matches "src/routes/users" and
		// "routes/users/index"; Python packages resolve to __init__.
		if strings.HasSuffix(stem, m) ||
			strings.HasSuffix(stem, m+"/index") ||
			strings.HasSuffix(stem, m+"/__init__") {
			return true
		}
	}
	return false
}
