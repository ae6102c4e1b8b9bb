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
	"log/slog"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// Composer turns rebased candidates into endpoints by walking each
// candidate's scope chain.
//
// Description:
//
//	For every candidate the composer collects path contributions from the
//	innermost scope outward: each scope contributes its mount prefix then
//	its base path, and fragments are joined root-first. Authentication
//	resolves the same way: the candidate's own marker wins, otherwise the
//	innermost scope with a definite status.
//
//	Mount links can form cycles (a mounts b, b mounts a). The walk keeps
//	a visited set and truncates the chain at the first repeat, keeping
//	whatever prefix was collected up to that point.
//
// Thread Safety:
//
//	Composer is NOT safe for concurrent use; it runs in the merge step.
type Composer struct {
	table  *Table
	logger *slog.Logger
}

// NewComposer creates a Composer over a resolved scope table. The table
// must already have had ResolveMounts called.
func NewComposer(table *Table, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{table: table, logger: logger}
}

// Compose builds the endpoint for every candidate.
func (c *Composer) Compose(candidates []ast.Candidate, stats *Stats) []Endpoint {
	endpoints := make([]Endpoint, 0, len(candidates))
	for _, cand := range candidates {
		endpoints = append(endpoints, c.composeOne(cand, stats))
	}
	return endpoints
}

// composeOne walks one candidate's scope chain.
func (c *Composer) composeOne(cand ast.Candidate, stats *Stats) Endpoint {
	auth := cand.Auth

	// Contributions are collected innermost-first, then reversed by
	// prepending during the join below.
	var fragments []string
	fragments = append(fragments, cand.PathFragment)

	visited := make(map[ast.ScopeID]bool)
	id := cand.Scope
	for depth := 0; id != ast.NoScope && depth < ast.MaxScopeDepth; depth++ {
		if visited[id] {
			stats.TruncatedCycles++
			stats.warnf("mount cycle through %q at %s:%d; path truncated at cycle entry",
				scopeName(c.table, id), cand.File, cand.Line)
			c.logger.Warn("mount cycle detected",
				"scope", scopeName(c.table, id),
				"file", cand.File,
				"line", cand.Line)
			break
		}
		visited[id] = true

		scope := c.table.Scope(id)
		if scope == nil {
			break
		}
		// Root-first order within one scope is mount prefix then base
		// path, so prepend base path first.
		fragments = append([]string{scope.MountPoint, scope.BasePath}, fragments...)
		if auth == ast.AuthUnknown && scope.Auth != ast.AuthUnknown {
			auth = scope.Auth
		}
		id = scope.Parent
	}

	return Endpoint{
		Verb:    cand.Verb,
		Path:    normalizeParams(JoinPath(fragments...)),
		Handler: cand.Handler,
		File:    cand.File,
		Line:    cand.Line,
		Auth:    auth,
		Params:  cand.Params,
		Snippet: cand.Snippet,
	}
}

func scopeName(t *Table, id ast.ScopeID) string {
	if s := t.Scope(id); s != nil && s.Name != "" {
		return s.Name
	}
	return "(anonymous)"
}
