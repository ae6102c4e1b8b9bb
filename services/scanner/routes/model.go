// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes turns per-file extraction results into finished
// endpoints: it merges scope tables across files, resolves router mounts,
// composes full paths, deduplicates, and applies result filters.
package routes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// Endpoint is one discovered HTTP API endpoint with its fully composed
// path.
type Endpoint struct {
	// Verb is the HTTP method, or ast.VerbAny for method-agnostic routes.
	Verb ast.Verb `json:"verb"`

	// Path is the full path from the application root, normalized: single
	// slashes, leading slash, no trailing slash except root, path
	// parameters in {name} form.
	Path string `json:"path"`

	// Handler is the function or method serving the endpoint.
	Handler string `json:"handler"`

	// File is the declaring source file, relative to the scan root.
	File string `json:"file"`

	// Line is the 1-based declaration line.
	Line int `json:"line"`

	// Auth is the resolved authentication status after scope inheritance.
	Auth ast.AuthStatus `json:"auth"`

	// Params are the endpoint's parameters.
	Params []ast.Parameter `json:"params,omitempty"`

	// Snippet is the declaration source excerpt.
	Snippet string `json:"snippet,omitempty"`
}

// Stats accumulates the soft conditions hit while composing endpoints.
// None of them abort a scan; they surface in the report as warnings.
type Stats struct {
	// UnresolvedMounts counts mount registrations whose target router
	// could not be found in any analyzed file.
	UnresolvedMounts int

	// AmbiguousMounts counts mounts whose target matched several scopes;
	// those are left unlinked rather than guessed.
	AmbiguousMounts int

	// TruncatedCycles counts scope chains cut short by a mount cycle.
	TruncatedCycles int

	// Warnings carries the human-readable description of each condition.
	Warnings []string
}

func (s *Stats) warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Sort orders endpoints canonically: path, then verb, then file, then
// line. Output order is stable across runs regardless of extraction
// concurrency.
func Sort(endpoints []Endpoint) {
	sort.SliceStable(endpoints, func(i, j int) bool {
		a, b := endpoints[i], endpoints[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Verb != b.Verb {
			return a.Verb < b.Verb
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
}

// JoinPath joins path fragments into one normalized path.
//
// Description:
//
//	Fragments are joined with single slashes; empty fragments vanish. The
//	result always starts with "/" and never ends with one, except for the
//	root path itself. The operation is idempotent: joining an already
//	joined path with nothing changes nothing.
//
// Examples:
//
//	JoinPath("/api/", "/v1", "users/") => "/api/v1/users"
//	JoinPath("", "")                   => "/"
func JoinPath(fragments ...string) string {
	var b strings.Builder
	for _, f := range fragments {
		f = strings.Trim(f, "/")
		if f == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(f)
	}
	if b.Len() == 0 {
		return "/"
	}
	joined := b.String()
	// Collapse duplicate slashes inside fragments ("/a//b").
	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}
	return joined
}

// normalizeParams rewrites path parameter segments into the {name} form:
// Express ":id" and Flask "<int:id>" both become "{id}". FastAPI and
// Spring templates already use braces and pass through.
func normalizeParams(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if j := strings.IndexAny(name, "(?"); j >= 0 {
				name = name[:j]
			}
			if name != "" {
				segments[i] = "{" + name + "}"
			}
		case strings.HasPrefix(seg, "<") && strings.HasSuffix(seg, ">"):
			name := seg[1 : len(seg)-1]
			if j := strings.LastIndex(name, ":"); j >= 0 {
				name = name[j+1:]
			}
			if name != "" {
				segments[i] = "{" + name + "}"
			}
		}
	}
	return strings.Join(segments, "/")
}
