// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast extracts HTTP endpoint declarations from source files using
// tree-sitter. One Analyzer exists per supported language (Java, Python,
// NodeJS); all produce the same candidate/scope output consumed by the
// routes package for path composition.
package ast

import (
	"fmt"
	"strings"
)

// =============================================================================
// Size Limits
// =============================================================================

const (
	// DefaultMaxFileSize is the maximum file size an analyzer will accept.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024 // 10MB

	// WarnFileSize triggers a warning log for unusually large source files.
	WarnFileSize = 1 * 1024 * 1024 // 1MB

	// MaxSnippetBytes caps the source excerpt attached to a candidate.
	// Declarations longer than this are truncated with an ellipsis marker.
	MaxSnippetBytes = 2048

	// MaxScopeDepth bounds ancestor walks when resolving enclosing scopes.
	// Real source nesting never approaches this; it guards degenerate trees.
	MaxScopeDepth = 64
)

// =============================================================================
// HTTP Verbs
// =============================================================================

// Verb is an HTTP method associated with an endpoint declaration.
//
// VerbAny represents declarations that accept any method, such as a Java
// @RequestMapping without an explicit method element or a Flask route
// without a methods list (Flask defaults to GET; VerbAny is only used when
// the declaration is genuinely method-agnostic).
type Verb string

const (
	VerbGet     Verb = "GET"
	VerbPost    Verb = "POST"
	VerbPut     Verb = "PUT"
	VerbDelete  Verb = "DELETE"
	VerbPatch   Verb = "PATCH"
	VerbHead    Verb = "HEAD"
	VerbOptions Verb = "OPTIONS"
	VerbAny     Verb = "ANY"
)

// ParseVerb normalizes a raw method string to a Verb.
//
// Returns the normalized verb and true, or ("", false) when the string is
// not a recognized HTTP method. Matching is case-insensitive.
func ParseVerb(s string) (Verb, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GET":
		return VerbGet, true
	case "POST":
		return VerbPost, true
	case "PUT":
		return VerbPut, true
	case "DELETE":
		return VerbDelete, true
	case "PATCH":
		return VerbPatch, true
	case "HEAD":
		return VerbHead, true
	case "OPTIONS":
		return VerbOptions, true
	case "ANY", "*":
		return VerbAny, true
	}
	return "", false
}

// =============================================================================
// Authentication Status
// =============================================================================

// AuthStatus classifies whether an endpoint requires authentication.
//
// AuthUnknown is the default when no auth-related pattern matched. It is
// never silently promoted to a definite status: only an explicit marker
// (annotation, decorator, middleware) produces Required or NotRequired.
type AuthStatus string

const (
	AuthUnknown     AuthStatus = "unknown"
	AuthRequired    AuthStatus = "required"
	AuthNotRequired AuthStatus = "not_required"
)

// ParseAuthStatus parses a user-supplied auth filter value.
func ParseAuthStatus(s string) (AuthStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required", "yes", "auth":
		return AuthRequired, nil
	case "not_required", "no", "no-auth":
		return AuthNotRequired, nil
	case "unknown":
		return AuthUnknown, nil
	}
	return AuthUnknown, fmt.Errorf("invalid auth status %q", s)
}

// =============================================================================
// Parameters
// =============================================================================

// ParamKind identifies where an endpoint parameter is carried.
type ParamKind string

const (
	ParamPath   ParamKind = "path"
	ParamQuery  ParamKind = "query"
	ParamBody   ParamKind = "body"
	ParamHeader ParamKind = "header"
	ParamCookie ParamKind = "cookie"
)

// ParamKinds lists all kinds in canonical output order.
var ParamKinds = []ParamKind{ParamPath, ParamQuery, ParamBody, ParamHeader, ParamCookie}

// Parameter is a single parameter of an endpoint declaration.
type Parameter struct {
	// Name is the parameter identifier as written in source.
	Name string

	// Kind is where the parameter is carried (path, query, body, ...).
	Kind ParamKind

	// DataType is the declared type as written in source ("int", "UserDTO"),
	// or "Any" when the language provides no annotation.
	DataType string

	// Required reports whether the parameter is mandatory. Best-effort:
	// derived from default values and framework markers.
	Required bool
}

// =============================================================================
// Scopes
// =============================================================================

// ScopeID indexes a ScopeRecord within one ExtractResult. IDs are file-local
// until the merge phase rebases them into the scan-wide scope table.
type ScopeID int

// NoScope marks the absence of an enclosing scope or parent.
const NoScope ScopeID = -1

// ScopeKind identifies the structural unit a scope represents.
type ScopeKind string

const (
	// ScopeClass is a class declaration (Java controller, Python class).
	ScopeClass ScopeKind = "class"

	// ScopeRouter is a router object (express.Router(), APIRouter, Blueprint).
	ScopeRouter ScopeKind = "router"

	// ScopeApp is an application root object (express(), FastAPI(), Flask()).
	ScopeApp ScopeKind = "app"
)

// ScopeRecord describes one structural unit that may contribute a base path
// to endpoint declarations nested inside it.
//
// Scope nesting within a file forms a tree (structural nesting in source is
// acyclic). Mount links added during the merge phase may introduce cycles
// across records; the path composer walks with a visited set.
type ScopeRecord struct {
	// ID is the file-local index of this record; rebased at merge.
	ID ScopeID

	// Name is the identifier the scope is known by in source: the class
	// name, or the variable a router/app was assigned to. Empty for
	// anonymous scopes.
	Name string

	// Kind classifies the scope.
	Kind ScopeKind

	// File is the source file the scope was declared in, relative to the
	// scan root.
	File string

	// Line is the 1-based declaration line.
	Line int

	// BasePath is the path fragment the scope contributes ("" if none).
	// Examples: class-level @RequestMapping value, APIRouter prefix,
	// Blueprint url_prefix.
	BasePath string

	// Parent is the file-local enclosing scope, or NoScope.
	Parent ScopeID

	// MountPoint is the path prefix this scope was registered under when
	// mounted into another router ("" when not mounted). Filled by the
	// strategy for same-file mounts and by the merge phase for cross-file
	// mounts.
	MountPoint string

	// Auth is the scope-level authentication status inherited by nested
	// declarations that carry no marker of their own.
	Auth AuthStatus

	// Exported reports whether the scope is the file's exported router
	// (module.exports = router, export default router). Used to pick the
	// right target when a cross-file mount matches several scopes.
	Exported bool
}

// MountRecord is a pending router registration: scope Parent mounts the
// router named TargetName under Prefix. Targets declared in another file
// are resolved during the merge phase by identifier (and, when available,
// module path) matching — best-effort, never fatal.
type MountRecord struct {
	// Prefix is the mount path ("" mounts at the parent's root).
	Prefix string

	// TargetName is the identifier of the mounted router as written at the
	// registration site.
	TargetName string

	// TargetModule is the imported module path the identifier was bound
	// from ("./routes/users" for a require/import), when the strategy could
	// determine it. Used to disambiguate cross-file matches.
	TargetModule string

	// Parent is the file-local scope performing the registration,
	// or NoScope when the registration happens at module level with no
	// surrounding router scope.
	Parent ScopeID

	File string
	Line int
}

// =============================================================================
// Candidates
// =============================================================================

// Candidate is one matched endpoint declaration before path composition.
//
// PathFragment may be empty (pure base-path declarations); Scope references
// the innermost enclosing ScopeRecord in the same ExtractResult, or NoScope.
type Candidate struct {
	// Verb is the HTTP method, or VerbAny for method-agnostic declarations.
	Verb Verb

	// PathFragment is the path literal attached to this declaration, before
	// joining with enclosing base paths.
	PathFragment string

	// Handler is the function or method name handling the endpoint.
	Handler string

	// Scope is the file-local innermost enclosing scope, or NoScope.
	Scope ScopeID

	// File is the source path relative to the scan root.
	File string

	// Line is the 1-based declaration line.
	Line int

	// Auth is the method-level authentication hint (AuthUnknown when no
	// pattern matched at the declaration itself).
	Auth AuthStatus

	// Params are the declaration's extracted parameters.
	Params []Parameter

	// Snippet is the declaration source excerpt, capped at MaxSnippetBytes.
	Snippet string
}

// =============================================================================
// Extraction Result
// =============================================================================

// ExtractResult is the per-file output of one Analyzer invocation.
//
// A result may be partial: syntactically invalid files still yield whatever
// candidates the error-recovery tree exposed, with the conditions recorded
// in Errors. Results are independent per file and safe to produce
// concurrently; they are merged single-threaded afterwards.
type ExtractResult struct {
	// FilePath is the analyzed file, relative to the scan root.
	FilePath string

	// Language is the canonical language name ("java", "python", ...).
	Language string

	// Candidates are the matched endpoint declarations.
	Candidates []Candidate

	// Scopes are the detected structural scopes, indexed by their ID.
	Scopes []ScopeRecord

	// Mounts are pending router registrations awaiting merge-phase
	// resolution.
	Mounts []MountRecord

	// Errors records recoverable per-file conditions (syntax errors,
	// skipped ambiguous declarations). Never fatal.
	Errors []string

	// Skipped counts declarations that matched partially but could not be
	// turned into a candidate.
	Skipped int
}

// Validate checks internal consistency of the result.
//
// Every candidate scope reference and scope parent must point inside the
// Scopes slice or be NoScope. Analyzers call this before returning.
func (r *ExtractResult) Validate() error {
	n := ScopeID(len(r.Scopes))
	for i, s := range r.Scopes {
		if s.ID != ScopeID(i) {
			return fmt.Errorf("scope %d has ID %d", i, s.ID)
		}
		if s.Parent != NoScope && (s.Parent < 0 || s.Parent >= n) {
			return fmt.Errorf("scope %d parent %d out of range", i, s.Parent)
		}
		if s.Parent == s.ID {
			return fmt.Errorf("scope %d is its own parent", i)
		}
	}
	for i, c := range r.Candidates {
		if c.Scope != NoScope && (c.Scope < 0 || c.Scope >= n) {
			return fmt.Errorf("candidate %d scope %d out of range", i, c.Scope)
		}
	}
	for i, m := range r.Mounts {
		if m.Parent != NoScope && (m.Parent < 0 || m.Parent >= n) {
			return fmt.Errorf("mount %d parent %d out of range", i, m.Parent)
		}
	}
	return nil
}

// addError appends a recoverable condition to the result.
func (r *ExtractResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// truncateSnippet caps a declaration excerpt at MaxSnippetBytes without
// splitting a UTF-8 sequence.
func truncateSnippet(s string) string {
	if len(s) <= MaxSnippetBytes {
		return s
	}
	cut := MaxSnippetBytes
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
