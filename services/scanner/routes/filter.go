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
	"fmt"
	"strings"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// Criteria selects which endpoints a scan reports.
//
// Filters apply in a fixed order: include-verbs, exclude-verbs, file
// ignore prefixes, auth status. Each stage only ever removes endpoints,
// so the order matters when both verb lists are set: an endpoint must
// pass the include list and then survive the exclude list.
type Criteria struct {
	// IncludeVerbs keeps only endpoints with one of these verbs. Empty
	// means all verbs.
	IncludeVerbs []ast.Verb

	// ExcludeVerbs removes endpoints with one of these verbs.
	ExcludeVerbs []ast.Verb

	// IgnorePathPrefixes removes endpoints whose source file path
	// (relative to the scan root) starts with any of these literal
	// prefixes, e.g. "src/test" or "target". The walker already prunes
	// these during traversal; this re-applies the same rule to whatever
	// was extracted.
	IgnorePathPrefixes []string

	// Auth keeps only endpoints with this resolved status. Nil means no
	// auth filtering.
	Auth *ast.AuthStatus
}

// Empty reports whether the criteria filter nothing.
func (c Criteria) Empty() bool {
	return len(c.IncludeVerbs) == 0 &&
		len(c.ExcludeVerbs) == 0 &&
		len(c.IgnorePathPrefixes) == 0 &&
		c.Auth == nil
}

// Apply filters endpoints, preserving order. The input slice is not
// modified.
func (c Criteria) Apply(endpoints []Endpoint) []Endpoint {
	if c.Empty() {
		return endpoints
	}
	out := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if c.keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// keep applies the filter stages in order.
func (c Criteria) keep(e Endpoint) bool {
	if len(c.IncludeVerbs) > 0 && !verbMatches(e.Verb, c.IncludeVerbs) {
		return false
	}
	if len(c.ExcludeVerbs) > 0 && verbExcluded(e.Verb, c.ExcludeVerbs) {
		return false
	}
	for _, prefix := range c.IgnorePathPrefixes {
		if prefix != "" && strings.HasPrefix(e.File, prefix) {
			return false
		}
	}
	if c.Auth != nil && e.Auth != *c.Auth {
		return false
	}
	return true
}

// verbMatches reports whether a verb passes an include list. A
// method-agnostic endpoint (ANY) may serve every verb, so it passes any
// include list.
func verbMatches(verb ast.Verb, include []ast.Verb) bool {
	if verb == ast.VerbAny {
		return true
	}
	for _, v := range include {
		if v == verb || v == ast.VerbAny {
			return true
		}
	}
	return false
}

// verbExcluded reports whether a verb is removed by an exclude list. A
// method-agnostic endpoint is only removed when ANY itself is excluded:
// excluding POST must not hide an endpoint that also serves GET.
func verbExcluded(verb ast.Verb, exclude []ast.Verb) bool {
	for _, v := range exclude {
		if v == verb {
			return true
		}
	}
	return false
}

// ParseVerbList parses a comma-separated verb list from the CLI.
func ParseVerbList(raw string) ([]ast.Verb, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var verbs []ast.Verb
	for _, part := range strings.Split(raw, ",") {
		verb, ok := ast.ParseVerb(part)
		if !ok {
			return nil, &InvalidVerbError{Raw: strings.TrimSpace(part)}
		}
		verbs = append(verbs, verb)
	}
	return verbs, nil
}

// InvalidVerbError reports an unrecognized verb in a filter list.
type InvalidVerbError struct {
	Raw string
}

func (e *InvalidVerbError) Error() string {
	return fmt.Sprintf("invalid HTTP verb %q", e.Raw)
}
