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

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// endpointKey identifies an endpoint for deduplication. Two declarations
// of the same verb and path at different source locations are distinct
// endpoints: both survive.
type endpointKey struct {
	verb ast.Verb
	path string
	file string
	line int
}

// Dedupe removes repeated endpoints, keeping the first occurrence. Input
// order is preserved.
//
// Repeats arise when several query patterns match one declaration, or when
// a Java annotation carries both a Spring and a JAX-RS reading of the same
// method.
func Dedupe(endpoints []Endpoint) []Endpoint {
	seen := make(map[endpointKey]bool, len(endpoints))
	out := endpoints[:0]
	for _, e := range endpoints {
		key := endpointKey{verb: e.Verb, path: e.Path, file: e.File, line: e.Line}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// Key returns the endpoint's identity string, useful for logging and test
// assertions.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s %s (%s:%d)", e.Verb, e.Path, e.File, e.Line)
}
