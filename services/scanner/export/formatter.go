// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export renders scan reports: an aligned console table, Markdown,
// JSON, and pipe-delimited CSV.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/apiscan/services/scanner"
	"github.com/AleutianAI/apiscan/services/scanner/ast"
	"github.com/AleutianAI/apiscan/services/scanner/routes"
)

// Format names an output format.
type Format string

const (
	FormatConsole  Format = "console"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
)

// Formatter renders a scan report to a writer.
type Formatter interface {
	Format(w io.Writer, report *scanner.Report) error
}

// For returns the formatter for a format name. Names are matched
// case-insensitively and "md" is accepted for markdown.
func For(name string) (Formatter, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatConsole, "":
		return &ConsoleFormatter{}, nil
	case FormatMarkdown, "md":
		return &MarkdownFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", name)
}

// paramsString renders an endpoint's parameters grouped by location, in
// canonical kind order: "path: id; query: limit, offset".
func paramsString(params []ast.Parameter) string {
	if len(params) == 0 {
		return ""
	}
	byKind := make(map[ast.ParamKind][]string)
	for _, p := range params {
		name := p.Name
		if p.DataType != "" && p.DataType != "Any" {
			name += ":" + p.DataType
		}
		byKind[p.Kind] = append(byKind[p.Kind], name)
	}
	var groups []string
	for _, kind := range ast.ParamKinds {
		if names := byKind[kind]; len(names) > 0 {
			groups = append(groups, string(kind)+": "+strings.Join(names, ", "))
		}
	}
	return strings.Join(groups, "; ")
}

// authString renders a resolved auth status compactly.
func authString(status ast.AuthStatus) string {
	switch status {
	case ast.AuthRequired:
		return "yes"
	case ast.AuthNotRequired:
		return "no"
	}
	return "?"
}

// location renders an endpoint's source position.
func location(e routes.Endpoint) string {
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}
