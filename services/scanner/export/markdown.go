// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/apiscan/services/scanner"
)

// MarkdownFormatter renders the report as a Markdown document: a summary
// header, the endpoint table, and a warnings section when any exist.
type MarkdownFormatter struct{}

// Format writes the report as Markdown.
func (f *MarkdownFormatter) Format(w io.Writer, report *scanner.Report) error {
	fmt.Fprintf(w, "# API Endpoints\n\n")
	fmt.Fprintf(w, "Target: `%s`  \n", report.Target)
	fmt.Fprintf(w, "Endpoints: %d | Files analyzed: %d | Files skipped: %d\n\n",
		len(report.Endpoints), report.FilesAnalyzed, report.FilesSkipped)

	if len(report.Endpoints) == 0 {
		fmt.Fprintln(w, "_No endpoints found._")
	} else {
		fmt.Fprintln(w, "| Verb | Path | Auth | Params | Handler | Location |")
		fmt.Fprintln(w, "|------|------|------|--------|---------|----------|")
		for _, e := range report.Endpoints {
			fmt.Fprintf(w, "| %s | `%s` | %s | %s | `%s` | %s |\n",
				e.Verb,
				e.Path,
				authString(e.Auth),
				mdEscape(paramsString(e.Params)),
				mdEscape(e.Handler),
				location(e))
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\n## Warnings\n\n")
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "- %s\n", mdEscape(warning))
		}
	}
	return nil
}

// mdEscape keeps cell content from breaking the table.
func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
