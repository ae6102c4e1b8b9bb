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
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/AleutianAI/apiscan/services/scanner"
)

// timeUnit is the rounding granularity for reported durations.
const timeUnit = time.Millisecond

// ConsoleFormatter renders an aligned table for terminal output, followed
// by a scan summary and any warnings.
type ConsoleFormatter struct{}

// Format writes the report as a console table.
func (f *ConsoleFormatter) Format(w io.Writer, report *scanner.Report) error {
	if len(report.Endpoints) == 0 {
		fmt.Fprintln(w, "No endpoints found.")
	} else {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Verb", "Path", "Auth", "Params", "Handler", "Location"})
		table.SetBorder(false)
		table.SetCenterSeparator("")
		table.SetColumnAlignment([]int{
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_CENTER,
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT,
		})
		for _, e := range report.Endpoints {
			table.Append([]string{
				string(e.Verb),
				e.Path,
				authString(e.Auth),
				paramsString(e.Params),
				e.Handler,
				location(e),
			})
		}
		table.Render()
	}

	fmt.Fprintf(w, "\n%d endpoint(s) from %d file(s) in %s",
		len(report.Endpoints), report.FilesAnalyzed, report.Duration.Round(timeUnit))
	if report.FilesSkipped > 0 {
		fmt.Fprintf(w, " (%d file(s) skipped)", report.FilesSkipped)
	}
	fmt.Fprintln(w)

	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}
