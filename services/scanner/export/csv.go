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
	"encoding/csv"
	"io"
	"strconv"

	"github.com/AleutianAI/apiscan/services/scanner"
)

// CSVFormatter renders the endpoint list as pipe-delimited records. The
// pipe delimiter avoids quoting for paths and parameter lists, which
// routinely contain commas.
type CSVFormatter struct{}

// Format writes the report as pipe-delimited CSV with a header row.
func (f *CSVFormatter) Format(w io.Writer, report *scanner.Report) error {
	cw := csv.NewWriter(w)
	cw.Comma = '|'

	if err := cw.Write([]string{"verb", "path", "auth", "params", "handler", "file", "line"}); err != nil {
		return err
	}
	for _, e := range report.Endpoints {
		record := []string{
			string(e.Verb),
			e.Path,
			string(e.Auth),
			paramsString(e.Params),
			e.Handler,
			e.File,
			strconv.Itoa(e.Line),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
