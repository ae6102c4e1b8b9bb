// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import "errors"

// Sentinel errors for extraction failure categories.
//
// These can be checked with errors.Is() to determine how a failure should
// be handled. Only ErrQueryCompile is fatal to a scan; every other category
// is recovered at file granularity (the file is skipped with a warning and
// the scan continues).
var (
	// ErrUnsupportedLanguage indicates that no analyzer is registered for
	// the requested language or file extension. Files hitting this are
	// skipped silently.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseFailed indicates the file could not be parsed at all, even
	// with tree-sitter error recovery. Partial syntax errors are NOT this:
	// those still produce a queryable tree and are recorded in
	// ExtractResult.Errors instead.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates the content cannot be processed
	// (nil slice, non-UTF-8 encoding, binary data).
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates the content exceeds the analyzer's size
	// limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrQueryCompile indicates a shipped tree-sitter query pattern failed
	// to compile. This is a defect in the built-in pattern set, not a user
	// input problem, and aborts startup.
	ErrQueryCompile = errors.New("query compile failed")
)
