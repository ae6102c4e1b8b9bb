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

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCompileBuiltinQueries(t *testing.T) {
	if err := CompileBuiltinQueries(); err != nil {
		t.Fatalf("shipped query failed to compile: %v", err)
	}
}

func TestParseSource_InvalidUTF8(t *testing.T) {
	_, err := parseSource(context.Background(), []byte{0xff, 0xfe, 0xfd}, "python")
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestParseSource_UnsupportedLanguage(t *testing.T) {
	_, err := parseSource(context.Background(), []byte("x = 1"), "cobol")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestParseSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := parseSource(ctx, []byte("x = 1"), "python")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestParseSource_SyntaxErrorsStillYieldTree(t *testing.T) {
	h, err := parseSource(context.Background(), []byte("def broken(:\n  pass"), "python")
	if err != nil {
		t.Fatalf("error-recovery tree expected, got error: %v", err)
	}
	defer h.Close()
	if !h.Root().HasError() {
		t.Error("expected root to carry syntax errors")
	}
}

func TestStripQuotes(t *testing.T) {
	cases := map[string]string{
		`"users"`:        "users",
		`'users'`:        "users",
		"`users`":        "users",
		`"""doc"""`:      "doc",
		`'''doc'''`:      "doc",
		`unquoted`:       "unquoted",
		`"`:              `"`,
		`"mis'`:          `"mis'`,
		`""`:             "",
		`"/users/{id}"`:  "/users/{id}",
		"`/api/health`":  "/api/health",
	}
	for in, want := range cases {
		if got := stripQuotes(in); got != want {
			t.Errorf("stripQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateSnippet(t *testing.T) {
	short := "def handler(): pass"
	if got := truncateSnippet(short); got != short {
		t.Errorf("short snippet modified: %q", got)
	}

	long := strings.Repeat("x", MaxSnippetBytes+100)
	got := truncateSnippet(long)
	if len(got) != MaxSnippetBytes+len("...") {
		t.Errorf("truncated length = %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis suffix")
	}

	// Multi-byte runes must not be split mid-sequence.
	multi := strings.Repeat("é", MaxSnippetBytes)
	got = truncateSnippet(multi)
	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis suffix on multi-byte input")
	}
	for _, r := range strings.TrimSuffix(got, "...") {
		if r == '�' {
			t.Fatal("snippet truncation split a UTF-8 sequence")
		}
	}
}

func TestParseVerb(t *testing.T) {
	if v, ok := ParseVerb("get"); !ok || v != VerbGet {
		t.Errorf("ParseVerb(get) = %v, %v", v, ok)
	}
	if v, ok := ParseVerb(" DELETE "); !ok || v != VerbDelete {
		t.Errorf("ParseVerb( DELETE ) = %v, %v", v, ok)
	}
	if v, ok := ParseVerb("*"); !ok || v != VerbAny {
		t.Errorf("ParseVerb(*) = %v, %v", v, ok)
	}
	if _, ok := ParseVerb("FETCH"); ok {
		t.Error("ParseVerb(FETCH) should fail")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewDefaultRegistry()

	if a, ok := r.ForLanguage("java"); !ok || a.Language() != "java" {
		t.Error("java analyzer not registered")
	}
	if a, ok := r.ForExtension(".PY"); !ok || a.Language() != "python" {
		t.Error("extension lookup should be case-insensitive")
	}
	if a, ok := r.ForExtension(".tsx"); !ok || a.Language() != "nodejs" {
		t.Error("tsx should map to the nodejs analyzer")
	}
	if _, ok := r.ForExtension(".rb"); ok {
		t.Error("unexpected analyzer for .rb")
	}
	if len(r.Languages()) != 3 {
		t.Errorf("expected 3 languages, got %d", len(r.Languages()))
	}
}
