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
	"fmt"
	"sync"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// =============================================================================
// Language Table
// =============================================================================

// tsLanguage returns the tree-sitter grammar for a canonical language name,
// or nil for unsupported names.
func tsLanguage(name string) *sitter.Language {
	switch name {
	case "java":
		return java.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	}
	return nil
}

// =============================================================================
// Syntax Handles
// =============================================================================

// SyntaxHandle is an opaque reference to one parsed file: the tree-sitter
// tree plus its source bytes. A handle is owned by a single analyzer
// invocation for the duration of one file's analysis and is never shared
// across files. Callers must Close it to release the underlying tree.
type SyntaxHandle struct {
	tree     *sitter.Tree
	root     *sitter.Node
	source   []byte
	language string
}

// Root returns the root node of the parsed tree.
func (h *SyntaxHandle) Root() *sitter.Node { return h.root }

// Source returns the raw source bytes the tree was parsed from.
func (h *SyntaxHandle) Source() []byte { return h.source }

// Text returns the source text covered by a node.
func (h *SyntaxHandle) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(h.source[n.StartByte():n.EndByte()])
}

// Close releases the underlying tree-sitter tree.
func (h *SyntaxHandle) Close() {
	if h.tree != nil {
		h.tree.Close()
		h.tree = nil
	}
}

// parseSource parses content into a SyntaxHandle.
//
// Description:
//
//	Creates a fresh tree-sitter parser per call (parser instances are not
//	safe for concurrent use) and parses the content. Error-recovery trees
//	are tolerated: a tree whose root carries syntax errors is still
//	returned, since partial trees often still contain the annotation or
//	call the queries target. Only a nil tree or nil root is fatal for the
//	file.
//
// Outputs:
//   - *SyntaxHandle: The parsed handle. Caller must Close it.
//   - error: ErrInvalidContent for non-UTF-8 input, ErrUnsupportedLanguage
//     for unknown language names, ErrParseFailed when no tree could be
//     produced at all, or a context error on cancellation.
func parseSource(ctx context.Context, content []byte, language string) (*SyntaxHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	lang := tsLanguage(language)
	if lang == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if tree == nil || tree.RootNode() == nil {
		if tree != nil {
			tree.Close()
		}
		return nil, fmt.Errorf("%w: parser returned no tree", ErrParseFailed)
	}

	return &SyntaxHandle{
		tree:     tree,
		root:     tree.RootNode(),
		source:   content,
		language: language,
	}, nil
}

// =============================================================================
// Declarative Queries
// =============================================================================

// QueryMatch maps capture names to matched syntax nodes for one pattern
// match. Matches are ephemeral: produced and consumed within one analyzer
// invocation.
type QueryMatch map[string]*sitter.Node

// builtinQuery is a shipped tree-sitter query pattern, compiled lazily and
// exactly once. Compiled queries are immutable and safe to share across
// goroutines (each execution uses its own cursor).
type builtinQuery struct {
	name     string
	source   string
	language string

	once     sync.Once
	compiled *sitter.Query
	err      error
}

// builtinQueries lists every shipped pattern so CompileBuiltinQueries can
// force-compile the whole set at startup.
var builtinQueries []*builtinQuery

// newBuiltinQuery registers a shipped query pattern.
func newBuiltinQuery(name, language, source string) *builtinQuery {
	q := &builtinQuery{name: name, source: source, language: language}
	builtinQueries = append(builtinQueries, q)
	return q
}

// get returns the compiled query, compiling on first use.
func (q *builtinQuery) get() (*sitter.Query, error) {
	q.once.Do(func() {
		lang := tsLanguage(q.language)
		if lang == nil {
			q.err = fmt.Errorf("%w: query %s: unknown language %q", ErrQueryCompile, q.name, q.language)
			return
		}
		compiled, err := sitter.NewQuery([]byte(q.source), lang)
		if err != nil {
			q.err = fmt.Errorf("%w: query %s: %v", ErrQueryCompile, q.name, err)
			return
		}
		q.compiled = compiled
	})
	return q.compiled, q.err
}

// CompileBuiltinQueries force-compiles every shipped query pattern.
//
// A compile failure here is a defect in the shipped pattern set, not a user
// input problem: callers treat a non-nil return as fatal at startup rather
// than discovering it mid-scan.
func CompileBuiltinQueries() error {
	for _, q := range builtinQueries {
		if _, err := q.get(); err != nil {
			return err
		}
	}
	return nil
}

// runQuery executes a shipped query against a subtree and returns one
// QueryMatch per pattern match.
//
// runQuery never fails: an empty result signals no match, and a query that
// failed to compile (already surfaced by CompileBuiltinQueries) yields nil.
// Predicates such as #match? and #eq? are applied before captures are
// collected. When a capture name appears more than once in a match, the
// first node wins.
func runQuery(h *SyntaxHandle, q *builtinQuery, node *sitter.Node) []QueryMatch {
	compiled, err := q.get()
	if err != nil {
		return nil
	}
	if node == nil {
		node = h.root
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(compiled, node)

	var matches []QueryMatch
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, h.source)
		if len(m.Captures) == 0 {
			continue
		}
		qm := make(QueryMatch, len(m.Captures))
		for _, c := range m.Captures {
			name := compiled.CaptureNameForId(c.Index)
			if _, seen := qm[name]; !seen {
				qm[name] = c.Node
			}
		}
		matches = append(matches, qm)
	}
	return matches
}

// nodeLine returns the 1-based start line of a node.
func nodeLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// stripQuotes removes matching string delimiters from a literal's text.
// Handles single, double, backtick, and Python triple quotes.
func stripQuotes(s string) string {
	for _, q := range []string{`"""`, `'''`} {
		if len(s) >= 2*len(q) && s[:len(q)] == q && s[len(s)-len(q):] == q {
			return s[len(q) : len(s)-len(q)]
		}
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
