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
	"log/slog"
	"regexp"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
)

// JavaAnalyzer extracts endpoint declarations from Java source using
// tree-sitter.
//
// Description:
//
//	JavaAnalyzer matches Spring MVC and JAX-RS routing annotations in one
//	pass. Classes become ScopeRecords carrying their base path (class-level
//	@RequestMapping or @Path) and any class-level security annotation;
//	annotated methods become Candidates referencing their innermost
//	enclosing class.
//
// Thread Safety:
//
//	JavaAnalyzer is safe for concurrent use. Configuration is immutable
//	after construction and each Extract call creates its own parser.
type JavaAnalyzer struct {
	maxFileSize     int64
	authAnnotations map[string]AuthStatus
	logger          *slog.Logger
}

// JavaOption configures a JavaAnalyzer.
type JavaOption func(*JavaAnalyzer)

// WithJavaMaxFileSize sets the maximum file size in bytes.
func WithJavaMaxFileSize(size int64) JavaOption {
	return func(a *JavaAnalyzer) {
		if size > 0 {
			a.maxFileSize = size
		}
	}
}

// WithJavaAuthAnnotations replaces the security annotation table. Keys are
// annotation names without the leading @.
func WithJavaAuthAnnotations(annotations map[string]AuthStatus) JavaOption {
	return func(a *JavaAnalyzer) {
		if len(annotations) > 0 {
			a.authAnnotations = annotations
		}
	}
}

// WithJavaLogger sets the logger for the analyzer.
func WithJavaLogger(logger *slog.Logger) JavaOption {
	return func(a *JavaAnalyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewJavaAnalyzer creates a Java analyzer with the given options.
func NewJavaAnalyzer(opts ...JavaOption) *JavaAnalyzer {
	a := &JavaAnalyzer{
		maxFileSize:     DefaultMaxFileSize,
		authAnnotations: defaultJavaAuthAnnotations,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns "java".
func (a *JavaAnalyzer) Language() string { return "java" }

// Extensions returns the file extensions handled by this analyzer.
func (a *JavaAnalyzer) Extensions() []string { return []string{".java"} }

// Extract matches Spring and JAX-RS endpoint declarations in Java source.
//
// See the Analyzer interface for the full contract. Files with syntax
// errors still produce a partial result; only unparseable or oversized
// content fails.
func (a *JavaAnalyzer) Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error) {
	start := time.Now()
	ctx, span := startExtractSpan(ctx, a.Language(), filePath, len(content))
	defer span.End()

	if len(content) == 0 {
		recordExtractMetrics(ctx, a.Language(), time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: empty content", ErrInvalidContent)
	}
	if int64(len(content)) > a.maxFileSize {
		recordExtractMetrics(ctx, a.Language(), time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrFileTooLarge, len(content), a.maxFileSize)
	}
	if len(content) > WarnFileSize {
		a.logger.Warn("analyzing large file",
			"file", filePath,
			"size_bytes", len(content))
	}

	h, err := parseSource(ctx, content, a.Language())
	if err != nil {
		recordExtractMetrics(ctx, a.Language(), time.Since(start), 0, false)
		return nil, err
	}
	defer h.Close()

	result := &ExtractResult{
		FilePath: filePath,
		Language: a.Language(),
	}
	if h.Root().HasError() {
		result.addError("syntax errors in %s; extraction may be partial", filePath)
	}

	bodyScopes := a.extractClasses(h, filePath, result)
	a.extractMethods(h, filePath, result, bodyScopes)

	if err := result.Validate(); err != nil {
		recordExtractMetrics(ctx, a.Language(), time.Since(start), 0, false)
		return nil, fmt.Errorf("inconsistent extraction for %s: %w", filePath, err)
	}

	if err := ctx.Err(); err != nil {
		recordExtractMetrics(ctx, a.Language(), time.Since(start), 0, false)
		return nil, fmt.Errorf("extraction canceled: %w", err)
	}

	setExtractSpanResult(span, len(result.Candidates), len(result.Scopes), len(result.Errors))
	recordExtractMetrics(ctx, a.Language(), time.Since(start), len(result.Candidates), true)
	return result, nil
}

// =============================================================================
// Class Scopes
// =============================================================================

// extractClasses builds a ScopeRecord per class declaration and returns a
// map from class body start offset to scope ID, used to resolve each
// method's innermost enclosing class.
func (a *JavaAnalyzer) extractClasses(h *SyntaxHandle, filePath string, result *ExtractResult) map[uint32]ScopeID {
	matches := runQuery(h, javaClassQuery, nil)
	bodyScopes := make(map[uint32]ScopeID, len(matches))

	type pending struct {
		node *sitter.Node
		body *sitter.Node
	}
	var nodes []pending

	for _, m := range matches {
		classNode := m["class.node"]
		nameNode := m["class.name"]
		bodyNode := m["class.body"]
		if classNode == nil || nameNode == nil || bodyNode == nil {
			result.Skipped++
			continue
		}

		scope := ScopeRecord{
			ID:     ScopeID(len(result.Scopes)),
			Name:   h.Text(nameNode),
			Kind:   ScopeClass,
			File:   filePath,
			Line:   nodeLine(classNode),
			Parent: NoScope,
			Auth:   AuthUnknown,
		}

		for _, ann := range javaAnnotationsOf(h, classNode) {
			if javaBasePathAnnotations[ann.name] {
				paths := stringLiteralsIn(h, ann.args)
				if len(paths) > 0 {
					scope.BasePath = paths[0]
				}
				if len(paths) > 1 {
					result.addError("class %s declares %d base paths at line %d; using %q",
						scope.Name, len(paths), scope.Line, paths[0])
				}
			}
			if status, ok := a.authAnnotations[ann.name]; ok {
				scope.Auth = status
			}
		}

		result.Scopes = append(result.Scopes, scope)
		bodyScopes[bodyNode.StartByte()] = scope.ID
		nodes = append(nodes, pending{node: classNode, body: bodyNode})
	}

	// Second pass: nested classes link to their enclosing class. The body
	// map is complete, so an ancestor walk finds the innermost one.
	for i, p := range nodes {
		if parent, ok := enclosingScope(p.node, bodyScopes); ok {
			result.Scopes[i].Parent = parent
		}
	}

	return bodyScopes
}

// enclosingScope walks a node's ancestors looking for a registered class
// body. Bounded by MaxScopeDepth.
func enclosingScope(node *sitter.Node, bodyScopes map[uint32]ScopeID) (ScopeID, bool) {
	n := node.Parent()
	for depth := 0; n != nil && depth < MaxScopeDepth; depth++ {
		if n.Type() == javaNodeClassBody {
			if id, ok := bodyScopes[n.StartByte()]; ok {
				return id, true
			}
		}
		n = n.Parent()
	}
	return NoScope, false
}

// =============================================================================
// Method Candidates
// =============================================================================

// requestMethodRe pulls explicit verbs out of a @RequestMapping argument
// list, e.g. method = RequestMethod.POST.
var requestMethodRe = regexp.MustCompile(`RequestMethod\.([A-Z]+)`)

// extractMethods emits one Candidate per (verb, path) pair declared on each
// annotated method.
func (a *JavaAnalyzer) extractMethods(h *SyntaxHandle, filePath string, result *ExtractResult, bodyScopes map[uint32]ScopeID) {
	for _, m := range runQuery(h, javaMethodQuery, nil) {
		methodNode := m["method.node"]
		if methodNode == nil {
			continue
		}

		var (
			verbs  []Verb
			paths  []string
			auth   = AuthUnknown
			routed bool
		)

		for _, ann := range javaAnnotationsOf(h, methodNode) {
			if status, ok := a.authAnnotations[ann.name]; ok {
				auth = status
				continue
			}
			verb, isVerb := javaVerbAnnotations[ann.name]
			isPath := javaPathAnnotations[ann.name] || ann.name == "Path"
			if !isVerb && !isPath {
				continue
			}
			routed = true
			if isVerb {
				if ann.name == "RequestMapping" {
					verbs = append(verbs, requestMappingVerbs(h.Text(ann.args))...)
				} else {
					verbs = append(verbs, verb)
				}
			}
			if isPath {
				paths = append(paths, stringLiteralsIn(h, ann.args)...)
			}
		}
		if !routed {
			continue
		}
		if len(verbs) == 0 {
			// JAX-RS @Path with no verb marker, or @RequestMapping with no
			// method element: the declaration accepts any method.
			verbs = []Verb{VerbAny}
		}
		if len(paths) == 0 {
			paths = []string{""}
		}

		handler := "unknown"
		if nameNode := methodNode.ChildByFieldName("name"); nameNode != nil {
			handler = h.Text(nameNode)
		}

		params := a.extractParameters(h, methodNode)
		snippet := truncateSnippet(declarationSnippet(h, methodNode))
		scope := NoScope
		if id, ok := enclosingScope(methodNode, bodyScopes); ok {
			scope = id
		}

		for _, verb := range verbs {
			for _, path := range paths {
				result.Candidates = append(result.Candidates, Candidate{
					Verb:         verb,
					PathFragment: path,
					Handler:      handler,
					Scope:        scope,
					File:         filePath,
					Line:         nodeLine(methodNode),
					Auth:         auth,
					Params:       params,
					Snippet:      snippet,
				})
			}
		}
	}
}

// requestMappingVerbs extracts the verbs a @RequestMapping argument list
// names. An empty slice means no method element was present.
func requestMappingVerbs(argsText string) []Verb {
	var verbs []Verb
	for _, m := range requestMethodRe.FindAllStringSubmatch(argsText, -1) {
		if verb, ok := ParseVerb(m[1]); ok {
			verbs = append(verbs, verb)
		}
	}
	return verbs
}

// extractParameters reads a method's formal parameters and classifies each
// by its Spring/JAX-RS annotation. Unannotated parameters are assumed to be
// request body payloads.
func (a *JavaAnalyzer) extractParameters(h *SyntaxHandle, methodNode *sitter.Node) []Parameter {
	paramsNode := methodNode.ChildByFieldName("parameters")
	if paramsNode == nil {
		return nil
	}

	var params []Parameter
	for _, m := range runQuery(h, javaParameterQuery, paramsNode) {
		nameNode := m["param.name"]
		if nameNode == nil {
			continue
		}
		p := Parameter{
			Name:     h.Text(nameNode),
			Kind:     ParamBody,
			DataType: h.Text(m["param.type"]),
			Required: true,
		}
		if annNode := m["param.annotation"]; annNode != nil {
			if kind, ok := javaParamAnnotations[h.Text(annNode)]; ok {
				p.Kind = kind
			}
		}
		if paramNode := m["param.node"]; paramNode != nil {
			normalized := strings.ReplaceAll(h.Text(paramNode), " ", "")
			if strings.Contains(normalized, "required=false") {
				p.Required = false
			}
		}
		params = append(params, p)
	}
	return params
}

// =============================================================================
// Annotation Helpers
// =============================================================================

// javaAnnotation is one annotation found on a declaration's modifiers.
// args is nil for marker annotations (@GET).
type javaAnnotation struct {
	name string
	args *sitter.Node
}

// javaAnnotationsOf returns the annotations on a class or method
// declaration, in source order.
func javaAnnotationsOf(h *SyntaxHandle, decl *sitter.Node) []javaAnnotation {
	var modifiers *sitter.Node
	for i := 0; i < int(decl.ChildCount()); i++ {
		if c := decl.Child(i); c != nil && c.Type() == javaNodeModifiers {
			modifiers = c
			break
		}
	}
	if modifiers == nil {
		return nil
	}

	var annotations []javaAnnotation
	for _, m := range runQuery(h, javaAnnotationQuery, modifiers) {
		nameNode := m["annotation.name"]
		if nameNode == nil {
			continue
		}
		annotations = append(annotations, javaAnnotation{
			name: h.Text(nameNode),
			args: m["annotation.args"],
		})
	}
	return annotations
}

// stringLiteralsIn collects every string literal under a node, unquoted and
// in source order. A nil node yields nil.
func stringLiteralsIn(h *SyntaxHandle, node *sitter.Node) []string {
	if node == nil {
		return nil
	}
	var literals []string
	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		if depth > MaxScopeDepth {
			return
		}
		if n.Type() == javaNodeStringLiteral {
			literals = append(literals, stripQuotes(h.Text(n)))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c != nil {
				walk(c, depth+1)
			}
		}
	}
	walk(node, 0)
	return literals
}

// declarationSnippet returns a declaration's text without its body: the
// annotations and signature only.
func declarationSnippet(h *SyntaxHandle, decl *sitter.Node) string {
	end := decl.EndByte()
	if body := decl.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	return strings.TrimSpace(string(h.Source()[decl.StartByte():end]))
}
