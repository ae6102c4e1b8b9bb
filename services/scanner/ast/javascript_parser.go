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
	"path"
	"regexp"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
)

// NodeJSAnalyzer extracts endpoint declarations from JavaScript and
// TypeScript source using tree-sitter.
//
// Description:
//
//	NodeJSAnalyzer matches Express-style routing: verb calls on app/router
//	objects (app.get('/users', handler)), router constructions
//	(express(), express.Router()), and mount registrations
//	(app.use('/api', router)). One analyzer covers both grammars; the
//	file extension selects which one parses the content.
//
//	Cross-file router links are the norm in Express projects, so the
//	analyzer also records require/import bindings and exported routers
//	(module.exports = router, export default router). The merge phase
//	uses these to attach a mounted router declared in another file.
//
// Thread Safety:
//
//	NodeJSAnalyzer is safe for concurrent use. Configuration is immutable
//	after construction and each Extract call creates its own parser.
type NodeJSAnalyzer struct {
	maxFileSize int64
	authRe      *regexp.Regexp
	logger      *slog.Logger
}

// NodeJSOption configures a NodeJSAnalyzer.
type NodeJSOption func(*NodeJSAnalyzer)

// WithNodeJSMaxFileSize sets the maximum file size in bytes.
func WithNodeJSMaxFileSize(size int64) NodeJSOption {
	return func(a *NodeJSAnalyzer) {
		if size > 0 {
			a.maxFileSize = size
		}
	}
}

// WithNodeJSAuthPattern replaces the pattern used to classify middleware
// identifiers as authentication-related.
func WithNodeJSAuthPattern(re *regexp.Regexp) NodeJSOption {
	return func(a *NodeJSAnalyzer) {
		if re != nil {
			a.authRe = re
		}
	}
}

// WithNodeJSLogger sets the logger for the analyzer.
func WithNodeJSLogger(logger *slog.Logger) NodeJSOption {
	return func(a *NodeJSAnalyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// defaultJSAuthRe matches middleware names that imply an authentication
// requirement: authenticate, requireAuth, passport.authenticate, verifyJWT.
var defaultJSAuthRe = regexp.MustCompile(`(?i)(auth|passport|jwt|token|verify|secure|protect)`)

// NewNodeJSAnalyzer creates a NodeJS analyzer with the given options.
func NewNodeJSAnalyzer(opts ...NodeJSOption) *NodeJSAnalyzer {
	a := &NodeJSAnalyzer{
		maxFileSize: DefaultMaxFileSize,
		authRe:      defaultJSAuthRe,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns "nodejs".
func (a *NodeJSAnalyzer) Language() string { return "nodejs" }

// Extensions returns the file extensions handled by this analyzer.
func (a *NodeJSAnalyzer) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}
}

// Extract matches Express endpoint declarations in JavaScript or TypeScript
// source.
//
// See the Analyzer interface for the full contract.
func (a *NodeJSAnalyzer) Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error) {
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

	grammar, queries := jsGrammarFor(filePath)
	h, err := parseSource(ctx, content, grammar)
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

	imports := a.importMap(h, queries)
	scopeIdx := a.extractRouters(h, queries, filePath, result)
	a.markExports(h, queries, result, scopeIdx)
	a.extractRouteCalls(h, queries, filePath, result, scopeIdx, imports)

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

// jsGrammarFor selects the grammar and query set for a file by extension.
func jsGrammarFor(filePath string) (string, *jsQuerySet) {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".ts", ".tsx":
		return "typescript", tsQueries
	}
	return "javascript", jsQueries
}

// =============================================================================
// Router Scopes
// =============================================================================

// extractRouters builds a ScopeRecord per app/router construction:
// const app = express(), const router = express.Router().
func (a *NodeJSAnalyzer) extractRouters(h *SyntaxHandle, queries *jsQuerySet, filePath string, result *ExtractResult) map[string]ScopeID {
	scopeIdx := make(map[string]ScopeID)
	for _, m := range runQuery(h, queries.routerDecl, nil) {
		nameNode := m["router.name"]
		valueNode := m["router.value"]
		if nameNode == nil || valueNode == nil {
			continue
		}
		kind, ok := jsRouterCtorKind(h, valueNode)
		if !ok {
			continue
		}
		scope := ScopeRecord{
			ID:     ScopeID(len(result.Scopes)),
			Name:   h.Text(nameNode),
			Kind:   kind,
			File:   filePath,
			Line:   nodeLine(m["router.node"]),
			Parent: NoScope,
			Auth:   AuthUnknown,
		}
		result.Scopes = append(result.Scopes, scope)
		scopeIdx[scope.Name] = scope.ID
	}
	return scopeIdx
}

// jsRouterCtorKind classifies a call expression as an app or router
// constructor.
func jsRouterCtorKind(h *SyntaxHandle, call *sitter.Node) (ScopeKind, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	switch fn.Type() {
	case jsNodeIdentifier:
		switch h.Text(fn) {
		case "express":
			return ScopeApp, true
		case "Router":
			return ScopeRouter, true
		}
	case jsNodeMemberExpression:
		if h.Text(fn) == "express.Router" {
			return ScopeRouter, true
		}
	}
	return "", false
}

// ensureJSScope returns the scope a name refers to, creating a synthetic
// record for objects constructed in another file.
func ensureJSScope(result *ExtractResult, scopeIdx map[string]ScopeID, name, filePath string, line int) ScopeID {
	if id, ok := scopeIdx[name]; ok {
		return id
	}
	kind := ScopeRouter
	if strings.HasPrefix(strings.ToLower(name), "app") || strings.HasPrefix(strings.ToLower(name), "server") {
		kind = ScopeApp
	}
	scope := ScopeRecord{
		ID:     ScopeID(len(result.Scopes)),
		Name:   name,
		Kind:   kind,
		File:   filePath,
		Line:   line,
		Parent: NoScope,
		Auth:   AuthUnknown,
	}
	result.Scopes = append(result.Scopes, scope)
	scopeIdx[name] = scope.ID
	return scope.ID
}

// markExports flags scopes exported from the file so cross-file mount
// resolution can prefer them.
func (a *NodeJSAnalyzer) markExports(h *SyntaxHandle, queries *jsQuerySet, result *ExtractResult, scopeIdx map[string]ScopeID) {
	for _, m := range runQuery(h, queries.exports, nil) {
		nameNode := m["export.name"]
		if nameNode == nil {
			continue
		}
		if id, ok := scopeIdx[h.Text(nameNode)]; ok {
			result.Scopes[id].Exported = true
		}
	}
}

// =============================================================================
// Imports
// =============================================================================

// importMap builds an identifier-to-module map from require calls and ES
// imports: const users = require('./routes/users') binds users to
// ./routes/users.
func (a *NodeJSAnalyzer) importMap(h *SyntaxHandle, queries *jsQuerySet) map[string]string {
	imports := make(map[string]string)
	for _, m := range runQuery(h, queries.require, nil) {
		nameNode := m["require.name"]
		moduleNode := m["require.module"]
		if nameNode != nil && moduleNode != nil {
			imports[h.Text(nameNode)] = stripQuotes(h.Text(moduleNode))
		}
	}
	for _, m := range runQuery(h, queries.imports, nil) {
		nameNode := m["import.name"]
		moduleNode := m["import.module"]
		if nameNode != nil && moduleNode != nil {
			imports[h.Text(nameNode)] = stripQuotes(h.Text(moduleNode))
		}
	}
	return imports
}

// =============================================================================
// Route Calls and Mounts
// =============================================================================

// jsAppishRe gates verb calls on undeclared objects: app.get(...) in a file
// that never constructs app still counts, but axios.get(...) does not.
var jsAppishRe = regexp.MustCompile(`(?i)^(app|application|server|router|api)\d*$`)

// extractRouteCalls processes every matched obj.method(args) call: verb
// methods become Candidates, use becomes a mount or middleware
// registration.
func (a *NodeJSAnalyzer) extractRouteCalls(h *SyntaxHandle, queries *jsQuerySet, filePath string, result *ExtractResult, scopeIdx map[string]ScopeID, imports map[string]string) {
	for _, m := range runQuery(h, queries.route, nil) {
		callNode := m["route.call"]
		objectNode := m["route.object"]
		methodNode := m["route.method"]
		argsNode := m["route.args"]
		if callNode == nil || objectNode == nil || methodNode == nil || argsNode == nil {
			continue
		}

		object := h.Text(objectNode)
		method := h.Text(methodNode)
		args := namedChildren(argsNode)

		if method == "use" {
			if _, declared := scopeIdx[object]; !declared && !jsAppishRe.MatchString(object) {
				continue
			}
			a.handleUse(h, filePath, result, scopeIdx, imports, object, callNode, args)
			continue
		}

		verb, ok := jsVerbMethods[method]
		if !ok {
			continue
		}
		_, declared := scopeIdx[object]
		if !declared && !jsAppishRe.MatchString(object) {
			continue
		}
		if len(args) == 0 {
			continue
		}

		pathFragment, ok := jsPathLiteral(h, args[0])
		if !ok {
			// Paths concatenated or templated at runtime are reported, not
			// guessed.
			result.addError("route path at %s:%d is built at runtime; skipped",
				filePath, nodeLine(callNode))
			result.Skipped++
			continue
		}

		auth := AuthUnknown
		for _, mw := range args[1 : max(len(args)-1, 1)] {
			if a.authRe.MatchString(h.Text(mw)) {
				auth = AuthRequired
				break
			}
		}

		handler := "unknown"
		var handlerNode *sitter.Node
		if len(args) > 1 {
			handlerNode = args[len(args)-1]
			handler = jsHandlerName(h, handlerNode)
		}

		params := jsPathParams(pathFragment)
		if handlerNode != nil {
			params = appendRequestParams(h, handlerNode, params)
		}

		result.Candidates = append(result.Candidates, Candidate{
			Verb:         verb,
			PathFragment: pathFragment,
			Handler:      handler,
			Scope:        ensureJSScope(result, scopeIdx, object, filePath, nodeLine(objectNode)),
			File:         filePath,
			Line:         nodeLine(callNode),
			Auth:         auth,
			Params:       params,
			Snippet:      truncateSnippet(h.Text(callNode)),
		})
	}
}

// handleUse processes app.use(...): a string first argument plus a router
// target is a mount; bare middleware with an auth-looking name marks the
// scope as requiring authentication.
func (a *NodeJSAnalyzer) handleUse(h *SyntaxHandle, filePath string, result *ExtractResult, scopeIdx map[string]ScopeID, imports map[string]string, object string, callNode *sitter.Node, args []*sitter.Node) {
	if len(args) == 0 {
		return
	}
	parentID := ensureJSScope(result, scopeIdx, object, filePath, nodeLine(callNode))

	prefix := ""
	rest := args
	if p, ok := jsPathLiteral(h, args[0]); ok {
		prefix = p
		rest = args[1:]
	} else if t := args[0].Type(); t == "template_string" || t == "binary_expression" {
		result.addError("mount prefix at %s:%d is built at runtime; skipped",
			filePath, nodeLine(callNode))
		result.Skipped++
		return
	}

	mounted := false
	for _, arg := range rest {
		if target, ok := a.mountTarget(h, arg, scopeIdx, imports); ok {
			target.Prefix = prefix
			target.Parent = parentID
			target.File = filePath
			target.Line = nodeLine(callNode)
			result.Mounts = append(result.Mounts, target)
			mounted = true
			continue
		}
		// Not a router: plain middleware. An auth-looking name protects
		// everything registered on this scope.
		if prefix == "" && !mounted && a.authRe.MatchString(h.Text(arg)) {
			result.Scopes[parentID].Auth = AuthRequired
		}
	}
}

// mountTarget interprets a use() argument as a mounted router, when it is
// one: a known identifier, an inline require, or a module.property access.
func (a *NodeJSAnalyzer) mountTarget(h *SyntaxHandle, arg *sitter.Node, scopeIdx map[string]ScopeID, imports map[string]string) (MountRecord, bool) {
	switch arg.Type() {
	case jsNodeIdentifier:
		name := h.Text(arg)
		module, imported := imports[name]
		if _, declared := scopeIdx[name]; !declared && !imported {
			return MountRecord{}, false
		}
		return MountRecord{TargetName: name, TargetModule: module}, true

	case jsNodeCallExpression:
		// app.use('/users', require('./routes/users'))
		fn := arg.ChildByFieldName("function")
		if fn == nil || fn.Type() != jsNodeIdentifier || h.Text(fn) != "require" {
			return MountRecord{}, false
		}
		callArgs := namedChildren(arg.ChildByFieldName("arguments"))
		if len(callArgs) == 0 || callArgs[0].Type() != jsNodeString {
			return MountRecord{}, false
		}
		module := stripQuotes(h.Text(callArgs[0]))
		return MountRecord{
			TargetName:   strings.TrimSuffix(path.Base(module), path.Ext(module)),
			TargetModule: module,
		}, true

	case jsNodeMemberExpression:
		// app.use('/users', routes.users)
		objNode := arg.ChildByFieldName("object")
		propNode := arg.ChildByFieldName("property")
		if objNode == nil || propNode == nil || objNode.Type() != jsNodeIdentifier {
			return MountRecord{}, false
		}
		objName := h.Text(objNode)
		module, imported := imports[objName]
		if !imported {
			return MountRecord{}, false
		}
		return MountRecord{TargetName: h.Text(propNode), TargetModule: module}, true
	}
	return MountRecord{}, false
}

// =============================================================================
// Handler and Parameter Helpers
// =============================================================================

// jsHandlerName names a route handler argument. Anonymous functions get a
// stable synthetic name from their line.
func jsHandlerName(h *SyntaxHandle, node *sitter.Node) string {
	switch node.Type() {
	case jsNodeIdentifier, jsNodeMemberExpression:
		return h.Text(node)
	case jsNodeFunction, jsNodeFunctionExpr:
		// Named function expressions keep their written name.
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			return h.Text(nameNode)
		}
	}
	return fmt.Sprintf("anonymous_handler_L%d", nodeLine(node))
}

// jsPathLiteral resolves a route path argument to a literal string.
// Template strings without substitutions count; anything with runtime
// parts does not.
func jsPathLiteral(h *SyntaxHandle, node *sitter.Node) (string, bool) {
	switch node.Type() {
	case jsNodeString:
		return stripQuotes(h.Text(node)), true
	case "template_string":
		text := h.Text(node)
		if strings.Contains(text, "${") {
			return "", false
		}
		return stripQuotes(text), true
	}
	return "", false
}

// jsParamNameRe trims an Express path segment parameter down to its
// identifier: ":id", ":id?" and ":id(\\d+)" all yield id.
var jsParamNameRe = regexp.MustCompile(`^:([A-Za-z_$][A-Za-z0-9_$]*)`)

// jsPathParams extracts :name parameters from an Express path template.
func jsPathParams(pathFragment string) []Parameter {
	var params []Parameter
	for _, seg := range strings.Split(pathFragment, "/") {
		m := jsParamNameRe.FindStringSubmatch(seg)
		if m == nil {
			continue
		}
		params = append(params, Parameter{
			Name:     m[1],
			Kind:     ParamPath,
			DataType: "Any",
			Required: !strings.HasSuffix(seg, "?"),
		})
	}
	return params
}

// jsRequestMemberRe matches req.query.X / req.params.X / req.body.X reads
// inside a handler body.
var jsRequestMemberRe = regexp.MustCompile(`\breq\.(query|params|body)\.([A-Za-z_$][A-Za-z0-9_$]*)`)

// appendRequestParams scans a handler for request member access and adds
// the referenced names as parameters, skipping duplicates.
func appendRequestParams(h *SyntaxHandle, handlerNode *sitter.Node, params []Parameter) []Parameter {
	switch handlerNode.Type() {
	case jsNodeArrowFunction, jsNodeFunction, jsNodeFunctionExpr:
	default:
		return params
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		seen[p.Name] = true
	}
	for _, m := range jsRequestMemberRe.FindAllStringSubmatch(h.Text(handlerNode), -1) {
		source, name := m[1], m[2]
		if seen[name] {
			continue
		}
		seen[name] = true
		kind := ParamQuery
		switch source {
		case "params":
			kind = ParamPath
		case "body":
			kind = ParamBody
		}
		params = append(params, Parameter{
			Name:     name,
			Kind:     kind,
			DataType: "Any",
			Required: kind == ParamPath,
		})
	}
	return params
}

// namedChildren returns a node's named children. A nil node yields nil.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}
