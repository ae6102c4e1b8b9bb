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

// PythonAnalyzer extracts endpoint declarations from Python source using
// tree-sitter.
//
// Description:
//
//	PythonAnalyzer matches Flask and FastAPI routing idioms. Router and app
//	constructions (Flask(), FastAPI(), Blueprint(), APIRouter()) become
//	ScopeRecords carrying their prefix; route decorators become Candidates;
//	include_router and register_blueprint calls become MountRecords resolved
//	during the merge phase.
//
// Thread Safety:
//
//	PythonAnalyzer is safe for concurrent use. Configuration is immutable
//	after construction and each Extract call creates its own parser.
type PythonAnalyzer struct {
	maxFileSize    int64
	authDecorators map[string]AuthStatus
	logger         *slog.Logger
}

// PythonOption configures a PythonAnalyzer.
type PythonOption func(*PythonAnalyzer)

// WithPythonMaxFileSize sets the maximum file size in bytes.
func WithPythonMaxFileSize(size int64) PythonOption {
	return func(a *PythonAnalyzer) {
		if size > 0 {
			a.maxFileSize = size
		}
	}
}

// WithPythonAuthDecorators replaces the auth decorator table. Keys are the
// trailing identifier of the decorator expression.
func WithPythonAuthDecorators(decorators map[string]AuthStatus) PythonOption {
	return func(a *PythonAnalyzer) {
		if len(decorators) > 0 {
			a.authDecorators = decorators
		}
	}
}

// WithPythonLogger sets the logger for the analyzer.
func WithPythonLogger(logger *slog.Logger) PythonOption {
	return func(a *PythonAnalyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewPythonAnalyzer creates a Python analyzer with the given options.
func NewPythonAnalyzer(opts ...PythonOption) *PythonAnalyzer {
	a := &PythonAnalyzer{
		maxFileSize:    DefaultMaxFileSize,
		authDecorators: defaultPythonAuthDecorators,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns "python".
func (a *PythonAnalyzer) Language() string { return "python" }

// Extensions returns the file extensions handled by this analyzer.
func (a *PythonAnalyzer) Extensions() []string { return []string{".py"} }

// Extract matches Flask and FastAPI endpoint declarations in Python source.
//
// See the Analyzer interface for the full contract.
func (a *PythonAnalyzer) Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error) {
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

	imports := pyImportMap(h)
	scopeIdx := a.extractRouters(h, filePath, result)
	a.extractMounts(h, filePath, result, scopeIdx, imports)
	a.extractRoutes(h, filePath, result, scopeIdx)

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
// Router Scopes
// =============================================================================

// extractRouters builds a ScopeRecord per app/router construction and
// returns the name-to-ID index used by routes and mounts.
func (a *PythonAnalyzer) extractRouters(h *SyntaxHandle, filePath string, result *ExtractResult) map[string]ScopeID {
	scopeIdx := make(map[string]ScopeID)
	for _, m := range runQuery(h, pyRouterDeclQuery, nil) {
		nameNode := m["router.name"]
		ctorNode := m["router.ctor"]
		if nameNode == nil || ctorNode == nil {
			result.Skipped++
			continue
		}
		name := h.Text(nameNode)
		kind, ok := pyRouterKinds[h.Text(ctorNode)]
		if !ok {
			continue
		}

		scope := ScopeRecord{
			ID:     ScopeID(len(result.Scopes)),
			Name:   name,
			Kind:   kind,
			File:   filePath,
			Line:   nodeLine(m["router.node"]),
			Parent: NoScope,
			Auth:   AuthUnknown,
		}
		for key, valNode := range pyKeywordArgs(h, m["router.args"]) {
			if key == "prefix" || key == "url_prefix" {
				scope.BasePath = pyStringText(h, valNode)
			}
		}

		// Re-assignment of the same name shadows the earlier scope for
		// later routes; both records are kept.
		result.Scopes = append(result.Scopes, scope)
		scopeIdx[name] = scope.ID
	}
	return scopeIdx
}

// ensureScope returns the scope a name refers to, creating a synthetic
// record for objects declared in another file (an imported app, a router
// passed in). Synthetic scopes contribute no base path but give mounts and
// candidates a stable anchor.
func ensureScope(result *ExtractResult, scopeIdx map[string]ScopeID, name, filePath string, line int) ScopeID {
	if id, ok := scopeIdx[name]; ok {
		return id
	}
	kind := ScopeRouter
	if name == "app" || name == "application" {
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

// =============================================================================
// Mounts
// =============================================================================

// extractMounts records include_router and register_blueprint calls as
// pending registrations.
func (a *PythonAnalyzer) extractMounts(h *SyntaxHandle, filePath string, result *ExtractResult, scopeIdx map[string]ScopeID, imports map[string]string) {
	for _, m := range runQuery(h, pyMountQuery, nil) {
		argsNode := m["mount.args"]
		parentNode := m["mount.parent"]
		if argsNode == nil || parentNode == nil {
			result.Skipped++
			continue
		}
		target := pyPositionalArg(argsNode, 0)
		if target == nil {
			result.addError("registration at %s:%d has no target; skipped", filePath, nodeLine(m["mount.node"]))
			result.Skipped++
			continue
		}

		mount := MountRecord{
			Parent: ensureScope(result, scopeIdx, h.Text(parentNode), filePath, nodeLine(parentNode)),
			File:   filePath,
			Line:   nodeLine(m["mount.node"]),
		}
		switch target.Type() {
		case pyNodeIdentifier:
			name := h.Text(target)
			mount.TargetName = name
			mount.TargetModule = imports[name]
		case pyNodeAttribute:
			// users.router: the mounted name is the attribute, the object
			// identifies the module it lives in.
			if attr := target.ChildByFieldName("attribute"); attr != nil {
				mount.TargetName = h.Text(attr)
			}
			if obj := target.ChildByFieldName("object"); obj != nil {
				objName := h.Text(obj)
				if module, ok := imports[objName]; ok {
					mount.TargetModule = module
				} else {
					mount.TargetModule = objName
				}
			}
		default:
			result.addError("registration at %s:%d mounts a %s expression; skipped",
				filePath, mount.Line, target.Type())
			result.Skipped++
			continue
		}

		for key, valNode := range pyKeywordArgs(h, argsNode) {
			if key == "prefix" || key == "url_prefix" {
				mount.Prefix = pyStringText(h, valNode)
			}
		}
		result.Mounts = append(result.Mounts, mount)
	}
}

// =============================================================================
// Route Candidates
// =============================================================================

// dependsAuthRe flags FastAPI Depends(...) arguments whose callable name
// looks authentication-related.
var dependsAuthRe = regexp.MustCompile(`(?i)Depends\s*\(\s*[\w.]*(auth|token|login|jwt|oauth|security|current_user|verify|permission)`)

// extractRoutes emits one Candidate per verb a route decorator declares.
func (a *PythonAnalyzer) extractRoutes(h *SyntaxHandle, filePath string, result *ExtractResult, scopeIdx map[string]ScopeID) {
	for _, m := range runQuery(h, pyRouteQuery, nil) {
		decorator := m["route.decorator"]
		objectNode := m["route.object"]
		methodNode := m["route.method"]
		argsNode := m["route.args"]
		if decorator == nil || objectNode == nil || methodNode == nil || argsNode == nil {
			result.Skipped++
			continue
		}

		method := h.Text(methodNode)
		verbs, ok := a.routeVerbs(h, method, argsNode)
		if !ok {
			continue
		}
		path := ""
		if pathNode := pyPositionalArg(argsNode, 0); pathNode != nil && pathNode.Type() == pyNodeString {
			path = pyStringText(h, pathNode)
		}
		// dict.get("key") has the route decorator shape. Only accept a
		// verb-named call when the object is a known router or the first
		// argument looks like a path.
		if _, declared := scopeIdx[h.Text(objectNode)]; !declared && !strings.HasPrefix(path, "/") {
			continue
		}

		funcDef := pyDecoratedFunction(decorator)
		handler := "unknown"
		if funcDef != nil {
			if nameNode := funcDef.ChildByFieldName("name"); nameNode != nil {
				handler = h.Text(nameNode)
			}
		}

		auth := a.decoratorAuth(h, decorator)
		argsText := h.Text(argsNode)
		if auth == AuthUnknown && dependsAuthRe.MatchString(argsText) {
			auth = AuthRequired
		}

		params := a.extractParameters(h, funcDef, path)
		if auth == AuthUnknown && funcDef != nil {
			if sig := funcDef.ChildByFieldName("parameters"); sig != nil && dependsAuthRe.MatchString(h.Text(sig)) {
				auth = AuthRequired
			}
		}

		scope := ensureScope(result, scopeIdx, h.Text(objectNode), filePath, nodeLine(objectNode))
		line := nodeLine(decorator)
		if funcDef != nil {
			line = nodeLine(funcDef)
		}
		snippet := truncateSnippet(pyDeclarationSnippet(h, decorator, funcDef))

		for _, verb := range verbs {
			result.Candidates = append(result.Candidates, Candidate{
				Verb:         verb,
				PathFragment: path,
				Handler:      handler,
				Scope:        scope,
				File:         filePath,
				Line:         line,
				Auth:         auth,
				Params:       params,
				Snippet:      snippet,
			})
		}
	}
}

// routeVerbs resolves the verbs a decorator declares. Verb-named methods
// (@app.get) carry their own; route/api_route read a methods= keyword and
// default to GET when it is absent, matching Flask.
func (a *PythonAnalyzer) routeVerbs(h *SyntaxHandle, method string, argsNode *sitter.Node) ([]Verb, bool) {
	if verb, ok := pyVerbMethods[method]; ok {
		return []Verb{verb}, true
	}
	if method != "route" && method != "api_route" {
		return nil, false
	}
	var verbs []Verb
	for key, valNode := range pyKeywordArgs(h, argsNode) {
		if key != "methods" {
			continue
		}
		for _, raw := range pyStringList(h, valNode) {
			if verb, ok := ParseVerb(raw); ok {
				verbs = append(verbs, verb)
			}
		}
	}
	if len(verbs) == 0 {
		verbs = []Verb{VerbGet}
	}
	return verbs, true
}

// decoratorAuth scans the sibling decorators of a route decorator for a
// known auth decorator.
func (a *PythonAnalyzer) decoratorAuth(h *SyntaxHandle, routeDecorator *sitter.Node) AuthStatus {
	parent := routeDecorator.Parent()
	if parent == nil || parent.Type() != pyNodeDecoratedDefinition {
		return AuthUnknown
	}
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		c := parent.NamedChild(i)
		if c == nil || c.Type() != pyNodeDecorator {
			continue
		}
		if status, ok := a.authDecorators[pyDecoratorName(h, c)]; ok {
			return status
		}
	}
	return AuthUnknown
}

// pyDecoratorName returns the trailing identifier of a decorator
// expression: login_required for @login_required, @auth.login_required and
// @login_required("admin") alike.
func pyDecoratorName(h *SyntaxHandle, decorator *sitter.Node) string {
	expr := decorator.NamedChild(0)
	for depth := 0; expr != nil && depth < MaxScopeDepth; depth++ {
		switch expr.Type() {
		case pyNodeIdentifier:
			return h.Text(expr)
		case pyNodeAttribute:
			expr = expr.ChildByFieldName("attribute")
		case pyNodeCall:
			expr = expr.ChildByFieldName("function")
		default:
			return ""
		}
	}
	return ""
}

// pyDecoratedFunction returns the function a decorator applies to, or nil
// for decorated classes.
func pyDecoratedFunction(decorator *sitter.Node) *sitter.Node {
	parent := decorator.Parent()
	if parent == nil || parent.Type() != pyNodeDecoratedDefinition {
		return nil
	}
	def := parent.ChildByFieldName("definition")
	if def == nil || def.Type() != pyNodeFunctionDefinition {
		return nil
	}
	return def
}

// =============================================================================
// Parameters
// =============================================================================

// pyParamMarkers maps FastAPI parameter marker calls to locations.
var pyParamMarkers = map[string]ParamKind{
	"Path":   ParamPath,
	"Query":  ParamQuery,
	"Body":   ParamBody,
	"Header": ParamHeader,
	"Cookie": ParamCookie,
	"Form":   ParamBody,
	"File":   ParamBody,
}

// extractParameters reads a handler's signature. Location resolution order:
// explicit FastAPI marker defaults, then presence in the path template
// ({id} or a Flask <converter:id> segment), then query. Capitalized
// annotations with no marker are treated as body models.
func (a *PythonAnalyzer) extractParameters(h *SyntaxHandle, funcDef *sitter.Node, path string) []Parameter {
	if funcDef == nil {
		return nil
	}
	sig := funcDef.ChildByFieldName("parameters")
	if sig == nil {
		return nil
	}

	var params []Parameter
	for i := 0; i < int(sig.NamedChildCount()); i++ {
		node := sig.NamedChild(i)
		if node == nil {
			continue
		}
		p := Parameter{Kind: ParamQuery, DataType: "Any", Required: true}
		var defaultNode *sitter.Node

		switch node.Type() {
		case pyNodeIdentifier:
			p.Name = h.Text(node)
		case pyNodeTypedParameter:
			if c := node.NamedChild(0); c != nil && c.Type() == pyNodeIdentifier {
				p.Name = h.Text(c)
			}
			if t := node.ChildByFieldName("type"); t != nil {
				p.DataType = h.Text(t)
			}
		case pyNodeDefaultParameter, pyNodeTypedDefaultParam:
			if n := node.ChildByFieldName("name"); n != nil {
				p.Name = h.Text(n)
			}
			if t := node.ChildByFieldName("type"); t != nil {
				p.DataType = h.Text(t)
			}
			defaultNode = node.ChildByFieldName("value")
			p.Required = false
		default:
			continue
		}
		if p.Name == "" || p.Name == "self" || p.Name == "cls" {
			continue
		}

		if defaultNode != nil && defaultNode.Type() == pyNodeCall {
			if fn := defaultNode.ChildByFieldName("function"); fn != nil {
				name := h.Text(fn)
				if kind, ok := pyParamMarkers[name]; ok {
					p.Kind = kind
					// Path(...) and Query(...) with Ellipsis are required.
					p.Required = strings.Contains(h.Text(defaultNode), "...")
				}
				if name == "Depends" {
					continue
				}
			}
		} else if pathHasParam(path, p.Name) {
			p.Kind = ParamPath
			p.Required = true
		} else if isBodyModelType(p.DataType) {
			p.Kind = ParamBody
		}

		params = append(params, p)
	}
	return params
}

// pathHasParam reports whether a path template names a parameter, in the
// FastAPI {name} or Flask <converter:name> form.
func pathHasParam(path, name string) bool {
	if strings.Contains(path, "{"+name+"}") {
		return true
	}
	if strings.Contains(path, "<"+name+">") {
		return true
	}
	return strings.Contains(path, ":"+name+">")
}

// isBodyModelType reports whether a type annotation looks like a request
// body model (a capitalized class name that is not a known builtin).
func isBodyModelType(dataType string) bool {
	base := dataType
	if i := strings.IndexAny(base, "[("); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	if base == "" || base == "Any" || base == "Optional" || base == "List" || base == "Dict" || base == "Request" || base == "Response" {
		return false
	}
	first := base[0]
	return first >= 'A' && first <= 'Z'
}

// =============================================================================
// Syntax Helpers
// =============================================================================

// pyImportMap builds an identifier-to-module map from the file's imports.
// "from routes import users" binds users to routes.users; "import users"
// binds users to users.
func pyImportMap(h *SyntaxHandle) map[string]string {
	imports := make(map[string]string)
	for _, m := range runQuery(h, pyImportQuery, nil) {
		if nameNode := m["import.name"]; nameNode != nil {
			name := h.Text(nameNode)
			module := name
			if moduleNode := m["import.module"]; moduleNode != nil {
				module = h.Text(moduleNode) + "." + name
			}
			imports[lastDotted(name)] = module
			continue
		}
		if plainNode := m["import.plain"]; plainNode != nil {
			module := h.Text(plainNode)
			bound := lastDotted(module)
			if aliasNode := m["import.alias"]; aliasNode != nil {
				bound = h.Text(aliasNode)
			}
			imports[bound] = module
		}
	}
	return imports
}

// lastDotted returns the final component of a dotted name.
func lastDotted(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// pyKeywordArgs returns the keyword arguments of an argument list, keyed by
// name. A nil node yields an empty map.
func pyKeywordArgs(h *SyntaxHandle, argsNode *sitter.Node) map[string]*sitter.Node {
	kwargs := make(map[string]*sitter.Node)
	if argsNode == nil {
		return kwargs
	}
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		c := argsNode.NamedChild(i)
		if c == nil || c.Type() != pyNodeKeywordArgument {
			continue
		}
		nameNode := c.ChildByFieldName("name")
		valNode := c.ChildByFieldName("value")
		if nameNode != nil && valNode != nil {
			kwargs[h.Text(nameNode)] = valNode
		}
	}
	return kwargs
}

// pyPositionalArg returns the idx-th positional (non-keyword) argument of
// an argument list, or nil.
func pyPositionalArg(argsNode *sitter.Node, idx int) *sitter.Node {
	if argsNode == nil {
		return nil
	}
	seen := 0
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		c := argsNode.NamedChild(i)
		if c == nil || c.Type() == pyNodeKeywordArgument {
			continue
		}
		if seen == idx {
			return c
		}
		seen++
	}
	return nil
}

// pyStringText returns the unquoted value of a Python string node,
// tolerating r/b/f/u prefixes. Non-string nodes yield their raw text.
func pyStringText(h *SyntaxHandle, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	text := h.Text(n)
	i := 0
	for i < len(text) && text[i] != '"' && text[i] != '\'' {
		i++
	}
	return stripQuotes(text[i:])
}

// pyStringList returns the string elements of a list literal, or the single
// value of a bare string node.
func pyStringList(h *SyntaxHandle, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	if n.Type() == pyNodeString {
		return []string{pyStringText(h, n)}
	}
	if n.Type() != pyNodeList {
		return nil
	}
	var values []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() == pyNodeString {
			values = append(values, pyStringText(h, c))
		}
	}
	return values
}

// pyDeclarationSnippet returns the decorator stack and signature of a
// decorated function, without the body.
func pyDeclarationSnippet(h *SyntaxHandle, decorator, funcDef *sitter.Node) string {
	start := decorator.StartByte()
	if parent := decorator.Parent(); parent != nil && parent.Type() == pyNodeDecoratedDefinition {
		start = parent.StartByte()
	}
	end := decorator.EndByte()
	if funcDef != nil {
		end = funcDef.EndByte()
		if body := funcDef.ChildByFieldName("body"); body != nil {
			end = body.StartByte()
		}
	}
	return strings.TrimSpace(string(h.Source()[start:end]))
}
