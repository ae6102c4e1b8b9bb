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

// NodeJS Tree-sitter Queries
//
// Query patterns for the NodeJS analyzer, covering Express and compatible
// routers (app.get(...), express.Router(), app.use('/prefix', router)).
// The TypeScript grammar is a superset of the JavaScript one for every
// node type these patterns touch, so the same source text is registered
// once per grammar.
//
// Reference: https://github.com/tree-sitter/tree-sitter-javascript/blob/master/src/grammar.json

// Node type constants for JavaScript/TypeScript AST traversal.
const (
	jsNodeString           = "string"
	jsNodeIdentifier       = "identifier"
	jsNodeMemberExpression = "member_expression"
	jsNodeCallExpression   = "call_expression"
	jsNodeArrowFunction    = "arrow_function"
	jsNodeFunction         = "function"
	jsNodeFunctionExpr     = "function_expression"
)

// jsQuerySet bundles the per-grammar compiled patterns the NodeJS analyzer
// runs. One instance exists for the JavaScript grammar and one for
// TypeScript.
type jsQuerySet struct {
	route      *builtinQuery
	routerDecl *builtinQuery
	require    *builtinQuery
	imports    *builtinQuery
	exports    *builtinQuery
}

const jsRouteQuerySource = `
(call_expression
  function: (member_expression
    object: (identifier) @route.object
    property: (property_identifier) @route.method)
  arguments: (arguments) @route.args
  (#match? @route.method "^(get|post|put|delete|patch|head|options|all|use)$")
) @route.call
`

const jsRouterDeclQuerySource = `
[
  (variable_declarator
    name: (identifier) @router.name
    value: (call_expression) @router.value
  ) @router.node
  (assignment_expression
    left: (identifier) @router.name
    right: (call_expression) @router.value
  ) @router.node
]
`

const jsRequireQuerySource = `
(variable_declarator
  name: (identifier) @require.name
  value: (call_expression
    function: (identifier) @require.fn
    arguments: (arguments (string) @require.module))
  (#eq? @require.fn "require")
)
`

const jsImportQuerySource = `
[
  (import_statement
    (import_clause (identifier) @import.name)
    source: (string) @import.module)
  (import_statement
    (import_clause
      (named_imports
        (import_specifier name: (identifier) @import.name)))
    source: (string) @import.module)
]
`

const jsExportQuerySource = `
[
  (assignment_expression
    left: (member_expression
      object: (identifier) @export.obj
      property: (property_identifier) @export.prop)
    right: (identifier) @export.name
    (#eq? @export.obj "module")
    (#eq? @export.prop "exports"))
  (export_statement (identifier) @export.name)
]
`

// newJSQuerySet registers the NodeJS pattern set for one grammar.
func newJSQuerySet(language string) *jsQuerySet {
	return &jsQuerySet{
		route:      newBuiltinQuery("js_route_"+language, language, jsRouteQuerySource),
		routerDecl: newBuiltinQuery("js_router_decl_"+language, language, jsRouterDeclQuerySource),
		require:    newBuiltinQuery("js_require_"+language, language, jsRequireQuerySource),
		imports:    newBuiltinQuery("js_import_"+language, language, jsImportQuerySource),
		exports:    newBuiltinQuery("js_export_"+language, language, jsExportQuerySource),
	}
}

// Per-grammar query sets, compiled lazily like every other shipped pattern.
var (
	jsQueries = newJSQuerySet("javascript")
	tsQueries = newJSQuerySet("typescript")
)

// jsVerbMethods maps route call property names to verbs. "all" registers a
// handler for every method; "use" is a mount or middleware registration
// and is handled separately.
var jsVerbMethods = map[string]Verb{
	"get":     VerbGet,
	"post":    VerbPost,
	"put":     VerbPut,
	"delete":  VerbDelete,
	"patch":   VerbPatch,
	"head":    VerbHead,
	"options": VerbOptions,
	"all":     VerbAny,
}
