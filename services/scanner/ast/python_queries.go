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

// Python Tree-sitter Queries
//
// Query patterns for the Python analyzer, covering Flask (@app.route,
// Blueprint, register_blueprint) and FastAPI (@app.get, APIRouter,
// include_router). Both frameworks share the obj.method decorator shape,
// so one route query serves both.
//
// Reference: https://github.com/tree-sitter/tree-sitter-python/blob/master/src/grammar.json

// Node type constants for Python AST traversal.
const (
	pyNodeDecorator           = "decorator"
	pyNodeDecoratedDefinition = "decorated_definition"
	pyNodeFunctionDefinition  = "function_definition"
	pyNodeString              = "string"
	pyNodeList                = "list"
	pyNodeKeywordArgument     = "keyword_argument"
	pyNodeIdentifier          = "identifier"
	pyNodeAttribute           = "attribute"
	pyNodeCall                = "call"
	pyNodeTypedParameter      = "typed_parameter"
	pyNodeDefaultParameter    = "default_parameter"
	pyNodeTypedDefaultParam   = "typed_default_parameter"
)

// pyRouteQuery matches route decorators of the form @obj.method(args):
// Flask's @app.route(...) and @bp.route(...), FastAPI's @app.get(...) and
// @router.post(...).
var pyRouteQuery = newBuiltinQuery("py_route", "python", `
(decorator
  (call
    function: (attribute
      object: (identifier) @route.object
      attribute: (identifier) @route.method)
    arguments: (argument_list) @route.args)
  (#match? @route.method "^(get|post|put|delete|patch|head|options|route|api_route)$")
) @route.decorator
`)

// pyRouterDeclQuery matches assignments that construct an app or router
// object: app = Flask(__name__), router = APIRouter(prefix="/x"),
// bp = Blueprint("users", __name__, url_prefix="/users").
var pyRouterDeclQuery = newBuiltinQuery("py_router_decl", "python", `
(assignment
  left: (identifier) @router.name
  right: (call
    function: [
      (identifier) @router.ctor
      (attribute attribute: (identifier) @router.ctor)
    ]
    arguments: (argument_list) @router.args)
  (#match? @router.ctor "^(FastAPI|APIRouter|Flask|Blueprint)$")
) @router.node
`)

// pyMountQuery matches router registrations: app.include_router(users.router,
// prefix="/users") and app.register_blueprint(bp, url_prefix="/admin").
var pyMountQuery = newBuiltinQuery("py_mount", "python", `
(call
  function: (attribute
    object: (identifier) @mount.parent
    attribute: (identifier) @mount.method)
  arguments: (argument_list) @mount.args
  (#match? @mount.method "^(include_router|register_blueprint)$")
) @mount.node
`)

// pyImportQuery matches import bindings so cross-file mount targets can be
// traced back to their module.
var pyImportQuery = newBuiltinQuery("py_import", "python", `
[
  (import_from_statement
    module_name: (dotted_name) @import.module
    name: (dotted_name) @import.name)
  (import_statement
    name: (dotted_name) @import.plain)
  (import_statement
    name: (aliased_import
      name: (dotted_name) @import.plain
      alias: (identifier) @import.alias))
]
`)

// pyVerbMethods maps decorator method names to verbs. "route" and
// "api_route" take their verbs from a methods= keyword instead.
var pyVerbMethods = map[string]Verb{
	"get":     VerbGet,
	"post":    VerbPost,
	"put":     VerbPut,
	"delete":  VerbDelete,
	"patch":   VerbPatch,
	"head":    VerbHead,
	"options": VerbOptions,
}

// pyRouterKinds classifies router constructors.
var pyRouterKinds = map[string]ScopeKind{
	"FastAPI":   ScopeApp,
	"Flask":     ScopeApp,
	"APIRouter": ScopeRouter,
	"Blueprint": ScopeRouter,
}

// defaultPythonAuthDecorators maps auth decorator names to the status they
// imply. Matched against the trailing identifier of a decorator expression,
// so both @login_required and @auth.login_required hit.
var defaultPythonAuthDecorators = map[string]AuthStatus{
	"login_required":      AuthRequired,
	"jwt_required":        AuthRequired,
	"fresh_jwt_required":  AuthRequired,
	"auth_required":       AuthRequired,
	"token_required":      AuthRequired,
	"requires_auth":       AuthRequired,
	"authenticated":       AuthRequired,
	"permission_required": AuthRequired,
	"roles_required":      AuthRequired,
	"roles_accepted":      AuthRequired,
	"public":              AuthNotRequired,
	"allow_anonymous":     AuthNotRequired,
}
