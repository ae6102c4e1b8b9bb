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

// Java Tree-sitter Queries
//
// Query patterns and annotation tables for the Java analyzer, covering
// Spring MVC (@RequestMapping, @GetMapping, ...) and JAX-RS (@Path, @GET,
// ...). Both frameworks are matched in one pass; a file mixing idioms
// yields candidates for every match.
//
// Reference: https://github.com/tree-sitter/tree-sitter-java/blob/master/src/grammar.json

// Node type constants for Java AST traversal.
const (
	javaNodeClassBody     = "class_body"
	javaNodeModifiers     = "modifiers"
	javaNodeStringLiteral = "string_literal"
)

// javaClassQuery matches every class declaration with its name and body.
var javaClassQuery = newBuiltinQuery("java_class", "java", `
(class_declaration
  name: (identifier) @class.name
  body: (class_body) @class.body
) @class.node
`)

// javaMethodQuery matches method declarations; run against a class body.
var javaMethodQuery = newBuiltinQuery("java_method", "java", `
(method_declaration) @method.node
`)

// javaAnnotationQuery matches annotations on a modifiers node. Both the
// argument form (@RequestMapping("/users")) and the marker form (@GET) are
// captured under the same names.
var javaAnnotationQuery = newBuiltinQuery("java_annotation", "java", `
[
  (annotation
    name: (identifier) @annotation.name
    arguments: (annotation_argument_list) @annotation.args
  )
  (marker_annotation
    name: (identifier) @annotation.name
  )
] @annotation.node
`)

// javaParameterQuery matches formal parameters with their optional leading
// annotation; run against a formal_parameters node.
var javaParameterQuery = newBuiltinQuery("java_parameter", "java", `
(formal_parameter
  (modifiers
    [
      (annotation
        name: (identifier) @param.annotation
      )
      (marker_annotation
        name: (identifier) @param.annotation
      )
    ]
  )?
  type: (_) @param.type
  name: (identifier) @param.name
) @param.node
`)

// javaVerbAnnotations maps endpoint annotations to HTTP verbs. Spring
// composed mappings carry their verb in the name; bare @RequestMapping and
// JAX-RS @Path without a verb marker are method-agnostic (VerbAny).
var javaVerbAnnotations = map[string]Verb{
	// Spring composed mappings
	"GetMapping":     VerbGet,
	"PostMapping":    VerbPost,
	"PutMapping":     VerbPut,
	"DeleteMapping":  VerbDelete,
	"PatchMapping":   VerbPatch,
	"RequestMapping": VerbAny,
	// JAX-RS verb markers
	"GET":     VerbGet,
	"POST":    VerbPost,
	"PUT":     VerbPut,
	"DELETE":  VerbDelete,
	"PATCH":   VerbPatch,
	"HEAD":    VerbHead,
	"OPTIONS": VerbOptions,
}

// javaPathAnnotations are annotations whose string arguments contribute
// path fragments.
var javaPathAnnotations = map[string]bool{
	"RequestMapping": true,
	"GetMapping":     true,
	"PostMapping":    true,
	"PutMapping":     true,
	"DeleteMapping":  true,
	"PatchMapping":   true,
	"Path":           true,
}

// javaBasePathAnnotations are the class-level annotations that declare a
// base path (Spring @RequestMapping, JAX-RS @Path).
var javaBasePathAnnotations = map[string]bool{
	"RequestMapping": true,
	"Path":           true,
}

// defaultJavaAuthAnnotations maps security annotations to the auth status
// they imply. @PermitAll explicitly opens an endpoint; every other marker
// restricts it.
var defaultJavaAuthAnnotations = map[string]AuthStatus{
	"PreAuthorize":         AuthRequired,
	"RolesAllowed":         AuthRequired,
	"Secured":              AuthRequired,
	"DenyAll":              AuthRequired,
	"SecurityRequirement":  AuthRequired,
	"SecurityRequirements": AuthRequired,
	"PermissionRequired":   AuthRequired,
	"PermitAll":            AuthNotRequired,
}

// javaParamAnnotations maps parameter annotations (Spring and JAX-RS) to
// the location the parameter is carried in. Unannotated parameters default
// to the request body.
var javaParamAnnotations = map[string]ParamKind{
	"PathVariable":  ParamPath,
	"PathParam":     ParamPath,
	"RequestParam":  ParamQuery,
	"QueryParam":    ParamQuery,
	"RequestHeader": ParamHeader,
	"HeaderParam":   ParamHeader,
	"CookieValue":   ParamCookie,
	"CookieParam":   ParamCookie,
	"RequestBody":   ParamBody,
}
