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
	"strings"
	"testing"
)

func extractJS(t *testing.T, source, filePath string) *ExtractResult {
	t.Helper()
	result, err := NewNodeJSAnalyzer().Extract(context.Background(), []byte(source), filePath)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return result
}

const expressAppSource = `
const express = require('express');
const userRoutes = require('./routes/users');
const requireAuth = require('./middleware/auth');

const app = express();

app.get('/health', (req, res) => res.send('ok'));

app.post('/login', handleLogin);

app.get('/orders/:orderId', requireAuth, function listOrder(req, res) {
  const verbose = req.query.verbose;
  res.json(find(req.params.orderId, verbose));
});

app.use('/api/users', userRoutes);
app.use('/api/billing', require('./routes/billing'));
`

func TestNodeJSAnalyzer_ExpressApp(t *testing.T) {
	result := extractJS(t, expressAppSource, "src/server.js")

	health := findCandidate(result, VerbGet, "/health")
	if health == nil {
		t.Fatal("GET /health not extracted")
	}
	if !strings.HasPrefix(health.Handler, "anonymous_handler_L") {
		t.Errorf("arrow handler name = %q", health.Handler)
	}

	login := findCandidate(result, VerbPost, "/login")
	if login == nil {
		t.Fatal("POST /login not extracted")
	}
	if login.Handler != "handleLogin" {
		t.Errorf("handler = %q", login.Handler)
	}

	orders := findCandidate(result, VerbGet, "/orders/:orderId")
	if orders == nil {
		t.Fatal("GET /orders/:orderId not extracted")
	}
	if orders.Handler != "listOrder" {
		t.Errorf("named function expression handler = %q", orders.Handler)
	}
	if orders.Auth != AuthRequired {
		t.Errorf("requireAuth middleware should mark auth, got %v", orders.Auth)
	}
	var havePath, haveQuery bool
	for _, p := range orders.Params {
		if p.Name == "orderId" && p.Kind == ParamPath {
			havePath = true
		}
		if p.Name == "verbose" && p.Kind == ParamQuery {
			haveQuery = true
		}
	}
	if !havePath {
		t.Errorf(":orderId should yield a path param: %+v", orders.Params)
	}
	if !haveQuery {
		t.Errorf("req.query.verbose should yield a query param: %+v", orders.Params)
	}

	if len(result.Mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %+v", result.Mounts)
	}
	users := result.Mounts[0]
	if users.Prefix != "/api/users" || users.TargetName != "userRoutes" {
		t.Errorf("identifier mount = %+v", users)
	}
	if users.TargetModule != "./routes/users" {
		t.Errorf("mount module = %q", users.TargetModule)
	}
	billing := result.Mounts[1]
	if billing.Prefix != "/api/billing" || billing.TargetName != "billing" {
		t.Errorf("inline require mount = %+v", billing)
	}
	if billing.TargetModule != "./routes/billing" {
		t.Errorf("inline require module = %q", billing.TargetModule)
	}
}

const expressRouterSource = `
const express = require('express');
const router = express.Router();

router.delete('/:id', removeItem);
router.all('/debug', debugItems);

module.exports = router;
`

func TestNodeJSAnalyzer_RouterExported(t *testing.T) {
	result := extractJS(t, expressRouterSource, "routes/items.js")

	if len(result.Scopes) != 1 {
		t.Fatalf("expected 1 router scope, got %d", len(result.Scopes))
	}
	scope := result.Scopes[0]
	if scope.Name != "router" || scope.Kind != ScopeRouter {
		t.Errorf("scope = %+v", scope)
	}
	if !scope.Exported {
		t.Error("module.exports = router should mark the scope exported")
	}

	if c := findCandidate(result, VerbDelete, "/:id"); c == nil {
		t.Error("DELETE /:id not extracted")
	}
	if c := findCandidate(result, VerbAny, "/debug"); c == nil {
		t.Error("router.all should map to the wildcard verb")
	}
}

func TestNodeJSAnalyzer_RuntimePathReported(t *testing.T) {
	source := `
const app = require('express')();
const base = '/v' + version;

app.get(base + '/users', listUsers);
app.get(` + "`/items/${prefix}`" + `, listItems);
app.use(` + "`${root}/admin`" + `, adminRoutes);
`
	result := extractJS(t, source, "src/dynamic.js")

	if len(result.Candidates) != 0 {
		t.Errorf("runtime-built paths must not be guessed: %+v", result.Candidates)
	}
	if result.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", result.Skipped)
	}
	if len(result.Errors) != 3 {
		t.Fatalf("each skip should be reported: %+v", result.Errors)
	}
	for _, e := range result.Errors {
		if !strings.Contains(e, "built at runtime") {
			t.Errorf("unexpected error text %q", e)
		}
	}
}

func TestNodeJSAnalyzer_BareAuthMiddlewareMarksScope(t *testing.T) {
	source := `
const express = require('express');
const app = express();

app.use(passport.authenticate('jwt'));

app.get('/profile', showProfile);
`
	result := extractJS(t, source, "src/app.js")

	if len(result.Scopes) != 1 {
		t.Fatalf("expected 1 scope, got %d", len(result.Scopes))
	}
	if result.Scopes[0].Auth != AuthRequired {
		t.Error("prefix-less auth middleware should protect the scope")
	}
	c := findCandidate(result, VerbGet, "/profile")
	if c == nil {
		t.Fatal("GET /profile not extracted")
	}
	if c.Auth != AuthUnknown {
		t.Errorf("route-level auth should stay unknown, got %v", c.Auth)
	}
}

func TestNodeJSAnalyzer_TypeScript(t *testing.T) {
	source := `
import { Router, Request, Response } from 'express';
import { ordersRouter } from './orders';

const router: Router = Router();

router.put('/widgets/:widgetId', async (req: Request, res: Response) => {
  const name: string = req.body.name;
  res.json(await update(req.params.widgetId, name));
});

router.use('/orders', ordersRouter);

export default router;
`
	result := extractJS(t, source, "src/routes/widgets.ts")

	c := findCandidate(result, VerbPut, "/widgets/:widgetId")
	if c == nil {
		t.Fatal("PUT /widgets/:widgetId not extracted from TypeScript")
	}
	var haveBody bool
	for _, p := range c.Params {
		if p.Name == "name" && p.Kind == ParamBody {
			haveBody = true
		}
	}
	if !haveBody {
		t.Errorf("req.body.name should yield a body param: %+v", c.Params)
	}

	if len(result.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %+v", result.Mounts)
	}
	m := result.Mounts[0]
	if m.Prefix != "/orders" || m.TargetName != "ordersRouter" {
		t.Errorf("mount = %+v", m)
	}
	if m.TargetModule != "./orders" {
		t.Errorf("ES import module = %q", m.TargetModule)
	}
}

func TestNodeJSAnalyzer_UndeclaredObjectIgnored(t *testing.T) {
	source := `
const cache = new Map();
cache.get('/looks/like/a/path');
client.post('/remote', body);
`
	result := extractJS(t, source, "src/client.js")
	if len(result.Candidates) != 0 {
		t.Errorf("non-router call receivers must be ignored: %+v", result.Candidates)
	}
}
