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
	"testing"
)

func extractPython(t *testing.T, source, filePath string) *ExtractResult {
	t.Helper()
	result, err := NewPythonAnalyzer().Extract(context.Background(), []byte(source), filePath)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return result
}

const fastAPISource = `
from fastapi import APIRouter, Depends, Path, Query
from app.auth import get_current_user
from app.models import UserCreate

router = APIRouter(prefix="/users")


@router.get("/{user_id}")
def get_user(user_id: int = Path(...), verbose: bool = Query(False)):
    return db.find(user_id)


@router.post("/")
def create_user(user: UserCreate, _=Depends(get_current_user)):
    return db.create(user)


@router.delete("/{user_id}")
def delete_user(user_id: int):
    return db.delete(user_id)
`

func TestPythonAnalyzer_FastAPIRouter(t *testing.T) {
	result := extractPython(t, fastAPISource, "app/routes/users.py")

	if len(result.Scopes) != 1 {
		t.Fatalf("expected 1 router scope, got %d", len(result.Scopes))
	}
	scope := result.Scopes[0]
	if scope.Name != "router" || scope.Kind != ScopeRouter || scope.BasePath != "/users" {
		t.Errorf("unexpected scope: %+v", scope)
	}

	get := findCandidate(result, VerbGet, "/{user_id}")
	if get == nil {
		t.Fatal("GET /{user_id} not extracted")
	}
	if get.Handler != "get_user" {
		t.Errorf("handler = %q", get.Handler)
	}
	if get.Scope != scope.ID {
		t.Error("candidate not linked to router scope")
	}

	var pathParam, queryParam *Parameter
	for i := range get.Params {
		switch get.Params[i].Name {
		case "user_id":
			pathParam = &get.Params[i]
		case "verbose":
			queryParam = &get.Params[i]
		}
	}
	if pathParam == nil || pathParam.Kind != ParamPath || !pathParam.Required {
		t.Errorf("Path(...) param = %+v", pathParam)
	}
	if queryParam == nil || queryParam.Kind != ParamQuery || queryParam.Required {
		t.Errorf("Query(False) param = %+v", queryParam)
	}

	post := findCandidate(result, VerbPost, "/")
	if post == nil {
		t.Fatal("POST / not extracted")
	}
	if post.Auth != AuthRequired {
		t.Errorf("Depends(get_current_user) should imply auth, got %v", post.Auth)
	}
	for _, p := range post.Params {
		if p.Name == "user" && p.Kind != ParamBody {
			t.Errorf("model-typed param should be body: %+v", p)
		}
	}
}

const flaskSource = `
from flask import Blueprint
from flask_login import login_required

bp = Blueprint("admin", __name__, url_prefix="/admin")


@bp.route("/stats", methods=["GET", "POST"])
@login_required
def stats():
    return render()


@bp.route("/health")
def health():
    return "ok"
`

func TestPythonAnalyzer_FlaskBlueprint(t *testing.T) {
	result := extractPython(t, flaskSource, "app/admin.py")

	if len(result.Scopes) != 1 {
		t.Fatalf("expected 1 blueprint scope, got %d", len(result.Scopes))
	}
	if result.Scopes[0].BasePath != "/admin" {
		t.Errorf("url_prefix = %q", result.Scopes[0].BasePath)
	}

	get := findCandidate(result, VerbGet, "/stats")
	post := findCandidate(result, VerbPost, "/stats")
	if get == nil || post == nil {
		t.Fatal("methods=[GET, POST] should yield one candidate per verb")
	}
	if get.Auth != AuthRequired || post.Auth != AuthRequired {
		t.Error("login_required should mark both candidates")
	}

	health := findCandidate(result, VerbGet, "/health")
	if health == nil {
		t.Fatal("bare route should default to GET")
	}
	if health.Auth != AuthUnknown {
		t.Errorf("unmarked route auth = %v", health.Auth)
	}
}

const includeRouterSource = `
from fastapi import FastAPI
from routes import users
from routes.orders import router as orders_router

app = FastAPI()
app.include_router(users.router, prefix="/api/v1")
app.include_router(orders_router, prefix="/api/v1/orders")
`

func TestPythonAnalyzer_IncludeRouterMounts(t *testing.T) {
	result := extractPython(t, includeRouterSource, "app/main.py")

	if len(result.Mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %+v", result.Mounts)
	}

	first := result.Mounts[0]
	if first.TargetName != "router" || first.Prefix != "/api/v1" {
		t.Errorf("attribute mount = %+v", first)
	}
	if first.TargetModule != "routes.users" {
		t.Errorf("attribute mount module = %q", first.TargetModule)
	}
	if parent := result.Scopes[first.Parent]; parent.Name != "app" || parent.Kind != ScopeApp {
		t.Errorf("mount parent = %+v", parent)
	}

	second := result.Mounts[1]
	if second.TargetName != "orders_router" || second.Prefix != "/api/v1/orders" {
		t.Errorf("identifier mount = %+v", second)
	}
}

func TestPythonAnalyzer_RegisterBlueprint(t *testing.T) {
	source := `
from flask import Flask
from admin import bp

app = Flask(__name__)
app.register_blueprint(bp, url_prefix="/internal")
`
	result := extractPython(t, source, "app/main.py")
	if len(result.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %+v", result.Mounts)
	}
	if result.Mounts[0].TargetName != "bp" || result.Mounts[0].Prefix != "/internal" {
		t.Errorf("mount = %+v", result.Mounts[0])
	}
}

func TestPythonAnalyzer_DictGetNotARoute(t *testing.T) {
	source := `
settings = {}

@cache.get("key")
def cached():
    return settings.get("key")
`
	result := extractPython(t, source, "app/cache.py")
	if len(result.Candidates) != 0 {
		t.Errorf("dict-style get should not be a route: %+v", result.Candidates)
	}
}

func TestPythonAnalyzer_SelfSkippedInParams(t *testing.T) {
	source := `
from flask import Flask

app = Flask(__name__)


class View:
    @app.route("/items/<int:item_id>")
    def show(self, item_id):
        return item_id
`
	result := extractPython(t, source, "app/views.py")
	c := findCandidate(result, VerbGet, "/items/<int:item_id>")
	if c == nil {
		t.Fatal("route with converter segment not extracted")
	}
	for _, p := range c.Params {
		if p.Name == "self" {
			t.Error("self must not appear in params")
		}
		if p.Name == "item_id" && p.Kind != ParamPath {
			t.Errorf("converter segment param should be path: %+v", p)
		}
	}
}
