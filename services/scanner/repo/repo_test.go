// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestIsGitURL(t *testing.T) {
	cases := []struct {
		target string
		want   bool
	}{
		{"https://github.com/org/app", true},
		{"http://git.internal/app", true},
		{"git@github.com:org/app.git", true},
		{"ssh://git@host/app", true},
		{"/tmp/checkouts/app.git", true},
		{"/home/dev/app", false},
		{"./relative/path", false},
		{"app", false},
	}
	for _, tc := range cases {
		if got := IsGitURL(tc.target); got != tc.want {
			t.Errorf("IsGitURL(%q) = %v, want %v", tc.target, got, tc.want)
		}
	}
}

func TestAcquireLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	src, err := Acquire(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Acquire(%q) failed: %v", dir, err)
	}
	if src.Root != dir {
		t.Errorf("Root = %q, want %q", src.Root, dir)
	}
	if src.Remote != "" {
		t.Errorf("local source should have no remote, got %q", src.Remote)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close on local source: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close must be a no-op: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Close must not remove a local directory: %v", err)
	}
}

func TestAcquireNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.py")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Acquire(context.Background(), file, nil)
	if !errors.Is(err, ErrNotADirectory) {
		t.Errorf("err = %v, want ErrNotADirectory", err)
	}
}

func TestAcquireMissingTarget(t *testing.T) {
	_, err := Acquire(context.Background(), filepath.Join(t.TempDir(), "absent"), nil)
	if err == nil {
		t.Fatal("expected an error for a missing target")
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func relPaths(files []FileRef) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestWalkSelectsAndSorts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/app.py":                   "",
		"src/routes/users.js":          "",
		"src/Main.java":                "",
		"README.md":                    "",
		"node_modules/express/idx.js":  "",
		"__pycache__/app.cpython.pyc":  "",
		".hidden/secret.py":            "",
		"venv/lib/site.py":             "",
	})

	files, err := Walk(context.Background(), root, WalkOptions{
		Extensions: map[string]bool{".py": true, ".js": true, ".java": true},
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{"src/Main.java", "src/app.py", "src/routes/users.js"}
	got := relPaths(files)
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if files[0].Ext != ".java" {
		t.Errorf("Ext = %q, want .java", files[0].Ext)
	}
	if files[0].AbsPath != filepath.Join(root, "src", "Main.java") {
		t.Errorf("AbsPath = %q", files[0].AbsPath)
	}
}

func TestWalkExcludeAndPathFilter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"api/users.py":  "",
		"api/users.ts":  "",
		"jobs/batch.py": "",
	})

	files, err := Walk(context.Background(), root, WalkOptions{
		Extensions:        map[string]bool{".py": true, ".ts": true},
		ExcludeExtensions: map[string]bool{".ts": true},
		PathFilter:        "api/",
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	got := relPaths(files)
	if len(got) != 1 || got[0] != "api/users.py" {
		t.Errorf("files = %v, want [api/users.py]", got)
	}
}

func TestWalkIgnorePaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main/OrderController.java":    "",
		"src/test/UserControllerTest.java": "",
		"src/testdata.java":                "",
		"tools/gen.py":                     "",
	})

	files, err := Walk(context.Background(), root, WalkOptions{
		Extensions:  map[string]bool{".java": true, ".py": true},
		IgnorePaths: []string{"src/test", "tools"},
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	got := relPaths(files)
	// Literal prefixes: "src/test" also covers src/testdata.java.
	if len(got) != 1 || got[0] != "src/main/OrderController.java" {
		t.Errorf("files = %v, want [src/main/OrderController.java]", got)
	}
}

func TestWalkRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":        "generated/\n*.gen.py\n",
		"src/app.py":        "",
		"src/api.gen.py":    "",
		"generated/out.py":  "",
	})

	files, err := Walk(context.Background(), root, WalkOptions{
		Extensions:       map[string]bool{".py": true},
		RespectGitignore: true,
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	got := relPaths(files)
	if len(got) != 1 || got[0] != "src/app.py" {
		t.Errorf("files = %v, want [src/app.py]", got)
	}
}

func TestWalkEmptyExtensionSet(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": ""})

	files, err := Walk(context.Background(), root, WalkOptions{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("empty extension set must select nothing, got %v", relPaths(files))
	}
}

func TestWalkCanceledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, root, WalkOptions{Extensions: map[string]bool{".py": true}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
