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
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileRef is one source file selected for analysis.
type FileRef struct {
	// AbsPath is the path to read the file from.
	AbsPath string

	// RelPath is the path relative to the scan root, forward slashes.
	// This is the path endpoints are reported under.
	RelPath string

	// Ext is the lowercase file extension including the dot.
	Ext string
}

// defaultSkipDirs are directory names never worth descending into,
// independent of any .gitignore.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"env":          true,
	".tox":         true,
	"target":       true,
	"build":        true,
	"dist":         true,
	".idea":        true,
	".vscode":      true,
	"vendor":       true,
}

// WalkOptions selects which files a walk yields.
type WalkOptions struct {
	// Extensions is the set of extensions to accept (lowercase, with
	// dot). Required: an empty set yields nothing.
	Extensions map[string]bool

	// ExcludeExtensions removes extensions from consideration even when
	// present in Extensions.
	ExcludeExtensions map[string]bool

	// PathFilter, when non-empty, keeps only files whose relative path
	// contains the string.
	PathFilter string

	// IgnorePaths drops files whose relative path starts with any of
	// these literal prefixes, e.g. "src/test" or "target". Directories
	// falling entirely under a prefix are pruned rather than descended.
	IgnorePaths []string

	// RespectGitignore loads the root .gitignore and skips what it
	// excludes.
	RespectGitignore bool
}

func hasIgnoredPrefix(rel string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}

// Walk selects source files under a root.
//
// Description:
//
//	Walks the tree depth-first, pruning well-known dependency and build
//	directories and, when enabled, everything the root .gitignore
//	excludes. Results are sorted by relative path so downstream merging
//	is deterministic.
func Walk(ctx context.Context, root string, opts WalkOptions) ([]FileRef, error) {
	var matcher *ignore.GitIgnore
	if opts.RespectGitignore {
		// A missing or unreadable .gitignore is not an error; the walk
		// just runs without it.
		if m, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			matcher = m
		}
	}

	var files []FileRef
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if defaultSkipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			if hasIgnoredPrefix(rel+"/", opts.IgnorePaths) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(rel))
		if !opts.Extensions[ext] || opts.ExcludeExtensions[ext] {
			return nil
		}
		if opts.PathFilter != "" && !strings.Contains(rel, opts.PathFilter) {
			return nil
		}
		if hasIgnoredPrefix(rel, opts.IgnorePaths) {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		files = append(files, FileRef{AbsPath: path, RelPath: rel, Ext: ext})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}
