// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repo acquires source trees for scanning: a local directory is
// used in place, a git URL is shallow-cloned into a temporary directory
// that is removed when the scan ends.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrNotADirectory indicates the scan target exists but is not a
// directory.
var ErrNotADirectory = errors.New("target is not a directory")

// Source is an acquired source tree.
type Source struct {
	// Root is the directory to walk.
	Root string

	// Remote is the clone URL when the source was cloned, "" for local
	// directories.
	Remote string

	cleanup func() error
}

// Close removes any temporary state behind the source. Safe to call on a
// local-directory source and safe to call twice.
func (s *Source) Close() error {
	if s.cleanup == nil {
		return nil
	}
	fn := s.cleanup
	s.cleanup = nil
	return fn()
}

// Acquire resolves a scan target to a readable directory.
//
// Description:
//
//	Git URLs (http(s)://, git@, or anything ending in .git) are cloned
//	with --depth 1 through the system git binary; the clone lands in a
//	temporary directory owned by the returned Source. Anything else must
//	be an existing local directory.
//
// Outputs:
//   - *Source: The acquired tree. Caller must Close it.
//   - error: ErrNotADirectory for a non-directory local target, or the
//     clone failure with git's stderr attached.
func Acquire(ctx context.Context, target string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if IsGitURL(target) {
		return clone(ctx, target, logger)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", target, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, target)
	}
	return &Source{Root: target}, nil
}

// IsGitURL reports whether a scan target looks like a git remote rather
// than a local path.
func IsGitURL(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "git@") ||
		strings.HasPrefix(target, "ssh://") ||
		strings.HasSuffix(target, ".git")
}

// clone shallow-clones a remote into a temporary directory.
func clone(ctx context.Context, url string, logger *slog.Logger) (*Source, error) {
	dir, err := os.MkdirTemp("", "apiscan-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create clone directory: %w", err)
	}

	logger.Info("cloning repository", "url", url, "dir", dir)
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--quiet", url, dir)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("git clone %s: %w: %s", url, err, msg)
		}
		return nil, fmt.Errorf("git clone %s: %w", url, err)
	}

	return &Source{
		Root:    dir,
		Remote:  url,
		cleanup: func() error { return os.RemoveAll(dir) },
	}, nil
}
