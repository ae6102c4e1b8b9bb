// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner orchestrates endpoint discovery: it acquires the source
// tree, runs per-file extraction in parallel, merges the results in a
// single goroutine, and produces the final endpoint report.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
	"github.com/AleutianAI/apiscan/services/scanner/config"
	"github.com/AleutianAI/apiscan/services/scanner/repo"
	"github.com/AleutianAI/apiscan/services/scanner/routes"
)

var scanTracer = otel.Tracer("apiscan.scanner")

// Options configures a scan.
type Options struct {
	// Target is a local directory or a git URL.
	Target string

	// Workers bounds parallel file extraction. Zero means NumCPU.
	Workers int

	// ForcedLanguage restricts the scan to one language's files
	// ("java", "python", "nodejs"). Empty means all registered languages.
	ForcedLanguage string

	// Extensions narrows the scan to these extensions (with dot). Empty
	// means every extension a registered analyzer handles.
	Extensions []string

	// ExcludeExtensions removes extensions from the scan.
	ExcludeExtensions []string

	// PathFilter keeps only files whose relative path contains the
	// string.
	PathFilter string

	// IgnorePaths prunes files and subtrees whose relative path starts
	// with any of these literal prefixes, e.g. "src/test" or "target".
	IgnorePaths []string

	// Criteria filters the composed endpoints.
	Criteria routes.Criteria

	// MaxFileSize overrides the per-file size limit. Zero keeps the
	// default.
	MaxFileSize int64

	// AuthRulesPath loads auth detection rules from a file instead of
	// the embedded defaults.
	AuthRulesPath string

	// RespectGitignore honors the target's root .gitignore.
	RespectGitignore bool
}

// Report is the result of one scan.
type Report struct {
	// ScanID uniquely identifies this scan run.
	ScanID string `json:"scan_id"`

	// Target is the scanned directory or URL as given.
	Target string `json:"target"`

	// Endpoints are the discovered endpoints in canonical order.
	Endpoints []routes.Endpoint `json:"endpoints"`

	// FilesAnalyzed counts files that produced an extraction result.
	FilesAnalyzed int `json:"files_analyzed"`

	// FilesSkipped counts files that were selected but could not be
	// analyzed (parse failures, size limits, unreadable).
	FilesSkipped int `json:"files_skipped"`

	// UnresolvedMounts counts mounts whose target router was not found.
	UnresolvedMounts int `json:"unresolved_mounts"`

	// AmbiguousMounts counts mounts left unlinked because several scopes
	// matched.
	AmbiguousMounts int `json:"ambiguous_mounts"`

	// TruncatedCycles counts scope chains cut by a mount cycle.
	TruncatedCycles int `json:"truncated_cycles"`

	// LanguageFiles counts analyzed files per language.
	LanguageFiles map[string]int `json:"language_files"`

	// Warnings carries every soft condition hit during the scan.
	Warnings []string `json:"warnings,omitempty"`

	// Duration is the wall-clock scan time.
	Duration time.Duration `json:"duration"`
}

// Scanner runs endpoint discovery scans.
//
// Thread Safety:
//
//	Scanner is safe for concurrent use; each Scan call keeps its own
//	state. Analyzer instances are shared and themselves thread-safe.
type Scanner struct {
	opts     Options
	registry *ast.Registry
	logger   *slog.Logger
}

// New creates a Scanner.
//
// Description:
//
//	Loads auth detection rules (embedded defaults or the configured
//	file), builds the language analyzers with them, and force-compiles
//	every shipped tree-sitter query. A query compile failure is a defect
//	in the shipped pattern set and fails construction rather than a later
//	scan.
func New(opts Options, logger *slog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	rules, err := loadRules(opts.AuthRulesPath)
	if err != nil {
		return nil, err
	}
	middlewareRe, err := rules.NodeJS.MiddlewareRegexp()
	if err != nil {
		return nil, err
	}

	var sizeOptsJava []ast.JavaOption
	var sizeOptsPy []ast.PythonOption
	var sizeOptsJS []ast.NodeJSOption
	if opts.MaxFileSize > 0 {
		sizeOptsJava = append(sizeOptsJava, ast.WithJavaMaxFileSize(opts.MaxFileSize))
		sizeOptsPy = append(sizeOptsPy, ast.WithPythonMaxFileSize(opts.MaxFileSize))
		sizeOptsJS = append(sizeOptsJS, ast.WithNodeJSMaxFileSize(opts.MaxFileSize))
	}

	registry := ast.NewRegistry()
	registry.Register(ast.NewJavaAnalyzer(append(sizeOptsJava,
		ast.WithJavaAuthAnnotations(rules.Java.Table()),
		ast.WithJavaLogger(logger))...))
	registry.Register(ast.NewPythonAnalyzer(append(sizeOptsPy,
		ast.WithPythonAuthDecorators(rules.Python.Table()),
		ast.WithPythonLogger(logger))...))
	registry.Register(ast.NewNodeJSAnalyzer(append(sizeOptsJS,
		ast.WithNodeJSAuthPattern(middlewareRe),
		ast.WithNodeJSLogger(logger))...))

	if err := ast.CompileBuiltinQueries(); err != nil {
		return nil, fmt.Errorf("query pattern set is broken: %w", err)
	}

	return &Scanner{opts: opts, registry: registry, logger: logger}, nil
}

func loadRules(path string) (*config.AuthRules, error) {
	if path != "" {
		return config.LoadAuthRulesFile(path)
	}
	return config.GetAuthRules()
}

// Scan discovers endpoints in the configured target.
//
// Description:
//
//	Extraction runs in an errgroup bounded by Workers; every file is
//	analyzed independently and failures there skip the file, never the
//	scan. Merging, mount resolution, composition, deduplication, and
//	filtering run single-threaded afterwards, in sorted file order, so
//	the report is identical across runs regardless of scheduling.
//
// Outputs:
//   - *Report: The scan report. Nil only when error is non-nil.
//   - error: Target acquisition or walk failures, and context
//     cancellation. Per-file failures surface as report warnings instead.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx, span := scanTracer.Start(ctx, "Scanner.Scan",
		trace.WithAttributes(
			attribute.String("scan.target", s.opts.Target),
			attribute.Int("scan.workers", s.opts.Workers),
		),
	)
	defer span.End()

	source, err := repo.Acquire(ctx, s.opts.Target, s.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := source.Close(); cerr != nil {
			s.logger.Warn("cleanup failed", "error", cerr)
		}
	}()

	files, err := repo.Walk(ctx, source.Root, repo.WalkOptions{
		Extensions:        s.allowedExtensions(),
		ExcludeExtensions: toSet(s.opts.ExcludeExtensions),
		PathFilter:        s.opts.PathFilter,
		IgnorePaths:       s.opts.IgnorePaths,
		RespectGitignore:  s.opts.RespectGitignore,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("scan started",
		"target", s.opts.Target,
		"files", len(files),
		"workers", s.opts.Workers)

	results, skipped, err := s.extractAll(ctx, files)
	if err != nil {
		return nil, err
	}

	report := s.merge(results)
	report.ScanID = uuid.NewString()
	report.Target = s.opts.Target
	report.FilesSkipped += skipped
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("scan.endpoints", len(report.Endpoints)),
		attribute.Int("scan.files_analyzed", report.FilesAnalyzed),
		attribute.Int("scan.files_skipped", report.FilesSkipped),
	)
	s.logger.Info("scan finished",
		"scan_id", report.ScanID,
		"endpoints", len(report.Endpoints),
		"files_analyzed", report.FilesAnalyzed,
		"files_skipped", report.FilesSkipped,
		"duration", report.Duration)
	return report, nil
}

// extractAll runs per-file extraction in parallel. Soft failures skip the
// file; only context cancellation aborts.
func (s *Scanner) extractAll(ctx context.Context, files []repo.FileRef) ([]*ast.ExtractResult, int, error) {
	var (
		mu      sync.Mutex
		results []*ast.ExtractResult
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			analyzer, ok := s.registry.ForExtension(file.Ext)
			if !ok {
				return nil
			}
			s.logger.Debug("analyzing file", "file", file.RelPath, "language", analyzer.Language())
			content, err := os.ReadFile(file.AbsPath)
			if err != nil {
				s.logger.Warn("unreadable file skipped", "file", file.RelPath, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			result, err := analyzer.Extract(gctx, content, file.RelPath)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("file skipped", "file", file.RelPath, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Partial results are discarded on cancellation.
		return nil, 0, err
	}

	// Goroutine completion order is arbitrary; merge order must not be.
	sort.Slice(results, func(i, j int) bool { return results[i].FilePath < results[j].FilePath })
	return results, skipped, nil
}

// merge folds per-file results into the final endpoint set.
func (s *Scanner) merge(results []*ast.ExtractResult) *Report {
	report := &Report{LanguageFiles: make(map[string]int)}
	stats := &routes.Stats{}

	table := routes.NewTable()
	var candidates []ast.Candidate
	for _, result := range results {
		report.FilesAnalyzed++
		report.LanguageFiles[result.Language]++
		report.Warnings = append(report.Warnings, result.Errors...)
		candidates = append(candidates, table.AddFile(result)...)
	}

	table.ResolveMounts(stats)
	endpoints := routes.NewComposer(table, s.logger).Compose(candidates, stats)
	endpoints = routes.Dedupe(endpoints)
	endpoints = s.opts.Criteria.Apply(endpoints)
	routes.Sort(endpoints)

	report.Endpoints = endpoints
	report.UnresolvedMounts = stats.UnresolvedMounts
	report.AmbiguousMounts = stats.AmbiguousMounts
	report.TruncatedCycles = stats.TruncatedCycles
	report.Warnings = append(report.Warnings, stats.Warnings...)
	return report
}

// allowedExtensions computes the extension set for the walk: the forced
// language's extensions when set, otherwise everything registered,
// optionally narrowed by an explicit include list.
func (s *Scanner) allowedExtensions() map[string]bool {
	allowed := make(map[string]bool)
	if s.opts.ForcedLanguage != "" {
		if analyzer, ok := s.registry.ForLanguage(s.opts.ForcedLanguage); ok {
			for _, ext := range analyzer.Extensions() {
				allowed[ext] = true
			}
		}
		return narrow(allowed, s.opts.Extensions)
	}
	for _, lang := range s.registry.Languages() {
		analyzer, ok := s.registry.ForLanguage(lang)
		if !ok {
			continue
		}
		for _, ext := range analyzer.Extensions() {
			allowed[ext] = true
		}
	}
	return narrow(allowed, s.opts.Extensions)
}

// narrow intersects the allowed set with an explicit include list.
func narrow(allowed map[string]bool, include []string) map[string]bool {
	if len(include) == 0 {
		return allowed
	}
	narrowed := make(map[string]bool, len(include))
	for _, ext := range include {
		if allowed[ext] {
			narrowed[ext] = true
		}
	}
	return narrowed
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
