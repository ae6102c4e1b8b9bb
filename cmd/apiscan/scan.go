// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/apiscan/services/scanner"
	"github.com/AleutianAI/apiscan/services/scanner/ast"
	"github.com/AleutianAI/apiscan/services/scanner/export"
	"github.com/AleutianAI/apiscan/services/scanner/routes"
)

var (
	scanFormatFlag       string
	scanOutputFlag       string
	scanPathFilterFlag   string
	scanLangFlag         string
	scanExtFlag          []string
	scanExcludeExtFlag   []string
	scanIncludeVerbsFlag string
	scanExcludeVerbsFlag string
	scanAuthFlag         bool
	scanNoAuthFlag       bool
	scanIgnorePathsFlag  string
	scanWorkersFlag      int
	scanMaxFileSizeFlag  int64
	scanAuthRulesFlag    string
	scanNoGitignoreFlag  bool
)

var scanCmd = newScanCmd()

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <directory|git-url>",
		Short: "Discover API endpoints in a repository",
		Long: `Scan a local directory or a git URL for HTTP API endpoints.

Git URLs are shallow-cloned into a temporary directory that is removed
when the scan finishes. Results go to stdout unless -o is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args[0])
		},
	}
	configureScanFlags(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func configureScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&scanFormatFlag, "format", "f", "console", "output format: console, markdown, json, csv")
	cmd.Flags().StringVarP(&scanOutputFlag, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().StringVarP(&scanPathFilterFlag, "path-filter", "p", "", "only analyze files whose path contains this string")
	cmd.Flags().StringVarP(&scanLangFlag, "lang", "l", "", "restrict the scan to one language: java, python, nodejs")
	cmd.Flags().StringSliceVarP(&scanExtFlag, "ext", "e", nil, "only analyze these extensions (e.g. .py,.js)")
	cmd.Flags().StringSliceVar(&scanExcludeExtFlag, "exclude-ext", nil, "skip these extensions")
	cmd.Flags().StringVar(&scanIncludeVerbsFlag, "include-verbs", "", "comma-separated verbs to keep (e.g. GET,POST)")
	cmd.Flags().StringVar(&scanExcludeVerbsFlag, "exclude-verbs", "", "comma-separated verbs to drop")
	cmd.Flags().BoolVar(&scanAuthFlag, "auth", false, "only endpoints that require authentication")
	cmd.Flags().BoolVar(&scanNoAuthFlag, "no-auth", false, "only endpoints that explicitly require no authentication")
	cmd.Flags().StringVar(&scanIgnorePathsFlag, "ignore-paths", "", "semicolon-separated file path prefixes to skip (e.g. src/test;target)")
	cmd.Flags().IntVar(&scanWorkersFlag, "workers", 0, "parallel extraction workers (default: number of CPUs)")
	cmd.Flags().Int64Var(&scanMaxFileSizeFlag, "max-file-size", 0, "per-file size limit in bytes (default: 10MB)")
	cmd.Flags().StringVar(&scanAuthRulesFlag, "auth-rules", "", "YAML file overriding the built-in auth detection rules")
	cmd.Flags().BoolVar(&scanNoGitignoreFlag, "no-gitignore", false, "do not honor the target's .gitignore")
}

func runScan(ctx context.Context, target string) error {
	opts, err := buildScanOptions(target)
	if err != nil {
		return err
	}

	s, err := scanner.New(opts, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	spinnerDone := startSpinner("Scanning " + target)
	report, err := s.Scan(ctx)
	spinnerDone()
	if err != nil {
		return err
	}

	formatter, err := export.For(scanFormatFlag)
	if err != nil {
		return err
	}

	out := os.Stdout
	if scanOutputFlag != "" {
		f, err := os.Create(scanOutputFlag)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				slog.Error("failed to close output file", "error", cerr)
			}
		}()
		out = f
	}
	if err := formatter.Format(out, report); err != nil {
		return err
	}

	if scanOutputFlag != "" {
		fmt.Fprintln(os.Stderr, doneStyle().Render(
			fmt.Sprintf("Wrote %d endpoint(s) to %s", len(report.Endpoints), scanOutputFlag)))
	}
	return nil
}

// buildScanOptions validates flags and assembles scanner options.
func buildScanOptions(target string) (scanner.Options, error) {
	var opts scanner.Options
	if scanAuthFlag && scanNoAuthFlag {
		return opts, fmt.Errorf("--auth and --no-auth are mutually exclusive")
	}

	includeVerbs, err := routes.ParseVerbList(scanIncludeVerbsFlag)
	if err != nil {
		return opts, err
	}
	excludeVerbs, err := routes.ParseVerbList(scanExcludeVerbsFlag)
	if err != nil {
		return opts, err
	}

	criteria := routes.Criteria{
		IncludeVerbs:       includeVerbs,
		ExcludeVerbs:       excludeVerbs,
		IgnorePathPrefixes: splitPrefixes(scanIgnorePathsFlag),
	}
	if scanAuthFlag {
		status := ast.AuthRequired
		criteria.Auth = &status
	}
	if scanNoAuthFlag {
		status := ast.AuthNotRequired
		criteria.Auth = &status
	}

	authRules := scanAuthRulesFlag
	if authRules == "" {
		// A project may ship its own rules next to its sources.
		if candidate := filepath.Join(target, "apiscan.yaml"); fileExists(candidate) {
			authRules = candidate
		}
	}

	return scanner.Options{
		Target:            target,
		Workers:           scanWorkersFlag,
		ForcedLanguage:    strings.ToLower(strings.TrimSpace(scanLangFlag)),
		Extensions:        normalizeExts(scanExtFlag),
		ExcludeExtensions: normalizeExts(scanExcludeExtFlag),
		PathFilter:        scanPathFilterFlag,
		IgnorePaths:       splitPrefixes(scanIgnorePathsFlag),
		Criteria:          criteria,
		MaxFileSize:       scanMaxFileSizeFlag,
		AuthRulesPath:     authRules,
		RespectGitignore:  !scanNoGitignoreFlag,
	}, nil
}

// splitPrefixes parses the semicolon-separated --ignore-paths value.
// Semicolons rather than commas: path prefixes may contain commas.
func splitPrefixes(raw string) []string {
	var prefixes []string
	for _, p := range strings.Split(raw, ";") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// normalizeExts lowercases extensions and ensures the leading dot.
func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// startSpinner shows a progress animation on stderr while the scan runs.
// Returns a stop function. No-op when stderr is not a terminal or when the
// report itself goes to stdout as JSON/CSV for piping.
func startSpinner(msg string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) || verboseFlag {
		return func() {}
	}
	done := make(chan bool)
	go showSpinner(msg, done)
	return func() {
		done <- true
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
}

// showSpinner displays the animation until done receives.
func showSpinner(msg string, done chan bool) {
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0

	fmt.Fprint(os.Stderr, "\033[?25l")
	defer fmt.Fprint(os.Stderr, "\033[?25h")

	for {
		select {
		case <-done:
			return
		default:
			fmt.Fprintf(os.Stderr, "\r%s  %s... \033[K", chars[i%len(chars)], msg)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// doneStyle styles the completion notice, falling back to plain text on
// non-terminals.
func doneStyle() lipgloss.Style {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
}
