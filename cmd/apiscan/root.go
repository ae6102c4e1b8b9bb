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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// verboseFlag raises log verbosity to debug.
var verboseFlag bool

const rootLongDescription = `apiscan statically discovers the HTTP API surface of a codebase.

It parses Java, Python, and JavaScript/TypeScript sources with tree-sitter,
matches routing idioms (Spring/JAX-RS annotations, Flask/FastAPI decorators,
Express route calls), composes full paths across routers and mounts, and
reports every endpoint with its verb, handler, parameters, and a
best-effort authentication status.`

var rootCmd = &cobra.Command{
	Use:   "apiscan",
	Short: "Static HTTP API endpoint discovery",
	Long:  rootLongDescription,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		configureLogging()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

// configureLogging installs the default slog handler. Logs go to stderr so
// formatted reports on stdout stay clean for piping.
func configureLogging() {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
