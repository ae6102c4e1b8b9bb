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
	"sync"
)

// Analyzer defines the contract for language-specific endpoint extraction.
//
// Description:
//
//	Analyzer implementations match framework routing idioms (annotations,
//	decorators, router registrations) in one language and emit endpoint
//	candidates plus the scope records needed for path composition. Each
//	implementation handles a specific language but produces output in the
//	common ExtractResult format defined in types.go.
//
//	The Analyzer interface is designed to be:
//	- Context-aware: supports cancellation via context.Context
//	- Error-tolerant: partial results returned even when syntax errors occur
//	- Framework-plural: multiple frameworks of one language live as
//	  additional query sets inside the same analyzer, never as separate
//	  analyzers; a single file may match several frameworks' idioms and all
//	  resulting candidates are kept (deduplication happens downstream)
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Multiple goroutines
//	may call Extract simultaneously with different files.
type Analyzer interface {
	// Extract matches endpoint declarations in source content.
	//
	// Parameters:
	//   - ctx: Context for cancellation.
	//   - content: Raw source bytes (must be valid UTF-8).
	//   - filePath: Path relative to the scan root, forward slashes.
	//
	// Returns:
	//   - *ExtractResult: Candidates, scopes, and mounts. Never nil on
	//     success; may be partial with conditions noted in Errors.
	//   - error: Non-nil only for complete failures (unparseable content,
	//     size limit, cancellation). Ambiguous or malformed declarations
	//     never produce an error: they are skipped or emitted with
	//     AuthUnknown / empty fragments, preserving best-effort output.
	Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error)

	// Language returns the canonical language name ("java", "python",
	// "nodejs").
	Language() string

	// Extensions returns the file extensions this analyzer handles,
	// including the leading dot, lowercase.
	Extensions() []string
}

// =============================================================================
// Analyzer Registry
// =============================================================================

// Registry manages analyzer instances by language and file extension.
//
// Thread Safety:
//
//	Registry is fully thread-safe. Registration uses write locks, lookups
//	use read locks.
type Registry struct {
	mu          sync.RWMutex
	byLanguage  map[string]Analyzer
	byExtension map[string]Analyzer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byLanguage:  make(map[string]Analyzer),
		byExtension: make(map[string]Analyzer),
	}
}

// NewDefaultRegistry creates a Registry with all built-in analyzers
// registered (Java, Python, NodeJS).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewJavaAnalyzer())
	r.Register(NewPythonAnalyzer())
	r.Register(NewNodeJSAnalyzer())
	return r
}

// Register adds an analyzer, indexing it by language and extensions.
// A later registration for the same language or extension replaces the
// earlier one.
func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[a.Language()] = a
	for _, ext := range a.Extensions() {
		r.byExtension[strings.ToLower(ext)] = a
	}
}

// ForLanguage returns the analyzer for a canonical language name.
func (r *Registry) ForLanguage(language string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byLanguage[language]
	return a, ok
}

// ForExtension returns the analyzer for a file extension (with leading
// dot, any case).
func (r *Registry) ForExtension(ext string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byExtension[strings.ToLower(ext)]
	return a, ok
}

// Languages returns the registered canonical language names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byLanguage))
	for name := range r.byLanguage {
		names = append(names, name)
	}
	return names
}
