// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds scan configuration: the authentication detection
// rule tables shipped with the tool, overridable from a user YAML file.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/apiscan/services/scanner/ast"
)

// =============================================================================
// Embedded Default Auth Rules
// =============================================================================

//go:embed auth_rules.yaml
var defaultAuthRulesYAML []byte

// MaxYAMLFileSize bounds rule files to prevent accidental huge loads.
const MaxYAMLFileSize = 1 * 1024 * 1024 // 1MB

// =============================================================================
// Auth Rule Types
// =============================================================================

// AuthRules defines how each language analyzer classifies authentication
// markers.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type AuthRules struct {
	// Java lists security annotation names without the leading @.
	Java MarkerLists `yaml:"java"`

	// Python lists auth decorator names, matched against the trailing
	// identifier of the decorator expression.
	Python MarkerLists `yaml:"python"`

	// NodeJS configures middleware name matching.
	NodeJS NodeJSRules `yaml:"nodejs"`
}

// MarkerLists splits marker names by the status they imply.
type MarkerLists struct {
	// Required markers mean the endpoint needs authentication.
	Required []string `yaml:"required"`

	// NotRequired markers explicitly open the endpoint.
	NotRequired []string `yaml:"not_required"`
}

// NodeJSRules configures Express middleware classification.
type NodeJSRules struct {
	// MiddlewarePattern is a regular expression matched against middleware
	// identifiers; a match implies the route requires authentication.
	MiddlewarePattern string `yaml:"middleware_pattern"`
}

// Table converts marker lists to the status map the analyzers consume.
func (m MarkerLists) Table() map[string]ast.AuthStatus {
	table := make(map[string]ast.AuthStatus, len(m.Required)+len(m.NotRequired))
	for _, name := range m.Required {
		table[name] = ast.AuthRequired
	}
	for _, name := range m.NotRequired {
		table[name] = ast.AuthNotRequired
	}
	return table
}

// MiddlewareRegexp compiles the NodeJS middleware pattern.
func (n NodeJSRules) MiddlewareRegexp() (*regexp.Regexp, error) {
	if n.MiddlewarePattern == "" {
		return nil, fmt.Errorf("nodejs middleware_pattern is empty")
	}
	re, err := regexp.Compile(n.MiddlewarePattern)
	if err != nil {
		return nil, fmt.Errorf("nodejs middleware_pattern: %w", err)
	}
	return re, nil
}

// =============================================================================
// Singleton Auth Rules
// =============================================================================

var (
	authRulesMu      sync.RWMutex
	cachedAuthRules  *AuthRules
	authRulesLoadErr error
)

// GetAuthRules returns the cached default auth rules, loading the embedded
// set on first call.
//
// Thread Safety: Safe for concurrent use.
func GetAuthRules() (*AuthRules, error) {
	authRulesMu.RLock()
	if cachedAuthRules != nil || authRulesLoadErr != nil {
		rules, err := cachedAuthRules, authRulesLoadErr
		authRulesMu.RUnlock()
		return rules, err
	}
	authRulesMu.RUnlock()

	authRulesMu.Lock()
	defer authRulesMu.Unlock()
	if cachedAuthRules == nil && authRulesLoadErr == nil {
		cachedAuthRules, authRulesLoadErr = LoadAuthRules(defaultAuthRulesYAML)
	}
	return cachedAuthRules, authRulesLoadErr
}

// ResetAuthRules clears the cached rules so tests can reload with
// different data.
func ResetAuthRules() {
	authRulesMu.Lock()
	defer authRulesMu.Unlock()
	cachedAuthRules = nil
	authRulesLoadErr = nil
}

// LoadAuthRules parses and validates auth rules from YAML bytes.
//
// Outputs:
//   - *AuthRules: The validated rules.
//   - error: Non-nil if parsing or validation fails, including an invalid
//     middleware pattern.
func LoadAuthRules(data []byte) (*AuthRules, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("LoadAuthRules: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadAuthRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var rules AuthRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("LoadAuthRules: parsing YAML: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("LoadAuthRules: %w", err)
	}
	return &rules, nil
}

// LoadAuthRulesFile loads auth rules from a user-supplied path.
func LoadAuthRulesFile(path string) (*AuthRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadAuthRulesFile: %w", err)
	}
	return LoadAuthRules(data)
}

// Validate checks the rules for consistency.
func (r *AuthRules) Validate() error {
	if len(r.Java.Required) == 0 && len(r.Java.NotRequired) == 0 {
		return fmt.Errorf("java rules are empty")
	}
	if len(r.Python.Required) == 0 && len(r.Python.NotRequired) == 0 {
		return fmt.Errorf("python rules are empty")
	}
	if _, err := r.NodeJS.MiddlewareRegexp(); err != nil {
		return err
	}
	return nil
}
