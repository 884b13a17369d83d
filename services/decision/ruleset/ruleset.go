// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ruleset holds the data side of the business-rule overlay: the
// ordered rule configuration and the amount-tiered documentation guidance,
// loaded from embedded YAML and optionally overridden from disk.
package ruleset

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Known rule ids. Each id binds to a built-in predicate/transform pair in
// the decision package; a config entry with an unknown id is a load error.
const (
	RuleLowConfidenceReview        = "low_confidence_review"
	RuleSmallClaimAutoApprove      = "small_claim_auto_approve"
	RuleModerateClaimReducedReview = "moderate_claim_reduced_review"
	RuleLargeClaimManualReview     = "large_claim_manual_review"
	RuleExclusionLanguageReview    = "exclusion_language_review"
)

var knownRuleIDs = map[string]bool{
	RuleLowConfidenceReview:        true,
	RuleSmallClaimAutoApprove:      true,
	RuleModerateClaimReducedReview: true,
	RuleLargeClaimManualReview:     true,
	RuleExclusionLanguageReview:    true,
}

// RuleParams carries the numeric thresholds a rule predicate reads.
// Unused fields stay zero for rules that do not need them.
type RuleParams struct {
	// MinConfidence is the inclusive lower confidence bound.
	MinConfidence float64 `yaml:"min_confidence"`

	// MaxAmount is the claim-amount bound the rule compares against.
	MaxAmount float64 `yaml:"max_amount"`
}

// RuleConfig is one entry in the ordered rule list.
type RuleConfig struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description"`
	Priority    int        `yaml:"priority"`
	Params      RuleParams `yaml:"params"`
}

// DocumentationTier is one amount band of documentation guidance for the
// generation prompt. A tier with UpperBound 0 is unbounded and must be the
// last entry.
type DocumentationTier struct {
	UpperBound float64 `yaml:"upper_bound"`
	Guidance   string  `yaml:"guidance"`
}

// Config is the parsed rule configuration file.
type Config struct {
	Rules              []RuleConfig        `yaml:"rules"`
	DocumentationTiers []DocumentationTier `yaml:"documentation_tiers"`
}

// Parse unmarshals and validates a rule configuration.
//
// It performs the following operations:
//  1. Unmarshals the YAML data.
//  2. Rejects unknown rule ids and duplicate ids.
//  3. Sorts rules by descending priority.
//  4. Validates tier ordering (ascending bounds, unbounded tier last).
//
// Returns an error if the YAML is malformed or the configuration is
// internally inconsistent.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the rule configuration: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("rule configuration contains no rules")
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !knownRuleIDs[r.ID] {
			return nil, fmt.Errorf("unknown rule id %q", r.ID)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}

	// Sort the rules from highest to lowest priority.
	sort.SliceStable(cfg.Rules, func(i, j int) bool {
		return cfg.Rules[i].Priority > cfg.Rules[j].Priority
	})

	if err := validateTiers(cfg.DocumentationTiers); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default parses the embedded rule configuration. The embedded file is
// validated by tests, so a failure here means a broken build.
func Default() (*Config, error) {
	return Parse(ClaimRules)
}

// LoadFile parses a rule configuration from an on-disk override file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the rule override file: %w", err)
	}
	return Parse(data)
}

func validateTiers(tiers []DocumentationTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("rule configuration contains no documentation tiers")
	}
	for i, tier := range tiers {
		unbounded := tier.UpperBound == 0
		last := i == len(tiers)-1
		if unbounded && !last {
			return fmt.Errorf("unbounded documentation tier must be last (index %d)", i)
		}
		if !unbounded && i > 0 && tiers[i-1].UpperBound >= tier.UpperBound {
			return fmt.Errorf("documentation tiers must have ascending bounds (index %d)", i)
		}
		if tier.Guidance == "" {
			return fmt.Errorf("documentation tier %d has empty guidance", i)
		}
	}
	if tiers[len(tiers)-1].UpperBound != 0 {
		return fmt.Errorf("last documentation tier must be unbounded (upper_bound 0)")
	}
	return nil
}

// GuidanceFor selects the documentation guidance tier for a claim amount.
// Tier bounds are exclusive upper bounds: an amount equal to a bound falls
// into the next tier.
func (c *Config) GuidanceFor(amount float64) string {
	for _, tier := range c.DocumentationTiers {
		if tier.UpperBound == 0 || amount < tier.UpperBound {
			return tier.Guidance
		}
	}
	// Unreachable with a validated config.
	return c.DocumentationTiers[len(c.DocumentationTiers)-1].Guidance
}

// Rule returns the configuration for a rule id, or false if the id is not
// present in this configuration.
func (c *Config) Rule(id string) (RuleConfig, bool) {
	for _, r := range c.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return RuleConfig{}, false
}
