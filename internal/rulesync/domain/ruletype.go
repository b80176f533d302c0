package domain

import (
	"fmt"
	"strings"
)

// RuleType is the semantic class of a filtering rule, derived from its prefix.
type RuleType uint8

const (
	// RuleDisabled covers every line that is neither an allow nor a block rule,
	// including comments and empty input.
	RuleDisabled RuleType = iota
	// RuleAllow is an exception rule prefixed with "@@".
	RuleAllow
	// RuleBlock is a domain block rule prefixed with "||".
	RuleBlock
)

// String returns a stable string representation of the rule type.
func (t RuleType) String() string {
	switch t {
	case RuleAllow:
		return "allow"
	case RuleBlock:
		return "block"
	case RuleDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("RuleType(%d)", t)
	}
}

// ParseRuleType converts a string into a RuleType (case-insensitive).
func ParseRuleType(s string) (RuleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow":
		return RuleAllow, nil
	case "block":
		return RuleBlock, nil
	case "disabled":
		return RuleDisabled, nil
	default:
		return 0, fmt.Errorf("unsupported RuleType: %q", s)
	}
}

// Counts tallies classified rules.
type Counts struct {
	Allow    int `json:"allow"`
	Block    int `json:"block"`
	Disabled int `json:"disabled"`
	Total    int `json:"total"`
}

// Add records one rule of type t.
func (c *Counts) Add(t RuleType) {
	switch t {
	case RuleAllow:
		c.Allow++
	case RuleBlock:
		c.Block++
	default:
		c.Disabled++
	}
	c.Total++
}
