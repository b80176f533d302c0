// Package rules holds the single implementation of rule classification,
// normalization, deduplication and counting. Every consumer (listing,
// group merge, fan-out add) goes through these functions.
package rules

import (
	"strings"

	"github.com/haukened/rulesync/internal/rulesync/domain"
)

const (
	allowPrefix = "@@"
	blockPrefix = "||"
)

// Classify returns the RuleType of a rule from its prefix. Only "@@" and
// "||" are recognized; comments, single-pipe rules, bare domains and empty
// input are all RuleDisabled.
func Classify(rule string) domain.RuleType {
	s := strings.TrimSpace(rule)
	switch {
	case s == "":
		return domain.RuleDisabled
	case strings.HasPrefix(s, allowPrefix):
		return domain.RuleAllow
	case strings.HasPrefix(s, blockPrefix):
		return domain.RuleBlock
	default:
		return domain.RuleDisabled
	}
}

// IsComment reports whether the trimmed rule is a "!" or "#" comment line.
func IsComment(rule string) bool {
	s := strings.TrimSpace(rule)
	return strings.HasPrefix(s, "!") || strings.HasPrefix(s, "#")
}

// Normalize trims a raw rule. Comments are returned trimmed and otherwise
// verbatim. Anything shorter than two characters is noise and yields "",
// which callers treat as "discard".
func Normalize(rule string) string {
	s := strings.TrimSpace(rule)
	if IsComment(s) {
		return s
	}
	if len(s) < 2 {
		return ""
	}
	return s
}

// Dedup trims rules and drops blank lines and repeated values, keeping the
// first occurrence of each. Comments are deduplicated like any other line.
// Short rules are kept; the noise filter of Normalize is applied by Merge.
// The result is never nil.
func Dedup(rules []string) []string {
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		s := strings.TrimSpace(r)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Merge concatenates lists in order, normalizes every rule, discarding
// noise, and deduplicates the result, so the earliest list wins ties on
// ordering.
func Merge(lists ...[]string) []string {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	all := make([]string, 0, n)
	for _, l := range lists {
		for _, r := range l {
			if norm := Normalize(r); norm != "" {
				all = append(all, norm)
			}
		}
	}
	return Dedup(all)
}

// Count classifies every element of rules. Total is len(rules), so empty
// strings present in the slice are counted as disabled.
func Count(rules []string) domain.Counts {
	var c domain.Counts
	for _, r := range rules {
		c.Add(Classify(r))
	}
	return c
}
