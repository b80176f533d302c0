package rules

import "strings"

// Domain returns the hostname a "||"-anchored rule targets, with any "@@"
// prefix, "^" separator and "$" modifiers removed. Rules of any other shape
// yield "".
func Domain(rule string) string {
	s := strings.TrimSpace(rule)
	s = strings.TrimPrefix(s, allowPrefix)
	if !strings.HasPrefix(s, blockPrefix) {
		return ""
	}
	s = s[len(blockPrefix):]
	if i := strings.IndexAny(s, "^$/|"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Conflicts returns the rules in existing that target the same domain as
// rule but differ from it textually, e.g. an allow rule shadowing a new block
// rule. Existing exact copies of rule are not conflicts.
func Conflicts(existing []string, rule string) []string {
	d := Domain(rule)
	if d == "" {
		return nil
	}
	want := strings.TrimSpace(rule)
	var out []string
	for _, r := range existing {
		if strings.TrimSpace(r) == want {
			continue
		}
		if Domain(r) == d {
			out = append(out, r)
		}
	}
	return out
}
