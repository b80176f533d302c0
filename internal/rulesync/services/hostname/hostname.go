// Package hostname extracts a validated hostname from free-form user input,
// either a URL or a bare domain.
package hostname

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// User-facing parse errors.
const (
	ErrInputRequired = "Input required"
	ErrInvalidDomain = "Invalid domain format"
)

// labelPattern is an RFC 1035 style label: alphanumeric at both ends,
// hyphens only inside, at most 63 characters.
var labelPattern = regexp.MustCompile(`(?i)^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Result is the outcome of Parse. Exactly one of Hostname and Error is set.
type Result struct {
	Hostname string
	Error    string
}

// OK reports whether a hostname was extracted.
func (r Result) OK() bool { return r.Error == "" }

// Parse extracts a hostname from input. Input without an http(s) scheme is
// parsed as an https URL first; when that yields no valid host the trimmed
// input is validated as a bare domain. Hostnames are returned lowercased,
// and internationalized names in their ASCII (punycode) form.
func Parse(input string) Result {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Result{Error: ErrInputRequired}
	}

	if host, ok := fromURL(trimmed); ok {
		return Result{Hostname: host}
	}

	if host := strings.ToLower(trimmed); Valid(host) {
		return Result{Hostname: host}
	}
	return Result{Error: ErrInvalidDomain}
}

func fromURL(s string) (string, bool) {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := toASCII(u.Hostname())
	if !Valid(host) {
		return "", false
	}
	return host, true
}

// toASCII maps host the way a browser URL parser does: lowercase, with
// Unicode labels converted to punycode. Hosts the IDNA lookup profile
// rejects are only lowercased and left for Valid to judge.
func toASCII(host string) string {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return ascii
}

// Valid reports whether name is a hostname with at least two labels, each
// matching labelPattern. Matching is case-insensitive.
func Valid(name string) bool {
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return false
		}
	}
	return true
}
