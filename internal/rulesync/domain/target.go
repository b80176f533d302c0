package domain

import (
	"fmt"
	"strings"
)

// TargetKind names what a Target addresses.
type TargetKind string

const (
	TargetGroup  TargetKind = "group"
	TargetServer TargetKind = "server"
)

// Target addresses either a single server or a whole group.
type Target struct {
	Kind TargetKind
	ID   string
}

// ParseTarget parses "group:<id>" or "server:<id>". The id is everything
// after the first colon.
func ParseTarget(s string) (Target, error) {
	if s == "" {
		return Target{}, ErrEmptyTarget
	}
	kind, id, _ := strings.Cut(s, ":")
	switch TargetKind(kind) {
	case TargetGroup, TargetServer:
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownTargetType, kind)
	}
	if id == "" {
		return Target{}, fmt.Errorf("%w: %q has no id", ErrEmptyTarget, s)
	}
	return Target{Kind: TargetKind(kind), ID: id}, nil
}

// String returns the "<kind>:<id>" form.
func (t Target) String() string {
	return string(t.Kind) + ":" + t.ID
}
