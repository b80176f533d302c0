package rulesync

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// Outcome classifies a batch of server writes.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota
	OutcomePartial
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// ServerFailure records why one server in a batch failed.
type ServerFailure struct {
	ServerID string
	Name     string
	Err      error
}

func joinFailures(fs []ServerFailure) error {
	var err error
	for _, f := range fs {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.Name, f.Err))
	}
	return err
}

// MergeResult is the normalized, deduplicated union of the members' cached
// rules.
type MergeResult struct {
	Rules    []string
	Warnings []string
	Counts   domain.Counts
	// Sources lists the servers whose rules were merged, in merge order.
	Sources []string
	// Stale lists the servers skipped for lack of a cache.
	Stale []string
	// Added maps each source server to the number of merged rules it lacks.
	Added map[string]int
}

// ApplyResult tallies a sequential write-back.
type ApplyResult struct {
	SuccessCount int
	FailCount    int
	Failures     []ServerFailure
}

// Outcome reports full success when nothing failed, partial success when at
// least one write succeeded, and failure otherwise.
func (r ApplyResult) Outcome() Outcome {
	switch {
	case r.FailCount == 0:
		return OutcomeSuccess
	case r.SuccessCount > 0:
		return OutcomePartial
	default:
		return OutcomeFailure
	}
}

// Message is the user-facing summary of the write-back.
func (r ApplyResult) Message() string {
	total := r.SuccessCount + r.FailCount
	switch r.Outcome() {
	case OutcomeSuccess:
		return fmt.Sprintf("Merged rules synced to all %d %s", total, plural(total, "server", "servers"))
	case OutcomePartial:
		return fmt.Sprintf("Merged rules synced to %d of %d servers; %d failed", r.SuccessCount, total, r.FailCount)
	default:
		return fmt.Sprintf("Failed to sync merged rules to %s", countServers(r.FailCount))
	}
}

// Err combines the per-server failures, or nil.
func (r ApplyResult) Err() error { return joinFailures(r.Failures) }

// SyncResult is the combined outcome of SyncGroup.
type SyncResult struct {
	Merge MergeResult
	Apply ApplyResult
}

// AddResult tallies a fan-out add.
type AddResult struct {
	Success   int
	Duplicate int
	Failed    int
	Total     int
	// DomainConflicts maps a server id to its existing rules that target the
	// same domain as the added rule with different text.
	DomainConflicts map[string][]string
	Failures        []ServerFailure
}

// Outcome reports full success when every server now has the rule
// (added or already present), partial success when some server did and
// some failed, and failure when none did.
func (r AddResult) Outcome() Outcome {
	ok := r.Success + r.Duplicate
	switch {
	case r.Failed == 0:
		return OutcomeSuccess
	case ok > 0:
		return OutcomePartial
	default:
		return OutcomeFailure
	}
}

// Message combines the counts into one user-facing line.
func (r AddResult) Message() string {
	if r.Total == 0 {
		return "No servers to update"
	}

	var head string
	switch {
	case r.Success == r.Total:
		if r.Total == 1 {
			return "Rule added"
		}
		return fmt.Sprintf("Rule added to all %d servers", r.Total)
	case r.Duplicate == r.Total:
		if r.Total == 1 {
			return "Rule already exists"
		}
		return fmt.Sprintf("Rule already exists on all %d servers", r.Total)
	case r.Success > 0:
		head = fmt.Sprintf("Rule added to %d of %d servers", r.Success, r.Total)
	case r.Failed == r.Total:
		return fmt.Sprintf("Failed to add rule to %s", countServers(r.Total))
	default:
		head = "Rule not added"
	}

	var parts []string
	if r.Duplicate > 0 {
		parts = append(parts, fmt.Sprintf("%d already had it", r.Duplicate))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if len(parts) == 0 {
		return head
	}
	return head + " (" + strings.Join(parts, ", ") + ")"
}

// Err combines the per-server failures, or nil.
func (r AddResult) Err() error { return joinFailures(r.Failures) }

// RefreshResult tallies a refresh of server caches.
type RefreshResult struct {
	Refreshed int
	Failures  []ServerFailure
}

// Err combines the per-server failures, or nil.
func (r RefreshResult) Err() error { return joinFailures(r.Failures) }

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func countServers(n int) string {
	if n == 1 {
		return "1 server"
	}
	return fmt.Sprintf("%d servers", n)
}
