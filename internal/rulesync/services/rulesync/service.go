// Package rulesync merges custom rules across servers and fans out single
// rule additions, keeping every member of a group consistent.
package rulesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haukened/rulesync/internal/rulesync/common/clock"
	"github.com/haukened/rulesync/internal/rulesync/common/log"
)

// DefaultWriteDelay is the pause between successful sequential writes. The
// servers reject closely spaced rule updates.
const DefaultWriteDelay = 500 * time.Millisecond

// ErrNoSyncedServers is returned by SyncGroup when no member has cached
// rules, since writing the empty merge would wipe every server.
var ErrNoSyncedServers = errors.New("no group member has cached rules")

// Service runs merges, fan-out adds and cache refreshes against a Backend.
type Service struct {
	backend    Backend
	snapshots  SnapshotWriter
	clock      clock.Clock
	logger     log.Logger
	metrics    Metrics
	writeDelay time.Duration
}

// Options configures a Service. Backend is required. Snapshots is needed by
// SyncGroup and the refresh operations. A zero WriteDelay disables the
// pause between writes.
type Options struct {
	Backend    Backend
	Snapshots  SnapshotWriter
	Clock      clock.Clock
	Logger     log.Logger
	Metrics    Metrics
	WriteDelay time.Duration
}

// NewService builds a Service from opts.
func NewService(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.WriteDelay < 0 {
		return nil, fmt.Errorf("write delay must not be negative, got %v", opts.WriteDelay)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Service{
		backend:    opts.Backend,
		snapshots:  opts.Snapshots,
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		writeDelay: opts.WriteDelay,
	}, nil
}

// serverNames maps server ids to display names for messages. Unknown ids map
// to themselves when looked up through name.
func (s *Service) serverNames(ctx context.Context) (map[string]string, error) {
	servers, err := s.backend.Servers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	names := make(map[string]string, len(servers))
	for _, srv := range servers {
		names[srv.ID] = srv.DisplayName()
	}
	return names, nil
}

func name(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

// uniqueIDs drops repeated ids, keeping first occurrences in order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// wait pauses for the write delay, returning early with ctx's error.
func (s *Service) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil || s.writeDelay == 0 {
		return err
	}
	select {
	case <-s.clock.After(s.writeDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
