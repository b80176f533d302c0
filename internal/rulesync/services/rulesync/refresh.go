package rulesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// RefreshServer pulls the live rule list of one server into its cache,
// keeping the other cached collections.
func (s *Service) RefreshServer(ctx context.Context, serverID string) error {
	if s.snapshots == nil {
		return fmt.Errorf("refresh requires a snapshot writer")
	}
	current, err := s.backend.UserRules(ctx, serverID)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	if current == nil {
		current = []string{}
	}

	var next domain.ServerCache
	if prev, err := s.backend.Cache(ctx, serverID); err == nil && prev != nil {
		next = *prev
	}
	next.Rules = current
	next.UpdatedAt = s.clock.Now()

	if err := s.snapshots.PutCache(ctx, serverID, next); err != nil {
		return fmt.Errorf("store cache: %w", err)
	}
	s.logger.Debug(map[string]any{"server_id": serverID, "rules": len(current)}, "cache_refreshed")
	return nil
}

// RefreshAll refreshes every known server in turn. Per-server failures are
// collected; only listing the servers or ctx ending returns an error.
func (s *Service) RefreshAll(ctx context.Context) (RefreshResult, error) {
	servers, err := s.backend.Servers(ctx)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("list servers: %w", err)
	}
	var res RefreshResult
	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.RefreshServer(ctx, srv.ID); err != nil {
			res.Failures = append(res.Failures, ServerFailure{ServerID: srv.ID, Name: srv.DisplayName(), Err: err})
			s.logger.Warn(map[string]any{"server_id": srv.ID, "server_name": srv.DisplayName(), "error": err}, "cache_refresh_failed")
			continue
		}
		res.Refreshed++
	}
	s.logger.Info(map[string]any{"refreshed": res.Refreshed, "failed": len(res.Failures)}, "refresh_all_complete")
	return res, nil
}

// Poller runs RefreshAll on a fixed interval until stopped. The zero value
// is not usable; build one with NewPoller.
type Poller struct {
	svc      *Service
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	onCycle func(RefreshResult, error)
}

// NewPoller returns a stopped Poller. onCycle, if non-nil, is called after
// every refresh pass.
func NewPoller(svc *Service, interval time.Duration, onCycle func(RefreshResult, error)) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	return &Poller{svc: svc, interval: interval, onCycle: onCycle}, nil
}

// Start begins polling, with a first pass right away. Starting a running
// Poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop ends polling and waits for an in-progress pass to return. Stop is
// safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		res, err := p.svc.RefreshAll(ctx)
		if p.onCycle != nil && ctx.Err() == nil {
			p.onCycle(res, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
