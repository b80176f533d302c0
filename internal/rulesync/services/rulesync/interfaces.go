package rulesync

import (
	"context"

	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// Backend is the boundary to server inventory and the servers themselves.
// Lookups of unknown ids return nil, nil. UserRules and SetRules talk to the
// remote server and may fail per server.
type Backend interface {
	Servers(ctx context.Context) ([]domain.Server, error)
	Groups(ctx context.Context) ([]domain.Group, error)
	Group(ctx context.Context, id string) (*domain.Group, error)
	Cache(ctx context.Context, serverID string) (*domain.ServerCache, error)
	UserRules(ctx context.Context, serverID string) ([]string, error)
	// SetRules replaces the server's whole rule list.
	SetRules(ctx context.Context, serverID string, rules []string) error
}

// SnapshotWriter persists local snapshots: the merged rules of a group and
// the cached state of a server.
type SnapshotWriter interface {
	SaveGroupRules(ctx context.Context, groupID string, rules []string) error
	PutCache(ctx context.Context, serverID string, c domain.ServerCache) error
}

// Metrics receives outcome counters. See common/metrics for the Prometheus
// implementation.
type Metrics interface {
	ObserveWrite(op string, ok bool)
	ObserveDuplicate()
	ObserveMerge(rules, stale int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveWrite(string, bool) {}
func (noopMetrics) ObserveDuplicate()         {}
func (noopMetrics) ObserveMerge(int, int)     {}
