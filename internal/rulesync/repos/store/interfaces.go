// Package store defines the persistent inventory of servers, groups and
// per-server caches.
package store

import (
	"context"

	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// Stats captures high-level counts for the persistent store.
type Stats struct {
	Servers     int
	Groups      int
	Caches      int
	UpdatedUnix int64 // last write, seconds since epoch
}

// CacheStore reads and writes per-server caches. Cache returns nil, nil when
// the server has no cache.
type CacheStore interface {
	Cache(ctx context.Context, serverID string) (*domain.ServerCache, error)
	PutCache(ctx context.Context, serverID string, c domain.ServerCache) error
}

// Store is the full inventory. Lookups of unknown ids return nil, nil.
type Store interface {
	CacheStore

	Servers(ctx context.Context) ([]domain.Server, error)
	Server(ctx context.Context, id string) (*domain.Server, error)
	PutServer(ctx context.Context, s domain.Server) error
	DeleteServer(ctx context.Context, id string) error

	Groups(ctx context.Context) ([]domain.Group, error)
	Group(ctx context.Context, id string) (*domain.Group, error)
	PutGroup(ctx context.Context, g domain.Group) error
	DeleteGroup(ctx context.Context, id string) error
	// SaveGroupRules replaces the merged snapshot of an existing group.
	SaveGroupRules(ctx context.Context, groupID string, rules []string) error

	Stats() Stats
	Close() error
}
