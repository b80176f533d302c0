package backend

import (
	"context"

	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// RulesClient reads and replaces the custom rule list of a remote server.
type RulesClient interface {
	UserRules(ctx context.Context, srv domain.Server) ([]string, error)
	SetRules(ctx context.Context, srv domain.Server, rules []string) error
}

// Inventory is the part of the persistent store the backend reads.
type Inventory interface {
	Servers(ctx context.Context) ([]domain.Server, error)
	Server(ctx context.Context, id string) (*domain.Server, error)
	Groups(ctx context.Context) ([]domain.Group, error)
	Group(ctx context.Context, id string) (*domain.Group, error)
	SaveGroupRules(ctx context.Context, groupID string, rules []string) error
}

// CacheStore holds per-server caches, normally an LRU over the store.
type CacheStore interface {
	Cache(ctx context.Context, serverID string) (*domain.ServerCache, error)
	PutCache(ctx context.Context, serverID string, c domain.ServerCache) error
}
