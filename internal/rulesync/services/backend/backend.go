// Package backend joins the persistent inventory, the cache layer and the
// control API client into the single boundary the sync service talks to.
package backend

import (
	"context"
	"fmt"
	"slices"

	"github.com/haukened/rulesync/internal/rulesync/common/clock"
	"github.com/haukened/rulesync/internal/rulesync/common/log"
	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// Backend resolves server ids against the inventory and forwards rule calls
// to the remote servers. Successful writes are mirrored into the cache.
type Backend struct {
	inventory Inventory
	caches    CacheStore
	client    RulesClient
	clock     clock.Clock
	logger    log.Logger
}

// Options configures a Backend. Inventory, Caches and Client are required.
type Options struct {
	Inventory Inventory
	Caches    CacheStore
	Client    RulesClient
	Clock     clock.Clock
	Logger    log.Logger
}

// New builds a Backend from opts.
func New(opts Options) (*Backend, error) {
	switch {
	case opts.Inventory == nil:
		return nil, fmt.Errorf("inventory is required")
	case opts.Caches == nil:
		return nil, fmt.Errorf("cache store is required")
	case opts.Client == nil:
		return nil, fmt.Errorf("rules client is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Backend{
		inventory: opts.Inventory,
		caches:    opts.Caches,
		client:    opts.Client,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}, nil
}

func (b *Backend) Servers(ctx context.Context) ([]domain.Server, error) {
	return b.inventory.Servers(ctx)
}

func (b *Backend) Groups(ctx context.Context) ([]domain.Group, error) {
	return b.inventory.Groups(ctx)
}

func (b *Backend) Group(ctx context.Context, id string) (*domain.Group, error) {
	return b.inventory.Group(ctx, id)
}

func (b *Backend) Cache(ctx context.Context, serverID string) (*domain.ServerCache, error) {
	return b.caches.Cache(ctx, serverID)
}

// UserRules fetches the live rule list of a server.
func (b *Backend) UserRules(ctx context.Context, serverID string) ([]string, error) {
	srv, err := b.server(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return b.client.UserRules(ctx, *srv)
}

// SetRules replaces the live rule list of a server. After a successful write
// the cached rules are replaced too; a cache failure is logged only, since
// the server already holds the new list.
func (b *Backend) SetRules(ctx context.Context, serverID string, rules []string) error {
	srv, err := b.server(ctx, serverID)
	if err != nil {
		return err
	}
	if err := b.client.SetRules(ctx, *srv, rules); err != nil {
		return err
	}

	var next domain.ServerCache
	if prev, err := b.caches.Cache(ctx, serverID); err == nil && prev != nil {
		next = *prev
	}
	next.Rules = slices.Clone(rules)
	if next.Rules == nil {
		next.Rules = []string{}
	}
	next.UpdatedAt = b.clock.Now()
	if err := b.caches.PutCache(context.WithoutCancel(ctx), serverID, next); err != nil {
		b.logger.Warn(map[string]any{"server_id": serverID, "error": err}, "cache_update_failed")
	}
	return nil
}

// SaveGroupRules stores the merged snapshot of a group.
func (b *Backend) SaveGroupRules(ctx context.Context, groupID string, rules []string) error {
	return b.inventory.SaveGroupRules(ctx, groupID, rules)
}

// PutCache stores the cached state of a server.
func (b *Backend) PutCache(ctx context.Context, serverID string, c domain.ServerCache) error {
	return b.caches.PutCache(ctx, serverID, c)
}

func (b *Backend) server(ctx context.Context, id string) (*domain.Server, error) {
	srv, err := b.inventory.Server(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load server %s: %w", id, err)
	}
	if srv == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrServerNotFound, id)
	}
	return srv, nil
}
