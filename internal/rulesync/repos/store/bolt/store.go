package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rulesync/internal/rulesync/common/clock"
	"github.com/haukened/rulesync/internal/rulesync/domain"
	"github.com/haukened/rulesync/internal/rulesync/repos/store"
)

var (
	bucketServers = []byte("servers")
	bucketGroups  = []byte("groups")
	bucketCaches  = []byte("caches")
	bucketMeta    = []byte("meta")

	keyUpdated = []byte("updated")
)

// boltStore implements store.Store using bbolt. Values are JSON documents
// keyed by id.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string, clk clock.Clock) (store.Store, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketServers, bucketGroups, bucketCaches, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Servers(ctx context.Context) ([]domain.Server, error) {
	var out []domain.Server
	err := s.list(ctx, bucketServers, func(v []byte) error {
		var srv domain.Server
		if err := json.Unmarshal(v, &srv); err != nil {
			return err
		}
		out = append(out, srv)
		return nil
	})
	return out, err
}

func (s *boltStore) Server(ctx context.Context, id string) (*domain.Server, error) {
	var srv domain.Server
	ok, err := s.get(ctx, bucketServers, id, &srv)
	if err != nil || !ok {
		return nil, err
	}
	return &srv, nil
}

func (s *boltStore) PutServer(ctx context.Context, srv domain.Server) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	return s.put(ctx, bucketServers, srv.ID, srv)
}

// DeleteServer removes the server and its cache.
func (s *boltStore) DeleteServer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketServers).Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCaches).Delete([]byte(id)); err != nil {
			return err
		}
		return s.touch(tx)
	})
}

func (s *boltStore) Groups(ctx context.Context) ([]domain.Group, error) {
	var out []domain.Group
	err := s.list(ctx, bucketGroups, func(v []byte) error {
		var g domain.Group
		if err := json.Unmarshal(v, &g); err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

func (s *boltStore) Group(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	ok, err := s.get(ctx, bucketGroups, id, &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (s *boltStore) PutGroup(ctx context.Context, g domain.Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return s.put(ctx, bucketGroups, g.ID, g)
}

func (s *boltStore) DeleteGroup(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketGroups).Delete([]byte(id)); err != nil {
			return err
		}
		return s.touch(tx)
	})
}

// SaveGroupRules rewrites the group's merged snapshot inside one transaction.
func (s *boltStore) SaveGroupRules(ctx context.Context, groupID string, rules []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		v := b.Get([]byte(groupID))
		if v == nil {
			return fmt.Errorf("%w: %s", domain.ErrGroupNotFound, groupID)
		}
		var g domain.Group
		if err := json.Unmarshal(v, &g); err != nil {
			return err
		}
		g.Rules = append([]string{}, rules...)
		buf, err := json.Marshal(g)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(groupID), buf); err != nil {
			return err
		}
		return s.touch(tx)
	})
}

func (s *boltStore) Cache(ctx context.Context, serverID string) (*domain.ServerCache, error) {
	var c domain.ServerCache
	ok, err := s.get(ctx, bucketCaches, serverID, &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func (s *boltStore) PutCache(ctx context.Context, serverID string, c domain.ServerCache) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.clock.Now()
	}
	return s.put(ctx, bucketCaches, serverID, c)
}

func (s *boltStore) Stats() store.Stats {
	st := store.Stats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		st.Servers = tx.Bucket(bucketServers).Stats().KeyN
		st.Groups = tx.Bucket(bucketGroups).Stats().KeyN
		st.Caches = tx.Bucket(bucketCaches).Stats().KeyN
		if v := tx.Bucket(bucketMeta).Get(keyUpdated); len(v) == 8 {
			st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return st
}

func (s *boltStore) get(ctx context.Context, bucket []byte, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, dst)
	})
	return found, err
}

func (s *boltStore) list(ctx context.Context, bucket []byte, fn func(v []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}

func (s *boltStore) put(ctx context.Context, bucket []byte, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucket).Put([]byte(key), buf); err != nil {
			return err
		}
		return s.touch(tx)
	})
}

// touch records the last write time in the meta bucket.
func (s *boltStore) touch(tx *bbolt.Tx) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(s.clock.Now().Unix()))
	return tx.Bucket(bucketMeta).Put(keyUpdated, buf)
}

var _ store.Store = (*boltStore)(nil)
