package rulesync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/haukened/rulesync/internal/rulesync/common/clock"
	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// fakeBackend is an in-memory Backend and SnapshotWriter that records the
// order of writes.
type fakeBackend struct {
	mu sync.Mutex

	servers []domain.Server
	groups  []domain.Group
	caches  map[string]*domain.ServerCache
	live    map[string][]string

	serversErr error
	groupsErr  error
	cacheErr   map[string]error
	readErr    map[string]error
	writeErr   map[string]error
	saveErr    error
	onWrite    func(id string)

	reads       []string
	writes      []string
	events      []string
	inFlight    int
	maxInFlight int
	saved       map[string][]string
}

func newFakeBackend(ids ...string) *fakeBackend {
	f := &fakeBackend{
		caches:   make(map[string]*domain.ServerCache),
		live:     make(map[string][]string),
		cacheErr: make(map[string]error),
		readErr:  make(map[string]error),
		writeErr: make(map[string]error),
		saved:    make(map[string][]string),
	}
	for _, id := range ids {
		f.servers = append(f.servers, domain.Server{ID: id, Name: id, URL: "http://" + id})
		f.live[id] = []string{}
	}
	return f
}

func (f *fakeBackend) event(e string) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fakeBackend) Servers(context.Context) ([]domain.Server, error) {
	if f.serversErr != nil {
		return nil, f.serversErr
	}
	return slices.Clone(f.servers), nil
}

func (f *fakeBackend) Groups(context.Context) ([]domain.Group, error) {
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return slices.Clone(f.groups), nil
}

func (f *fakeBackend) Group(_ context.Context, id string) (*domain.Group, error) {
	for _, g := range f.groups {
		if g.ID == id {
			g := g
			return &g, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) Cache(_ context.Context, id string) (*domain.ServerCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cacheErr[id]; err != nil {
		return nil, err
	}
	c, ok := f.caches[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Rules = slices.Clone(c.Rules)
	return &cp, nil
}

func (f *fakeBackend) UserRules(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, id)
	if err := f.readErr[id]; err != nil {
		return nil, err
	}
	rules, ok := f.live[id]
	if !ok {
		return nil, fmt.Errorf("unknown server %s", id)
	}
	return slices.Clone(rules), nil
}

func (f *fakeBackend) SetRules(_ context.Context, id string, rules []string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.events = append(f.events, "start:"+id)
	f.writes = append(f.writes, id)
	err := f.writeErr[id]
	if err == nil {
		f.live[id] = slices.Clone(rules)
	}
	f.mu.Unlock()

	// Give an overlapping writer a chance to show up.
	time.Sleep(time.Millisecond)
	if f.onWrite != nil {
		f.onWrite(id)
	}

	f.mu.Lock()
	f.inFlight--
	f.events = append(f.events, "end:"+id)
	f.mu.Unlock()
	return err
}

func (f *fakeBackend) SaveGroupRules(_ context.Context, groupID string, rules []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[groupID] = slices.Clone(rules)
	return nil
}

func (f *fakeBackend) PutCache(_ context.Context, id string, c domain.ServerCache) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[id]; err != nil {
		return err
	}
	cp := c
	f.caches[id] = &cp
	return nil
}

func (f *fakeBackend) setCache(id string, rules ...string) {
	if rules == nil {
		rules = []string{}
	}
	f.caches[id] = &domain.ServerCache{Rules: rules}
}

// eventClock is a MockClock that also logs waits into the backend's event
// stream, so tests can assert on write/wait interleaving.
type eventClock struct {
	*clock.MockClock
	f *fakeBackend
}

func (c eventClock) After(d time.Duration) <-chan time.Time {
	c.f.event("wait:" + d.String())
	return c.MockClock.After(d)
}

type fakeMetrics struct {
	mu         sync.Mutex
	writes     map[string]int
	duplicates int
	merges     [][2]int
}

func (m *fakeMetrics) ObserveWrite(op string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = make(map[string]int)
	}
	m.writes[fmt.Sprintf("%s:%v", op, ok)]++
}

func (m *fakeMetrics) ObserveDuplicate() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()
}

func (m *fakeMetrics) ObserveMerge(rules, stale int) {
	m.mu.Lock()
	m.merges = append(m.merges, [2]int{rules, stale})
	m.mu.Unlock()
}
