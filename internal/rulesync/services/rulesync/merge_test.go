package rulesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rulesync/internal/rulesync/common/clock"
	"github.com/haukened/rulesync/internal/rulesync/common/log"
	"github.com/haukened/rulesync/internal/rulesync/domain"
)

func newTestService(t *testing.T, f *fakeBackend, opts ...func(*Options)) (*Service, *clock.MockClock) {
	t.Helper()
	mc := clock.NewMockClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	o := Options{
		Backend:    f,
		Snapshots:  f,
		Clock:      eventClock{MockClock: mc, f: f},
		Logger:     log.NewNoopLogger(),
		WriteDelay: DefaultWriteDelay,
	}
	for _, fn := range opts {
		fn(&o)
	}
	svc, err := NewService(o)
	require.NoError(t, err)
	return svc, mc
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)

	_, err = NewService(Options{Backend: newFakeBackend(), WriteDelay: -time.Second})
	assert.Error(t, err)

	svc, err := NewService(Options{Backend: newFakeBackend()})
	require.NoError(t, err)
	assert.NotNil(t, svc.clock)
	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.metrics)
}

func TestMergeGroup_StaleServerIsSkippedWithWarning(t *testing.T) {
	f := newFakeBackend()
	f.servers = []domain.Server{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	f.setCache("a", "||a.com^")
	rec := log.NewRecorder()
	svc, _ := newTestService(t, f, func(o *Options) { o.Logger = rec })

	res, err := svc.MergeGroup(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"||a.com^"}, res.Rules)
	assert.Equal(t, []string{"B not synced yet — refresh first"}, res.Warnings)
	assert.Equal(t, []string{"a"}, res.Sources)
	assert.Equal(t, []string{"b"}, res.Stale)
	assert.Equal(t, domain.Counts{Block: 1, Total: 1}, res.Counts)

	warns := rec.Level("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "merge_skip_unsynced", warns[0].Msg)
	assert.Equal(t, "b", warns[0].Fields["server_id"])
}

func TestMergeGroup_FirstSeenOrderAndDedup(t *testing.T) {
	f := newFakeBackend("a", "b", "c")
	f.setCache("a", "||one.com^", "! shared comment", "  ||two.com^ ")
	f.setCache("b", "@@||two.com^", "||one.com^", "! shared comment", "x")
	f.setCache("c", "||two.com^", "||three.com^", "")
	m := &fakeMetrics{}
	svc, _ := newTestService(t, f, func(o *Options) { o.Metrics = m })

	res, err := svc.MergeGroup(context.Background(), []string{"b", "a", "c"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"@@||two.com^",
		"||one.com^",
		"! shared comment",
		"||two.com^",
		"||three.com^",
	}, res.Rules)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, domain.Counts{Allow: 1, Block: 3, Disabled: 1, Total: 5}, res.Counts)
	assert.Equal(t, []string{"b", "a", "c"}, res.Sources)
	assert.Equal(t, map[string]int{"a": 2, "b": 2, "c": 3}, res.Added)
	assert.Equal(t, [][2]int{{5, 0}}, m.merges)
}

func TestMergeGroup_EmptyCacheIsSynced(t *testing.T) {
	f := newFakeBackend("a", "b")
	f.setCache("a")
	f.setCache("b", "||b.com^")
	svc, _ := newTestService(t, f)

	res, err := svc.MergeGroup(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{"||b.com^"}, res.Rules)
	assert.Equal(t, map[string]int{"a": 1, "b": 0}, res.Added)
}

func TestMergeGroup_CacheReadErrorIsAWarning(t *testing.T) {
	f := newFakeBackend("a", "b")
	f.setCache("a", "||a.com^")
	f.cacheErr["b"] = errors.New("corrupt")
	svc, _ := newTestService(t, f)

	res, err := svc.MergeGroup(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^"}, res.Rules)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "b cache unavailable")
}

func TestMergeGroup_ToleratesRepeatedAndUnknownIDs(t *testing.T) {
	f := newFakeBackend("a")
	f.setCache("a", "||a.com^")
	svc, _ := newTestService(t, f)

	res, err := svc.MergeGroup(context.Background(), []string{"a", "a", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Sources)
	assert.Equal(t, []string{"ghost not synced yet — refresh first"}, res.Warnings)
}

func TestMergeGroup_ServerListError(t *testing.T) {
	f := newFakeBackend("a")
	f.serversErr = errors.New("store closed")
	svc, _ := newTestService(t, f)

	_, err := svc.MergeGroup(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store closed")
}

func TestApplyMergedRules_SequentialWithDelay(t *testing.T) {
	f := newFakeBackend("a", "b", "c")
	m := &fakeMetrics{}
	svc, mc := newTestService(t, f, func(o *Options) { o.Metrics = m })
	merged := []string{"||a.com^", "||b.com^"}

	res, err := svc.ApplyMergedRules(context.Background(), []string{"a", "b", "c"}, merged)
	require.NoError(t, err)

	assert.Equal(t, ApplyResult{SuccessCount: 3}, res)
	assert.Equal(t, OutcomeSuccess, res.Outcome())
	assert.Equal(t, 1, f.maxInFlight, "writes must never overlap")
	assert.Equal(t, []string{
		"start:a", "end:a", "wait:500ms",
		"start:b", "end:b", "wait:500ms",
		"start:c", "end:c",
	}, f.events)
	assert.Equal(t, []time.Duration{DefaultWriteDelay, DefaultWriteDelay}, mc.Waits())
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, merged, f.live[id])
	}
	assert.Equal(t, map[string]int{"merge:true": 3}, m.writes)
	assert.NoError(t, res.Err())
}

func TestApplyMergedRules_PartialFailureContinues(t *testing.T) {
	f := newFakeBackend("a", "b", "c")
	f.writeErr["b"] = errors.New("401 unauthorized")
	rec := log.NewRecorder()
	svc, mc := newTestService(t, f, func(o *Options) { o.Logger = rec })

	res, err := svc.ApplyMergedRules(context.Background(), []string{"a", "b", "c"}, []string{"||x.com^"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	assert.Equal(t, OutcomePartial, res.Outcome())
	assert.Equal(t, []string{"a", "b", "c"}, f.writes)
	assert.Equal(t, []time.Duration{DefaultWriteDelay}, mc.Waits(), "only successful writes are followed by a pause")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].ServerID)
	assert.ErrorContains(t, res.Err(), "401 unauthorized")

	warns := rec.Level("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "merge_write_failed", warns[0].Msg)
}

func TestApplyMergedRules_TotalFailure(t *testing.T) {
	f := newFakeBackend("a", "b")
	f.writeErr["a"] = errors.New("down")
	f.writeErr["b"] = errors.New("down")
	svc, mc := newTestService(t, f)

	res, err := svc.ApplyMergedRules(context.Background(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ApplyResult{FailCount: 2, Failures: res.Failures}, res)
	assert.Equal(t, OutcomeFailure, res.Outcome())
	assert.Empty(t, mc.Waits())
}

func TestApplyMergedRules_ContextCanceledStopsFurtherWrites(t *testing.T) {
	f := newFakeBackend("a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onWrite = func(id string) {
		if id == "a" {
			cancel()
		}
	}
	svc, _ := newTestService(t, f)

	res, err := svc.ApplyMergedRules(ctx, []string{"a", "b", "c"}, []string{"||x.com^"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, []string{"a"}, f.writes)
}

func TestApplyMergedRules_ZeroDelay(t *testing.T) {
	f := newFakeBackend("a", "b")
	svc, mc := newTestService(t, f, func(o *Options) { o.WriteDelay = 0 })

	res, err := svc.ApplyMergedRules(context.Background(), []string{"a", "b"}, []string{"||x.com^"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Empty(t, mc.Waits())
}

func TestSyncGroup(t *testing.T) {
	f := newFakeBackend("a", "b", "c")
	f.groups = []domain.Group{{ID: "g", Name: "G", ServerIDs: []string{"a", "b", "c"}}}
	f.setCache("a", "||a.com^", "! note")
	f.setCache("b", "||b.com^", "! note")
	svc, _ := newTestService(t, f)

	res, err := svc.SyncGroup(context.Background(), "g")
	require.NoError(t, err)

	want := []string{"||a.com^", "! note", "||b.com^"}
	assert.Equal(t, want, res.Merge.Rules)
	assert.Equal(t, []string{"c not synced yet — refresh first"}, res.Merge.Warnings)
	assert.Equal(t, 3, res.Apply.SuccessCount)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, want, f.live[id], id)
	}
	assert.Equal(t, want, f.saved["g"])
}

func TestSyncGroup_Errors(t *testing.T) {
	f := newFakeBackend("a")
	f.groups = []domain.Group{
		{ID: "off", Name: "Off", ServerIDs: []string{"a"}, SyncSettings: &domain.SyncSettings{Clients: true}},
		{ID: "stale", Name: "Stale", ServerIDs: []string{"a"}},
	}
	svc, _ := newTestService(t, f)

	_, err := svc.SyncGroup(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)

	_, err = svc.SyncGroup(context.Background(), "off")
	assert.ErrorIs(t, err, domain.ErrCustomRulesSyncDisabled)

	res, err := svc.SyncGroup(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrNoSyncedServers)
	assert.Len(t, res.Merge.Warnings, 1)
	assert.Empty(t, f.writes, "nothing may be written when no member was synced")
}

func TestSyncGroup_SnapshotFailureIsLogged(t *testing.T) {
	f := newFakeBackend("a")
	f.groups = []domain.Group{{ID: "g", Name: "G", ServerIDs: []string{"a"}}}
	f.setCache("a", "||a.com^")
	f.saveErr = errors.New("read-only")
	rec := log.NewRecorder()
	svc, _ := newTestService(t, f, func(o *Options) { o.Logger = rec })

	res, err := svc.SyncGroup(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Apply.SuccessCount)

	warns := rec.Level("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "group_snapshot_failed", warns[0].Msg)
}

func TestSyncGroup_NoSnapshotWhenEveryWriteFails(t *testing.T) {
	f := newFakeBackend("a")
	f.groups = []domain.Group{{ID: "g", Name: "G", ServerIDs: []string{"a"}}}
	f.setCache("a", "||a.com^")
	f.writeErr["a"] = errors.New("down")
	svc, _ := newTestService(t, f)

	res, err := svc.SyncGroup(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, res.Apply.Outcome())
	_, saved := f.saved["g"]
	assert.False(t, saved)
}
