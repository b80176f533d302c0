package rulesync

import (
	"context"
	"fmt"

	"github.com/haukened/rulesync/internal/rulesync/common/metrics"
	"github.com/haukened/rulesync/internal/rulesync/domain"
	"github.com/haukened/rulesync/internal/rulesync/repos/ruleindex"
	"github.com/haukened/rulesync/internal/rulesync/services/rules"
)

// staleWarning is the warning recorded for a server that has no cached rules.
func staleWarning(name string) string {
	return name + " not synced yet — refresh first"
}

// MergeGroup merges the cached rules of serverIDs. Servers without a cache
// are skipped with a warning. Rules are concatenated in serverIDs order and
// deduplicated, so the first server to list a rule fixes its position.
// Repeated ids are merged once.
func (s *Service) MergeGroup(ctx context.Context, serverIDs []string) (MergeResult, error) {
	names, err := s.serverNames(ctx)
	if err != nil {
		return MergeResult{}, err
	}

	res := MergeResult{Added: make(map[string]int)}
	lists := make(map[string][]string)
	var ordered [][]string

	for _, id := range uniqueIDs(serverIDs) {
		n := name(names, id)
		cache, err := s.backend.Cache(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return MergeResult{}, ctx.Err()
			}
			s.logger.Warn(map[string]any{"server_id": id, "server_name": n, "error": err}, "merge_cache_read_failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s cache unavailable: %v", n, err))
			res.Stale = append(res.Stale, id)
			continue
		}
		if !cache.Synced() {
			s.logger.Warn(map[string]any{"server_id": id, "server_name": n}, "merge_skip_unsynced")
			res.Warnings = append(res.Warnings, staleWarning(n))
			res.Stale = append(res.Stale, id)
			continue
		}
		res.Sources = append(res.Sources, id)
		lists[id] = cache.Rules
		ordered = append(ordered, cache.Rules)
	}

	res.Rules = rules.Merge(ordered...)
	res.Counts = rules.Count(res.Rules)
	for _, id := range res.Sources {
		res.Added[id] = len(ruleindex.New(rules.Dedup(lists[id])).Missing(res.Rules))
	}

	s.metrics.ObserveMerge(len(res.Rules), len(res.Stale))
	s.logger.Info(map[string]any{
		"sources":  len(res.Sources),
		"stale":    len(res.Stale),
		"rules":    res.Counts.Total,
		"allow":    res.Counts.Allow,
		"block":    res.Counts.Block,
		"disabled": res.Counts.Disabled,
	}, "merge_complete")
	return res, nil
}

// ApplyMergedRules writes rules to each server in order, one at a time. A
// failed write is recorded and the remaining servers are still written.
// After each successful write the service waits for the write delay before
// the next server. If ctx ends, no further writes are issued and the counts
// so far are returned with ctx's error.
func (s *Service) ApplyMergedRules(ctx context.Context, serverIDs []string, merged []string) (ApplyResult, error) {
	names, err := s.serverNames(ctx)
	if err != nil {
		return ApplyResult{}, err
	}

	var res ApplyResult
	ids := uniqueIDs(serverIDs)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n := name(names, id)
		if err := s.backend.SetRules(ctx, id, merged); err != nil {
			res.FailCount++
			res.Failures = append(res.Failures, ServerFailure{ServerID: id, Name: n, Err: err})
			s.metrics.ObserveWrite(metrics.OpMerge, false)
			s.logger.Warn(map[string]any{"server_id": id, "server_name": n, "error": err}, "merge_write_failed")
			continue
		}
		res.SuccessCount++
		s.metrics.ObserveWrite(metrics.OpMerge, true)
		s.logger.Info(map[string]any{"server_id": id, "server_name": n, "rules": len(merged)}, "merge_write_ok")

		if i < len(ids)-1 {
			if err := s.wait(ctx); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// SyncGroup merges the group's members and writes the result back to every
// member, then stores the merged snapshot on the group when at least one
// write succeeded.
func (s *Service) SyncGroup(ctx context.Context, groupID string) (SyncResult, error) {
	g, err := s.backend.Group(ctx, groupID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load group %s: %w", groupID, err)
	}
	if g == nil {
		return SyncResult{}, fmt.Errorf("%w: %s", domain.ErrGroupNotFound, groupID)
	}
	if !g.SyncsCustomRules() {
		return SyncResult{}, fmt.Errorf("%w: %s", domain.ErrCustomRulesSyncDisabled, groupID)
	}

	merged, err := s.MergeGroup(ctx, g.ServerIDs)
	if err != nil {
		return SyncResult{}, err
	}
	out := SyncResult{Merge: merged}
	if len(merged.Sources) == 0 {
		return out, fmt.Errorf("%w: %s", ErrNoSyncedServers, groupID)
	}

	out.Apply, err = s.ApplyMergedRules(ctx, g.ServerIDs, merged.Rules)
	if out.Apply.SuccessCount > 0 && s.snapshots != nil {
		// A canceled ctx must not stop recording what was already written.
		if serr := s.snapshots.SaveGroupRules(context.WithoutCancel(ctx), g.ID, merged.Rules); serr != nil {
			s.logger.Warn(map[string]any{"group_id": g.ID, "error": serr}, "group_snapshot_failed")
		}
	}
	if err != nil {
		return out, err
	}

	s.logger.Info(map[string]any{
		"group_id": g.ID,
		"outcome":  out.Apply.Outcome().String(),
		"success":  out.Apply.SuccessCount,
		"failed":   out.Apply.FailCount,
	}, "group_sync_complete")
	return out, nil
}
