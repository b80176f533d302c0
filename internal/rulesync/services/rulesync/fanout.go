package rulesync

import (
	"context"
	"fmt"
	"slices"

	"github.com/haukened/rulesync/internal/rulesync/common/metrics"
	"github.com/haukened/rulesync/internal/rulesync/domain"
	"github.com/haukened/rulesync/internal/rulesync/repos/ruleindex"
	"github.com/haukened/rulesync/internal/rulesync/services/rules"
)

// AddRuleToTarget appends rule to every server the target resolves to,
// skipping servers that already hold the exact rule string. target is
// "group:<id>" or "server:<id>"; a server that belongs to a group resolves
// to the whole group so its members stay consistent.
//
// Input and resolution errors are returned before any server is touched.
// Per-server failures are counted in the result instead.
func (s *Service) AddRuleToTarget(ctx context.Context, target, rule string) (AddResult, error) {
	if target == "" {
		return AddResult{}, domain.ErrEmptyTarget
	}
	if rule == "" {
		return AddResult{}, domain.ErrEmptyRule
	}
	t, err := domain.ParseTarget(target)
	if err != nil {
		return AddResult{}, err
	}

	ids, err := s.resolveTarget(ctx, t)
	if err != nil {
		return AddResult{}, err
	}
	names, err := s.serverNames(ctx)
	if err != nil {
		return AddResult{}, err
	}

	res := AddResult{Total: len(ids), DomainConflicts: make(map[string][]string)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n := name(names, id)
		added, conflicts, err := s.addToServer(ctx, id, rule)
		if len(conflicts) > 0 {
			res.DomainConflicts[id] = conflicts
		}
		switch {
		case err != nil:
			res.Failed++
			res.Failures = append(res.Failures, ServerFailure{ServerID: id, Name: n, Err: err})
			s.metrics.ObserveWrite(metrics.OpAdd, false)
			s.logger.Warn(map[string]any{"server_id": id, "server_name": n, "error": err}, "add_rule_failed")
		case !added:
			res.Duplicate++
			s.metrics.ObserveDuplicate()
			s.logger.Debug(map[string]any{"server_id": id, "rule": rule}, "add_rule_duplicate")
		default:
			res.Success++
			s.metrics.ObserveWrite(metrics.OpAdd, true)
			s.logger.Info(map[string]any{"server_id": id, "server_name": n, "rule": rule}, "add_rule_ok")
		}
	}
	return res, nil
}

// addToServer reads the live rule list of one server and writes it back with
// rule appended. added is false when the rule was already present.
func (s *Service) addToServer(ctx context.Context, id, rule string) (added bool, conflicts []string, err error) {
	current, err := s.backend.UserRules(ctx, id)
	if err != nil {
		return false, nil, fmt.Errorf("read rules: %w", err)
	}
	if ruleindex.New(current).Contains(rule) {
		return false, nil, nil
	}
	conflicts = rules.Conflicts(current, rule)

	updated := append(slices.Clip(current), rule)
	if err := s.backend.SetRules(ctx, id, updated); err != nil {
		return false, conflicts, fmt.Errorf("write rules: %w", err)
	}
	return true, conflicts, nil
}

// resolveTarget maps a target to the concrete server ids to update.
func (s *Service) resolveTarget(ctx context.Context, t domain.Target) ([]string, error) {
	switch t.Kind {
	case domain.TargetGroup:
		g, err := s.backend.Group(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("load group %s: %w", t.ID, err)
		}
		if g == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrGroupNotFound, t.ID)
		}
		return uniqueIDs(g.ServerIDs), nil

	case domain.TargetServer:
		servers, err := s.backend.Servers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list servers: %w", err)
		}
		if !slices.ContainsFunc(servers, func(srv domain.Server) bool { return srv.ID == t.ID }) {
			return nil, fmt.Errorf("%w: %s", domain.ErrServerNotFound, t.ID)
		}
		groups, err := s.backend.Groups(ctx)
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		// A server should be in at most one group; the first listed wins.
		for _, g := range groups {
			if g.Has(t.ID) {
				s.logger.Debug(map[string]any{"server_id": t.ID, "group_id": g.ID}, "add_rule_redirect_to_group")
				return uniqueIDs(g.ServerIDs), nil
			}
		}
		return []string{t.ID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTargetType, t.Kind)
	}
}
