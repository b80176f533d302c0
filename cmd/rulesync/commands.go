package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/haukened/rulesync/internal/rulesync/common/utils"
	"github.com/haukened/rulesync/internal/rulesync/domain"
	"github.com/haukened/rulesync/internal/rulesync/repos/inventory"
	"github.com/haukened/rulesync/internal/rulesync/repos/ruleindex"
	"github.com/haukened/rulesync/internal/rulesync/services/hostname"
	"github.com/haukened/rulesync/internal/rulesync/services/rules"
	"github.com/haukened/rulesync/internal/rulesync/services/rulesync"
)

type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, app *Application, args []string, out io.Writer) error
}

var commands = map[string]command{
	"import":  {"import <file>", "load servers and groups from a YAML inventory", runImport},
	"servers": {"servers", "list servers and their cache state", runServers},
	"groups":  {"groups", "list groups and their members", runGroups},
	"refresh": {"refresh [server-id]", "pull live rules into the local cache", runRefresh},
	"merge":   {"merge <group-id>", "show the merged rule set of a group without writing", runMerge},
	"sync":    {"sync <group-id>", "merge a group and write the result to every member", runSync},
	"add":     {"add <target> <input> [-allow] [-important] [-apex]", "add one domain rule to a group or server", runAdd},
	"count":   {"count <server-id> [-type allow|block|disabled]", "count cached rules by type, optionally listing one type", runCount},
	"poll":    {"poll", "refresh every server on an interval until interrupted", runPoll},
	"remove":  {"remove <server:id|group:id>", "delete a server (and its group memberships) or a group", runRemove},
	"stats":   {"stats", "show store and cache counters", runStats},
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s <command> [args]\n\ncommands:\n", appName)
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", commands[n].usage, commands[n].summary)
	}
	_ = tw.Flush()
}

// parseArgs parses flags wherever they appear among the positional
// arguments and checks the positional count.
func parseArgs(fs *flag.FlagSet, args []string, minPos, maxPos int) ([]string, error) {
	fs.SetOutput(io.Discard)
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
	if len(pos) < minPos || len(pos) > maxPos {
		return nil, fmt.Errorf("%w: %s: wrong number of arguments", errUsage, fs.Name())
	}
	return pos, nil
}

func runImport(ctx context.Context, app *Application, args []string, out io.Writer) error {
	pos, err := parseArgs(flag.NewFlagSet("import", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}
	inv, err := inventory.Load(pos[0])
	if err != nil {
		return err
	}
	warnings, err := inventory.Import(ctx, app.store, inv, app.logger)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	fmt.Fprintf(out, "Imported %d servers, %d groups\n", len(inv.Servers), len(inv.Groups))
	return nil
}

func runServers(ctx context.Context, app *Application, args []string, out io.Writer) error {
	if _, err := parseArgs(flag.NewFlagSet("servers", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}
	servers, err := app.store.Servers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURL\tRULES\tUPDATED")
	for _, s := range servers {
		c, err := app.caches.Cache(ctx, s.ID)
		if err != nil {
			return err
		}
		rulesCol, updated := "not synced", "-"
		if c.Synced() {
			rulesCol = fmt.Sprint(len(c.Rules))
			updated = c.UpdatedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.DisplayName(), s.URL, rulesCol, updated)
	}
	return tw.Flush()
}

func runGroups(ctx context.Context, app *Application, args []string, out io.Writer) error {
	if _, err := parseArgs(flag.NewFlagSet("groups", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}
	groups, err := app.store.Groups(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSERVERS\tMERGED")
	for _, g := range groups {
		merged := "-"
		if g.Rules != nil {
			merged = fmt.Sprint(len(g.Rules))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, g.Name, strings.Join(g.ServerIDs, ","), merged)
	}
	return tw.Flush()
}

func runRefresh(ctx context.Context, app *Application, args []string, out io.Writer) error {
	pos, err := parseArgs(flag.NewFlagSet("refresh", flag.ContinueOnError), args, 0, 1)
	if err != nil {
		return err
	}
	if len(pos) == 1 {
		if err := app.service.RefreshServer(ctx, pos[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Refreshed %s\n", pos[0])
		return nil
	}

	res, err := app.service.RefreshAll(ctx)
	if err != nil {
		return err
	}
	printFailures(out, res.Failures)
	fmt.Fprintf(out, "Refreshed %d of %d servers\n", res.Refreshed, res.Refreshed+len(res.Failures))
	if res.Refreshed == 0 && len(res.Failures) > 0 {
		return res.Err()
	}
	return nil
}

func runMerge(ctx context.Context, app *Application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	showRules := fs.Bool("rules", false, "print the merged rules")
	pos, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}
	g, err := app.store.Group(ctx, pos[0])
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("%w: %s", domain.ErrGroupNotFound, pos[0])
	}
	res, err := app.service.MergeGroup(ctx, g.ServerIDs)
	if err != nil {
		return err
	}
	printMerge(out, res)
	if *showRules {
		for _, r := range res.Rules {
			fmt.Fprintln(out, r)
		}
	}
	return nil
}

func runSync(ctx context.Context, app *Application, args []string, out io.Writer) error {
	pos, err := parseArgs(flag.NewFlagSet("sync", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}
	res, err := app.service.SyncGroup(ctx, pos[0])
	if err != nil {
		return err
	}
	printMerge(out, res.Merge)
	printFailures(out, res.Apply.Failures)
	fmt.Fprintln(out, res.Apply.Message())
	if res.Apply.Outcome() == rulesync.OutcomeFailure {
		return res.Apply.Err()
	}
	return nil
}

func runAdd(ctx context.Context, app *Application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	allow := fs.Bool("allow", false, "add an allow (@@) rule instead of a block rule")
	important := fs.Bool("important", false, "append the $important modifier")
	apex := fs.Bool("apex", false, "target the registrable domain instead of the exact host")
	pos, err := parseArgs(fs, args, 2, 2)
	if err != nil {
		return err
	}

	parsed := hostname.Parse(pos[1])
	if !parsed.OK() {
		return fmt.Errorf("%s: %q", parsed.Error, pos[1])
	}
	host := parsed.Hostname
	if *apex {
		host = utils.ApexDomain(host)
	}
	rule := rules.Generate(host, rules.GenerateOptions{Allow: *allow, Important: *important})

	res, err := app.service.AddRuleToTarget(ctx, pos[0], rule)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Rule: %s\n", rule)
	ids := make([]string, 0, len(res.DomainConflicts))
	for id := range res.DomainConflicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "note: %s already has %s\n", id, strings.Join(res.DomainConflicts[id], ", "))
	}
	printFailures(out, res.Failures)
	fmt.Fprintln(out, res.Message())
	if res.Outcome() == rulesync.OutcomeFailure {
		return res.Err()
	}
	return nil
}

func runCount(ctx context.Context, app *Application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	typ := fs.String("type", "", "list the cached rules of this type")
	pos, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}
	var list *domain.RuleType
	if *typ != "" {
		t, err := domain.ParseRuleType(*typ)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		list = &t
	}

	srv, err := app.store.Server(ctx, pos[0])
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("%w: %s", domain.ErrServerNotFound, pos[0])
	}
	c, err := app.caches.Cache(ctx, srv.ID)
	if err != nil {
		return err
	}
	if !c.Synced() {
		fmt.Fprintf(out, "%s not synced yet, run refresh first\n", srv.DisplayName())
		return nil
	}
	n := rules.Count(c.Rules)
	unique := ruleindex.New(c.Rules).Len()
	fmt.Fprintf(out, "%s: %d allow, %d block, %d disabled, %d total (%d unique)\n",
		srv.DisplayName(), n.Allow, n.Block, n.Disabled, n.Total, unique)
	if list != nil {
		for _, r := range c.Rules {
			if rules.Classify(r) == *list {
				fmt.Fprintf(out, "  %s\t%s\n", *list, r)
			}
		}
	}
	return nil
}

func runRemove(ctx context.Context, app *Application, args []string, out io.Writer) error {
	pos, err := parseArgs(flag.NewFlagSet("remove", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}
	t, err := domain.ParseTarget(pos[0])
	if err != nil {
		return err
	}

	switch t.Kind {
	case domain.TargetGroup:
		g, err := app.store.Group(ctx, t.ID)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("%w: %s", domain.ErrGroupNotFound, t.ID)
		}
		if err := app.store.DeleteGroup(ctx, t.ID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed group %s\n", g.Name)
		return nil

	default:
		srv, err := app.store.Server(ctx, t.ID)
		if err != nil {
			return err
		}
		if srv == nil {
			return fmt.Errorf("%w: %s", domain.ErrServerNotFound, t.ID)
		}
		groups, err := app.store.Groups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if !g.Has(t.ID) {
				continue
			}
			g.ServerIDs = slices.DeleteFunc(slices.Clone(g.ServerIDs), func(id string) bool { return id == t.ID })
			if err := app.store.PutGroup(ctx, g); err != nil {
				return fmt.Errorf("update group %s: %w", g.ID, err)
			}
			fmt.Fprintf(out, "Removed %s from group %s\n", srv.DisplayName(), g.Name)
		}
		if err := app.store.DeleteServer(ctx, t.ID); err != nil {
			return err
		}
		app.caches.Invalidate(t.ID)
		fmt.Fprintf(out, "Removed server %s\n", srv.DisplayName())
		return nil
	}
}

func runStats(ctx context.Context, app *Application, args []string, out io.Writer) error {
	if _, err := parseArgs(flag.NewFlagSet("stats", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}
	st := app.store.Stats()
	updated := "never"
	if st.UpdatedUnix > 0 {
		updated = time.Unix(st.UpdatedUnix, 0).UTC().Format("2006-01-02 15:04:05")
	}
	cs := app.caches.Stats()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "servers\t%d\n", st.Servers)
	fmt.Fprintf(tw, "groups\t%d\n", st.Groups)
	fmt.Fprintf(tw, "caches\t%d\n", st.Caches)
	fmt.Fprintf(tw, "last write\t%s\n", updated)
	fmt.Fprintf(tw, "cache hits/misses/evictions\t%d/%d/%d\n", cs.Hits, cs.Misses, cs.Evictions)
	fmt.Fprintf(tw, "cache entries\t%d\n", cs.Size)
	return tw.Flush()
}

func runPoll(ctx context.Context, app *Application, args []string, out io.Writer) error {
	if _, err := parseArgs(flag.NewFlagSet("poll", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}
	p, err := rulesync.NewPoller(app.service, app.config.RefreshInterval, func(res rulesync.RefreshResult, err error) {
		if err != nil {
			app.logger.Error(map[string]any{"error": err}, "Refresh cycle failed")
			return
		}
		fmt.Fprintf(out, "Refreshed %d of %d servers\n", res.Refreshed, res.Refreshed+len(res.Failures))
		if app.config.MetricsFile != "" {
			if merr := app.metrics.WriteTextfile(app.config.MetricsFile); merr != nil {
				app.logger.Warn(map[string]any{"error": merr}, "Failed to write metrics textfile")
			}
		}
	})
	if err != nil {
		return err
	}
	app.logger.Info(map[string]any{"interval": app.config.RefreshInterval}, "Polling started")
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	app.logger.Info(nil, "Polling stopped")
	return nil
}

func printMerge(out io.Writer, res rulesync.MergeResult) {
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	c := res.Counts
	fmt.Fprintf(out, "Merged %d rules from %d servers: %d allow, %d block, %d disabled\n",
		c.Total, len(res.Sources), c.Allow, c.Block, c.Disabled)
	for _, id := range res.Sources {
		fmt.Fprintf(out, "  %s: +%d\n", id, res.Added[id])
	}
}

func printFailures(out io.Writer, fs []rulesync.ServerFailure) {
	for _, f := range fs {
		fmt.Fprintf(out, "failed: %s: %v\n", f.Name, f.Err)
	}
}
