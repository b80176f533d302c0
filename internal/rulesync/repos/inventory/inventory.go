// Package inventory reads a YAML description of servers and groups and
// loads it into a store.
package inventory

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haukened/rulesync/internal/rulesync/common/log"
	"github.com/haukened/rulesync/internal/rulesync/domain"
)

// Inventory is the on-disk document:
//
//	servers:
//	  - id: home
//	    name: Home
//	    url: http://192.168.1.2:3000
//	groups:
//	  - id: lan
//	    name: LAN
//	    servers: [home, backup]
//	    sync: {custom_rules: true}
type Inventory struct {
	Servers []domain.Server `yaml:"servers"`
	Groups  []domain.Group  `yaml:"groups"`
}

// Writer is the subset of the store an import needs.
type Writer interface {
	PutServer(ctx context.Context, s domain.Server) error
	PutGroup(ctx context.Context, g domain.Group) error
}

// Decode parses an inventory document.
func Decode(r io.Reader) (*Inventory, error) {
	var inv Inventory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	return &inv, nil
}

// Load reads and decodes the inventory file at path.
func Load(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Validate checks every entry. Hard errors (invalid fields, duplicate ids,
// unknown members) are returned as an error. A server listed in more than
// one group is tolerated and reported as a warning.
func (inv *Inventory) Validate() (warnings []string, err error) {
	servers := make(map[string]struct{}, len(inv.Servers))
	for _, s := range inv.Servers {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := servers[s.ID]; dup {
			return nil, fmt.Errorf("duplicate server id %q", s.ID)
		}
		servers[s.ID] = struct{}{}
	}

	groups := make(map[string]struct{}, len(inv.Groups))
	owner := make(map[string]string)
	for _, g := range inv.Groups {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := groups[g.ID]; dup {
			return nil, fmt.Errorf("duplicate group id %q", g.ID)
		}
		groups[g.ID] = struct{}{}
		for _, id := range g.ServerIDs {
			if _, ok := servers[id]; !ok {
				return nil, fmt.Errorf("group %s: unknown server %q", g.ID, id)
			}
			if prev, taken := owner[id]; taken {
				warnings = append(warnings, fmt.Sprintf("server %s is in groups %s and %s", id, prev, g.ID))
				continue
			}
			owner[id] = g.ID
		}
	}
	return warnings, nil
}

// Import validates inv and writes it to w, servers first.
func Import(ctx context.Context, w Writer, inv *Inventory, logger log.Logger) (warnings []string, err error) {
	warnings, err = inv.Validate()
	if err != nil {
		return nil, err
	}
	for _, msg := range warnings {
		logger.Warn(map[string]any{"warning": msg}, "inventory_overlap")
	}
	for _, s := range inv.Servers {
		if err := w.PutServer(ctx, s); err != nil {
			return warnings, fmt.Errorf("import server %s: %w", s.ID, err)
		}
	}
	for _, g := range inv.Groups {
		if err := w.PutGroup(ctx, g); err != nil {
			return warnings, fmt.Errorf("import group %s: %w", g.ID, err)
		}
	}
	logger.Info(map[string]any{"servers": len(inv.Servers), "groups": len(inv.Groups)}, "inventory_imported")
	return warnings, nil
}
