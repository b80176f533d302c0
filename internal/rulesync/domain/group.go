package domain

import (
	"fmt"
	"slices"
	"strings"
)

// SyncSettings selects which categories are kept identical across a group.
// Only CustomRules is acted on by the merge engine.
type SyncSettings struct {
	CustomRules bool `json:"custom_rules" yaml:"custom_rules"`
	Blocklists  bool `json:"blocklists" yaml:"blocklists"`
	Rewrites    bool `json:"rewrites" yaml:"rewrites"`
	Clients     bool `json:"clients" yaml:"clients"`
}

// Group is a named set of servers whose custom rules are kept merged.
type Group struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	ServerIDs []string `json:"server_ids" yaml:"servers"`
	// Rules is the last merged snapshot, nil if the group was never synced.
	Rules        []string      `json:"rules,omitempty" yaml:"-"`
	SyncSettings *SyncSettings `json:"sync_settings,omitempty" yaml:"sync,omitempty"`
}

// Validate checks the Group for required fields.
func (g Group) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("group id must not be empty")
	}
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("group %s: name must not be empty", g.ID)
	}
	return nil
}

// Has reports whether serverID is a member of the group.
func (g Group) Has(serverID string) bool {
	return slices.Contains(g.ServerIDs, serverID)
}

// SyncsCustomRules reports whether custom rules are kept in sync. Groups
// without explicit settings sync custom rules.
func (g Group) SyncsCustomRules() bool {
	return g.SyncSettings == nil || g.SyncSettings.CustomRules
}
