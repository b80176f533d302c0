package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Server identifies a remote filtering instance reachable over its control API.
type Server struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Validate checks the Server for required fields and a usable base URL.
func (s Server) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("server id must not be empty")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("server %s: name must not be empty", s.ID)
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("server %s: invalid url: %w", s.ID, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server %s: url scheme must be http or https, got %q", s.ID, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server %s: url must include a host", s.ID)
	}
	return nil
}

// DisplayName returns the name, falling back to the id.
func (s Server) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// ServerCache is the locally cached state of one server. A nil Rules slice
// means the server has never been synced; an empty non-nil slice means it
// was synced and has no custom rules.
type ServerCache struct {
	Rules      []string  `json:"rules"`
	Blocklists []string  `json:"blocklists,omitempty"`
	Rewrites   []string  `json:"rewrites,omitempty"`
	Clients    []string  `json:"clients,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Synced reports whether the cache holds a rule list.
func (c *ServerCache) Synced() bool {
	return c != nil && c.Rules != nil
}
