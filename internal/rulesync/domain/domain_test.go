package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Validate(t *testing.T) {
	valid := Server{ID: "a", Name: "Home", URL: "http://192.168.1.2:3000"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		srv  Server
		want string
	}{
		{"missing id", Server{Name: "x", URL: "http://h"}, "id must not be empty"},
		{"missing name", Server{ID: "a", URL: "http://h"}, "name must not be empty"},
		{"bad scheme", Server{ID: "a", Name: "x", URL: "ftp://h"}, "scheme"},
		{"no host", Server{ID: "a", Name: "x", URL: "http://"}, "host"},
		{"unparseable", Server{ID: "a", Name: "x", URL: "http://[::1"}, "invalid url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.srv.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestServer_DisplayName(t *testing.T) {
	assert.Equal(t, "Home", Server{ID: "a", Name: "Home"}.DisplayName())
	assert.Equal(t, "a", Server{ID: "a"}.DisplayName())
}

func TestServerCache_Synced(t *testing.T) {
	var nilCache *ServerCache
	assert.False(t, nilCache.Synced())
	assert.False(t, (&ServerCache{}).Synced())
	assert.True(t, (&ServerCache{Rules: []string{}}).Synced())
	assert.True(t, (&ServerCache{Rules: []string{"||a.com^"}}).Synced())
}

func TestGroup(t *testing.T) {
	g := Group{ID: "g", Name: "Home", ServerIDs: []string{"a", "b"}}
	require.NoError(t, g.Validate())
	assert.True(t, g.Has("a"))
	assert.False(t, g.Has("c"))
	assert.True(t, g.SyncsCustomRules())

	g.SyncSettings = &SyncSettings{Blocklists: true}
	assert.False(t, g.SyncsCustomRules())
	g.SyncSettings.CustomRules = true
	assert.True(t, g.SyncsCustomRules())

	assert.Error(t, Group{Name: "x"}.Validate())
	assert.Error(t, Group{ID: "x"}.Validate())
}

func TestParseTarget(t *testing.T) {
	got, err := ParseTarget("group:home")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: TargetGroup, ID: "home"}, got)
	assert.Equal(t, "group:home", got.String())

	got, err = ParseTarget("server:a:b")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: TargetServer, ID: "a:b"}, got)

	_, err = ParseTarget("")
	assert.True(t, errors.Is(err, ErrEmptyTarget))

	_, err = ParseTarget("client:x")
	assert.True(t, errors.Is(err, ErrUnknownTargetType))

	_, err = ParseTarget("nocolon")
	assert.True(t, errors.Is(err, ErrUnknownTargetType))

	_, err = ParseTarget("server:")
	assert.True(t, errors.Is(err, ErrEmptyTarget))
}
