// Package adguard talks to a filtering server's HTTP control API.
package adguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haukened/rulesync/internal/rulesync/common/log"
	"github.com/haukened/rulesync/internal/rulesync/domain"
)

const (
	pathFilteringStatus = "/control/filtering/status"
	pathSetRules        = "/control/filtering/set_rules"

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Error message constants for consistent error handling
const (
	errBuildRequest = "build request: %w"
	errRequest      = "%s %s: %w"
	errStatus       = "%s %s: unexpected status %d: %s"
	errDecode       = "decode %s: %w"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(errStatus, e.Method, e.Path, e.Code, e.Body)
}

// Client issues control API requests. One Client serves every server; the
// target is passed on each call.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  log.Logger
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Logger  log.Logger
	// HTTPClient may be injected for testing.
	HTTPClient *http.Client
}

// NewClient creates a Client. A zero timeout defaults to 10 seconds.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{http: opts.HTTPClient, timeout: opts.Timeout, logger: opts.Logger}
}

type filteringStatus struct {
	Enabled   bool     `json:"enabled"`
	Interval  int      `json:"interval"`
	UserRules []string `json:"user_rules"`
}

type setRulesRequest struct {
	Rules []string `json:"rules"`
}

// UserRules returns the server's custom rule list. A server without custom
// rules yields an empty, non-nil slice.
func (c *Client) UserRules(ctx context.Context, srv domain.Server) ([]string, error) {
	var st filteringStatus
	if err := c.do(ctx, srv, http.MethodGet, pathFilteringStatus, nil, &st); err != nil {
		return nil, err
	}
	if st.UserRules == nil {
		st.UserRules = []string{}
	}
	return st.UserRules, nil
}

// SetRules replaces the server's custom rule list with rules.
func (c *Client) SetRules(ctx context.Context, srv domain.Server, rules []string) error {
	if rules == nil {
		rules = []string{}
	}
	return c.do(ctx, srv, http.MethodPost, pathSetRules, setRulesRequest{Rules: rules}, nil)
}

func (c *Client) do(ctx context.Context, srv domain.Server, method, path string, in, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint, err := url.JoinPath(srv.URL, path)
	if err != nil {
		return fmt.Errorf(errBuildRequest, err)
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf(errBuildRequest, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf(errBuildRequest, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if srv.Username != "" || srv.Password != "" {
		req.SetBasicAuth(srv.Username, srv.Password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf(errRequest, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug(map[string]any{
		"server_id": srv.ID,
		"method":    method,
		"path":      path,
		"status":    resp.StatusCode,
		"elapsed":   time.Since(start).String(),
	}, "control_api_request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf(errDecode, path, err)
	}
	return nil
}
