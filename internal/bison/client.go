// Package bison is the HTTP client for the Email Bison sending platform.
// One Client is created per platform instance (base URL plus super-admin
// key). The super-admin session is shared across workspaces on an instance,
// so the client serializes workspace pulls behind a mutex and settles the
// session after each switch-workspace call before trusting its context.
package bison

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrSwitchFailed marks a failed switch-workspace call. Callers distinguish
// it from pagination errors when reporting per-workspace outcomes.
var ErrSwitchFailed = errors.New("workspace switch failed")

// Limiter paces outbound requests. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// SleepFunc blocks for d or until ctx is done. Injected so tests can run
// session settling without real waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client talks to one Email Bison instance.
type Client struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	pages    Limiter
	sleep    SleepFunc
	settle   time.Duration
	pageSize int

	// mu guards the shared super-admin session: switch-workspace changes
	// server-side context for every request made with the shared key.
	mu sync.Mutex
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

// WithLimiter replaces the page-request limiter.
func WithLimiter(l Limiter) Option { return func(c *Client) { c.pages = l } }

// WithSleep replaces the settle sleeper.
func WithSleep(s SleepFunc) Option { return func(c *Client) { c.sleep = s } }

// WithSettle sets the post-switch settle delay.
func WithSettle(d time.Duration) Option { return func(c *Client) { c.settle = d } }

// WithPageSize sets the per-request page size for replies.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient builds a client for one instance. apiKey is the shared
// super-admin credential; workspace-scoped keys are passed per call.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		pages:    rate.NewLimiter(rate.Limit(5), 1),
		sleep:    sleepCtx,
		settle:   3 * time.Second,
		pageSize: 100,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SwitchWorkspace points the shared session at the given workspace (team).
// The switch propagates asynchronously on the platform side; callers must
// settle before issuing reads. InterestedReplies does both.
func (c *Client) SwitchWorkspace(ctx context.Context, teamID int64) error {
	body, err := json.Marshal(switchWorkspaceRequest{TeamID: teamID})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/workspaces/v1.1/switch-workspace", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSwitchFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrSwitchFailed, resp.StatusCode)
	}
	return nil
}

// InterestedReplies pulls every interested reply for one workspace.
//
// With an empty workspaceKey the shared session is switched to teamID and
// settled first; with a workspace-scoped key the switch is skipped entirely
// and the key is sent as-is. Pagination walks pages until meta.last_page.
// Any page failure, the first included, stops pagination and returns the
// accumulation so far with Partial set; only a failed switch or a canceled
// context is an error.
func (c *Client) InterestedReplies(ctx context.Context, teamID int64, workspaceKey string) (*RepliesResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := workspaceKey
	if key == "" {
		key = c.apiKey
		if err := c.SwitchWorkspace(ctx, teamID); err != nil {
			return nil, err
		}
		if err := c.sleep(ctx, c.settle); err != nil {
			return nil, err
		}
	}

	res := &RepliesResult{}
	for page := 1; ; page++ {
		if err := c.pages.Wait(ctx); err != nil {
			return nil, err
		}

		pg, err := c.fetchRepliesPage(ctx, key, page)
		if err != nil {
			res.Partial = true
			return res, nil
		}

		res.Replies = append(res.Replies, pg.Data...)
		res.Pages = page
		if page >= pg.Meta.LastPage {
			return res, nil
		}
	}
}

func (c *Client) fetchRepliesPage(ctx context.Context, key string, page int) (*repliesPage, error) {
	url := fmt.Sprintf("%s/replies?interested=1&per_page=%d&page=%d", c.baseURL, c.pageSize, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, key)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch replies page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch replies page %d: status %d", page, resp.StatusCode)
	}

	var pg repliesPage
	if err := json.NewDecoder(resp.Body).Decode(&pg); err != nil {
		return nil, fmt.Errorf("decode replies page %d: %w", page, err)
	}
	return &pg, nil
}

func (c *Client) setHeaders(req *http.Request, key string) {
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")
}
