package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goodtune/tvwarden/internal/apps"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
)

// ErrUnavailable is returned by Dial when no server answers on the socket.
var ErrUnavailable = errors.New("control: server not running")

// Client forwards requests to a running server.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Service = (*Client)(nil)

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: hc}
}

// Dial connects to the server's control socket. The error wraps
// ErrUnavailable when nothing answers.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	c := NewClient("http://tvwarden", &http.Client{Transport: transport, Timeout: time.Minute})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) RequestLaunch(ctx context.Context, pkg string) (policy.LaunchResult, error) {
	var reply launchReply
	if err := c.do(ctx, http.MethodPost, "/launch/"+url.PathEscape(pkg), nil, &reply); err != nil {
		return nil, err
	}
	return reply.decode()
}

func (c *Client) CheckLaunch(ctx context.Context, pkg string, at time.Time) (policy.LaunchResult, error) {
	path := "/launch/" + url.PathEscape(pkg) + "?at=" + url.QueryEscape(at.Format(time.RFC3339))
	var reply launchReply
	if err := c.do(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return nil, err
	}
	return reply.decode()
}

func (c *Client) PreviewMonitor(ctx context.Context) (*MonitorPreview, error) {
	var reply previewReply
	if err := c.do(ctx, http.MethodGet, "/monitor", nil, &reply); err != nil {
		return nil, err
	}
	return reply.decode()
}

func (c *Client) Apps(ctx context.Context) ([]apps.Status, error) {
	var statuses []apps.Status
	if err := c.do(ctx, http.MethodGet, "/apps", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (c *Client) App(ctx context.Context, pkg string) (*apps.Status, error) {
	var status apps.Status
	if err := c.do(ctx, http.MethodGet, "/apps/"+url.PathEscape(pkg), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) SetAllowed(ctx context.Context, pkg, displayName string, allowed bool) (*storage.App, error) {
	var app storage.App
	req := allowRequest{Allowed: allowed, DisplayName: displayName}
	if err := c.do(ctx, http.MethodPut, "/apps/"+url.PathEscape(pkg)+"/allowed", req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) SetLimit(ctx context.Context, rule storage.TimeLimit) error {
	return c.do(ctx, http.MethodPut, "/apps/"+url.PathEscape(rule.PackageName)+"/limit", rule, nil)
}

func (c *Client) ClearLimit(ctx context.Context, pkg string) error {
	return c.do(ctx, http.MethodDelete, "/apps/"+url.PathEscape(pkg)+"/limit", nil, nil)
}

func (c *Client) TodayUsage(ctx context.Context) (*UsageReport, error) {
	var report UsageReport
	if err := c.do(ctx, http.MethodGet, "/usage/today", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
			e.Message = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", e.Message, storage.ErrNotFound)
		case http.StatusBadRequest:
			return errors.New(e.Message)
		default:
			return fmt.Errorf("control: %s", e.Message)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
