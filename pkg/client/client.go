package client

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

	"github.com/kailas-cloud/cvgen/internal/version"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = time.Second
	maxErrorBody        = 64 << 10
)

// Client talks to a cvgen server over HTTP.
type Client struct {
	baseURL      *url.URL
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	obs          *observer
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("cvgen: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("cvgen: base url must be an absolute http(s) URL, got %q", baseURL)
	}

	cfg := &clientConfig{pollInterval: defaultPollInterval}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:      u,
		apiKey:       cfg.apiKey,
		http:         cfg.httpClient,
		pollInterval: cfg.pollInterval,
		obs:          obs,
	}, nil
}

// TriggerRun starts a probe session. Probes run after it returns.
func (c *Client) TriggerRun(ctx context.Context) (RunTicket, error) {
	start := time.Now()
	var t RunTicket
	err := c.do(ctx, http.MethodPost, "/api/tests/run", nil, &t)
	c.obs.observe("trigger_run", start, err)
	return t, err
}

// Session returns the results stored so far for a session.
func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	start := time.Now()
	var s Session
	err := c.do(ctx, http.MethodGet, "/api/tests/session/"+url.PathEscape(id), nil, &s)
	c.obs.observe("session", start, err)
	return s, err
}

// Latest returns the session of the most recently stored result.
// Returns ErrNotFound when nothing has run yet.
func (c *Client) Latest(ctx context.Context) (Session, error) {
	start := time.Now()
	var s Session
	err := c.do(ctx, http.MethodGet, "/api/tests/latest", nil, &s)
	c.obs.observe("latest", start, err)
	return s, err
}

// Definitions returns the active probe catalog.
func (c *Client) Definitions(ctx context.Context) ([]Definition, error) {
	start := time.Now()
	var body struct {
		Definitions []Definition `json:"definitions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/tests/defs", nil, &body)
	c.obs.observe("definitions", start, err)
	return body.Definitions, err
}

// SetActive includes or excludes a definition from future runs.
func (c *Client) SetActive(ctx context.Context, id string, active bool) (Definition, error) {
	start := time.Now()
	var d Definition
	req := struct {
		Active bool `json:"active"`
	}{Active: active}
	err := c.do(ctx, http.MethodPatch, "/api/tests/defs/"+url.PathEscape(id), req, &d)
	c.obs.observe("set_active", start, err)
	return d, err
}

// Health returns the aggregated health signal.
func (c *Client) Health(ctx context.Context) (Health, error) {
	start := time.Now()
	var h Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &h)
	c.obs.observe("health", start, err)
	return h, err
}

// WaitForSession polls until every scheduled probe has a result or ctx is done.
// On ctx expiry it returns the last snapshot together with the context error.
func (c *Client) WaitForSession(ctx context.Context, id string) (Session, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		s, err := c.Session(ctx, id)
		if err != nil {
			return s, err
		}
		if s.Complete() {
			return s, nil
		}
		c.obs.poll(id, s.Received, s.Scheduled)

		select {
		case <-ctx.Done():
			return s, fmt.Errorf("cvgen: session %s still %s (%d/%d): %w",
				id, s.State, s.Received, s.Scheduled, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("cvgen: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("cvgen: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("client"))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cvgen: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cvgen: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		apiErr.Code, apiErr.Message = body.Code, body.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(raw))
	switch resp.StatusCode {
	case http.StatusNotFound:
		apiErr.Code = "not_found"
	case http.StatusUnauthorized:
		apiErr.Code = "unauthorized"
	default:
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return apiErr
}
