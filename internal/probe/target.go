package probe

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// TargetConfig describes the service under test.
type TargetConfig struct {
	BaseURL        string
	HealthPath     string
	OpenAPIPath    string
	WebSocketPath  string
	RequestTimeout time.Duration
}

// Target is the read-only handle probes run against. It is built once per
// run and shared by all probes of that run.
type Target struct {
	baseURL *url.URL
	cfg     TargetConfig
	client  *http.Client
	dialer  *websocket.Dialer
}

// NewTarget builds a handle for cfg. Every network operation is bounded by
// cfg.RequestTimeout.
func NewTarget(cfg TargetConfig) (*Target, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("target url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api/status"
	}
	if cfg.OpenAPIPath == "" {
		cfg.OpenAPIPath = "/openapi.json"
	}
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = "/ws?projectId=healthcheck"
	}
	return &Target{
		baseURL: u,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.RequestTimeout,
		},
	}, nil
}

// URL resolves path against the base URL.
func (t *Target) URL(path string) string {
	return t.baseURL.String() + path
}

// WebSocketURL resolves path against the base URL with a ws/wss scheme.
func (t *Target) WebSocketURL(path string) string {
	u := *t.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + path
}

// HTTPClient returns the shared client.
func (t *Target) HTTPClient() *http.Client { return t.client }

// Dialer returns the shared WebSocket dialer.
func (t *Target) Dialer() *websocket.Dialer { return t.dialer }

// Config returns the paths and timeout the handle was built with.
func (t *Target) Config() TargetConfig { return t.cfg }
