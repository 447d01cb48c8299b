package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	"github.com/kailas-cloud/cvgen/internal/version"
)

const (
	maxBodyBytes   = 1 << 20
	openAPIVersion = "3.1.0"
	healthyStatus  = "healthy"
)

var userAgent = version.UserAgent("probe")

func getJSON(ctx context.Context, t *Target, path string, dst any) error {
	url := t.URL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return Fail(domprobe.CodeInvalidJSON, fmt.Errorf("GET %s returned %d: %w", url, resp.StatusCode, err))
	}
	return nil
}

// HealthEndpoint passes only when the status endpoint reports exactly "healthy".
func HealthEndpoint(ctx context.Context, t *Target) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := getJSON(ctx, t, t.Config().HealthPath, &body); err != nil {
		return err
	}
	if body.Status != healthyStatus {
		return Fail(domprobe.CodeUnhealthy, fmt.Errorf("status is %q", body.Status))
	}
	return nil
}

// OpenAPIDocument passes only when the API document declares openapi 3.1.0.
func OpenAPIDocument(ctx context.Context, t *Target) error {
	var doc struct {
		OpenAPI string `json:"openapi"`
	}
	if err := getJSON(ctx, t, t.Config().OpenAPIPath, &doc); err != nil {
		return err
	}
	if doc.OpenAPI != openAPIVersion {
		return Fail(domprobe.CodeInvalidSpec, fmt.Errorf("openapi is %q, want %q", doc.OpenAPI, openAPIVersion))
	}
	return nil
}

// WebSocketHandshake passes only when the upgrade request is answered with 101.
func WebSocketHandshake(ctx context.Context, t *Target) error {
	url := t.WebSocketURL(t.Config().WebSocketPath)
	conn, resp, err := t.Dialer().DialContext(ctx, url, http.Header{"User-Agent": {userAgent}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil || errors.Is(err, websocket.ErrBadHandshake) {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			return Fail(domprobe.CodeHandshakeFailed, fmt.Errorf("upgrade %s answered %d: %w", url, status, err))
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return Fail(domprobe.CodeHandshakeFailed, fmt.Errorf("upgrade %s answered %d", url, resp.StatusCode))
	}
	return nil
}
