package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sessionID = "6f1c2a8e-7d0b-4f5e-9a3c-2b1d4e6f8a90"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func execute(t *testing.T, h http.Handler, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", srv.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func failingSession() map[string]any {
	code := "unhealthy"
	return map[string]any{
		"session_uuid": sessionID, "state": "complete", "scheduled": 2, "received": 2,
		"pending": []string{},
		"results": []map[string]any{
			{"probe_id": "p1", "probe_name": "Health Endpoint Check", "status": "pass", "duration_ms": 12},
			{"probe_id": "p2", "probe_name": "OpenAPI Spec Check", "status": "fail", "duration_ms": 40,
				"error_code": code, "meaning": "spec missing", "fix": "serve /openapi.json"},
		},
	}
}

func TestRun_NoWaitPrintsTicket(t *testing.T) {
	out, err := execute(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tests/run" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"session_uuid": sessionID, "scheduled": 4})
	}), "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, sessionID) || !strings.Contains(out, "scheduled 4 probes") {
		t.Errorf("output: %q", out)
	}
}

func TestRun_WaitFailsOnFailedProbe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tests/run", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{"session_uuid": sessionID, "scheduled": 2})
	})
	mux.HandleFunc("GET /api/tests/session/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, failingSession())
	})

	out, err := execute(t, mux, "run", "--wait", "--poll", "1ms")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 probes failed") {
		t.Fatalf("err: got %v", err)
	}
	for _, want := range []string{"OpenAPI Spec Check", "unhealthy", "fix: serve /openapi.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestSession_JSON(t *testing.T) {
	out, err := execute(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, failingSession())
	}), "--json", "session", sessionID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	var got struct {
		ID      string `json:"session_uuid"`
		Results []any  `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if got.ID != sessionID || len(got.Results) != 2 {
		t.Errorf("session: got %+v", got)
	}
}

func TestLatest_NothingRunYet(t *testing.T) {
	_, err := execute(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "not_found", "message": "not found"})
	}), "latest")
	if err == nil || !strings.Contains(err.Error(), "no session") {
		t.Fatalf("err: got %v", err)
	}
}

func TestHealth_ExitCode(t *testing.T) {
	tests := []struct {
		status  string
		wantErr bool
	}{
		{"healthy", false},
		{"unhealthy", true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			out, err := execute(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"status": tt.status, "lastCheck": "2026-03-01T12:00:00Z"})
			}), "health")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(out, tt.status) {
				t.Errorf("output: %q", out)
			}
		})
	}
}

func TestDefs_ListAndDisable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tests/defs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"definitions": []map[string]any{
			{"id": "d1", "name": "Health Endpoint Check", "category": "api", "severity": "critical", "active": true},
		}})
	})
	mux.HandleFunc("PATCH /api/tests/defs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("authorization: %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "name": "Health Endpoint Check", "active": false})
	})

	out, err := execute(t, mux, "defs")
	if err != nil {
		t.Fatalf("defs: %v", err)
	}
	if !strings.Contains(out, "Health Endpoint Check") || !strings.Contains(out, "critical") {
		t.Errorf("defs output: %q", out)
	}

	out, err = execute(t, mux, "--api-key", "k", "defs", "disable", "d1")
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !strings.Contains(out, "active=false") {
		t.Errorf("disable output: %q", out)
	}
}
