// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts ...Option) (*Server, *Metrics) {
	t.Helper()
	registry := NewRegistry()
	metrics := NewMetrics(registry)
	server := NewServer("127.0.0.1:0", registry, opts...)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server, metrics
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test URL
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Probes(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		path   string
		status int
		body   string
	}{
		{"liveness", func() bool { return false }, "/healthz/liveness", http.StatusOK, "ok\n"},
		{"ready", func() bool { return true }, "/healthz/readiness", http.StatusOK, "ok\n"},
		{"not ready", func() bool { return false }, "/healthz/readiness", http.StatusServiceUnavailable, "not ready\n"},
		{"nil checker is ready", nil, "/healthz/readiness", http.StatusOK, "ok\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := startServer(t, WithReadiness(tt.ready))
			status, body := get(t, "http://"+server.Addr()+tt.path)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server, metrics := startServer(t)

	metrics.Operation("createQuest", ResultOK)
	metrics.Sync("questCreated", DirectionSent)
	metrics.SetQuestCounts(map[string]int{"active": 2})

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `questkeeper_operations_total{operation="createQuest",result="ok"} 1`)
	assert.Contains(t, body, `questkeeper_sync_messages_total{direction="sent",kind="questCreated"} 1`)
	assert.Contains(t, body, `questkeeper_quests{status="active"} 2`)
}

func TestServer_Status(t *testing.T) {
	type snapshot struct {
		User   string `json:"user"`
		Quests int    `json:"quests"`
	}
	quests := 3
	handler := NewServer("", NewRegistry(), WithStatus(func() any {
		return snapshot{User: "gm", Quests: quests}
	})).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"user":"gm","quests":3}`, rec.Body.String())
}

func TestServer_StatusDisabled(t *testing.T) {
	handler := NewServer("", NewRegistry()).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Lifecycle(t *testing.T) {
	server := NewServer("127.0.0.1:0", NewRegistry())
	assert.Empty(t, server.Addr())

	errCh, err := server.Start()
	require.NoError(t, err)

	_, err = server.Start()
	require.Error(t, err, "second start must fail")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "stop is idempotent")

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "channel closes without error on shutdown: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("error channel did not close")
	}
}

func TestServer_BadAddress(t *testing.T) {
	server := NewServer("256.0.0.1:bad", NewRegistry())
	_, err := server.Start()
	require.Error(t, err)

	// A failed start leaves the server startable.
	_, err = server.Start()
	require.Error(t, err)
}
