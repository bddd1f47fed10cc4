// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/internal/observability"
	"github.com/holomush/questkeeper/internal/store"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeObsServer serves the real routes through a recorder instead of a
// socket.
type fakeObsServer struct {
	addr    string
	handler http.Handler
	started atomic.Bool
	stopped atomic.Bool
}

func (s *fakeObsServer) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (s *fakeObsServer) Start() (<-chan error, error) {
	s.started.Store(true)
	return make(chan error), nil
}

func (s *fakeObsServer) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeObsServer) Addr() string { return s.addr }

func TestServe_RunsUntilCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "gm", "Opening")

	obs := &fakeObsServer{}
	deps := &Deps{
		Clock: env.clock,
		ObservabilityServerFactory: func(addr string, gatherer prometheus.Gatherer, opts ...observability.Option) ObservabilityServer {
			obs.addr = addr
			obs.handler = observability.NewServer(addr, gatherer, opts...).Handler()
			return obs
		},
	}
	cmd := newRootCmd(deps)
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{
		"--user", "gm",
		"--gm", "gm",
		"--data-dir", env.dataDir,
		"--catalog", env.catalog,
		"--metrics-addr", "127.0.0.1:0",
		"serve",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Serving as gm (1 quests)")
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, obs.started.Load())
	assert.Equal(t, "127.0.0.1:0", obs.addr)
	assert.Equal(t, http.StatusOK, obs.get("/healthz/readiness").Code)

	var status serveStatus
	require.NoError(t, json.Unmarshal(obs.get("/status").Body.Bytes(), &status))
	assert.Equal(t, "gm", status.User)
	assert.True(t, status.GM)
	assert.Equal(t, 1, status.Quests)
	assert.Equal(t, int64(1), status.Versions[store.KeyQuestTree])
	assert.Contains(t, obs.get("/metrics").Body.String(), "go_goroutines")

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.True(t, obs.stopped.Load())
	assert.Equal(t, http.StatusServiceUnavailable, obs.get("/healthz/readiness").Code)
}

func TestServe_PicksUpWritesFromOtherProcesses(t *testing.T) {
	env := newTestEnv(t)

	cmd := newRootCmd(&Deps{Clock: env.clock})
	out := &syncBuffer{}
	logs := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs([]string{
		"--user", "gm",
		"--gm", "gm",
		"--data-dir", env.dataDir,
		"--catalog", env.catalog,
		"serve",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Serving as gm (0 quests)")
	}, 5*time.Second, 10*time.Millisecond)

	env.create(t, "gm", "Written elsewhere")

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "quests=1")
	}, 3*pollInterval+5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
