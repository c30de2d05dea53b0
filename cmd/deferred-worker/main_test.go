package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
)

func TestParseOptions(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_NAMESPACE", "")

	var stderr bytes.Buffer
	opts, err := parseOptions(nil, &stderr)
	require.NoError(t, err)
	assert.Equal(t, client.DefaultHostPort, opts.hostPort)
	assert.Equal(t, client.DefaultNamespace, opts.namespace)
	assert.Equal(t, DefaultTaskQueue, opts.taskQueue)

	t.Setenv("TEMPORAL_ADDRESS", "temporal:7233")
	opts, err = parseOptions([]string{"-namespace", "ns", "-task-queue", "q"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "temporal:7233", opts.hostPort)
	assert.Equal(t, "ns", opts.namespace)
	assert.Equal(t, "q", opts.taskQueue)

	_, err = parseOptions([]string{"-task-queue", ""}, &stderr)
	assert.Error(t, err)
}

func TestRunUsageErrors(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"-bogus"}, &stderr))
	assert.Equal(t, 2, run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, &stderr))
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("request:\n  platform: ios\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ios", cfg.Request.Platform)
}

func TestMetricsServerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "deferred_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := newMetricsServer(":0", reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deferred_test_total 1")
}
