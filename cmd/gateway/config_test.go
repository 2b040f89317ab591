package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:9000")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "memory")
}

func TestReadConfig_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.listenAddr)
	assert.Equal(t, 15*time.Minute, cfg.rate.Window)
	assert.Equal(t, 100, cfg.rate.Max)
	assert.Equal(t, 429, cfg.rate.StatusCode)
	assert.Equal(t, 1000, cfg.bidRPS)
	assert.Equal(t, time.Second, cfg.bidReconcileEvery)
	assert.Equal(t, 168*time.Hour, cfg.auth.tokenTTL)
	assert.Equal(t, "X-Api-Key", cfg.auth.apiKeyHeader)
	assert.Equal(t, 50*time.Millisecond, cfg.storeTimeout)
	assert.Equal(t, "/metrics", cfg.metricsPath)
	assert.Equal(t, 1024, cfg.statsQueue)
	assert.Less(t, cfg.concurrencyTimeout, time.Duration(0))
}

func TestReadConfig_CollectsAllErrors(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RATE_MAX", "lots")
	t.Setenv("ENDPOINT_LIMITS", "bid=/api/bid:soon:10")

	_, err := readConfig()
	require.Error(t, err)
	for _, want := range []string{"UPSTREAM_URL", "AUTH_JWT_SECRET", "REDIS_ADDR", "RATE_MAX", "ENDPOINT_LIMITS"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestReadConfig_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("AUTH_API_KEYS", " k1, ,k2 ")
	t.Setenv("RATE_SKIP_FAILED", "true")
	t.Setenv("RATE_STATUS", "503")
	t.Setenv("CONCURRENCY_TIMEOUT", "5ms")
	t.Setenv("ENDPOINT_LIMITS", "bid=/api/bid:1s:500; podcasts=/api/podcasts*:1m:60")

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, cfg.auth.apiKeys)
	assert.True(t, cfg.rate.SkipFailed)
	assert.Equal(t, 503, cfg.rate.StatusCode)
	assert.Equal(t, 5*time.Millisecond, cfg.concurrencyTimeout)
	require.Len(t, cfg.endpointLimits, 2)
	assert.Equal(t, "podcasts", cfg.endpointLimits[1].Name)
}

func TestReadConfig_RejectsUnknownBackend(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("STORE_BACKEND", "etcd")

	_, err := readConfig()
	assert.ErrorContains(t, err, "STORE_BACKEND")
}

func TestParseEndpointLimits(t *testing.T) {
	rules, err := parseEndpointLimits("bid=/api/bid:1s:1000;;top=/api/podcasts/top:10m:5")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "bid", rules[0].Name)
	assert.Equal(t, "/api/bid", rules[0].Pattern)
	assert.Equal(t, time.Second, rules[0].Config.Window)
	assert.Equal(t, 1000, rules[0].Config.Max)
	assert.Equal(t, 10*time.Minute, rules[1].Config.Window)

	for _, bad := range []string{"nameonly", "=/x:1s:1", "a=/x:1s", "a=/x:1s:many", "a=/x"} {
		_, err := parseEndpointLimits(bad)
		assert.Error(t, err, bad)
	}
}

func TestLogSafeMasksSecrets(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("AUTH_API_KEYS", "super-secret-key")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	cfg, err := readConfig()
	require.NoError(t, err)
	view := cfg.logSafe()
	assert.Equal(t, "***", view["jwtSecret"])
	assert.Equal(t, "***", view["redisPassword"])
	assert.Equal(t, 1, view["apiKeys"])
	assert.NotContains(t, []any{view["jwtSecret"], view["redisPassword"]}, "s3cret")
}
