package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.Upstream.Timeout)
	assert.Equal(t, BackendMemory, cfg.Memo.Backend)
	assert.Equal(t, DefaultMemoSize, cfg.Memo.Size)
	assert.Equal(t, DefaultWHOBaseURL, cfg.Sources.WHO)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.UsesDevSigningKey())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HEALTHDASH_ADDR", ":9090")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("WHO_BASE_URL", "http://who.test/api/")
	t.Setenv("MEMO_BACKEND", "REDIS")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "http://who.test/api", cfg.Sources.WHO)
	assert.Equal(t, BackendRedis, cfg.Memo.Backend)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"UPSTREAM_TIMEOUT": "soon"}},
		{"bad size", map[string]string{"MEMO_SIZE": "lots"}},
		{"redis memo without url", map[string]string{"MEMO_BACKEND": "redis"}},
		{"postgres memo without url", map[string]string{"MEMO_BACKEND": "postgres"}},
		{"unknown memo backend", map[string]string{"MEMO_BACKEND": "disk"}},
		{"unknown session backend", map[string]string{"SESSION_BACKEND": "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
