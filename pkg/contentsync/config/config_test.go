package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, 2*time.Minute, cfg.FetchTimeout)
	assert.True(t, cfg.EnableBackgroundJob)
}

func TestLoadWithOptions(t *testing.T) {
	cfg, err := config.Load(
		config.WithPort("9090"),
		config.WithEnvironment("production"),
		config.WithFilesystemStorage("/var/lib/content"),
		config.WithRemoteEndpoints("http://cdn/manifest", "http://cdn/blobs", "http://cdn/events"),
		config.WithAPIKey("secret"),
		config.WithFetchTimeout(30*time.Second),
		config.WithAnsweredTTL(time.Hour),
		config.WithBackgroundJob(false),
	)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "fs", cfg.StorageType)
	assert.Equal(t, "/var/lib/content", cfg.StorageConfig["base_dir"])
	assert.Equal(t, "http://cdn/manifest", cfg.ManifestURL)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Hour, cfg.AnsweredTTL)
	assert.False(t, cfg.EnableBackgroundJob)
}

func TestLoadOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  config.Option
	}{
		{"empty port", config.WithPort("")},
		{"bad database type", config.WithDatabase("sqlite", "")},
		{"postgres without url", config.WithDatabase("postgres", "")},
		{"empty fs dir", config.WithFilesystemStorage("")},
		{"empty s3 bucket", config.WithS3Storage("", "us-east-1")},
		{"zero fetch timeout", config.WithFetchTimeout(0)},
		{"negative ttl", config.WithAnsweredTTL(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestS3OptionsCompose(t *testing.T) {
	cfg, err := config.Load(
		config.WithS3Storage("content", "eu-west-1"),
		config.WithS3Credentials("AKID", "secret"),
		config.WithS3Endpoint("http://localhost:9000", true),
	)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.StorageType)
	assert.Equal(t, "content", cfg.StorageConfig["bucket"])
	assert.Equal(t, "eu-west-1", cfg.StorageConfig["region"])
	assert.Equal(t, "AKID", cfg.StorageConfig["access_key_id"])
	assert.Equal(t, "http://localhost:9000", cfg.StorageConfig["endpoint"])
	assert.Equal(t, true, cfg.StorageConfig["use_path_style"])
}

func TestBuildServiceWithMemoryBackends(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	svc, err := cfg.BuildService()
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestBuildServiceWithFilesystemStorage(t *testing.T) {
	cfg, err := config.Load(config.WithFilesystemStorage(t.TempDir()))
	require.NoError(t, err)

	svc, err := cfg.BuildService()
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
