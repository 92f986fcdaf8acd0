package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	saved := os.Args
	os.Args = append([]string{"syncd"}, args...)
	t.Cleanup(func() { os.Args = saved })
}

func TestLoadDefaults(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	assert.Equal(t, "jubileesync.db", cfg.DatabaseDSN)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "jubilee-records", cfg.S3Bucket)
	assert.Equal(t, 50, cfg.SyncBatchSize)
	assert.Equal(t, 300*time.Second, cfg.AutoSyncInterval)
	assert.Equal(t, 50, cfg.PendingThreshold)
	assert.Equal(t, "most_recent_wins", cfg.Strategy)
	assert.Equal(t, "com.jubileebay.sync.refresh", cfg.BackgroundTaskID)
}

func TestLoadConfig_NoSources(t *testing.T) {
	withArgs(t)

	cfg := LoadConfig()
	assert.Equal(t, "jubileesync.db", cfg.DatabaseDSN)
	assert.Equal(t, 300*time.Second, cfg.AutoSyncInterval)
}

func TestLoadConfig_Flags(t *testing.T) {
	withArgs(t, "-d", "/tmp/sync.db", "-b", "my-bucket", "-i", "60", "-s", "manual")

	cfg := LoadConfig()
	assert.Equal(t, "/tmp/sync.db", cfg.DatabaseDSN)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, 60*time.Second, cfg.AutoSyncInterval)
	assert.Equal(t, "manual", cfg.Strategy)
}

func TestLoadConfig_JsonFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"database_dsn": "/data/jubilee.db",
		"s3_base_endpoint": "http://localhost:9000",
		"s3_access_key": "minio",
		"s3_secret_key": "minio123",
		"session_token": "tok",
		"sync_batch_size": 25,
		"auto_sync_interval": "2m",
		"pending_threshold": 10,
		"strategy": "three_way_merge"
	}`), 0o600))

	withArgs(t, "-c", file)

	cfg := LoadConfig()
	assert.Equal(t, "/data/jubilee.db", cfg.DatabaseDSN)
	assert.Equal(t, "http://localhost:9000", cfg.S3BaseEndpoint)
	assert.Equal(t, "minio", cfg.S3AccessKey)
	assert.Equal(t, "minio123", cfg.S3SecretKey)
	assert.Equal(t, "tok", cfg.SessionToken)
	assert.Equal(t, 25, cfg.SyncBatchSize)
	assert.Equal(t, 2*time.Minute, cfg.AutoSyncInterval)
	assert.Equal(t, 10, cfg.PendingThreshold)
	assert.Equal(t, "three_way_merge", cfg.Strategy)
	// Untouched keys keep their defaults.
	assert.Equal(t, "jubilee-records", cfg.S3Bucket)
}

func TestLoadConfig_FlagsOverrideJson(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"database_dsn": "/data/from-json.db",
		"auto_sync_interval": "2m"
	}`), 0o600))

	withArgs(t, "-c", file, "-d", "/data/from-flag.db", "-i", "30")

	cfg := LoadConfig()
	assert.Equal(t, "/data/from-flag.db", cfg.DatabaseDSN)
	assert.Equal(t, 30*time.Second, cfg.AutoSyncInterval)
}

func TestLoadConfig_MissingJsonFilePanics(t *testing.T) {
	withArgs(t, "-c", "/does/not/exist.json")
	assert.Panics(t, func() { LoadConfig() })
}
