// Package config assembles runtime settings for the sync daemon from
// defaults, an optional JSON file and command-line flags, in that order of
// precedence.
package config

import "time"

// Config holds the runtime settings of the sync daemon.
type Config struct {
	// DatabaseDSN is the sqlite file backing the local store.
	DatabaseDSN string

	// S3 endpoint of the remote record store.
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string

	// SessionToken is the backend-issued JWT proving an account exists.
	SessionToken string

	// SyncBatchSize bounds one upload round-trip.
	SyncBatchSize int

	// AutoSyncInterval drives the foreground periodic trigger.
	AutoSyncInterval time.Duration

	// PendingThreshold gates background job submission.
	PendingThreshold int

	// Strategy names the conflict resolution strategy.
	Strategy string

	// BackgroundTaskID identifies the registered OS background job.
	BackgroundTaskID string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "jubileesync.db"
	c.S3Region = "us-east-1"
	c.S3Bucket = "jubilee-records"
	c.SyncBatchSize = 50
	c.AutoSyncInterval = 300 * time.Second
	c.PendingThreshold = 50
	c.Strategy = "most_recent_wins"
	c.BackgroundTaskID = "com.jubileebay.sync.refresh"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
