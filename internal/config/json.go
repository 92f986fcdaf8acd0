package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/jbcrane13/jubileesync/internal/flagx"
	"github.com/jbcrane13/jubileesync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// may be given as strings like "300s" or as integer nanoseconds.
type JsonConfig struct {
	DatabaseDSN      string         `json:"database_dsn"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	S3AccessKey      string         `json:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key"`
	S3Bucket         string         `json:"s3_bucket"`
	SessionToken     string         `json:"session_token"`
	SyncBatchSize    int            `json:"sync_batch_size"`
	AutoSyncInterval timex.Duration `json:"auto_sync_interval"`
	PendingThreshold int            `json:"pending_threshold"`
	Strategy         string         `json:"strategy"`
	BackgroundTaskID string         `json:"background_task_id"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c/-config flags. Absent file means no overlay; read or unmarshal errors
// panic (the caller may recover).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.SessionToken != "" {
		cfg.SessionToken = jc.SessionToken
	}
	if jc.SyncBatchSize > 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	if jc.AutoSyncInterval.Duration > 0 {
		cfg.AutoSyncInterval = time.Duration(jc.AutoSyncInterval.Duration)
	}
	if jc.PendingThreshold > 0 {
		cfg.PendingThreshold = jc.PendingThreshold
	}
	if jc.Strategy != "" {
		cfg.Strategy = jc.Strategy
	}
	if jc.BackgroundTaskID != "" {
		cfg.BackgroundTaskID = jc.BackgroundTaskID
	}
}
