// Package settings persists the handful of durable sync preferences as
// simple key-value pairs: the pull watermark, auto-sync switches and the
// cellular policy.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Keys in the underlying store.
const (
	keyLastSyncDate      = "last_sync_date"
	keyAutoSyncEnabled   = "auto_sync_enabled"
	keyAutoSyncInterval  = "auto_sync_interval"
	keyAllowCellularSync = "allow_cellular_sync"
)

// Defaults applied when a key has never been written.
const (
	DefaultAutoSyncEnabled   = true
	DefaultAutoSyncInterval  = 300 * time.Second
	DefaultAllowCellularSync = false
)

// KV is the durable key-value backend, satisfied by the sqlite store.
type KV interface {
	GetValue(ctx context.Context, key string) ([]byte, error)
	SetValue(ctx context.Context, key string, value []byte) error
}

// Store reads and writes typed settings over a KV backend.
type Store struct {
	kv KV
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

// LastSyncDate returns the watermark of the last completed pass, or the
// zero time when no pass has completed yet.
func (s *Store) LastSyncDate(ctx context.Context) (time.Time, error) {
	raw, err := s.kv.GetValue(ctx, keyLastSyncDate)
	if err != nil {
		return time.Time{}, err
	}
	if raw == nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", keyLastSyncDate, err)
	}
	return t, nil
}

func (s *Store) SetLastSyncDate(ctx context.Context, t time.Time) error {
	return s.kv.SetValue(ctx, keyLastSyncDate, []byte(t.Format(time.RFC3339Nano)))
}

func (s *Store) AutoSyncEnabled(ctx context.Context) (bool, error) {
	return s.getBool(ctx, keyAutoSyncEnabled, DefaultAutoSyncEnabled)
}

func (s *Store) SetAutoSyncEnabled(ctx context.Context, enabled bool) error {
	return s.setBool(ctx, keyAutoSyncEnabled, enabled)
}

func (s *Store) AutoSyncInterval(ctx context.Context) (time.Duration, error) {
	raw, err := s.kv.GetValue(ctx, keyAutoSyncInterval)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return DefaultAutoSyncInterval, nil
	}
	d, err := time.ParseDuration(string(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", keyAutoSyncInterval, err)
	}
	return d, nil
}

func (s *Store) SetAutoSyncInterval(ctx context.Context, d time.Duration) error {
	return s.kv.SetValue(ctx, keyAutoSyncInterval, []byte(d.String()))
}

func (s *Store) AllowCellularSync(ctx context.Context) (bool, error) {
	return s.getBool(ctx, keyAllowCellularSync, DefaultAllowCellularSync)
}

func (s *Store) SetAllowCellularSync(ctx context.Context, allow bool) error {
	return s.setBool(ctx, keyAllowCellularSync, allow)
}

func (s *Store) getBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := s.kv.GetValue(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return def, nil
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) setBool(ctx context.Context, key string, v bool) error {
	return s.kv.SetValue(ctx, key, []byte(strconv.FormatBool(v)))
}
