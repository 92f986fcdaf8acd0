package models

import "time"

// RecordError captures a single record's failure inside an otherwise
// successful pass.
type RecordError struct {
	EntityID string
	Message  string
}

// SyncResult summarises one sync pass. It is produced once per pass and
// never mutated afterwards.
type SyncResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Uploaded   int
	Downloaded int
	Conflicts  int
	Errors     []RecordError
}

// Clean reports whether the pass moved no data and hit no record errors.
func (r *SyncResult) Clean() bool {
	return r.Uploaded == 0 && r.Downloaded == 0 && r.Conflicts == 0 && len(r.Errors) == 0
}
