package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcrane13/jubileesync/internal/models"
)

var t0 = time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)

func entityAt(ts time.Time, fields map[string]string) *models.Entity {
	return &models.Entity{
		ID:           "report-1",
		Kind:         "report",
		LastModified: ts,
		Status:       models.StatusPending,
		Fields:       fields,
	}
}

func withBase(e *models.Entity, ts time.Time, fields map[string]string) *models.Entity {
	e.Base = &models.Snapshot{LastModified: ts, Fields: fields}
	return e
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestDetect(t *testing.T) {
	base := map[string]string{"species": "flounder", "count": "3"}

	tests := []struct {
		name   string
		local  *models.Entity
		remote *models.Entity
		want   bool
	}{
		{
			name:   "equal fields never conflict",
			local:  entityAt(t0.Add(time.Minute), base),
			remote: entityAt(t0.Add(2*time.Minute), base),
			want:   false,
		},
		{
			name: "both changed since base",
			local: withBase(entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet", "count": "3"}),
				t0, base),
			remote: entityAt(t0.Add(2*time.Minute), map[string]string{"species": "flounder", "count": "9"}),
			want:   true,
		},
		{
			name: "only remote changed is a plain update",
			local: withBase(entityAt(t0, base),
				t0, base),
			remote: entityAt(t0.Add(time.Minute), map[string]string{"species": "flounder", "count": "9"}),
			want:   false,
		},
		{
			name: "only local changed is a plain update",
			local: withBase(entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet", "count": "3"}),
				t0, base),
			remote: entityAt(t0, base),
			want:   false,
		},
		{
			name:   "no base and differing fields conflicts",
			local:  entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet"}),
			remote: entityAt(t0.Add(2*time.Minute), map[string]string{"species": "flounder"}),
			want:   true,
		},
		{
			name:   "nil remote",
			local:  entityAt(t0, base),
			remote: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.local, tt.remote))
		})
	}
}

func TestDetect_ReflexiveIsFalse(t *testing.T) {
	e := entityAt(t0, map[string]string{"species": "flounder"})
	assert.False(t, Detect(e, e))
	assert.False(t, Detect(e, e.Clone()))
}

func TestResolve_ServerAndClientWins(t *testing.T) {
	local := entityAt(t0.Add(time.Hour), map[string]string{"species": "mullet"})
	remote := entityAt(t0, map[string]string{"species": "flounder"})

	res, rec := NewResolver(models.StrategyServerWins, fixedClock(t0)).Resolve(local, remote)
	assert.Equal(t, models.OutcomeUseRemote, res.Outcome)
	assert.True(t, rec.Resolved())

	res, rec = NewResolver(models.StrategyClientWins, fixedClock(t0)).Resolve(local, remote)
	assert.Equal(t, models.OutcomeUseLocal, res.Outcome)
	assert.True(t, rec.Resolved())
}

func TestResolve_MostRecentWins(t *testing.T) {
	r := NewResolver(models.StrategyMostRecentWins, fixedClock(t0))

	// Local edited a minute after the remote edit.
	local := entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet"})
	remote := entityAt(t0, map[string]string{"species": "flounder"})

	res, rec := r.Resolve(local, remote)
	assert.Equal(t, models.OutcomeUseLocal, res.Outcome)
	assert.Nil(t, res.Merged)
	require.True(t, rec.Resolved())
	assert.Equal(t, models.OutcomeUseLocal, rec.Outcome)

	// Exact tie resolves to the remote side.
	res, _ = r.Resolve(entityAt(t0, map[string]string{"a": "1"}), entityAt(t0, map[string]string{"a": "2"}))
	assert.Equal(t, models.OutcomeUseRemote, res.Outcome)
}

func TestResolve_IsIdempotent(t *testing.T) {
	r := NewResolver(models.StrategyMostRecentWins, fixedClock(t0))
	local := entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet"})
	remote := entityAt(t0, map[string]string{"species": "flounder"})

	first, _ := r.Resolve(local, remote)
	second, _ := r.Resolve(local, remote)
	assert.Equal(t, first.Outcome, second.Outcome)
}

func TestResolve_FieldMergeTakesRecentSideAndKeepsExtras(t *testing.T) {
	local := entityAt(t0.Add(time.Minute), map[string]string{
		"species": "mullet",
		"notes":   "seen at dawn",
	})
	remote := entityAt(t0, map[string]string{
		"species":  "flounder",
		"observer": "kbrown",
	})

	res, _ := NewResolver(models.StrategyFieldMerge, fixedClock(t0)).Resolve(local, remote)
	require.Equal(t, models.OutcomeMerged, res.Outcome)
	require.NotNil(t, res.Merged)

	assert.Equal(t, map[string]string{
		"species":  "mullet",
		"notes":    "seen at dawn",
		"observer": "kbrown",
	}, res.Merged.Fields)
	assert.Equal(t, t0.Add(time.Minute), res.Merged.LastModified)
}

func TestResolve_ThreeWayMerge(t *testing.T) {
	base := map[string]string{"species": "flounder", "count": "3", "site": "pier"}

	local := withBase(entityAt(t0.Add(time.Minute), map[string]string{
		"species": "mullet", // changed locally
		"count":   "3",
		"site":    "pier",
	}), t0, base)
	remote := entityAt(t0.Add(2*time.Minute), map[string]string{
		"species": "flounder",
		"count":   "9", // changed remotely
		"site":    "pier",
	})

	res, _ := NewResolver(models.StrategyThreeWayMerge, fixedClock(t0)).Resolve(local, remote)
	require.Equal(t, models.OutcomeMerged, res.Outcome)
	require.NotNil(t, res.Merged)

	assert.Equal(t, map[string]string{
		"species": "mullet",
		"count":   "9",
		"site":    "pier",
	}, res.Merged.Fields)
}

func TestResolve_ThreeWayMergeBothChangedFallsBackToRecency(t *testing.T) {
	base := map[string]string{"count": "3"}

	local := withBase(entityAt(t0.Add(time.Minute), map[string]string{"count": "5"}), t0, base)
	remote := entityAt(t0.Add(2*time.Minute), map[string]string{"count": "7"})

	res, _ := NewResolver(models.StrategyThreeWayMerge, fixedClock(t0)).Resolve(local, remote)
	require.NotNil(t, res.Merged)
	assert.Equal(t, "7", res.Merged.Fields["count"])

	// Flip recency.
	local.LastModified = t0.Add(3 * time.Minute)
	res, _ = NewResolver(models.StrategyThreeWayMerge, fixedClock(t0)).Resolve(local, remote)
	require.NotNil(t, res.Merged)
	assert.Equal(t, "5", res.Merged.Fields["count"])
}

func TestResolve_ThreeWayMergeDeletionWins(t *testing.T) {
	base := map[string]string{"species": "flounder", "notes": "old"}

	// Local removed notes, remote left it alone.
	local := withBase(entityAt(t0.Add(time.Minute), map[string]string{"species": "flounder"}), t0, base)
	remote := entityAt(t0, map[string]string{"species": "flounder", "notes": "old"})

	res, _ := NewResolver(models.StrategyThreeWayMerge, fixedClock(t0)).Resolve(local, remote)
	require.NotNil(t, res.Merged)
	_, present := res.Merged.Fields["notes"]
	assert.False(t, present)
}

func TestResolve_ThreeWayMergeIdenticalSidesYieldBase(t *testing.T) {
	fields := map[string]string{"species": "flounder", "count": "3"}
	local := withBase(entityAt(t0, fields), t0, fields)
	remote := entityAt(t0, fields)

	res, _ := NewResolver(models.StrategyThreeWayMerge, fixedClock(t0)).Resolve(local, remote)
	require.NotNil(t, res.Merged)
	assert.Equal(t, fields, res.Merged.Fields)
}

func TestResolve_ManualLeavesRecordOpen(t *testing.T) {
	local := entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet"})
	remote := entityAt(t0, map[string]string{"species": "flounder"})

	res, rec := NewResolver(models.StrategyManual, fixedClock(t0)).Resolve(local, remote)
	assert.Equal(t, models.OutcomeManual, res.Outcome)
	require.NotNil(t, rec)
	assert.False(t, rec.Resolved())
	assert.Equal(t, local.ID, rec.EntityID)
	assert.Equal(t, local.Fields, rec.Local.Fields)
	assert.Equal(t, remote.Fields, rec.Remote.Fields)
	assert.Equal(t, t0, rec.DetectedAt)
}

func TestResolve_MergedNeverAliasesInputs(t *testing.T) {
	local := entityAt(t0.Add(time.Minute), map[string]string{"species": "mullet"})
	remote := entityAt(t0, map[string]string{"species": "flounder"})

	res, _ := NewResolver(models.StrategyFieldMerge, fixedClock(t0)).Resolve(local, remote)
	require.NotNil(t, res.Merged)

	res.Merged.Fields["species"] = "tampered"
	assert.Equal(t, "mullet", local.Fields["species"])
	assert.Equal(t, "flounder", remote.Fields["species"])
}

func TestResolve_UnknownStrategyDefaultsToMostRecent(t *testing.T) {
	local := entityAt(t0.Add(time.Minute), map[string]string{"a": "1"})
	remote := entityAt(t0, map[string]string{"a": "2"})

	res, _ := NewResolver(models.Strategy("bogus"), fixedClock(t0)).Resolve(local, remote)
	assert.Equal(t, models.OutcomeUseLocal, res.Outcome)
}
