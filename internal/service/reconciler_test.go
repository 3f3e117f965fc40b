package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-service/internal/domain/parking"
	"parking-service/internal/match"
)

func newTestReconciler(store SessionStore, interval time.Duration) *Reconciler {
	return NewReconciler(store, match.DefaultConfig(), 24*time.Hour, interval, zerolog.Nop())
}

// An exit with no open session is kept as UNMATCHED; once the matching
// entry arrives, the next sweep resolves it.
func TestSweepResolvesExitAfterLateEntry(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	reconciler := newTestReconciler(store, time.Second)
	ctx := context.Background()

	exit, err := svc.ProcessObservation(ctx, payload(parking.DirectionExit, "8ฟม4325", "ระยอง", testTime.Add(3*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, parking.StatusUnmatched, exit.Session.Status)

	// Nothing to pair with yet.
	assert.Equal(t, 0, reconciler.Sweep(ctx))

	// The entry observation arrives late, backdated before the exit.
	entry, err := svc.ProcessObservation(ctx, payload(parking.DirectionEntry, "8ฟน4325", "ระยอง", testTime))
	require.NoError(t, err)

	assert.Equal(t, 1, reconciler.Sweep(ctx))

	session, err := store.GetSession(ctx, entry.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, parking.StatusCompleted, session.Status)
	assert.Equal(t, parking.MatchNumericPriority, session.MatchType)
	assert.GreaterOrEqual(t, session.Confidence, 0.90)
	assert.Equal(t, "8ฟม4325", session.ExitPlate)
	require.NotNil(t, session.DurationMinutes)
	assert.Equal(t, 180, *session.DurationMinutes)

	// The exit-only record was superseded and retired, not left behind.
	record, err := store.GetSession(ctx, exit.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, parking.StatusRetired, record.Status)

	unresolved, err := store.ListUnresolvedExits(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestSweepIsolatesPerRecordFailures(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	reconciler := newTestReconciler(store, time.Second)
	ctx := context.Background()

	_, err := svc.ProcessObservation(ctx, payload(parking.DirectionExit, "กข1111", "ระยอง", testTime.Add(time.Hour)))
	require.NoError(t, err)
	_, err = svc.ProcessObservation(ctx, payload(parking.DirectionExit, "ขค2222", "สงขลา", testTime.Add(time.Hour)))
	require.NoError(t, err)

	_, err = svc.ProcessObservation(ctx, payload(parking.DirectionEntry, "กข1111", "ระยอง", testTime))
	require.NoError(t, err)
	_, err = svc.ProcessObservation(ctx, payload(parking.DirectionEntry, "ขค2222", "สงขลา", testTime))
	require.NoError(t, err)

	// The first record's commit hits a storage error; the sweep must still
	// process the second record.
	store.commitErr = errors.New("connection reset")
	assert.Equal(t, 1, reconciler.Sweep(ctx))

	// The failed record is retried on the next sweep.
	assert.Equal(t, 1, reconciler.Sweep(ctx))

	unresolved, err := store.ListUnresolvedExits(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestSweepCommitConflictIsBenign(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	reconciler := newTestReconciler(store, time.Second)
	ctx := context.Background()

	_, err := svc.ProcessObservation(ctx, payload(parking.DirectionExit, "กข1234", "ระยอง", testTime.Add(2*time.Hour)))
	require.NoError(t, err)
	entry, err := svc.ProcessObservation(ctx, payload(parking.DirectionEntry, "กข1234", "ระยอง", testTime))
	require.NoError(t, err)

	// A competing actor resolves the session mid-sweep.
	store.beforeCommit = func(m *memoryStore) {
		s := m.sessions[entry.Session.ID]
		other := parking.Observation{ObservationPayload: payload(parking.DirectionExit, "กข1234", "ระยอง", testTime.Add(time.Hour))}
		if err := s.Complete(other, parking.MatchExact, 1.0); err == nil {
			m.sessions[entry.Session.ID] = s
		}
	}

	// Conflict is not an error and not a resolution; the record stays for
	// the next tick.
	assert.Equal(t, 0, reconciler.Sweep(ctx))

	unresolved, err := store.ListUnresolvedExits(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved, 1)
}

func TestRunStopsOnCancellation(t *testing.T) {
	store := newMemoryStore()
	reconciler := newTestReconciler(store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reconciler.Run(ctx)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on cancellation")
	}
}
