package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/match"
)

// Reconciler is the background loop that retries unresolved exits against
// newly arrived entries. It uses the same matcher as the ingestion path,
// so the two decide identically over identical inputs.
type Reconciler struct {
	store    SessionStore
	matchCfg match.Config
	lookback time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewReconciler(store SessionStore, matchCfg match.Config, lookback, interval time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		matchCfg: matchCfg,
		lookback: lookback,
		interval: interval,
		log:      log,
	}
}

// Run sweeps unresolved exits on a fixed interval until ctx is cancelled.
// Transient errors never stop the loop; only cancellation does.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one retry pass over all UNMATCHED records. A failure on one
// record is logged and does not abort the rest of the pass. Exported for
// testability; Run calls it on every tick.
func (r *Reconciler) Sweep(ctx context.Context) int {
	records, err := r.store.ListUnresolvedExits(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list unresolved exits")
		return 0
	}
	if len(records) == 0 {
		r.log.Debug().Msg("no unresolved exits")
		return 0
	}

	r.log.Debug().Int("count", len(records)).Msg("retrying unresolved exits")

	matched := 0
	for _, record := range records {
		resolved, err := r.resolve(ctx, record)
		if err != nil {
			r.log.Error().
				Err(err).
				Str("record_id", record.ID.String()).
				Str("plate", record.ExitPlate).
				Msg("failed to reconcile exit record")
			continue
		}
		if resolved {
			matched++
		}
	}

	if matched > 0 {
		r.log.Info().Int("matched", matched).Int("total", len(records)).Msg("reconciliation sweep paired sessions")
	}
	return matched
}

// resolve retries one unresolved exit against the current open-session
// set. The matched open session completes in place via the conditional
// commit; the exit-only record that carried the observation is then
// retired as superseded.
func (r *Reconciler) resolve(ctx context.Context, record parking.ParkingSession) (bool, error) {
	if record.ExitTime == nil || record.ExitPlate == "" {
		return false, fmt.Errorf("unmatched record %s has no usable exit data", record.ID)
	}

	exit := parking.Observation{
		ObservationPayload: parking.ObservationPayload{
			Timestamp:   *record.ExitTime,
			PlateRaw:    record.ExitPlate,
			ProvinceRaw: record.ExitProvince,
			Direction:   parking.DirectionExit,
		},
	}
	if record.ExitEventID != nil {
		exit.ID = *record.ExitEventID
	}

	open, err := r.store.ListOpenSessions(ctx)
	if err != nil {
		return false, fmt.Errorf("list open sessions: %w", err)
	}

	recent, err := r.store.ListRecentEntryObservations(ctx, record.ExitTime.Add(-r.lookback))
	if err != nil {
		return false, fmt.Errorf("list recent entries: %w", err)
	}

	best := match.FindBestMatch(match.NormalizeExit(exit), open, recent, r.matchCfg)
	if best == nil {
		r.log.Debug().Str("plate", record.ExitPlate).Msg("still no match for exit record")
		return false, nil
	}

	session, err := r.store.CommitMatch(ctx, best.Session.ID, exit, best.Type, best.Confidence)
	if errors.Is(err, parking.ErrConflict) {
		r.log.Debug().
			Str("session_id", best.Session.ID.String()).
			Msg("commit conflict during sweep, already resolved elsewhere")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("commit match: %w", err)
	}

	if err := r.store.RetireUnmatchedRecord(ctx, record.ID); err != nil {
		return false, fmt.Errorf("retire unmatched record: %w", err)
	}

	r.log.Info().
		Str("session_id", session.ID.String()).
		Str("record_id", record.ID.String()).
		Str("exit_plate", record.ExitPlate).
		Str("entry_plate", session.EntryPlate).
		Str("match_type", string(best.Type)).
		Float64("confidence", best.Confidence).
		Int("duration_minutes", derefInt(session.DurationMinutes)).
		Msg("reconciled exit with open session")

	return true, nil
}
