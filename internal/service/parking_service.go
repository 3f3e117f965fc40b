package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/match"
	"parking-service/internal/plate"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = parking.ErrNotFound
)

// ParkingService is the real-time ingestion path: one call per incoming
// observation from the vision pipeline.
type ParkingService struct {
	store    SessionStore
	matchCfg match.Config
	lookback time.Duration
	log      zerolog.Logger
}

func NewParkingService(store SessionStore, matchCfg match.Config, lookback time.Duration, log zerolog.Logger) *ParkingService {
	return &ParkingService{
		store:    store,
		matchCfg: matchCfg,
		lookback: lookback,
		log:      log,
	}
}

// IngestResult reports the session state change one observation produced.
type IngestResult struct {
	Session    parking.ParkingSession `json:"session"`
	Matched    bool                   `json:"matched"`
	MatchType  parking.MatchType      `json:"match_type"`
	Confidence float64                `json:"confidence"`
}

// ProcessObservation records the observation and dispatches on direction:
// an ENTRY opens a parked session, an EXIT is matched against the open
// session set. An exit that cannot be paired right now becomes an
// UNMATCHED record for the reconciler to retry; it is never dropped.
func (s *ParkingService) ProcessObservation(ctx context.Context, payload parking.ObservationPayload) (*IngestResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if plate.NormalizePlate(payload.PlateRaw) == "" {
		return nil, fmt.Errorf("%w: plate is empty after normalization, matching not attempted", ErrInvalidInput)
	}

	obs := parking.Observation{ObservationPayload: payload}
	if err := s.store.RecordObservation(ctx, &obs); err != nil {
		s.log.Error().Err(err).Str("camera_id", payload.CameraID).Msg("failed to record observation")
		return nil, fmt.Errorf("record observation: %w", err)
	}

	switch payload.Direction {
	case parking.DirectionEntry:
		return s.processEntry(ctx, obs)
	default:
		return s.processExit(ctx, obs)
	}
}

func (s *ParkingService) processEntry(ctx context.Context, obs parking.Observation) (*IngestResult, error) {
	session, err := s.store.CreateParkedSession(ctx, obs)
	if err != nil {
		s.log.Error().Err(err).Str("plate", obs.PlateRaw).Msg("failed to create parked session")
		return nil, fmt.Errorf("create parked session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("plate", obs.PlateRaw).
		Str("province", obs.ProvinceRaw).
		Str("camera_id", obs.CameraID).
		Time("entry_time", obs.Timestamp).
		Msg("vehicle entered, session opened")

	return &IngestResult{Session: session, MatchType: parking.MatchNone}, nil
}

func (s *ParkingService) processExit(ctx context.Context, obs parking.Observation) (*IngestResult, error) {
	result, err := s.matchExit(ctx, obs)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	record, err := s.store.CreateUnmatchedRecord(ctx, obs)
	if err != nil {
		s.log.Error().Err(err).Str("plate", obs.PlateRaw).Msg("failed to create unmatched record")
		return nil, fmt.Errorf("create unmatched record: %w", err)
	}

	s.log.Info().
		Str("record_id", record.ID.String()).
		Str("plate", obs.PlateRaw).
		Str("province", obs.ProvinceRaw).
		Msg("no open session matched exit, kept for reconciliation")

	return &IngestResult{Session: record, MatchType: parking.MatchNone}, nil
}

// matchExit runs the matcher once over the current open-session view and
// commits the result. Returns nil with no error when nothing matched or
// the commit lost the race; the caller falls back to an UNMATCHED record.
func (s *ParkingService) matchExit(ctx context.Context, obs parking.Observation) (*IngestResult, error) {
	open, err := s.store.ListOpenSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}

	for _, key := range match.DuplicateOpenPlates(open) {
		s.log.Warn().Str("plate_key", key).Msg("multiple open sessions share a normalized plate and province; data-integrity defect")
	}

	recent, err := s.store.ListRecentEntryObservations(ctx, obs.Timestamp.Add(-s.lookback))
	if err != nil {
		return nil, fmt.Errorf("list recent entries: %w", err)
	}

	best := match.FindBestMatch(match.NormalizeExit(obs), open, recent, s.matchCfg)
	if best == nil {
		return nil, nil
	}

	session, err := s.store.CommitMatch(ctx, best.Session.ID, obs, best.Type, best.Confidence)
	if errors.Is(err, parking.ErrConflict) {
		s.log.Debug().
			Str("session_id", best.Session.ID.String()).
			Str("plate", obs.PlateRaw).
			Msg("commit conflict, session already resolved by another actor")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("commit match: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exit_plate", obs.PlateRaw).
		Str("entry_plate", session.EntryPlate).
		Str("match_type", string(best.Type)).
		Float64("confidence", best.Confidence).
		Int("duration_minutes", derefInt(session.DurationMinutes)).
		Msg("exit paired with open session")

	return &IngestResult{Session: session, Matched: true, MatchType: best.Type, Confidence: best.Confidence}, nil
}

// GetSession returns one session by its identifier.
func (s *ParkingService) GetSession(ctx context.Context, id string) (parking.ParkingSession, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return parking.ParkingSession{}, fmt.Errorf("%w: invalid session id", ErrInvalidInput)
	}
	return s.store.GetSession(ctx, sessionID)
}

// FindSessions lists sessions filtered by status, plate and time range.
func (s *ParkingService) FindSessions(ctx context.Context, status, plateQuery *string, from, to *string, limit, offset int) ([]parking.ParkingSession, error) {
	q := SessionQuery{Limit: limit, Offset: offset}

	if status != nil && *status != "" {
		st := parking.SessionStatus(*status)
		switch st {
		case parking.StatusParked, parking.StatusCompleted, parking.StatusUnmatched, parking.StatusRetired:
			q.Status = &st
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *status)
		}
	}
	if plateQuery != nil {
		if normalized := plate.NormalizePlate(*plateQuery); normalized != "" {
			q.NormalizedPlate = &normalized
		}
	}
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		q.From = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		q.To = &t
	}

	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	sessions, err := s.store.ListSessions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
