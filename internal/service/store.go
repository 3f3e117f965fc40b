package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"parking-service/internal/domain/parking"
)

// SessionQuery filters session listings on the read path.
type SessionQuery struct {
	Status          *parking.SessionStatus
	NormalizedPlate *string
	From            *time.Time
	To              *time.Time
	Limit           int
	Offset          int
}

// SessionStore is the gateway to the storage collaborator. The engine
// holds no global state of its own; an implementation is injected by
// constructor. CommitMatch must be a conditional update: it succeeds only
// if the session's status at commit time still equals the status observed
// at read time, and returns parking.ErrConflict otherwise. That contract
// is what makes at-most-once pairing hold when the ingestion path and the
// reconciliation loop race over the same session.
type SessionStore interface {
	ListOpenSessions(ctx context.Context) ([]parking.ParkingSession, error)
	ListUnresolvedExits(ctx context.Context) ([]parking.ParkingSession, error)
	CreateParkedSession(ctx context.Context, entry parking.Observation) (parking.ParkingSession, error)
	CreateUnmatchedRecord(ctx context.Context, exit parking.Observation) (parking.ParkingSession, error)
	CommitMatch(ctx context.Context, sessionID uuid.UUID, exit parking.Observation, matchType parking.MatchType, confidence float64) (parking.ParkingSession, error)
	RetireUnmatchedRecord(ctx context.Context, recordID uuid.UUID) error

	// Observation audit trail; backs the corroboration lookback read.
	RecordObservation(ctx context.Context, obs *parking.Observation) error
	ListRecentEntryObservations(ctx context.Context, since time.Time) ([]parking.Observation, error)

	GetSession(ctx context.Context, id uuid.UUID) (parking.ParkingSession, error)
	ListSessions(ctx context.Context, q SessionQuery) ([]parking.ParkingSession, error)
}
