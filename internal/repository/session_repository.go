package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"parking-service/internal/domain/parking"
	"parking-service/internal/plate"
	"parking-service/internal/service"
)

// SessionRepository persists observations and parking sessions in
// PostgreSQL. It implements service.SessionStore; CommitMatch and
// RetireUnmatchedRecord are conditional updates checked by RowsAffected.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type Observation struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventTime       time.Time `gorm:"not null"`
	RawPlate        string    `gorm:"not null"`
	NormalizedPlate string    `gorm:"not null"`
	Province        *string
	Direction       string `gorm:"not null"`
	CameraID        string `gorm:"not null"`
	ImageRef        *string
	RawPayload      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time
}

func (Observation) TableName() string { return "observations" }

type Session struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntryEventID    *uuid.UUID
	EntryPlate      *string
	EntryPlateNorm  *string
	EntryProvince   *string
	EntryTime       *time.Time
	ExitEventID     *uuid.UUID
	ExitPlate       *string
	ExitPlateNorm   *string
	ExitProvince    *string
	ExitTime        *time.Time
	Status          string `gorm:"not null"`
	MatchType       string `gorm:"not null"`
	Confidence      float64
	DurationMinutes *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Session) TableName() string { return "parking_sessions" }

func (r *SessionRepository) RecordObservation(ctx context.Context, obs *parking.Observation) error {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}

	row := Observation{
		ID:              obs.ID,
		EventTime:       obs.Timestamp,
		RawPlate:        obs.PlateRaw,
		NormalizedPlate: plate.NormalizePlate(obs.PlateRaw),
		Direction:       string(obs.Direction),
		CameraID:        obs.CameraID,
		CreatedAt:       time.Now(),
	}
	if obs.ProvinceRaw != "" {
		row.Province = &obs.ProvinceRaw
	}
	if obs.ImageRef != "" {
		row.ImageRef = &obs.ImageRef
	}
	if len(obs.RawPayload) > 0 {
		raw, err := json.Marshal(obs.RawPayload)
		if err != nil {
			return fmt.Errorf("marshal raw payload: %w", err)
		}
		row.RawPayload = raw
	}

	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *SessionRepository) ListRecentEntryObservations(ctx context.Context, since time.Time) ([]parking.Observation, error) {
	var rows []Observation
	err := r.db.WithContext(ctx).
		Where("direction = ? AND event_time >= ?", string(parking.DirectionEntry), since).
		Order("event_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	observations := make([]parking.Observation, 0, len(rows))
	for _, row := range rows {
		observations = append(observations, toObservation(row))
	}
	return observations, nil
}

func (r *SessionRepository) CreateParkedSession(ctx context.Context, entry parking.Observation) (parking.ParkingSession, error) {
	session, err := parking.NewParkedSession(entry)
	if err != nil {
		return parking.ParkingSession{}, err
	}

	row := toRow(session)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return parking.ParkingSession{}, err
	}
	return toSession(row), nil
}

func (r *SessionRepository) CreateUnmatchedRecord(ctx context.Context, exit parking.Observation) (parking.ParkingSession, error) {
	record, err := parking.NewUnmatchedSession(exit)
	if err != nil {
		return parking.ParkingSession{}, err
	}

	row := toRow(record)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return parking.ParkingSession{}, err
	}
	return toSession(row), nil
}

// CommitMatch transitions a session to COMPLETED. The UPDATE is guarded by
// the status observed at read time, so of two concurrent commit attempts
// exactly one succeeds; the loser gets parking.ErrConflict.
func (r *SessionRepository) CommitMatch(ctx context.Context, sessionID uuid.UUID, exit parking.Observation, matchType parking.MatchType, confidence float64) (parking.ParkingSession, error) {
	var row Session
	err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return parking.ParkingSession{}, parking.ErrNotFound
	}
	if err != nil {
		return parking.ParkingSession{}, err
	}

	priorStatus := row.Status
	if priorStatus != string(parking.StatusParked) && priorStatus != string(parking.StatusUnmatched) {
		return parking.ParkingSession{}, parking.ErrConflict
	}

	session := toSession(row)
	if err := session.Complete(exit, matchType, confidence); err != nil {
		return parking.ParkingSession{}, fmt.Errorf("complete session: %w", err)
	}

	exitNorm := plate.NormalizePlate(session.ExitPlate)
	updates := map[string]interface{}{
		"exit_event_id":    session.ExitEventID,
		"exit_plate":       session.ExitPlate,
		"exit_plate_norm":  exitNorm,
		"exit_province":    nullableString(session.ExitProvince),
		"exit_time":        session.ExitTime,
		"status":           string(parking.StatusCompleted),
		"match_type":       string(matchType),
		"confidence":       confidence,
		"duration_minutes": session.DurationMinutes,
		"updated_at":       time.Now(),
	}

	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", sessionID, priorStatus).
		Updates(updates)
	if res.Error != nil {
		return parking.ParkingSession{}, res.Error
	}
	if res.RowsAffected == 0 {
		return parking.ParkingSession{}, parking.ErrConflict
	}

	return session, nil
}

// RetireUnmatchedRecord marks a superseded exit-only record RETIRED. The
// row is kept for audit. Already-retired records are a no-op.
func (r *SessionRepository) RetireUnmatchedRecord(ctx context.Context, recordID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", recordID, string(parking.StatusUnmatched)).
		Updates(map[string]interface{}{
			"status":     string(parking.StatusRetired),
			"updated_at": time.Now(),
		})
	return res.Error
}

func (r *SessionRepository) ListOpenSessions(ctx context.Context) ([]parking.ParkingSession, error) {
	return r.listByStatus(ctx, parking.StatusParked)
}

func (r *SessionRepository) ListUnresolvedExits(ctx context.Context) ([]parking.ParkingSession, error) {
	return r.listByStatus(ctx, parking.StatusUnmatched)
}

func (r *SessionRepository) listByStatus(ctx context.Context, status parking.SessionStatus) ([]parking.ParkingSession, error) {
	var rows []Session
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]parking.ParkingSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, toSession(row))
	}
	return sessions, nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (parking.ParkingSession, error) {
	var row Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return parking.ParkingSession{}, parking.ErrNotFound
	}
	if err != nil {
		return parking.ParkingSession{}, err
	}
	return toSession(row), nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, q service.SessionQuery) ([]parking.ParkingSession, error) {
	query := r.db.WithContext(ctx).Model(&Session{})

	if q.Status != nil {
		query = query.Where("status = ?", string(*q.Status))
	}
	if q.NormalizedPlate != nil {
		query = query.Where("entry_plate_norm = ? OR exit_plate_norm = ?", *q.NormalizedPlate, *q.NormalizedPlate)
	}
	if q.From != nil {
		query = query.Where("entry_time >= ? OR exit_time >= ?", *q.From, *q.From)
	}
	if q.To != nil {
		query = query.Where("entry_time <= ? OR exit_time <= ?", *q.To, *q.To)
	}

	query = query.Order("created_at DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var rows []Session
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	sessions := make([]parking.ParkingSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, toSession(row))
	}
	return sessions, nil
}

func toRow(s parking.ParkingSession) Session {
	now := time.Now()
	row := Session{
		ID:              s.ID,
		EntryEventID:    s.EntryEventID,
		EntryTime:       s.EntryTime,
		ExitEventID:     s.ExitEventID,
		ExitTime:        s.ExitTime,
		Status:          string(s.Status),
		MatchType:       string(s.MatchType),
		Confidence:      s.Confidence,
		DurationMinutes: s.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if s.EntryPlate != "" {
		norm := plate.NormalizePlate(s.EntryPlate)
		row.EntryPlate = &s.EntryPlate
		row.EntryPlateNorm = &norm
	}
	row.EntryProvince = nullableString(s.EntryProvince)
	if s.ExitPlate != "" {
		norm := plate.NormalizePlate(s.ExitPlate)
		row.ExitPlate = &s.ExitPlate
		row.ExitPlateNorm = &norm
	}
	row.ExitProvince = nullableString(s.ExitProvince)
	return row
}

func toSession(row Session) parking.ParkingSession {
	return parking.ParkingSession{
		ID:              row.ID,
		EntryEventID:    row.EntryEventID,
		EntryPlate:      derefString(row.EntryPlate),
		EntryProvince:   derefString(row.EntryProvince),
		EntryTime:       row.EntryTime,
		ExitEventID:     row.ExitEventID,
		ExitPlate:       derefString(row.ExitPlate),
		ExitProvince:    derefString(row.ExitProvince),
		ExitTime:        row.ExitTime,
		Status:          parking.SessionStatus(row.Status),
		MatchType:       parking.MatchType(row.MatchType),
		Confidence:      row.Confidence,
		DurationMinutes: row.DurationMinutes,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toObservation(row Observation) parking.Observation {
	obs := parking.Observation{
		ID: row.ID,
		ObservationPayload: parking.ObservationPayload{
			Timestamp:   row.EventTime,
			PlateRaw:    row.RawPlate,
			ProvinceRaw: derefString(row.Province),
			Direction:   parking.Direction(row.Direction),
			CameraID:    row.CameraID,
			ImageRef:    derefString(row.ImageRef),
		},
	}
	if len(row.RawPayload) > 0 {
		var payload map[string]interface{}
		if err := json.Unmarshal(row.RawPayload, &payload); err == nil {
			obs.RawPayload = payload
		}
	}
	return obs
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
