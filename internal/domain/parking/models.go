package parking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionEntry Direction = "ENTRY"
	DirectionExit  Direction = "EXIT"
)

type SessionStatus string

const (
	StatusParked    SessionStatus = "PARKED"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusUnmatched SessionStatus = "UNMATCHED"
	// StatusRetired marks an unmatched record superseded by a match against
	// an independently existing session. Terminal, kept for audit, never
	// considered by the matcher.
	StatusRetired SessionStatus = "RETIRED"
)

type MatchType string

const (
	MatchExact           MatchType = "EXACT"
	MatchNumericPriority MatchType = "NUMERIC_PRIORITY"
	MatchFuzzy           MatchType = "FUZZY"
	MatchNone            MatchType = "NONE"
)

// ObservationPayload is the tuple the vision pipeline delivers for one
// camera detection. The core never interprets CameraID or ImageRef.
type ObservationPayload struct {
	Timestamp   time.Time              `json:"timestamp"`
	PlateRaw    string                 `json:"plate"`
	ProvinceRaw string                 `json:"province,omitempty"`
	Direction   Direction              `json:"direction"`
	CameraID    string                 `json:"camera_id"`
	ImageRef    string                 `json:"image_ref,omitempty"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

type Observation struct {
	ID uuid.UUID
	ObservationPayload
}

func (p ObservationPayload) Validate() error {
	if p.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if p.Direction != DirectionEntry && p.Direction != DirectionExit {
		return fmt.Errorf("unknown direction %q", p.Direction)
	}
	if p.CameraID == "" {
		return errors.New("camera_id is required")
	}
	return nil
}

// ParkingSession is one vehicle's stay, from entry to (eventually) exit.
// Entry fields are set at creation and never change; exit fields are unset
// until a match commits and are immutable afterwards. An exit-only record
// (status UNMATCHED) has no entry fields until it is superseded.
type ParkingSession struct {
	ID              uuid.UUID
	EntryEventID    *uuid.UUID
	EntryPlate      string
	EntryProvince   string
	EntryTime       *time.Time
	ExitEventID     *uuid.UUID
	ExitPlate       string
	ExitProvince    string
	ExitTime        *time.Time
	Status          SessionStatus
	MatchType       MatchType
	Confidence      float64
	DurationMinutes *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewParkedSession builds a PARKED session from an ENTRY observation.
func NewParkedSession(obs Observation) (ParkingSession, error) {
	if err := obs.Validate(); err != nil {
		return ParkingSession{}, err
	}
	if obs.Direction != DirectionEntry {
		return ParkingSession{}, fmt.Errorf("parked session requires an ENTRY observation, got %s", obs.Direction)
	}
	if obs.PlateRaw == "" {
		return ParkingSession{}, errors.New("entry observation has no plate")
	}
	t := obs.Timestamp
	eventID := obs.ID
	return ParkingSession{
		ID:            uuid.New(),
		EntryEventID:  &eventID,
		EntryPlate:    obs.PlateRaw,
		EntryProvince: obs.ProvinceRaw,
		EntryTime:     &t,
		Status:        StatusParked,
		MatchType:     MatchNone,
	}, nil
}

// NewUnmatchedSession builds an UNMATCHED record from an EXIT observation
// that found no eligible open session.
func NewUnmatchedSession(obs Observation) (ParkingSession, error) {
	if err := obs.Validate(); err != nil {
		return ParkingSession{}, err
	}
	if obs.Direction != DirectionExit {
		return ParkingSession{}, fmt.Errorf("unmatched record requires an EXIT observation, got %s", obs.Direction)
	}
	if obs.PlateRaw == "" {
		return ParkingSession{}, errors.New("exit observation has no plate")
	}
	t := obs.Timestamp
	eventID := obs.ID
	return ParkingSession{
		ID:           uuid.New(),
		ExitEventID:  &eventID,
		ExitPlate:    obs.PlateRaw,
		ExitProvince: obs.ProvinceRaw,
		ExitTime:     &t,
		Status:       StatusUnmatched,
		MatchType:    MatchNone,
	}, nil
}

// Complete applies a committed match to the session. Transitions are
// one-directional: only PARKED or UNMATCHED sessions can complete, and the
// exit must postdate the entry.
func (s *ParkingSession) Complete(exit Observation, matchType MatchType, confidence float64) error {
	if s.Status != StatusParked && s.Status != StatusUnmatched {
		return fmt.Errorf("session %s is %s, cannot complete", s.ID, s.Status)
	}
	if exit.Direction != DirectionExit {
		return fmt.Errorf("completion requires an EXIT observation, got %s", exit.Direction)
	}
	if s.EntryTime == nil {
		return fmt.Errorf("session %s has no entry, cannot complete", s.ID)
	}
	if !s.EntryTime.Before(exit.Timestamp) {
		return fmt.Errorf("exit time %s is not after entry time %s", exit.Timestamp, s.EntryTime)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %v out of range", confidence)
	}
	t := exit.Timestamp
	minutes := int(t.Sub(*s.EntryTime).Minutes())
	eventID := exit.ID
	s.ExitEventID = &eventID
	s.ExitPlate = exit.PlateRaw
	s.ExitProvince = exit.ProvinceRaw
	s.ExitTime = &t
	s.Status = StatusCompleted
	s.MatchType = matchType
	s.Confidence = confidence
	s.DurationMinutes = &minutes
	return nil
}
