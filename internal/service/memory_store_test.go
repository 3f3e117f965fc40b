package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"parking-service/internal/domain/parking"
)

// memoryStore is an in-memory SessionStore for tests. CommitMatch holds
// the same conditional-update contract as the real repository: the status
// at commit time must still be the pre-read PARKED/UNMATCHED.
type memoryStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]parking.ParkingSession
	observations []parking.Observation
	order        []uuid.UUID

	// commitErr, when set, fails the next CommitMatch and is consumed.
	commitErr error
	// beforeCommit, when set, runs under the lock at the start of the next
	// CommitMatch and is consumed. Used to interleave a competing actor.
	beforeCommit func(m *memoryStore)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[uuid.UUID]parking.ParkingSession)}
}

func (m *memoryStore) RecordObservation(_ context.Context, obs *parking.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	m.observations = append(m.observations, *obs)
	return nil
}

func (m *memoryStore) ListRecentEntryObservations(_ context.Context, since time.Time) ([]parking.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recent []parking.Observation
	for _, obs := range m.observations {
		if obs.Direction == parking.DirectionEntry && !obs.Timestamp.Before(since) {
			recent = append(recent, obs)
		}
	}
	return recent, nil
}

func (m *memoryStore) CreateParkedSession(_ context.Context, entry parking.Observation) (parking.ParkingSession, error) {
	session, err := parking.NewParkedSession(entry)
	if err != nil {
		return parking.ParkingSession{}, err
	}
	m.put(session)
	return session, nil
}

func (m *memoryStore) CreateUnmatchedRecord(_ context.Context, exit parking.Observation) (parking.ParkingSession, error) {
	record, err := parking.NewUnmatchedSession(exit)
	if err != nil {
		return parking.ParkingSession{}, err
	}
	m.put(record)
	return record, nil
}

func (m *memoryStore) put(s parking.ParkingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = time.Now()
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
}

func (m *memoryStore) CommitMatch(_ context.Context, sessionID uuid.UUID, exit parking.Observation, matchType parking.MatchType, confidence float64) (parking.ParkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitErr != nil {
		err := m.commitErr
		m.commitErr = nil
		return parking.ParkingSession{}, err
	}
	if m.beforeCommit != nil {
		hook := m.beforeCommit
		m.beforeCommit = nil
		hook(m)
	}

	session, ok := m.sessions[sessionID]
	if !ok {
		return parking.ParkingSession{}, parking.ErrNotFound
	}
	if session.Status != parking.StatusParked && session.Status != parking.StatusUnmatched {
		return parking.ParkingSession{}, parking.ErrConflict
	}
	if err := session.Complete(exit, matchType, confidence); err != nil {
		return parking.ParkingSession{}, err
	}
	m.sessions[sessionID] = session
	return session, nil
}

func (m *memoryStore) RetireUnmatchedRecord(_ context.Context, recordID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[recordID]
	if !ok || record.Status != parking.StatusUnmatched {
		return nil
	}
	record.Status = parking.StatusRetired
	m.sessions[recordID] = record
	return nil
}

func (m *memoryStore) ListOpenSessions(_ context.Context) ([]parking.ParkingSession, error) {
	return m.listByStatus(parking.StatusParked), nil
}

func (m *memoryStore) ListUnresolvedExits(_ context.Context) ([]parking.ParkingSession, error) {
	return m.listByStatus(parking.StatusUnmatched), nil
}

func (m *memoryStore) listByStatus(status parking.SessionStatus) []parking.ParkingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []parking.ParkingSession
	for _, id := range m.order {
		if s := m.sessions[id]; s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

func (m *memoryStore) GetSession(_ context.Context, id uuid.UUID) (parking.ParkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return parking.ParkingSession{}, parking.ErrNotFound
	}
	return session, nil
}

func (m *memoryStore) ListSessions(_ context.Context, q SessionQuery) ([]parking.ParkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []parking.ParkingSession
	for _, id := range m.order {
		s := m.sessions[id]
		if q.Status != nil && s.Status != *q.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Offset > 0 && q.Offset < len(out) {
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}
