package session

import "time"

// Stats is a point-in-time view of the manager.
type Stats struct {
	State        string     `json:"state"` // absent, initializing, ready, busy
	ID           string     `json:"id,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	InFlight     int        `json:"inFlight"`
	IdleDeadline *time.Time `json:"idleDeadline,omitempty"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	if s == nil {
		if m.creating {
			return Stats{State: "initializing"}
		}
		return Stats{State: "absent"}
	}
	created, deadline := s.createdAt, s.deadline
	st := Stats{
		State:     "ready",
		ID:        s.id,
		CreatedAt: &created,
		InFlight:  s.inflight,
	}
	if s.inflight > 0 {
		st.State = "busy"
	} else {
		st.IdleDeadline = &deadline
	}
	return st
}
