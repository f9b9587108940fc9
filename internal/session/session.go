// Package session implements the single-record session registry: the one
// piece of state that tracks whether a producer is currently live, and how
// many consumers are attached.
package session

import (
	"sync"

	"github.com/slamstream/relay/internal/slamtype"
)

// Registry holds the current session record. All mutations are serialized
// under a single mutex, held only for the duration of each field update.
// The zero value is ready to use.
type Registry struct {
	mu sync.Mutex
	s  slamtype.Session
}

// Get returns a copy of the current session record.
func (r *Registry) Get() slamtype.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

// UpdateAll replaces the entire session record.
func (r *Registry) UpdateAll(s slamtype.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = s
}

// UpdateFromControlMessage applies the fields of a set_session control call.
// ClientsConnected is deliberately NOT taken from the message: connected-
// client count is owned by the registry itself via
// IncrementClients/DecrementClients, not by control callers.
func (r *Registry) UpdateFromControlMessage(sessionID string, startTimeMillis int64, isActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.SessionID = sessionID
	r.s.StartTimeMillis = startTimeMillis
	r.s.IsActive = isActive
}

// Clear resets the registry to the empty, inactive, zero-client state.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = slamtype.Session{}
}

// IncrementClients increases the connected-client count by one, returning
// the new count.
func (r *Registry) IncrementClients() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.ClientsConnected++
	return r.s.ClientsConnected
}

// DecrementClients decreases the connected-client count by one, floored at
// zero, returning the new count.
func (r *Registry) DecrementClients() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.ClientsConnected > 0 {
		r.s.ClientsConnected--
	}
	return r.s.ClientsConnected
}

// SetActive sets the is_active flag without touching other fields.
func (r *Registry) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.IsActive = active
}

// EnsureSession starts an implicit session with the given id if none is
// currently live, returning true if it did so. This is how a session gets
// created on first ingestion when no control call has started one yet.
func (r *Registry) EnsureSession(sessionID string, startTimeMillis int64) (started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.Live() {
		return false
	}
	r.s = slamtype.Session{
		SessionID:       sessionID,
		StartTimeMillis: startTimeMillis,
		IsActive:        true,
	}
	return true
}

// IncrementTotalChunks bumps the session's total_chunks counter by delta.
func (r *Registry) IncrementTotalChunks(delta int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.TotalChunks += delta
}
