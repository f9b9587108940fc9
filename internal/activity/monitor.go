// Package activity implements the session activity monitor: detecting that
// a producer has stopped, without requiring an explicit "end" call, and
// triggering teardown.
//
// The ticker-driven loop is adapted from the teacher's catrate.Limiter.worker
// (a goroutine woken once per tick to evaluate whether cleanup is due),
// simplified from per-category rate bookkeeping to this monitor's single
// piece of state: one session's last-activity timestamp.
package activity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slamstream/relay/internal/session"
)

// DefaultTimeout is the default end-of-session inactivity timeout.
const DefaultTimeout = 5 * time.Second

// quickExitWindow is the quick-exit window: once a control message has
// explicitly marked the session inactive, teardown fires shortly after
// rather than waiting for the full timeout.
const quickExitWindow = 2 * time.Second

// tickInterval is how often the monitor evaluates end-of-session.
const tickInterval = time.Second

// Callback is invoked, in registration order, when end-of-session is
// declared. A Callback's failure is logged and does not block the others.
type Callback func() error

// Monitor detects end-of-session and runs teardown callbacks. The zero
// value is not usable; use New.
type Monitor struct {
	timeout   time.Duration
	sessions  *session.Registry
	log       zerolog.Logger
	now       func() time.Time
	callbacks []Callback

	mu                  sync.Mutex
	lastActivity        time.Time
	hasLastActivity     bool
	hasReceivedData     bool
	hasHadActiveSession bool
}

// New creates a Monitor with the given timeout (<=0 uses DefaultTimeout).
func New(sessions *session.Registry, timeout time.Duration, log zerolog.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		timeout:  timeout,
		sessions: sessions,
		log:      log,
		now:      time.Now,
	}
}

// RegisterCallback appends a teardown callback. Not safe to call once Run
// has started.
func (m *Monitor) RegisterCallback(cb Callback) {
	m.callbacks = append(m.callbacks, cb)
}

// UpdateActivity records that the producer has sent data.
func (m *Monitor) UpdateActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
	m.hasLastActivity = true
	m.hasReceivedData = true
}

// Run evaluates end-of-session once per tick until done is closed. It is
// meant to run as the process's single background monitor goroutine.
func (m *Monitor) Run(done <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	current := m.sessions.Get()

	m.mu.Lock()
	if current.Live() {
		m.hasHadActiveSession = true
	}

	declareEndOfSession := m.hasHadActiveSession && !current.IsActive && m.inactivityConfirmedLocked()
	if !declareEndOfSession {
		m.mu.Unlock()
		return
	}

	// reset before releasing the lock and running callbacks: the monitor
	// must be ready to track the next session even if a callback panics or
	// runs long, and callbacks themselves may call UpdateActivity-adjacent
	// registry methods that would otherwise deadlock re-entrantly.
	m.hasLastActivity = false
	m.hasReceivedData = false
	m.hasHadActiveSession = false
	m.mu.Unlock()

	m.runCallbacks()
}

// inactivityConfirmedLocked reports whether the session has been inactive
// long enough to tear down: either no activity was ever recorded, it is
// older than the full timeout, or it is older than the quick-exit window.
// The quick-exit window lets an explicit is_active=false (already observed
// by the caller) tear down promptly instead of waiting for the full
// timeout.
func (m *Monitor) inactivityConfirmedLocked() bool {
	if !m.hasLastActivity {
		return true
	}
	age := m.now().Sub(m.lastActivity)
	return age >= m.timeout || age >= quickExitWindow
}

func (m *Monitor) runCallbacks() {
	for i, cb := range m.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error().Interface("panic", r).Int("callback_index", i).Msg("teardown callback panicked")
				}
			}()
			if err := cb(); err != nil {
				m.log.Error().Err(err).Int("callback_index", i).Msg("teardown callback failed")
			}
		}()
	}
}
