// Package registry holds the process-wide map of active sessions. It is the
// only resource shared across sessions: lookups run under a read lock,
// insert/delete under the write lock.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

const (
	// DefaultCeiling caps concurrent sessions when no override is configured.
	DefaultCeiling = 32

	defaultReapInterval    = 30 * time.Second
	defaultFailedRetention = 2 * time.Minute
)

// SessionStatus is one row of the health snapshot.
type SessionStatus struct {
	ID       string                `json:"id"`
	State    entities.SessionState `json:"state"`
	Scenario entities.Scenario     `json:"scenario"`
	Voice    entities.Voice        `json:"voice"`
}

// Snapshot is the read-only health/status view of the registry.
type Snapshot struct {
	Size     int             `json:"size"`
	Ceiling  int             `json:"ceiling"`
	Sessions []SessionStatus `json:"sessions"`
}

// Registry maps session id to Session with admission control. Requests above
// the ceiling fail fast with ErrCapacityExceeded instead of queueing.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
	ceiling  int

	logger          *zap.Logger
	reapInterval    time.Duration
	failedRetention time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
}

// Option tweaks registry construction.
type Option func(*Registry)

// WithReapInterval overrides how often the background reaper runs.
func WithReapInterval(d time.Duration) Option {
	return func(r *Registry) { r.reapInterval = d }
}

// WithFailedRetention overrides how long failed sessions are retained for
// client-visible error reporting before being reaped.
func WithFailedRetention(d time.Duration) Option {
	return func(r *Registry) { r.failedRetention = d }
}

// New creates a registry with the given concurrent-session ceiling.
func New(ceiling int, logger *zap.Logger, opts ...Option) *Registry {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	r := &Registry{
		sessions:        make(map[string]*entities.Session),
		ceiling:         ceiling,
		logger:          logger,
		reapInterval:    defaultReapInterval,
		failedRetention: defaultFailedRetention,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add admits a session, failing fast when the ceiling is reached. No session
// record is kept on rejection.
func (r *Registry) Add(session *entities.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.ceiling {
		return entities.ErrCapacityExceeded
	}
	r.sessions[session.ID] = session
	r.logger.Info("Session registered",
		zap.String("sessionID", session.ID),
		zap.Int("active", len(r.sessions)))
	return nil
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*entities.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove deletes a session. Called when a session reaches Closed; Failed
// sessions are left for the reaper so clients can still observe the error.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.logger.Info("Session removed",
			zap.String("sessionID", id),
			zap.Int("active", len(r.sessions)))
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StatusSnapshot returns the read-only health view: size, ceiling and
// per-session state. No side effects.
func (r *Registry) StatusSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Size:     len(r.sessions),
		Ceiling:  r.ceiling,
		Sessions: make([]SessionStatus, 0, len(r.sessions)),
	}
	for _, s := range r.sessions {
		snap.Sessions = append(snap.Sessions, SessionStatus{
			ID:       s.ID,
			State:    s.State(),
			Scenario: s.Scenario.ID,
			Voice:    s.Voice.ID,
		})
	}
	return snap
}

// StartReaper begins the background loop removing closed sessions and failed
// sessions past their retention window.
func (r *Registry) StartReaper() {
	go r.reapLoop()
	r.logger.Info("Session reaper started",
		zap.Duration("interval", r.reapInterval),
		zap.Duration("failedRetention", r.failedRetention))
}

// StopReaper stops the background loop.
func (r *Registry) StopReaper() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func (r *Registry) reapLoop() {
	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}

// Reap removes closed sessions and failed sessions whose retention elapsed.
// Exported so tests and shutdown can run it synchronously.
func (r *Registry) Reap() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, s := range r.sessions {
		switch s.State() {
		case entities.StateClosed:
			delete(r.sessions, id)
			r.logger.Info("Reaped closed session", zap.String("sessionID", id))
		case entities.StateFailed:
			if now.Sub(s.UpdatedAt()) >= r.failedRetention {
				delete(r.sessions, id)
				r.logger.Info("Reaped failed session",
					zap.String("sessionID", id),
					zap.NamedError("failure", s.Failure()))
			}
		}
	}
}
