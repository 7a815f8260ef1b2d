package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/handoff"
	"github.com/jonathan/job-agent/internal/server/middleware"
	"github.com/jonathan/job-agent/internal/session"
)

// sessionEntry is one open agent page. lastSeen and watchers are guarded by
// the server mutex.
type sessionEntry struct {
	id       string
	owner    string
	created  time.Time
	ctrl     *session.Controller
	lastSeen time.Time
	watchers int
}

// newSession registers a controller for owner. Controllers share the
// history group so concurrent resumes of one identifier fetch once.
func (s *Server) newSession(owner string) *sessionEntry {
	id := uuid.NewString()
	logger := s.logger.With("session_id", id)

	deps := session.Dependencies{
		Applications: s.backend,
		Resumes:      s.backend,
		Locator: session.LocationFunc(func(applicationID string) {
			logger.Info("session addressable", "application_id", applicationID)
		}),
	}
	if s.handoff != nil {
		deps.PendingJobs = handoff.Slot{Store: s.handoff, Key: owner}
	}

	now := s.now()
	e := &sessionEntry{
		id:       id,
		owner:    owner,
		created:  now,
		lastSeen: now,
		ctrl:     session.New(deps, session.WithLogger(logger), session.WithHistoryGroup(s.history)),
	}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()
	return e
}

// lookupSession returns the session named by the {id} path value.
// Sessions of other owners are reported as not found.
func (s *Server) lookupSession(r *http.Request) (*sessionEntry, error) {
	id := r.PathValue("id")
	owner, err := middleware.GetSubject(r)
	if err != nil {
		return nil, &ErrSessionNotFound{SessionID: id}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.owner != owner {
		return nil, &ErrSessionNotFound{SessionID: id}
	}
	e.lastSeen = s.now()
	return e, nil
}

// watch marks an event feed as attached; the returned func detaches it.
// Sessions with an attached feed are never reaped.
func (s *Server) watch(e *sessionEntry) func() {
	s.mu.Lock()
	e.watchers++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		e.watchers--
		e.lastSeen = s.now()
		s.mu.Unlock()
	}
}

// reapIdle abandons and drops sessions that have had no request and no
// event feed for longer than the idle TTL. It returns how many it dropped.
func (s *Server) reapIdle(now time.Time) int {
	var idle []*sessionEntry
	s.mu.Lock()
	for id, e := range s.sessions {
		if e.watchers == 0 && now.Sub(e.lastSeen) > s.idleTTL {
			idle = append(idle, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range idle {
		e.ctrl.Abandon()
		s.logger.Info("idle session dropped",
			"session_id", e.id,
			"age", now.Sub(e.created).Round(time.Second),
			"idle", now.Sub(e.lastSeen).Round(time.Second))
	}
	return len(idle)
}

func (s *Server) reapLoop() {
	ticker := time.NewTicker(s.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.reapIdle(s.now())
		}
	}
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// SessionCount reports the number of open sessions
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// backendContext forwards the caller's bearer token to the backend. It is
// detached from request cancellation because a run outlives the request
// that started it.
func backendContext(r *http.Request) context.Context {
	ctx := context.WithoutCancel(r.Context())
	if token, err := middleware.GetToken(r); err == nil {
		ctx = backend.WithToken(ctx, token)
	}
	return ctx
}
