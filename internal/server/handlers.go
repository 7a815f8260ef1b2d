package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/job-agent/internal/launcher"
	"github.com/jonathan/job-agent/internal/reconcile"
	"github.com/jonathan/job-agent/internal/server/middleware"
	"github.com/jonathan/job-agent/internal/session"
	"github.com/jonathan/job-agent/internal/types"
)

// SessionResponse is returned by the session endpoints
type SessionResponse struct {
	SessionID string           `json:"session_id"`
	Mode      session.Mode     `json:"mode,omitempty"`
	Snapshot  session.Snapshot `json:"snapshot"`
}

// RunRequest is the body of POST /sessions/{id}/runs and PUT /handoff
type RunRequest struct {
	Job      *types.JobDetails `json:"job"`
	Resume   *types.Resume     `json:"resume"`
	AutoMode bool              `json:"auto_mode"`
}

// handoffRequest requires both halves of the payload
type handoffRequest struct {
	Job      *types.JobDetails `validate:"required"`
	Resume   *types.Resume     `validate:"required"`
	AutoMode bool
}

// ToggleResponse reports an entry's expansion after a toggle
type ToggleResponse struct {
	EntryID  string `json:"entry_id"`
	Expanded bool   `json:"expanded"`
}

// decodeBody decodes JSON into v; an empty body leaves v untouched
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
}

// handleCreateSession bootstraps a session from its activation
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var act session.Activation
	if err := decodeBody(r, &act); err != nil {
		s.fail(w, err)
		return
	}
	owner, err := middleware.GetSubject(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	e := s.newSession(owner)
	mode := e.ctrl.Bootstrap(backendContext(r), act)
	s.logger.Info("session created", "session_id", e.id, "mode", mode)

	s.jsonResponse(w, http.StatusCreated, SessionResponse{
		SessionID: e.id,
		Mode:      mode,
		Snapshot:  e.ctrl.Snapshot(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookupSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, SessionResponse{SessionID: e.id, Snapshot: e.ctrl.Snapshot()})
}

// handleDeleteSession abandons the session's run and forgets the session
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookupSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	e.ctrl.Abandon()
	s.removeSession(e.id)
	w.WriteHeader(http.StatusNoContent)
}

// handleStartRun starts a live run from a form submission
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookupSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req RunRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Job == nil {
		s.fail(w, &ErrValidation{Field: "job", Message: "is required"})
		return
	}

	// Launcher validation failures are also rendered into the timeline
	err = e.ctrl.StartRun(backendContext(r), launcher.Request{
		Job:      *req.Job,
		Resume:   req.Resume,
		AutoMode: req.AutoMode,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, SessionResponse{SessionID: e.id, Snapshot: e.ctrl.Snapshot()})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookupSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	entryID := r.PathValue("entry_id")
	if !e.ctrl.HasEntry(entryID) {
		s.fail(w, &ErrEntryNotFound{EntryID: entryID})
		return
	}
	s.jsonResponse(w, http.StatusOK, ToggleResponse{EntryID: entryID, Expanded: e.ctrl.ToggleExpansion(entryID)})
}

// handlePutHandoff stores a pending job for the caller's next deferred session
func (s *Server) handlePutHandoff(w http.ResponseWriter, r *http.Request) {
	if s.handoff == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "hand-off storage is not configured")
		return
	}
	owner, err := middleware.GetSubject(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req RunRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.validator.Struct(handoffRequest{Job: req.Job, Resume: req.Resume, AutoMode: req.AutoMode}); err != nil {
		s.fail(w, validationFailure(err))
		return
	}

	job := types.PendingJob{Job: req.Job, Resume: req.Resume, AutoMode: req.AutoMode}
	if err := s.handoff.Put(r.Context(), owner, job); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetHandoff shows the caller's pending job without consuming it.
// 204 when nothing is waiting.
func (s *Server) handleGetHandoff(w http.ResponseWriter, r *http.Request) {
	if s.handoff == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "hand-off storage is not configured")
		return
	}
	owner, err := middleware.GetSubject(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	job, err := s.handoff.Read(r.Context(), owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.jsonResponse(w, http.StatusOK, RunRequest{Job: job.Job, Resume: job.Resume, AutoMode: job.AutoMode})
}

// validationFailure reports the first failing field
func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ErrValidation{Field: verrs[0].Namespace(), Message: "failed on " + verrs[0].Tag()}
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

// handleEvents streams the session: a timeline event per change, location
// once an identifier is known, complete when a run concludes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookupSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer s.watch(e)()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	var (
		sent         bool
		lastVersion  uint64
		lastLocation string
		wasConcluded bool
	)
	for {
		// Subscribe before reading so no change slips between the two
		changed := e.ctrl.Changed()
		snap := e.ctrl.Snapshot()

		if !sent || snap.Version != lastVersion {
			if err := sse.WriteEvent(EventTimeline, snap); err != nil {
				return
			}
			sent, lastVersion = true, snap.Version
		}
		if snap.Location != "" && snap.Location != lastLocation {
			if err := sse.WriteLocation(snap.Location); err != nil {
				return
			}
			lastLocation = snap.Location
		}
		isConcluded := concluded(snap)
		if isConcluded && !wasConcluded {
			if err := sse.WriteComplete(snap.ApplicationID, string(snap.State)); err != nil {
				return
			}
		}
		wasConcluded = isConcluded

		select {
		case <-changed:
		case <-ticker.C:
			if err := sse.WritePing(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}

// concluded reports whether the session shows a run that will not change anymore
func concluded(snap session.Snapshot) bool {
	if snap.Running {
		return false
	}
	switch snap.State {
	case reconcile.StateFinished, reconcile.StateFailed, reconcile.StateResumed:
		return true
	}
	return false
}
