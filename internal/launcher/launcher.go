// Package launcher starts a run on the backend and subscribes to its stream.
package launcher

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/types"
)

// Request holds the parameters of one run
type Request struct {
	Job      types.JobDetails `json:"job"`
	Resume   *types.Resume    `json:"resume" validate:"required"`
	AutoMode bool             `json:"autoMode"`
}

// Callbacks receive the outcome of Start. Any of them may be nil.
// OnError and OnStreamError each fire at most once per Start.
type Callbacks struct {
	OnStarted     func(applicationID string)
	OnError       func(err error)
	OnMessage     func(msg types.StreamMessage)
	OnStreamError func(err error)
}

// Launcher starts runs. It is not guarded against concurrent starts;
// callers decide whether a second run may begin.
type Launcher struct {
	apps      backend.Applications
	validator *validator.Validate
	logger    *slog.Logger
}

// Option configures a Launcher
type Option func(*Launcher)

// WithLogger sets the logger (default slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(lc *Launcher) { lc.logger = l }
}

// New creates a launcher over the backend
func New(apps backend.Applications, opts ...Option) *Launcher {
	l := &Launcher{
		apps:      apps,
		validator: validator.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Validate checks a request without touching the backend
func (l *Launcher) Validate(req Request) error {
	err := l.validator.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return &backend.ValidationError{Field: fe.Namespace(), Message: fe.Tag(), Cause: err}
	}
	return &backend.ValidationError{Message: "invalid request", Cause: err}
}

// Start validates the request, asks the backend to start the run and pumps
// its stream into cb in arrival order on a separate goroutine.
//
// When validation or the start request fails, OnError fires once, the error
// is returned and no stream is opened. A failure to open the stream after a
// successful start is reported through OnStreamError.
func (l *Launcher) Start(ctx context.Context, req Request, cb Callbacks) (*Handle, error) {
	if err := l.Validate(req); err != nil {
		l.logger.Info("run rejected by validation", "error", err)
		cb.onError(err)
		return nil, err
	}

	id, err := l.apps.StartApplication(ctx, backend.StartRequest{
		Job:      req.Job,
		ResumeID: req.Resume.ID,
		AutoMode: req.AutoMode,
	})
	if err != nil {
		l.logger.Warn("start application failed", "error", err)
		cb.onError(err)
		return nil, err
	}

	l.logger.Info("run started", "application_id", id, "auto_mode", req.AutoMode)
	h := &Handle{ApplicationID: id, done: make(chan struct{})}
	if cb.OnStarted != nil {
		cb.OnStarted(id)
	}

	stream, err := l.apps.StreamApplicationEvents(ctx, id)
	if err != nil {
		l.logger.Warn("subscribe to run failed", "application_id", id, "error", err)
		if !h.abandoned.Load() && cb.OnStreamError != nil {
			cb.OnStreamError(err)
		}
		close(h.done)
		return h, nil
	}
	h.setStream(stream)

	go h.pump(stream, cb, l.logger)
	return h, nil
}

func (cb Callbacks) onError(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Handle controls one started run
type Handle struct {
	ApplicationID string

	stream    atomic.Pointer[streamRef]
	abandoned atomic.Bool
	done      chan struct{}
}

type streamRef struct {
	backend.Stream
}

func (h *Handle) setStream(s backend.Stream) {
	h.stream.Store(&streamRef{s})
	// Abandon may have raced with the subscription
	if h.abandoned.Load() {
		s.Abandon()
	}
}

// Abandon cancels the subscription. Callbacks that have not started yet are
// skipped; a callback already running when Abandon is called may still finish.
func (h *Handle) Abandon() {
	if h == nil || h.abandoned.Swap(true) {
		return
	}
	if ref := h.stream.Load(); ref != nil {
		ref.Abandon()
	}
}

// Abandoned reports whether Abandon was called
func (h *Handle) Abandoned() bool {
	return h != nil && h.abandoned.Load()
}

// Done is closed once the stream has ended and the last callback returned
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) pump(stream backend.Stream, cb Callbacks, logger *slog.Logger) {
	defer close(h.done)

	for msg := range stream.Messages() {
		if h.abandoned.Load() {
			continue
		}
		if cb.OnMessage != nil {
			cb.OnMessage(msg)
		}
	}

	if h.abandoned.Load() {
		logger.Debug("abandoned run stream drained", "application_id", h.ApplicationID)
		return
	}
	if err := stream.Err(); err != nil && cb.OnStreamError != nil {
		cb.OnStreamError(err)
	}
}
