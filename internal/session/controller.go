// Package session owns the timeline of one agent page: it decides how a
// session starts (resume, fresh or deferred), launches runs and routes their
// stream into the reconciler.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/classify"
	"github.com/jonathan/job-agent/internal/launcher"
	"github.com/jonathan/job-agent/internal/reconcile"
	"github.com/jonathan/job-agent/internal/timeline"
	"github.com/jonathan/job-agent/internal/types"
)

// ErrRunInProgress is returned by StartRun while a live run is still running
var ErrRunInProgress = errors.New("a run is already in progress")

// Mode is the branch Bootstrap took
type Mode string

const (
	ModeResume   Mode = "resume"
	ModeFresh    Mode = "fresh"
	ModeDeferred Mode = "deferred"
)

// Activation describes how the page was opened
type Activation struct {
	// ApplicationID selects the resume path when set
	ApplicationID string `json:"application_id,omitempty"`
	// Deferred asks for the hand-off payload to be started immediately
	Deferred bool `json:"deferred,omitempty"`
}

// PendingJobs is the single-use hand-off slot consumed by the deferred path.
// TakePendingJob must empty the slot atomically with reading it.
type PendingJobs interface {
	TakePendingJob(ctx context.Context) (*types.PendingJob, error)
}

// Locator makes a run's identifier addressable once it is known
type Locator interface {
	Reflect(applicationID string)
}

// LocationFunc adapts a function to Locator
type LocationFunc func(applicationID string)

// Reflect calls f(applicationID)
func (f LocationFunc) Reflect(applicationID string) { f(applicationID) }

// Dependencies are the collaborators a Controller talks to.
// PendingJobs and Locator may be nil.
type Dependencies struct {
	Applications backend.Applications
	Resumes      backend.Resumes
	PendingJobs  PendingJobs
	Locator      Locator
}

// Snapshot is a consistent copy of everything the page shows
type Snapshot struct {
	Entries       []types.TimelineEntry    `json:"entries"`
	Placeholder   string                   `json:"placeholder,omitempty"`
	Expanded      map[string]bool          `json:"expanded"`
	State         reconcile.State          `json:"state"`
	Running       bool                     `json:"running"`
	ApplicationID string                   `json:"applicationId,omitempty"`
	Record        *types.ApplicationRecord `json:"record,omitempty"`
	ShowForm      bool                     `json:"showForm"`
	DefaultResume *types.Resume            `json:"defaultResume,omitempty"`
	Location      string                   `json:"location,omitempty"`
	Version       uint64                   `json:"version"`
}

// Controller is the page-level owner of the timeline Store, the Run and the
// ApplicationRecord. All mutations happen under its mutex, so stream
// callbacks and readers serialize.
type Controller struct {
	apps     backend.Applications
	resumes  backend.Resumes
	pending  PendingJobs
	locator  Locator
	launcher *launcher.Launcher
	history  *singleflight.Group
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	store         *timeline.Store
	run           *reconcile.Run
	reconciler    *reconcile.Reconciler
	generation    uint64
	handle        *launcher.Handle
	showForm      bool
	defaultResume *types.Resume
	location      string
	version       uint64
	changed       chan struct{}
}

// Option configures a Controller
type Option func(*controllerOptions)

type controllerOptions struct {
	logger       *slog.Logger
	now          func() time.Time
	history      *singleflight.Group
	storeOptions []timeline.Option
}

// WithLogger sets the logger (default slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(o *controllerOptions) { o.logger = l }
}

// WithClock sets the time source
func WithClock(fn func() time.Time) Option {
	return func(o *controllerOptions) { o.now = fn }
}

// WithHistoryGroup shares history fetch deduplication between controllers
func WithHistoryGroup(g *singleflight.Group) Option {
	return func(o *controllerOptions) { o.history = g }
}

// WithStoreOptions passes options to the timeline Store
func WithStoreOptions(opts ...timeline.Option) Option {
	return func(o *controllerOptions) { o.storeOptions = append(o.storeOptions, opts...) }
}

// New creates an idle controller
func New(deps Dependencies, opts ...Option) *Controller {
	o := controllerOptions{
		logger:  slog.Default(),
		now:     time.Now,
		history: &singleflight.Group{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := append([]timeline.Option{timeline.WithClock(o.now)}, o.storeOptions...)
	store := timeline.NewStore(storeOpts...)
	run := reconcile.NewRun()

	return &Controller{
		apps:     deps.Applications,
		resumes:  deps.Resumes,
		pending:  deps.PendingJobs,
		locator:  deps.Locator,
		launcher: launcher.New(deps.Applications, launcher.WithLogger(o.logger)),
		history:  o.history,
		logger:   o.logger,
		now:      o.now,
		store:    store,
		run:      run,
		reconciler: reconcile.New(store, run,
			reconcile.WithLogger(o.logger),
			reconcile.WithClock(o.now)),
		changed: make(chan struct{}),
	}
}

// Bootstrap initializes the session from how the page was opened.
// An identifier selects resume; otherwise Deferred selects the hand-off
// start, which falls back to fresh when the payload is missing or invalid.
func (c *Controller) Bootstrap(ctx context.Context, act Activation) Mode {
	if act.ApplicationID != "" {
		c.resume(ctx, act.ApplicationID)
		return ModeResume
	}
	if act.Deferred && c.startDeferred(ctx) {
		return ModeDeferred
	}
	c.fresh(ctx)
	return ModeFresh
}

func (c *Controller) resume(ctx context.Context, id string) {
	c.mu.Lock()
	gen := c.supersedeLocked()
	c.store.Reset()
	c.run.BeginResume(id)
	c.showForm = false
	c.location = id
	c.notifyLocked()
	c.mu.Unlock()

	v, err, shared := c.history.Do(historyKey(ctx, id), func() (any, error) {
		return c.apps.FetchApplicationHistory(ctx, id)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Debug("discarding superseded history fetch", "application_id", id)
		return
	}
	var record *types.ApplicationRecord
	if err == nil {
		// Shared results are cloned so sessions never alias one record
		record, _ = v.(*types.ApplicationRecord)
		record = record.Clone()
	}
	if record == nil {
		c.logger.Warn("history fetch failed", "application_id", id, "error", err)
		c.location = ""
		c.run.Resumed(nil)
		c.notifyLocked()
		return
	}

	c.logger.Info("resuming run", "application_id", id, "events", len(record.Events), "shared_fetch", shared)
	c.store.Reset()
	reconcile.MaterializeInto(c.store, record)
	c.run.Resumed(record)
	c.notifyLocked()
}

// historyKey scopes shared fetches to the caller's credential; a record
// fetched with one token is never handed to the holder of another.
func historyKey(ctx context.Context, id string) string {
	return backend.TokenFromContext(ctx) + "\x00" + id
}

func (c *Controller) fresh(ctx context.Context) {
	c.mu.Lock()
	gen := c.supersedeLocked()
	c.store.Reset()
	c.run.Clear()
	c.showForm = true
	c.defaultResume = nil
	c.location = ""
	c.notifyLocked()
	c.mu.Unlock()

	if c.resumes == nil {
		return
	}
	resumes, err := c.resumes.ListResumes(ctx)
	if err != nil {
		c.logger.Warn("listing résumés failed", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.defaultResume = types.LatestResume(resumes)
	c.notifyLocked()
}

// startDeferred consumes the hand-off payload. It reports false when the
// caller should fall back to the fresh path.
func (c *Controller) startDeferred(ctx context.Context) bool {
	if c.pending == nil {
		c.logger.Warn("deferred start requested without hand-off storage")
		return false
	}

	payload, err := c.pending.TakePendingJob(ctx)
	if err != nil {
		c.logger.Warn("reading hand-off payload failed", "error", err)
		return false
	}
	if payload == nil || payload.Job == nil || payload.Resume == nil {
		c.logger.Info("hand-off payload incomplete, showing form",
			"has_payload", payload != nil,
			"has_job", payload != nil && payload.Job != nil,
			"has_resume", payload != nil && payload.Resume != nil)
		return false
	}

	req := launcher.Request{Job: *payload.Job, Resume: payload.Resume, AutoMode: payload.AutoMode}
	if err := c.launcher.Validate(req); err != nil {
		c.logger.Info("hand-off payload invalid, showing form", "error", err)
		return false
	}

	c.mu.Lock()
	gen := c.beginLocked()
	c.mu.Unlock()

	c.launch(ctx, gen, req)
	return true
}

// StartRun starts a live run from a form submission. The log is reset
// before the backend is contacted.
func (c *Controller) StartRun(ctx context.Context, req launcher.Request) error {
	c.mu.Lock()
	if c.run.Running {
		c.mu.Unlock()
		return ErrRunInProgress
	}
	gen := c.beginLocked()
	c.mu.Unlock()

	return c.launch(ctx, gen, req)
}

// beginLocked supersedes any previous run and shows the start placeholder
func (c *Controller) beginLocked() uint64 {
	gen := c.supersedeLocked()
	c.store.Reset()
	c.run.Begin()
	c.store.StartPlaceholder(types.EntryMessage, classify.PhraseStarting)
	c.showForm = false
	c.location = ""
	c.notifyLocked()
	return gen
}

func (c *Controller) launch(ctx context.Context, gen uint64, req launcher.Request) error {
	h, err := c.launcher.Start(ctx, req, c.callbacks(gen))

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		h.Abandon()
		return err
	}
	c.handle = h
	return err
}

// callbacks bind stream delivery to one generation; anything arriving after
// the generation was superseded is dropped under the mutex.
func (c *Controller) callbacks(gen uint64) launcher.Callbacks {
	return launcher.Callbacks{
		OnStarted: func(id string) {
			c.mu.Lock()
			if gen != c.generation {
				c.mu.Unlock()
				return
			}
			c.run.Started(id, c.now())
			c.store.StartPlaceholder(types.EntryMessage, classify.PhraseStarted)
			c.location = id
			c.notifyLocked()
			locator := c.locator
			c.mu.Unlock()

			if locator != nil {
				locator.Reflect(id)
			}
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.generation {
				return
			}
			c.reconciler.Fail(backend.UserMessage(err), err)
			if backend.IsValidation(err) {
				c.showForm = true
			}
			c.notifyLocked()
		},
		OnMessage: func(msg types.StreamMessage) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.generation {
				return
			}
			switch c.reconciler.Handle(msg) {
			case reconcile.OutcomeAppended, reconcile.OutcomeBackfilled:
				c.notifyLocked()
			}
		},
		OnStreamError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.generation {
				return
			}
			if c.reconciler.HandleTransportError(err) == reconcile.OutcomeAppended {
				c.notifyLocked()
			}
		},
	}
}

// supersedeLocked abandons the active subscription and opens a new generation
func (c *Controller) supersedeLocked() uint64 {
	c.generation++
	if c.handle != nil {
		c.handle.Abandon()
		c.handle = nil
	}
	return c.generation
}

// Abandon detaches the session from its run. Nothing from the old stream
// reaches the store afterwards.
func (c *Controller) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	if c.run.Running {
		c.run.Running = false
		c.store.StopPlaceholder()
	}
	c.notifyLocked()
}

// ToggleExpansion flips the expansion flag of an entry
func (c *Controller) ToggleExpansion(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expanded := c.store.ToggleExpansion(id)
	c.notifyLocked()
	return expanded
}

// HasEntry reports whether the log contains an entry with this ID
func (c *Controller) HasEntry(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.FindLast(func(e types.TimelineEntry) bool { return e.ID == id }) >= 0
}

// Snapshot returns a copy of the current page state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Entries:       c.store.Entries(),
		Expanded:      c.store.Expanded(),
		State:         c.run.State,
		Running:       c.run.Running,
		ApplicationID: c.run.ApplicationID,
		Record:        c.run.Record.Clone(),
		ShowForm:      c.showForm,
		Location:      c.location,
		Version:       c.version,
	}
	if p, ok := c.store.Placeholder(); ok {
		s.Placeholder = p.ID
	}
	if c.defaultResume != nil {
		r := *c.defaultResume
		s.DefaultResume = &r
	}
	return s
}

// Changed returns a channel that is closed at the next state change
func (c *Controller) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

func (c *Controller) notifyLocked() {
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
}
