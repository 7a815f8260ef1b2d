package reconcile

import (
	"log/slog"
	"time"

	"github.com/jonathan/job-agent/internal/classify"
	"github.com/jonathan/job-agent/internal/timeline"
	"github.com/jonathan/job-agent/internal/types"
)

// Outcome says what a message did to the log
type Outcome string

const (
	OutcomeAppended   Outcome = "appended"
	OutcomeBackfilled Outcome = "backfilled"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeIgnored    Outcome = "ignored"
)

// Reconciler applies stream messages to a Store one at a time.
// It never returns errors: bad input is logged and dropped.
type Reconciler struct {
	store  *timeline.Store
	run    *Run
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger (default slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithClock sets the time source for entries without a timestamp
func WithClock(fn func() time.Time) Option {
	return func(r *Reconciler) { r.now = fn }
}

// New creates a reconciler over a store and the run state it shares with its owner
func New(store *timeline.Store, run *Run, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		run:    run,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run returns the shared run state
func (r *Reconciler) Run() *Run {
	return r.run
}

// Handle applies one message
func (r *Reconciler) Handle(msg types.StreamMessage) Outcome {
	if !r.run.Owns(msg) {
		r.logger.Debug("dropping message for another run",
			"kind", msg.Kind, "message_application_id", msg.ApplicationID, "application_id", r.run.ApplicationID)
		return OutcomeIgnored
	}

	switch msg.Kind {
	case types.MessageEvent:
		return r.handleEvent(msg.Event)
	case types.MessageStatus:
		if msg.Status != nil {
			r.logger.Debug("agent status", "application_id", r.run.ApplicationID, "status", msg.Status.Status)
		}
		return OutcomeIgnored
	case types.MessageFinish:
		return r.handleFinish()
	case types.MessageResult:
		return r.handleResult(msg.Result)
	default:
		r.logger.Warn("ignoring malformed stream message", "kind", msg.Kind, "reason", "unknown kind")
		return OutcomeIgnored
	}
}

func (r *Reconciler) handleEvent(ev *types.EventPayload) Outcome {
	if ev == nil {
		r.logger.Warn("ignoring malformed stream message", "kind", types.MessageEvent, "reason", "missing payload")
		return OutcomeIgnored
	}
	if r.run.Terminal() {
		r.logger.Warn("event after run ended", "application_id", r.run.ApplicationID, "event_type", ev.EventType)
		return OutcomeIgnored
	}

	if !classify.Known(ev.EventType) {
		r.logger.Debug("event type not in catalog, showing raw label",
			"application_id", r.run.ApplicationID, "event_type", ev.EventType)
	}
	c := classify.Classify(ev.EventType, ev.EventStatus)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	md := map[string]any{MetaEventType: ev.EventType}
	if ev.EventID != "" {
		md[MetaEventID] = ev.EventID
	}

	// Repeated event types are legitimate (retries): always a new entry with a new ID
	r.store.Append(types.TimelineEntry{
		Kind:        types.EntryAction,
		Timestamp:   ts,
		Content:     c.Description,
		Status:      c.Status,
		StepCount:   c.StepCount,
		StepDetails: c.StepDetails,
		Metadata:    md,
	})
	if r.run.State == StateStarting {
		r.run.State = StateStreaming
	}
	return OutcomeAppended
}

func (r *Reconciler) handleFinish() Outcome {
	// The terminal entry has no reserved ID; its fixed content is the marker
	if r.store.ContainsContent(classify.PhraseCompleted) {
		r.logger.Debug("suppressing duplicate finish", "application_id", r.run.ApplicationID)
		return OutcomeSuppressed
	}

	r.store.StopPlaceholder()
	r.store.Append(types.TimelineEntry{
		Kind:      types.EntryMessage,
		Timestamp: r.now(),
		Content:   classify.PhraseCompleted,
		Status:    types.StatusSuccess,
	})
	r.run.Finish()
	r.logger.Info("run finished", "application_id", r.run.ApplicationID)
	return OutcomeAppended
}

func (r *Reconciler) handleResult(res *types.ResultPayload) Outcome {
	if res == nil || (res.Job == nil && len(res.Documents) == 0) {
		r.logger.Warn("ignoring malformed stream message", "kind", types.MessageResult, "reason", "no job snapshot or documents")
		return OutcomeIgnored
	}

	outcome := OutcomeIgnored
	if res.Job != nil {
		MergeJob(r.run.Record, res.Job)
		if idx, ok := BackfillJob(r.store, res.Job); ok {
			outcome = OutcomeBackfilled
			r.logger.Debug("job snapshot backfilled", "application_id", r.run.ApplicationID, "index", idx)
		} else {
			r.logger.Debug("job snapshot has no matching entry", "application_id", r.run.ApplicationID)
		}
	}
	if len(res.Documents) > 0 {
		MergeDocuments(r.run.Record, res.Documents)
		if idx, ok := BackfillDocuments(r.store, res.Documents); ok {
			outcome = OutcomeBackfilled
			r.logger.Debug("documents backfilled", "application_id", r.run.ApplicationID, "index", idx)
		} else {
			r.logger.Debug("documents have no matching entry", "application_id", r.run.ApplicationID)
		}
	}
	return outcome
}

// HandleTransportError surfaces a stream failure once as an error entry and
// marks the run not running. It does not retry.
func (r *Reconciler) HandleTransportError(err error) Outcome {
	if r.run.Terminal() {
		r.logger.Debug("transport error after run ended", "application_id", r.run.ApplicationID, "error", err)
		return OutcomeSuppressed
	}
	r.logger.Error("agent stream failed", "application_id", r.run.ApplicationID, "error", err)
	r.Fail(classify.PhraseConnectionLost, err)
	return OutcomeAppended
}

// Fail replaces any placeholder with one error entry and marks the run failed
func (r *Reconciler) Fail(content string, err error) {
	var md map[string]any
	if err != nil {
		md = map[string]any{MetaError: err.Error()}
	}
	r.store.StopPlaceholder()
	r.store.Append(types.TimelineEntry{
		Kind:      types.EntryError,
		Timestamp: r.now(),
		Content:   content,
		Metadata:  md,
	})
	r.run.Fail()
}
