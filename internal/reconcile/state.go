// Package reconcile converts the agent's progress messages into timeline mutations.
package reconcile

import (
	"time"

	"github.com/jonathan/job-agent/internal/types"
)

// State is the lifecycle position of a run as seen by the UI
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateResuming  State = "resuming"
	StateResumed   State = "resumed"
)

// Record status values written locally
const (
	RecordRunning  = "running"
	RecordFinished = "finished"
)

// Run is the explicit per-session run state. The reconciler and the session
// controller share it by reference; nothing else mutates it.
type Run struct {
	State         State                    `json:"state"`
	ApplicationID string                   `json:"applicationId,omitempty"`
	Running       bool                     `json:"running"`
	Record        *types.ApplicationRecord `json:"record,omitempty"`
}

// NewRun returns an idle run
func NewRun() *Run {
	return &Run{State: StateIdle}
}

// Begin enters Starting for a brand-new live run
func (r *Run) Begin() {
	*r = Run{State: StateStarting, Running: true}
}

// Started records the identifier returned by the start request and opens
// the local optimistic copy of the ApplicationRecord.
func (r *Run) Started(id string, now time.Time) {
	r.ApplicationID = id
	if r.Record == nil || r.Record.Identifier != id {
		r.Record = &types.ApplicationRecord{Identifier: id, CreatedAt: now, Status: RecordRunning}
	}
	if r.State == StateStarting {
		r.State = StateStreaming
	}
}

// Finish marks the run concluded and clears the running flag
func (r *Run) Finish() {
	r.State = StateFinished
	r.Running = false
	if r.Record != nil {
		r.Record.Status = RecordFinished
	}
}

// Fail marks the run not running after a start or transport failure
func (r *Run) Fail() {
	r.State = StateFailed
	r.Running = false
}

// BeginResume enters Resuming for a history fetch
func (r *Run) BeginResume(id string) {
	*r = Run{State: StateResuming, ApplicationID: id}
}

// Resumed completes the resume path with the fetched record
func (r *Run) Resumed(record *types.ApplicationRecord) {
	r.State = StateResumed
	r.Running = false
	r.Record = record
	if record != nil {
		r.ApplicationID = record.Identifier
	}
}

// Clear returns to Idle and forgets the record
func (r *Run) Clear() {
	*r = Run{State: StateIdle}
}

// Terminal reports whether the live run has concluded one way or the other
func (r *Run) Terminal() bool {
	return r.State == StateFinished || r.State == StateFailed
}

// Owns reports whether msg belongs to this run. Messages without an owner
// (finish carries none) and runs without an identifier yet are accepted.
func (r *Run) Owns(msg types.StreamMessage) bool {
	if msg.ApplicationID == "" || r.ApplicationID == "" {
		return true
	}
	return msg.ApplicationID == r.ApplicationID
}
