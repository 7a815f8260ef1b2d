// Package types provides type definitions for structured data used throughout the job agent.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// EntryKind classifies a timeline row
type EntryKind string

const (
	// EntryMessage is system narration (placeholder, completion notice)
	EntryMessage EntryKind = "message"
	// EntryAction is a discrete automation step
	EntryAction EntryKind = "action"
	// EntryError is a failure notice
	EntryError EntryKind = "error"
)

// EntryStatus is only meaningful for action entries.
// The zero value means "no status".
type EntryStatus string

const (
	StatusNone    EntryStatus = ""
	StatusPending EntryStatus = "pending"
	StatusSuccess EntryStatus = "success"
)

// TimelineEntry is one row of the visible run log.
type TimelineEntry struct {
	ID          string         `json:"id"`
	Kind        EntryKind      `json:"kind"`
	Timestamp   time.Time      `json:"timestamp"`
	Content     string         `json:"content"`
	Status      EntryStatus    `json:"status,omitempty"`
	StepCount   int            `json:"stepCount,omitempty"`
	StepDetails []string       `json:"stepDetails,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can hand entries out without sharing maps or slices.
func (e TimelineEntry) Clone() TimelineEntry {
	out := e
	if e.StepDetails != nil {
		out.StepDetails = append([]string(nil), e.StepDetails...)
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
