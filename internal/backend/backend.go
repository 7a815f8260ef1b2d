// Package backend is the client for the opaque automation backend: run start,
// event stream, history and résumé listing.
package backend

import (
	"context"

	"github.com/jonathan/job-agent/internal/types"
)

// StartRequest holds the parameters of a new run
type StartRequest struct {
	Job      types.JobDetails `json:"job"`
	ResumeID string           `json:"resumeId"`
	AutoMode bool             `json:"autoMode"`
}

// Stream is a cancellable sequence of messages for one run.
// Messages is closed when the stream ends; Err then reports why
// (nil for a normal close).
type Stream interface {
	Messages() <-chan types.StreamMessage
	Err() error
	// Abandon stops delivery and releases the connection. Messages is closed
	// shortly after; Err reports nil for an abandoned stream.
	Abandon()
}

// Applications starts runs and reads their progress
type Applications interface {
	StartApplication(ctx context.Context, req StartRequest) (string, error)
	StreamApplicationEvents(ctx context.Context, id string) (Stream, error)
	FetchApplicationHistory(ctx context.Context, id string) (*types.ApplicationRecord, error)
}

// Resumes lists the user's stored résumés
type Resumes interface {
	ListResumes(ctx context.Context) ([]types.Resume, error)
}
