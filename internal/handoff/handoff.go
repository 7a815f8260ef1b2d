// Package handoff passes a pending job from the screen that prepared it to
// the session that starts the run. Payloads are single use.
package handoff

import (
	"context"
	"sync"

	"github.com/jonathan/job-agent/internal/types"
)

// Store keeps at most one pending job per key
type Store interface {
	Put(ctx context.Context, key string, job types.PendingJob) error
	// Read returns nil, nil when the key holds nothing
	Read(ctx context.Context, key string) (*types.PendingJob, error)
	// Take removes and returns the pending job in one step, so two
	// concurrent callers never both receive it. nil, nil when empty.
	Take(ctx context.Context, key string) (*types.PendingJob, error)
}

// Slot binds a Store to one key, giving the single-use slot a session consumes
type Slot struct {
	Store Store
	Key   string
}

// TakePendingJob empties the slot and returns what it held, or nil
func (s Slot) TakePendingJob(ctx context.Context) (*types.PendingJob, error) {
	return s.Store.Take(ctx, s.Key)
}

// Memory is an in-process Store
type Memory struct {
	mu   sync.Mutex
	jobs map[string]types.PendingJob
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]types.PendingJob)}
}

func (m *Memory) Put(_ context.Context, key string, job types.PendingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[key] = clonePending(job)
	return nil
}

func (m *Memory) Read(_ context.Context, key string) (*types.PendingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[key]
	if !ok {
		return nil, nil
	}
	out := clonePending(job)
	return &out, nil
}

func (m *Memory) Take(_ context.Context, key string) (*types.PendingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[key]
	if !ok {
		return nil, nil
	}
	delete(m.jobs, key)
	return &job, nil
}

func clonePending(job types.PendingJob) types.PendingJob {
	out := types.PendingJob{AutoMode: job.AutoMode}
	if job.Job != nil {
		j := *job.Job
		out.Job = &j
	}
	if job.Resume != nil {
		r := *job.Resume
		out.Resume = &r
	}
	return out
}
