package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/types"
)

type fakeStream struct {
	msgs      chan types.StreamMessage
	once      sync.Once
	abandoned atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan types.StreamMessage, 32)}
}

func (s *fakeStream) Messages() <-chan types.StreamMessage { return s.msgs }
func (s *fakeStream) Err() error                          { return nil }
func (s *fakeStream) Abandon() {
	s.abandoned.Store(true)
	s.end()
}

func (s *fakeStream) send(msgs ...types.StreamMessage) {
	for _, m := range msgs {
		s.msgs <- m
	}
}

func (s *fakeStream) end() {
	s.once.Do(func() { close(s.msgs) })
}

// fakeBackend implements Backend and records forwarded credentials
type fakeBackend struct {
	mu      sync.Mutex
	starts  []backend.StartRequest
	tokens  []string
	streams []*fakeStream
	records map[string]*types.ApplicationRecord
	resumes []types.Resume
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[string]*types.ApplicationRecord)}
}

func (f *fakeBackend) StartApplication(ctx context.Context, req backend.StartRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	f.tokens = append(f.tokens, backend.TokenFromContext(ctx))
	return fmt.Sprintf("app-%d", len(f.starts)), nil
}

func (f *fakeBackend) StreamApplicationEvents(_ context.Context, _ string) (backend.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeBackend) FetchApplicationHistory(_ context.Context, id string) (*types.ApplicationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, &backend.NotFoundError{Resource: "application", ID: id}
	}
	return record, nil
}

func (f *fakeBackend) ListResumes(_ context.Context) ([]types.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes, nil
}

func (f *fakeBackend) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeBackend) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeBackend) lastStart() (backend.StartRequest, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.starts)
	return f.starts[n-1], f.tokens[n-1]
}
