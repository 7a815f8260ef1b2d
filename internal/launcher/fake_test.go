package launcher

import (
	"context"
	"sync"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/types"
)

// fakeStream is a backend.Stream fed by the test
type fakeStream struct {
	msgs chan types.StreamMessage
	once sync.Once

	mu  sync.Mutex
	err error

	abandonMu sync.Mutex
	abandoned bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan types.StreamMessage, 16)}
}

func (s *fakeStream) Messages() <-chan types.StreamMessage { return s.msgs }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Abandon() {
	s.abandonMu.Lock()
	s.abandoned = true
	s.abandonMu.Unlock()
}

func (s *fakeStream) wasAbandoned() bool {
	s.abandonMu.Lock()
	defer s.abandonMu.Unlock()
	return s.abandoned
}

func (s *fakeStream) send(msg types.StreamMessage) { s.msgs <- msg }

// end closes the stream with err (nil for a normal end)
func (s *fakeStream) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.msgs)
	})
}

type fakeApps struct {
	mu        sync.Mutex
	startErr  error
	streamErr error
	id        string
	stream    *fakeStream
	starts    []backend.StartRequest
}

func (f *fakeApps) StartApplication(_ context.Context, req backend.StartRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.id, nil
}

func (f *fakeApps) StreamApplicationEvents(_ context.Context, _ string) (backend.Stream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

func (f *fakeApps) FetchApplicationHistory(_ context.Context, id string) (*types.ApplicationRecord, error) {
	return nil, &backend.NotFoundError{Resource: "application", ID: id}
}

func (f *fakeApps) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}
