package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/types"
)

type fakeStream struct {
	msgs chan types.StreamMessage
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan types.StreamMessage, 32)}
}

func (s *fakeStream) Messages() <-chan types.StreamMessage { return s.msgs }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Abandon() {}

func (s *fakeStream) send(msgs ...types.StreamMessage) {
	for _, m := range msgs {
		s.msgs <- m
	}
}

func (s *fakeStream) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.msgs)
	})
}

// fakeBackend implements backend.Applications and backend.Resumes
type fakeBackend struct {
	mu         sync.Mutex
	startErr   error
	starts     []backend.StartRequest
	streams    []*fakeStream
	records    map[string]*types.ApplicationRecord
	fetchErr   error
	fetchCalls int
	fetchGate  chan struct{}
	allowToken string
	resumes    []types.Resume
	resumesErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[string]*types.ApplicationRecord)}
}

func (f *fakeBackend) StartApplication(_ context.Context, req backend.StartRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts = append(f.starts, req)
	return fmt.Sprintf("app-%d", len(f.starts)), nil
}

func (f *fakeBackend) StreamApplicationEvents(_ context.Context, _ string) (backend.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeBackend) FetchApplicationHistory(ctx context.Context, id string) (*types.ApplicationRecord, error) {
	f.mu.Lock()
	f.fetchCalls++
	gate := f.fetchGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.allowToken != "" && backend.TokenFromContext(ctx) != f.allowToken {
		return nil, &backend.AuthError{Message: "application belongs to another user"}
	}
	record, ok := f.records[id]
	if !ok {
		return nil, &backend.NotFoundError{Resource: "application", ID: id}
	}
	return record, nil
}

func (f *fakeBackend) ListResumes(_ context.Context) ([]types.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes, f.resumesErr
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

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// fakePending is a hand-off slot
type fakePending struct {
	mu      sync.Mutex
	job     *types.PendingJob
	readErr error
	taken   int
}

func (p *fakePending) TakePendingJob(_ context.Context) (*types.PendingJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.taken++
	job := p.job
	p.job = nil
	return job, p.readErr
}
