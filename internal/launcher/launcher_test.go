package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/types"
)

func validRequest() Request {
	return Request{
		Job:      types.JobDetails{Title: "Platform Engineer", Description: "Go and Kubernetes"},
		Resume:   &types.Resume{ID: "cv-1"},
		AutoMode: true,
	}
}

func newTestLauncher(apps backend.Applications) *Launcher {
	return New(apps, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// recorder collects callback invocations
type recorder struct {
	mu           sync.Mutex
	started      []string
	errs         []error
	messages     []types.StreamMessage
	streamErrors []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStarted: func(id string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.started = append(r.started, id)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnMessage: func(msg types.StreamMessage) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, msg)
		},
		OnStreamError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.streamErrors = append(r.streamErrors, err)
		},
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not finish")
	}
}

func eventMsg(eventType string) types.StreamMessage {
	return types.StreamMessage{Kind: types.MessageEvent, Event: &types.EventPayload{EventType: eventType, EventStatus: "done"}}
}

func TestStart_ValidationFailureMakesNoRequest(t *testing.T) {
	tests := []struct {
		name string
		req  func() Request
	}{
		{"missing title", func() Request { r := validRequest(); r.Job.Title = ""; return r }},
		{"missing description and url", func() Request { r := validRequest(); r.Job.Description = ""; return r }},
		{"bad url", func() Request { r := validRequest(); r.Job.URL = "not a url"; return r }},
		{"missing resume", func() Request { r := validRequest(); r.Resume = nil; return r }},
		{"resume without id", func() Request { r := validRequest(); r.Resume = &types.Resume{}; return r }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps := &fakeApps{id: "app-1", stream: newFakeStream()}
			rec := &recorder{}

			h, err := newTestLauncher(apps).Start(context.Background(), tt.req(), rec.callbacks())

			require.Error(t, err)
			assert.Nil(t, h)
			assert.True(t, backend.IsValidation(err))
			require.Len(t, rec.errs, 1)
			assert.Same(t, err, rec.errs[0])
			assert.Empty(t, rec.started)
			assert.Equal(t, 0, apps.startCount())
		})
	}
}

func TestStart_URLReplacesDescription(t *testing.T) {
	req := validRequest()
	req.Job.Description = ""
	req.Job.URL = "https://jobs.example/42"

	assert.NoError(t, newTestLauncher(&fakeApps{}).Validate(req))
}

func TestStart_BackendErrorFiresOnErrorOnce(t *testing.T) {
	apps := &fakeApps{startErr: &backend.AuthError{Message: "no credential present"}}
	rec := &recorder{}

	h, err := newTestLauncher(apps).Start(context.Background(), validRequest(), rec.callbacks())

	assert.Nil(t, h)
	assert.True(t, backend.IsAuth(err))
	assert.Len(t, rec.errs, 1)
	assert.Empty(t, rec.started)
	assert.Empty(t, rec.streamErrors)
}

func TestStart_PumpsMessagesInOrder(t *testing.T) {
	stream := newFakeStream()
	apps := &fakeApps{id: "app-1", stream: stream}
	rec := &recorder{}

	h, err := newTestLauncher(apps).Start(context.Background(), validRequest(), rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, "app-1", h.ApplicationID)

	stream.send(eventMsg("job_linked"))
	stream.send(eventMsg("resume_created"))
	stream.send(types.StreamMessage{Kind: types.MessageFinish})
	stream.end(nil)
	waitDone(t, h)

	assert.Equal(t, []string{"app-1"}, rec.started)
	require.Len(t, rec.messages, 3)
	assert.Equal(t, "job_linked", rec.messages[0].Event.EventType)
	assert.Equal(t, "resume_created", rec.messages[1].Event.EventType)
	assert.Equal(t, types.MessageFinish, rec.messages[2].Kind)
	assert.Empty(t, rec.streamErrors)

	require.Len(t, apps.starts, 1)
	assert.Equal(t, "cv-1", apps.starts[0].ResumeID)
	assert.True(t, apps.starts[0].AutoMode)
}

func TestStart_TransportErrorDeliveredOnce(t *testing.T) {
	stream := newFakeStream()
	rec := &recorder{}

	h, err := newTestLauncher(&fakeApps{id: "app-1", stream: stream}).Start(context.Background(), validRequest(), rec.callbacks())
	require.NoError(t, err)

	stream.send(eventMsg("job_linked"))
	stream.end(&backend.TransportError{Op: "stream app-1", Cause: errors.New("reset")})
	waitDone(t, h)

	assert.Len(t, rec.messages, 1)
	require.Len(t, rec.streamErrors, 1)
	assert.True(t, backend.IsTransport(rec.streamErrors[0]))
}

func TestStart_SubscribeFailure(t *testing.T) {
	apps := &fakeApps{id: "app-1", streamErr: &backend.TransportError{Op: "stream", Cause: io.EOF}}
	rec := &recorder{}

	h, err := newTestLauncher(apps).Start(context.Background(), validRequest(), rec.callbacks())

	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, []string{"app-1"}, rec.started)
	assert.Len(t, rec.streamErrors, 1)
	assert.Empty(t, rec.errs)
}

func TestHandle_AbandonStopsDelivery(t *testing.T) {
	stream := newFakeStream()
	rec := &recorder{}

	h, err := newTestLauncher(&fakeApps{id: "app-1", stream: stream}).Start(context.Background(), validRequest(), rec.callbacks())
	require.NoError(t, err)

	stream.send(eventMsg("job_linked"))
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.messages) == 1
	}, time.Second, 5*time.Millisecond)

	h.Abandon()
	h.Abandon()
	assert.True(t, h.Abandoned())
	assert.True(t, stream.wasAbandoned())

	stream.send(eventMsg("resume_created"))
	stream.end(&backend.TransportError{Op: "stream", Cause: io.EOF})
	waitDone(t, h)

	assert.Len(t, rec.messages, 1)
	assert.Empty(t, rec.streamErrors)
}

func TestHandle_NilAbandonIsSafe(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, h.Abandon)
	assert.False(t, h.Abandoned())
}
