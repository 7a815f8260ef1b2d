//nolint:revive // types is a standard Go package name pattern
package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStreamMessage_Event(t *testing.T) {
	raw := `{"type":"event","applicationId":"app-1","data":{"eventId":"e1","timestamp":"2026-03-01T10:00:00Z","eventType":"job_linked","eventStatus":"done"}}`

	msg, err := DecodeStreamMessage([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, MessageEvent, msg.Kind)
	assert.Equal(t, "app-1", msg.ApplicationID)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "e1", msg.Event.EventID)
	assert.Equal(t, "job_linked", msg.Event.EventType)
	assert.Equal(t, "done", msg.Event.EventStatus)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), msg.Event.Timestamp)
}

func TestDecodeStreamMessage_EventEpochMillis(t *testing.T) {
	raw := `{"type":"event","data":{"eventType":"resume_created","eventStatus":"pending","timestamp":1700000000000}}`

	msg, err := DecodeStreamMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), msg.Event.Timestamp)
}

func TestDecodeStreamMessage_EventMissingTimestamp(t *testing.T) {
	msg, err := DecodeStreamMessage([]byte(`{"type":"event","data":{"eventType":"x"}}`))
	require.NoError(t, err)
	assert.True(t, msg.Event.Timestamp.IsZero())
}

func TestDecodeStreamMessage_StatusAndFinish(t *testing.T) {
	msg, err := DecodeStreamMessage([]byte(`{"type":"status","data":{"status":"running"}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageStatus, msg.Kind)
	assert.Equal(t, "running", msg.Status.Status)

	msg, err = DecodeStreamMessage([]byte(`{"type":"finish"}`))
	require.NoError(t, err)
	assert.Equal(t, MessageFinish, msg.Kind)
	assert.Nil(t, msg.Event)
	assert.Nil(t, msg.Result)
}

func TestDecodeStreamMessage_ResultJob(t *testing.T) {
	raw := `{"type":"result","data":{"title":"Backend Engineer","description":"<p>Go</p>","origin":"stepstone","location":"Berlin"}}`

	msg, err := DecodeStreamMessage([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, msg.Result)
	require.NotNil(t, msg.Result.Job)
	assert.Equal(t, "Backend Engineer", msg.Result.Job.Title)
	assert.Equal(t, "stepstone", msg.Result.Job.Origin)
	assert.Equal(t, "Berlin", msg.Result.Job.Location)
	assert.Empty(t, msg.Result.Documents)
}

func TestDecodeStreamMessage_ResultDocuments(t *testing.T) {
	raw := `{"type":"result","data":{"documents":[{"id":"d1","type":"resume","url":"https://x/d1"},{"id":"d2","type":"cover letter"}]}}`

	msg, err := DecodeStreamMessage([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, msg.Result.Job)
	require.Len(t, msg.Result.Documents, 2)
	assert.Equal(t, "d1", msg.Result.Documents[0].ID)
	assert.Equal(t, "cover letter", msg.Result.Documents[1].Type)
}

func TestDecodeStreamMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{oops`},
		{"missing type", `{"data":{}}`},
		{"unknown type", `{"type":"telemetry","data":{}}`},
		{"event without data", `{"type":"event"}`},
		{"event without type", `{"type":"event","data":{"eventStatus":"done"}}`},
		{"event bad timestamp", `{"type":"event","data":{"eventType":"x","timestamp":"yesterday"}}`},
		{"result null data", `{"type":"result","data":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStreamMessage([]byte(tt.raw))
			require.Error(t, err)
			var malformed *MalformedMessageError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}

func TestEncodeStreamMessage_DecodesBack(t *testing.T) {
	msg := StreamMessage{
		Kind:          MessageResult,
		ApplicationID: "app-9",
		Result: &ResultPayload{
			Job: &JobSnapshot{Title: "Data Engineer"},
		},
	}

	raw, err := EncodeStreamMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeStreamMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "app-9", decoded.ApplicationID)
	require.NotNil(t, decoded.Result.Job)
	assert.Equal(t, "Data Engineer", decoded.Result.Job.Title)
}
