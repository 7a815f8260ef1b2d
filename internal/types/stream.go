package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MessageKind is the discriminant of a StreamMessage
type MessageKind string

const (
	MessageEvent  MessageKind = "event"
	MessageStatus MessageKind = "status"
	MessageFinish MessageKind = "finish"
	MessageResult MessageKind = "result"
)

// EventDone is the only event status that marks a step as completed
const EventDone = "done"

// StreamMessage is one unit received while a run is active.
// Exactly one payload pointer is set, matching Kind; finish carries none.
type StreamMessage struct {
	Kind          MessageKind
	ApplicationID string
	Event         *EventPayload
	Status        *StatusPayload
	Result        *ResultPayload
}

// EventPayload is a discrete automation step
type EventPayload struct {
	EventID     string    `json:"eventId"`
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"eventType"`
	EventStatus string    `json:"eventStatus"`
}

// StatusPayload is informational only
type StatusPayload struct {
	Status string `json:"status"`
}

// ResultPayload carries enrichment for entries that were already rendered
type ResultPayload struct {
	Job       *JobSnapshot
	Documents []Document
}

// MalformedMessageError reports a stream frame with an unrecognized shape
type MalformedMessageError struct {
	Reason string
	Cause  error
}

func (e *MalformedMessageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed stream message: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed stream message: %s", e.Reason)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Cause
}

type wireMessage struct {
	Type          string          `json:"type"`
	ApplicationID string          `json:"applicationId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type wireEvent struct {
	EventID     string          `json:"eventId"`
	Timestamp   json.RawMessage `json:"timestamp"`
	EventType   string          `json:"eventType"`
	EventStatus string          `json:"eventStatus"`
}

type wireResult struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Location    string     `json:"location,omitempty"`
	Company     string     `json:"company,omitempty"`
	URL         string     `json:"url,omitempty"`
	Documents   []Document `json:"documents,omitempty"`
}

// DecodeStreamMessage parses one wire frame.
// Unknown discriminants and unusable payloads yield a *MalformedMessageError.
func DecodeStreamMessage(raw []byte) (StreamMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return StreamMessage{}, &MalformedMessageError{Reason: "invalid JSON", Cause: err}
	}

	msg := StreamMessage{Kind: MessageKind(w.Type), ApplicationID: w.ApplicationID}
	switch msg.Kind {
	case MessageEvent:
		var ev wireEvent
		if err := unmarshalData(w.Data, &ev); err != nil {
			return StreamMessage{}, err
		}
		if ev.EventType == "" {
			return StreamMessage{}, &MalformedMessageError{Reason: "event without eventType"}
		}
		ts, err := parseTimestamp(ev.Timestamp)
		if err != nil {
			return StreamMessage{}, &MalformedMessageError{Reason: "bad event timestamp", Cause: err}
		}
		msg.Event = &EventPayload{
			EventID:     ev.EventID,
			Timestamp:   ts,
			EventType:   ev.EventType,
			EventStatus: ev.EventStatus,
		}
	case MessageStatus:
		var st StatusPayload
		if err := unmarshalData(w.Data, &st); err != nil {
			return StreamMessage{}, err
		}
		msg.Status = &st
	case MessageFinish:
	case MessageResult:
		var res wireResult
		if err := unmarshalData(w.Data, &res); err != nil {
			return StreamMessage{}, err
		}
		payload := &ResultPayload{Documents: res.Documents}
		job := &JobSnapshot{
			Title:       res.Title,
			Description: res.Description,
			Origin:      res.Origin,
			Location:    res.Location,
			Company:     res.Company,
			URL:         res.URL,
		}
		if !job.IsEmpty() {
			payload.Job = job
		}
		msg.Result = payload
	case "":
		return StreamMessage{}, &MalformedMessageError{Reason: "missing type"}
	default:
		return StreamMessage{}, &MalformedMessageError{Reason: fmt.Sprintf("unknown type %q", w.Type)}
	}
	return msg, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &MalformedMessageError{Reason: "missing data"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &MalformedMessageError{Reason: "invalid data", Cause: err}
	}
	return nil
}

// parseTimestamp accepts RFC 3339 strings and epoch milliseconds.
// An absent timestamp is the zero time; the reconciler substitutes receipt time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// EncodeStreamMessage renders a message in wire form. Used by fakes and tests.
func EncodeStreamMessage(msg StreamMessage) ([]byte, error) {
	w := wireMessage{Type: string(msg.Kind), ApplicationID: msg.ApplicationID}
	var data any
	switch msg.Kind {
	case MessageEvent:
		if msg.Event != nil {
			data = msg.Event
		}
	case MessageStatus:
		if msg.Status != nil {
			data = msg.Status
		}
	case MessageResult:
		if msg.Result != nil {
			res := wireResult{Documents: msg.Result.Documents}
			if msg.Result.Job != nil {
				res.Title = msg.Result.Job.Title
				res.Description = msg.Result.Job.Description
				res.Origin = msg.Result.Job.Origin
				res.Location = msg.Result.Job.Location
				res.Company = msg.Result.Job.Company
				res.URL = msg.Result.Job.URL
			}
			data = res
		}
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		w.Data = b
	}
	return json.Marshal(w)
}
