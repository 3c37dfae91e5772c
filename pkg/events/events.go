package events

import (
	"encoding/json"

	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/pkg/errors"
)

const (
	TopicViewer  = "viewer"
	TopicSession = "session"
)

type EventType string

const (
	// viewer slot changes
	EventTypeViewerOpened EventType = "viewer-opened"
	EventTypeViewerClosed EventType = "viewer-closed"
	EventTypeViewerReset  EventType = "viewer-reset"

	// session progress
	EventTypeSessionState    EventType = "session-state"
	EventTypeMessageAppended EventType = "message-appended"
	EventTypeThreadsChanged  EventType = "threads-changed"
)

type Event struct {
	Type      EventType             `json:"type"`
	ThreadID  string                `json:"thread_id,omitempty"`
	State     string                `json:"state,omitempty"`
	MessageID string                `json:"message_id,omitempty"`
	Reference *transcript.Reference `json:"reference,omitempty"`
}

func (e *Event) Topic() string {
	switch e.Type {
	case EventTypeViewerOpened, EventTypeViewerClosed, EventTypeViewerReset:
		return TopicViewer
	default:
		return TopicSession
	}
}

func NewEventFromJson(b []byte) (*Event, error) {
	e := &Event{}
	if err := json.Unmarshal(b, e); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal event")
	}
	if e.Type == "" {
		return nil, errors.New("event has no type")
	}
	return e, nil
}

// Sink receives events. Publishing never blocks the caller on a consumer.
type Sink interface {
	Publish(e *Event) error
}

type NopSink struct{}

func (NopSink) Publish(*Event) error { return nil }

var _ Sink = NopSink{}
