package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/events"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
)

type errMsg error

type loadedMsg struct{}

type sentMsg struct {
	answer *transcript.Message
	err    error
}

type threadsMsg struct {
	threads []threads.Thread
}

type switchedMsg struct {
	err error
}

type deletedMsg struct {
	result threads.DeleteResult
	err    error
}

type feedbackMsg struct {
	polarity backend.FeedbackType
	err      error
}

// EventMsg carries an event published by the session or the viewer into the
// program.
type EventMsg struct {
	Event *events.Event
}

// EventForwardFunc returns a router handler that forwards every event to p.
func EventForwardFunc(p *tea.Program) func(ctx context.Context, e *events.Event) error {
	return func(_ context.Context, e *events.Event) error {
		p.Send(EventMsg{Event: e})
		return nil
	}
}
