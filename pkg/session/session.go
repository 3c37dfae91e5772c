package session

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/events"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateSending State = "sending"
)

// DeleteQuestion is asked before a thread is deleted.
const DeleteQuestion = "Delete this conversation?"

// Backend is the part of the backend API a session needs.
type Backend interface {
	History(ctx context.Context, conversationID string, clientID string) ([]transcript.Entry, error)
	Ask(ctx context.Context, req backend.AskRequest) (*backend.AskResponse, error)
}

var _ Backend = (*backend.Client)(nil)

// Viewer is the document pane a session drives.
type Viewer interface {
	Open(ref transcript.Reference)
	Reset()
	AutoOpen(msgs ...*transcript.Message) bool
}

// Session coordinates the active conversation: it loads transcripts, sends
// questions, titles threads and keeps the viewer in sync.
//
// Every load is tagged with a generation. A load that completes after a newer
// one was started is dropped, and so is an answer for a thread that is no
// longer active.
type Session struct {
	mu         sync.Mutex
	// viewMu orders viewer updates against thread changes. It is taken
	// before mu.
	viewMu     sync.Mutex
	backend    Backend
	registry   *threads.Registry
	codec      *transcript.Codec
	viewer     Viewer
	sink       events.Sink
	threadID   string
	generation uint64
	loading    bool
	pending    int
	messages   []*transcript.Message
}

type Option func(*Session)

func WithCodec(codec *transcript.Codec) Option {
	return func(s *Session) {
		s.codec = codec
	}
}

func WithViewer(v Viewer) Option {
	return func(s *Session) {
		s.viewer = v
	}
}

func WithSink(sink events.Sink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

func New(b Backend, registry *threads.Registry, options ...Option) *Session {
	ret := &Session{
		backend:  b,
		registry: registry,
		codec:    transcript.NewCodec(),
		viewer:   nopViewer{},
		sink:     events.NopSink{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *Session) Tenant() string {
	return s.registry.Tenant()
}

func (s *Session) Registry() *threads.Registry {
	return s.registry
}

func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadID == "" {
		return s.registry.Active()
	}
	return s.threadID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.loading:
		return StateLoading
	case s.pending > 0:
		return StateSending
	case s.generation == 0 && len(s.messages) == 0:
		return StateIdle
	default:
		return StateReady
	}
}

// Messages returns a snapshot of the transcript.
func (s *Session) Messages() []*transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*transcript.Message{}, s.messages...)
}

func (s *Session) Message(id uuid.UUID) (*transcript.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Load fetches the transcript of the registry's active thread and replaces
// the message list with it. Failures leave the transcript empty. Messages sent
// while the load was in flight are kept after the loaded history.
func (s *Session) Load(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	threadID := s.registry.Active()
	s.threadID = threadID
	s.messages = nil
	s.loading = true
	s.mu.Unlock()
	s.publishState(threadID)

	entries, err := s.backend.History(ctx, threadID, s.Tenant())
	if err != nil {
		log.Warn().Err(err).Str("thread", threadID).Msg("could not load history")
		entries = nil
	}
	msgs := s.codec.Decode(entries)

	s.viewMu.Lock()
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.viewMu.Unlock()
		log.Debug().Str("thread", threadID).Uint64("generation", gen).Msg("dropping stale history load")
		return
	}
	s.messages = append(msgs, s.messages...)
	s.loading = false
	s.mu.Unlock()
	s.viewer.AutoOpen(msgs...)
	s.viewMu.Unlock()

	log.Debug().Str("thread", threadID).Int("messages", len(msgs)).Msg("history loaded")
	s.publishState(threadID)
}

// Send appends the trimmed question, asks the backend and appends the answer.
// A failed request appends an error message instead of returning an error.
// The returned message is nil when the answer arrived for a thread that is no
// longer active.
func (s *Session) Send(ctx context.Context, text string) (*transcript.Message, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return nil, ErrBlankInput
	}

	s.mu.Lock()
	if s.threadID == "" {
		s.threadID = s.registry.Active()
	}
	threadID := s.threadID
	userMsg := transcript.NewUserMessage(question)
	s.messages = append(s.messages, userMsg)
	s.pending++
	s.mu.Unlock()
	s.publishAppended(threadID, userMsg)

	if _, err := s.registry.RecordFirstTitle(ctx, threadID, question); err != nil {
		log.Warn().Err(err).Str("thread", threadID).Msg("could not record thread title")
	} else {
		events.PublishBlind(s.sink, &events.Event{Type: events.EventTypeThreadsChanged, ThreadID: threadID})
	}

	var answer *transcript.Message
	resp, err := s.backend.Ask(ctx, backend.AskRequest{
		Question:       question,
		ClientID:       s.Tenant(),
		ConversationID: threadID,
	})
	if err != nil {
		log.Warn().Err(err).Str("thread", threadID).Msg("ask failed")
		answer = transcript.NewErrorMessage(question, backend.Detail(err))
	} else {
		answer = s.codec.NewAnswer(question, resp.Answer, resp.References)
	}

	s.viewMu.Lock()
	s.mu.Lock()
	s.pending--
	if s.threadID != threadID {
		s.mu.Unlock()
		s.viewMu.Unlock()
		log.Debug().Str("thread", threadID).Msg("dropping answer for inactive thread")
		return nil, nil
	}
	s.messages = append(s.messages, answer)
	s.mu.Unlock()
	if answer.HasReferences() {
		s.viewer.Open(answer.References[0])
	}
	s.viewMu.Unlock()

	s.publishAppended(threadID, answer)
	return answer, nil
}

// SwitchThread activates id and loads its transcript. Switching to the
// loaded thread does nothing.
func (s *Session) SwitchThread(ctx context.Context, id string) error {
	s.mu.Lock()
	current := s.threadID
	s.mu.Unlock()
	if id == current {
		return nil
	}
	if err := s.registry.Activate(id); err != nil {
		return err
	}
	s.leaveThread(id)
	s.Load(ctx)
	return nil
}

// leaveThread invalidates in-flight loads and answers of the previous thread
// and clears the viewer. A viewer update already past its staleness check
// completes before the reset.
func (s *Session) leaveThread(id string) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.mu.Lock()
	s.generation++
	s.threadID = id
	s.mu.Unlock()
	s.viewer.Reset()
}

// NewThread starts a fresh conversation and returns its id.
func (s *Session) NewThread(ctx context.Context) string {
	id := s.registry.NewThread()
	s.leaveThread(id)
	s.Load(ctx)
	return id
}

// DeleteThread removes a thread after confirmation. Deleting the active
// thread switches to a new one.
func (s *Session) DeleteThread(ctx context.Context, id string, confirmer prompt.Confirmer) (threads.DeleteResult, error) {
	ok, err := confirmer.Confirm(ctx, DeleteQuestion)
	if err != nil {
		return threads.DeleteResult{}, err
	}
	if !ok {
		return threads.DeleteResult{}, ErrNotConfirmed
	}

	res, err := s.registry.Delete(ctx, id)
	if err != nil {
		return res, err
	}
	events.PublishBlind(s.sink, &events.Event{Type: events.EventTypeThreadsChanged, ThreadID: id})

	if res.WasActive {
		s.leaveThread(res.Active)
		s.Load(ctx)
	}
	return res, nil
}

// Threads lists the tenant's threads including the active one.
func (s *Session) Threads(ctx context.Context) []threads.Thread {
	return s.registry.List(ctx)
}

func (s *Session) publishState(threadID string) {
	events.PublishBlind(s.sink, &events.Event{
		Type:     events.EventTypeSessionState,
		ThreadID: threadID,
		State:    string(s.State()),
	})
}

func (s *Session) publishAppended(threadID string, m *transcript.Message) {
	events.PublishBlind(s.sink, &events.Event{
		Type:      events.EventTypeMessageAppended,
		ThreadID:  threadID,
		MessageID: m.ID.String(),
	})
}

type nopViewer struct{}

func (nopViewer) Open(transcript.Reference)            {}
func (nopViewer) Reset()                               {}
func (nopViewer) AutoOpen(...*transcript.Message) bool { return false }
