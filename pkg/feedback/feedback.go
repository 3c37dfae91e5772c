package feedback

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyRecorded is returned when the same polarity is submitted twice.
	// Nothing is sent.
	ErrAlreadyRecorded = errors.New("feedback already recorded")
	ErrCancelled       = errors.New("feedback cancelled")
	ErrInFlight        = errors.New("feedback submission in progress")
	ErrNotAnAnswer     = errors.New("feedback can only be attached to assistant messages")
)

// CommentQuestion is asked before negative feedback is submitted.
const CommentQuestion = "What was wrong with this answer? (optional)"

type Submitter interface {
	SubmitFeedback(ctx context.Context, req backend.FeedbackRequest) error
}

var _ Submitter = (*backend.Client)(nil)

// Attachment is the feedback state of one answer. Once a polarity has been
// recorded, submitting it again is refused; the opposite polarity replaces
// the local state on success.
type Attachment struct {
	mu             sync.Mutex
	submitter      Submitter
	conversationID string
	clientID       string
	userID         string
	question       string
	answer         string
	recorded       backend.FeedbackType
	inFlight       bool
}

type Option func(*Attachment)

func WithUserID(userID string) Option {
	return func(a *Attachment) {
		a.userID = userID
	}
}

func NewAttachment(submitter Submitter, conversationID, clientID, question, answer string, options ...Option) *Attachment {
	ret := &Attachment{
		submitter:      submitter,
		conversationID: conversationID,
		clientID:       clientID,
		question:       question,
		answer:         answer,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// ForMessage attaches feedback to msgs[idx], taking the question from the
// message or the user message before it.
func ForMessage(submitter Submitter, conversationID, clientID string, msgs []*transcript.Message, idx int, options ...Option) (*Attachment, error) {
	if idx < 0 || idx >= len(msgs) || msgs[idx].Role != transcript.RoleAssistant {
		return nil, ErrNotAnAnswer
	}
	return NewAttachment(submitter, conversationID, clientID,
		transcript.QuestionFor(msgs, idx), msgs[idx].Answer(), options...), nil
}

func (a *Attachment) Recorded() backend.FeedbackType {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recorded
}

// CanSubmit reports whether the button for t is enabled.
func (a *Attachment) CanSubmit(t backend.FeedbackType) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.inFlight && a.recorded != t
}

func (a *Attachment) ThumbsUp(ctx context.Context) error {
	return a.submit(ctx, backend.FeedbackThumbsUp, nil)
}

// ThumbsDown asks commenter for an optional comment and submits unless the
// user cancels.
func (a *Attachment) ThumbsDown(ctx context.Context, commenter prompt.Commenter) error {
	if !a.CanSubmit(backend.FeedbackThumbsDown) {
		return a.refusal()
	}
	comment, ok, err := commenter.Comment(ctx, CommentQuestion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	var c *string
	if comment != "" {
		c = &comment
	}
	return a.submit(ctx, backend.FeedbackThumbsDown, c)
}

func (a *Attachment) refusal() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight {
		return ErrInFlight
	}
	return ErrAlreadyRecorded
}

func (a *Attachment) submit(ctx context.Context, t backend.FeedbackType, comment *string) error {
	a.mu.Lock()
	if a.inFlight {
		a.mu.Unlock()
		return ErrInFlight
	}
	if a.recorded == t {
		a.mu.Unlock()
		return ErrAlreadyRecorded
	}
	a.inFlight = true
	req := backend.FeedbackRequest{
		ConversationID: a.conversationID,
		ClientID:       a.clientID,
		Question:       a.question,
		Answer:         a.answer,
		FeedbackType:   t,
		Comment:        comment,
	}
	if a.userID != "" {
		userID := a.userID
		req.UserID = &userID
	}
	a.mu.Unlock()

	err := a.submitter.SubmitFeedback(ctx, req)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight = false
	if err != nil {
		log.Error().Err(err).Str("conversation", a.conversationID).Str("feedback_type", string(t)).Msg("could not submit feedback")
		return err
	}
	a.recorded = t
	log.Debug().Str("conversation", a.conversationID).Str("feedback_type", string(t)).Msg("feedback recorded")
	return nil
}

// Tracker hands out one Attachment per message of a conversation.
type Tracker struct {
	mu             sync.Mutex
	submitter      Submitter
	conversationID string
	clientID       string
	options        []Option
	attachments    map[uuid.UUID]*Attachment
}

func NewTracker(submitter Submitter, conversationID, clientID string, options ...Option) *Tracker {
	return &Tracker{
		submitter:      submitter,
		conversationID: conversationID,
		clientID:       clientID,
		options:        options,
		attachments:    map[uuid.UUID]*Attachment{},
	}
}

func (t *Tracker) ConversationID() string {
	return t.conversationID
}

// For returns the attachment of msgs[idx], creating it on first use.
func (t *Tracker) For(msgs []*transcript.Message, idx int) (*Attachment, error) {
	if idx < 0 || idx >= len(msgs) {
		return nil, ErrNotAnAnswer
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.attachments[msgs[idx].ID]; ok {
		return a, nil
	}
	a, err := ForMessage(t.submitter, t.conversationID, t.clientID, msgs, idx, t.options...)
	if err != nil {
		return nil, err
	}
	t.attachments[msgs[idx].ID] = a
	return a, nil
}
