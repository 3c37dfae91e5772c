package feedback

import (
	"context"
	"sync"
	"testing"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	requests []backend.FeedbackRequest
	err      error
}

func (r *recordingSubmitter) SubmitFeedback(_ context.Context, req backend.FeedbackRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.requests = append(r.requests, req)
	return nil
}

func TestThumbsUpOnceOnly(t *testing.T) {
	ctx := context.Background()
	sub := &recordingSubmitter{}
	a := NewAttachment(sub, "c_1", "rsms", "q", "a", WithUserID("alice"))

	assert.True(t, a.CanSubmit(backend.FeedbackThumbsUp))
	require.NoError(t, a.ThumbsUp(ctx))
	assert.Equal(t, backend.FeedbackThumbsUp, a.Recorded())
	assert.False(t, a.CanSubmit(backend.FeedbackThumbsUp))
	assert.True(t, a.CanSubmit(backend.FeedbackThumbsDown))

	assert.ErrorIs(t, a.ThumbsUp(ctx), ErrAlreadyRecorded)
	require.Len(t, sub.requests, 1)

	req := sub.requests[0]
	assert.Equal(t, "c_1", req.ConversationID)
	assert.Equal(t, "rsms", req.ClientID)
	assert.Equal(t, "q", req.Question)
	assert.Equal(t, "a", req.Answer)
	assert.Equal(t, backend.FeedbackThumbsUp, req.FeedbackType)
	assert.Nil(t, req.Comment)
	require.NotNil(t, req.UserID)
	assert.Equal(t, "alice", *req.UserID)
}

func TestOppositePolarityOverwritesLocalState(t *testing.T) {
	ctx := context.Background()
	sub := &recordingSubmitter{}
	a := NewAttachment(sub, "c_1", "rsms", "q", "a")

	require.NoError(t, a.ThumbsUp(ctx))
	require.NoError(t, a.ThumbsDown(ctx, prompt.StaticComment{Text: "outdated"}))
	assert.Equal(t, backend.FeedbackThumbsDown, a.Recorded())
	require.NoError(t, a.ThumbsUp(ctx))
	assert.Equal(t, backend.FeedbackThumbsUp, a.Recorded())

	require.Len(t, sub.requests, 3)
	require.NotNil(t, sub.requests[1].Comment)
	assert.Equal(t, "outdated", *sub.requests[1].Comment)
	assert.Nil(t, sub.requests[1].UserID)
}

func TestThumbsDownCancelled(t *testing.T) {
	sub := &recordingSubmitter{}
	a := NewAttachment(sub, "c_1", "rsms", "q", "a")

	assert.ErrorIs(t, a.ThumbsDown(context.Background(), prompt.StaticComment{Cancelled: true}), ErrCancelled)
	assert.Empty(t, sub.requests)
	assert.Equal(t, backend.FeedbackType(""), a.Recorded())
}

func TestThumbsDownEmptyCommentIsNull(t *testing.T) {
	sub := &recordingSubmitter{}
	a := NewAttachment(sub, "c_1", "rsms", "q", "a")

	require.NoError(t, a.ThumbsDown(context.Background(), prompt.StaticComment{}))
	require.Len(t, sub.requests, 1)
	assert.Nil(t, sub.requests[0].Comment)
	assert.ErrorIs(t, a.ThumbsDown(context.Background(), prompt.StaticComment{}), ErrAlreadyRecorded)
}

func TestFailedSubmissionLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	sub := &recordingSubmitter{err: &backend.APIError{StatusCode: 500, Detail: "down"}}
	a := NewAttachment(sub, "c_1", "rsms", "q", "a")

	assert.Error(t, a.ThumbsUp(ctx))
	assert.Equal(t, backend.FeedbackType(""), a.Recorded())
	assert.True(t, a.CanSubmit(backend.FeedbackThumbsUp))

	sub.err = nil
	require.NoError(t, a.ThumbsUp(ctx))
	assert.Equal(t, backend.FeedbackThumbsUp, a.Recorded())
}

func TestTrackerAttachesToAnswers(t *testing.T) {
	codec := transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))
	msgs := codec.Decode([]transcript.Entry{
		{Role: transcript.RoleUser, Content: "what about leave?"},
		{Role: transcript.RoleAssistant, Content: "**20 days**"},
	})
	sub := &recordingSubmitter{}
	tracker := NewTracker(sub, "c_1", "rsms")

	_, err := tracker.For(msgs, 0)
	assert.ErrorIs(t, err, ErrNotAnAnswer)
	_, err = tracker.For(msgs, 5)
	assert.ErrorIs(t, err, ErrNotAnAnswer)

	a, err := tracker.For(msgs, 1)
	require.NoError(t, err)
	again, err := tracker.For(msgs, 1)
	require.NoError(t, err)
	assert.Same(t, a, again)

	require.NoError(t, a.ThumbsUp(context.Background()))
	require.Len(t, sub.requests, 1)
	assert.Equal(t, "what about leave?", sub.requests[0].Question)
	assert.Equal(t, "**20 days**", sub.requests[0].Answer)
}
