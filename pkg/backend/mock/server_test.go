package mock

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, options ...Option) (*Server, *backend.Client) {
	s := NewServer(options...)
	hs := httptest.NewServer(s.Router())
	t.Cleanup(hs.Close)
	c, err := backend.NewClient(hs.URL)
	require.NoError(t, err)
	return s, c
}

func TestAskStoresCitationCarrier(t *testing.T) {
	ctx := context.Background()
	_, c := newTestServer(t, WithDocuments(DefaultDocuments()...))

	resp, err := c.Ask(ctx, backend.AskRequest{Question: "What is the leave policy?", ClientID: "rsms", ConversationID: "c_1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "What is the leave policy?")
	require.Len(t, resp.References, 2)
	assert.Equal(t, "/docs/leave-policy.pdf", resp.References[0].URL)

	entries, err := c.History(ctx, "c_1", "rsms")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, transcript.RoleUser, entries[0].Role)
	assert.Equal(t, transcript.RoleAssistant, entries[1].Role)

	msgs := transcript.NewCodec().Decode(entries)
	first := transcript.FirstWithReferences(msgs)
	require.NotNil(t, first)
	assert.Equal(t, resp.References, first.References)

	other, err := c.History(ctx, "c_1", "other-tenant")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAskWithoutMatchingDocuments(t *testing.T) {
	_, c := newTestServer(t, WithDocuments(DefaultDocuments()...))
	resp, err := c.Ask(context.Background(), backend.AskRequest{Question: "hello", ClientID: "rsms", ConversationID: "c_2"})
	require.NoError(t, err)
	assert.Empty(t, resp.References)

	entries, err := c.History(context.Background(), "c_2", "rsms")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAskFailureMarker(t *testing.T) {
	_, c := newTestServer(t)
	_, err := c.Ask(context.Background(), backend.AskRequest{Question: "please " + FailMarker, ClientID: "rsms", ConversationID: "c_1"})
	require.Error(t, err)
	assert.Equal(t, "rate limited", backend.Detail(err))
}

func TestFeedbackDashboard(t *testing.T) {
	ctx := context.Background()
	s, c := newTestServer(t)

	comment := "wrong document"
	for _, req := range []backend.FeedbackRequest{
		{ConversationID: "c_1", ClientID: "rsms", Question: "q1", Answer: "a1", FeedbackType: backend.FeedbackThumbsUp},
		{ConversationID: "c_1", ClientID: "rsms", Question: "q2", Answer: "a2", FeedbackType: backend.FeedbackThumbsUp},
		{ConversationID: "c_2", ClientID: "rsms", Question: "q3", Answer: "a3", FeedbackType: backend.FeedbackThumbsDown, Comment: &comment},
		{ConversationID: "c_9", ClientID: "other", Question: "q", Answer: "a", FeedbackType: backend.FeedbackThumbsDown},
	} {
		require.NoError(t, c.SubmitFeedback(ctx, req))
	}
	assert.Len(t, s.Feedback(), 4)

	d, err := c.FeedbackDashboard(ctx, backend.DashboardQuery{ClientID: "rsms"})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Stats.TotalFeedback)
	assert.Equal(t, 2, d.Stats.ThumbsUpCount)
	assert.Equal(t, 1, d.Stats.ThumbsDownCount)
	assert.Equal(t, 66.67, d.Stats.ThumbsUpPercentage)
	assert.Len(t, d.Items, 3)
	assert.Equal(t, 1, d.TotalPages)

	d, err = c.FeedbackDashboard(ctx, backend.DashboardQuery{ClientID: "rsms", FeedbackType: backend.FeedbackThumbsDown})
	require.NoError(t, err)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "wrong document", *d.Items[0].Comment)

	d, err = c.FeedbackDashboard(ctx, backend.DashboardQuery{ClientID: "rsms", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, d.Items, 1)
	assert.Equal(t, 2, d.TotalPages)
	assert.Equal(t, 2, d.CurrentPage)
}

func TestAccountFlow(t *testing.T) {
	ctx := context.Background()
	_, c := newTestServer(t, WithUser("rsms", "alice", "alice@example.com", "secret"))

	resp, err := c.Login(ctx, backend.LoginRequest{Username: "alice", Password: "secret", Domain: "rsms"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = c.Login(ctx, backend.LoginRequest{Username: "alice@example.com", Password: "secret", Domain: "rsms"})
	require.NoError(t, err)

	_, err = c.Login(ctx, backend.LoginRequest{Username: "alice", Password: "nope", Domain: "rsms"})
	apiErr, ok := backend.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid credentials", apiErr.Detail)

	err = c.Register(ctx, backend.RegisterRequest{UserID: "bob", Email: "bob@example.com", Password: "pw", Confirm: "pw", Domain: "rsms"})
	require.NoError(t, err)
	err = c.Register(ctx, backend.RegisterRequest{UserID: "bob", Email: "bob@example.com", Password: "pw", Confirm: "pw", Domain: "rsms"})
	assert.Equal(t, "user already exists", backend.Detail(err))
	err = c.Register(ctx, backend.RegisterRequest{UserID: "carol", Email: "c@example.com", Password: "pw", Confirm: "other", Domain: "rsms"})
	assert.True(t, errors.Is(err, backend.ErrPasswordMismatch))

	_, err = c.Login(ctx, backend.LoginRequest{Username: "bob", Password: "pw", Domain: "rsms"})
	require.NoError(t, err)

	require.NoError(t, c.ForgotPassword(ctx, "bob@example.com"))
}
