package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/go-go-golems/docqa/pkg/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	histories map[string][]transcript.Entry
	historyOK bool
	gates     map[string]chan struct{}
	started   chan string
	askFn     func(req backend.AskRequest) (*backend.AskResponse, error)
	asks      []backend.AskRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		histories: map[string][]transcript.Entry{},
		historyOK: true,
		gates:     map[string]chan struct{}{},
		started:   make(chan string, 16),
	}
}

func (f *fakeBackend) History(_ context.Context, conversationID string, clientID string) ([]transcript.Entry, error) {
	f.mu.Lock()
	gate := f.gates[conversationID]
	f.mu.Unlock()

	f.started <- conversationID
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.historyOK {
		return nil, &backend.APIError{StatusCode: 500, Detail: "boom"}
	}
	return f.histories[conversationID], nil
}

func (f *fakeBackend) Ask(_ context.Context, req backend.AskRequest) (*backend.AskResponse, error) {
	f.mu.Lock()
	f.asks = append(f.asks, req)
	fn := f.askFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &backend.AskResponse{Answer: "answer to " + req.Question, References: []transcript.Reference{}}, nil
}

func (f *fakeBackend) askCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.asks)
}

type fixture struct {
	backend  *fakeBackend
	registry *threads.Registry
	viewer   *viewer.Synchronizer
	session  *Session
}

func newFixture(t *testing.T, active string) *fixture {
	fb := newFakeBackend()
	registry, err := threads.NewRegistry(threads.NewInMemoryStore(), "rsms", threads.WithActiveThread(active))
	require.NoError(t, err)
	v := viewer.NewSynchronizer()
	s := New(fb, registry,
		WithViewer(v),
		WithCodec(transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))),
	)
	return &fixture{backend: fb, registry: registry, viewer: v, session: s}
}

func TestLoadDecodesAndAutoOpensFirstReference(t *testing.T) {
	f := newFixture(t, "c_thread01")
	f.backend.histories["c_thread01"] = []transcript.Entry{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello"},
		{Role: transcript.RoleAssistant, Content: `[REFS]<a class="ref-link" data-url="/a" data-title="A">A</a>`},
	}
	assert.Equal(t, StateIdle, f.session.State())

	f.session.Load(context.Background())

	assert.Equal(t, StateReady, f.session.State())
	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	cur, ok := f.viewer.Current()
	require.True(t, ok)
	assert.Equal(t, transcript.Reference{URL: "/a", Title: "A"}, cur)
}

func TestLoadWithoutReferencesLeavesViewerUnchanged(t *testing.T) {
	f := newFixture(t, "c_thread01")
	f.backend.histories["c_thread01"] = []transcript.Entry{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello", References: []transcript.Reference{}},
	}
	f.viewer.Open(transcript.Reference{URL: "/kept"})

	f.session.Load(context.Background())

	cur, ok := f.viewer.Current()
	require.True(t, ok)
	assert.Equal(t, "/kept", cur.URL)
}

func TestLoadFailureIsSoft(t *testing.T) {
	f := newFixture(t, "c_thread01")
	f.backend.historyOK = false

	f.session.Load(context.Background())

	assert.Equal(t, StateReady, f.session.State())
	assert.Empty(t, f.session.Messages())

	_, err := f.session.Send(context.Background(), "still usable?")
	require.NoError(t, err)
	assert.Len(t, f.session.Messages(), 2)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_slow0001")
	f.backend.histories["c_slow0001"] = []transcript.Entry{{Role: transcript.RoleUser, Content: "from the slow thread"}}
	f.backend.histories["c_fast0001"] = []transcript.Entry{{Role: transcript.RoleUser, Content: "from the fast thread"}}
	gate := make(chan struct{})
	f.backend.gates["c_slow0001"] = gate

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.session.Load(ctx)
	}()
	require.Equal(t, "c_slow0001", <-f.backend.started)
	assert.Equal(t, StateLoading, f.session.State())

	require.NoError(t, f.session.SwitchThread(ctx, "c_fast0001"))
	<-f.backend.started

	close(gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("slow load did not finish")
	}

	assert.Equal(t, "c_fast0001", f.session.ThreadID())
	msgs := f.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "from the fast thread", msgs[0].Content)
	assert.Equal(t, StateReady, f.session.State())
}

func TestSendDuringLoadAppendsAfterHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_thread01")
	f.backend.histories["c_thread01"] = []transcript.Entry{
		{Role: transcript.RoleUser, Content: "old question"},
		{Role: transcript.RoleAssistant, Content: "old answer"},
	}
	gate := make(chan struct{})
	f.backend.gates["c_thread01"] = gate

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.session.Load(ctx)
	}()
	<-f.backend.started

	_, err := f.session.Send(ctx, "new question")
	require.NoError(t, err)
	assert.Equal(t, StateLoading, f.session.State())

	close(gate)
	<-done

	var contents []string
	for _, m := range f.session.Messages() {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"old question", "old answer", "new question", "answer to new question"}, contents)
}

func TestSendBlankInputIsRejected(t *testing.T) {
	f := newFixture(t, "c_thread01")
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.session.Send(context.Background(), text)
		assert.ErrorIs(t, err, ErrBlankInput)
	}
	assert.Empty(t, f.session.Messages())
	assert.Equal(t, 0, f.backend.askCount())
	assert.Equal(t, StateIdle, f.session.State())
	assert.Empty(t, f.registry.Persisted(context.Background()))
}

func TestSendTitlesNewThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_brandnew")
	f.session.Load(ctx)

	msg, err := f.session.Send(ctx, "  What is the policy on X?  ")
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, "What is the policy on X?", msg.Question)
	assert.Equal(t, "answer to What is the policy on X?", msg.Raw)
	assert.Equal(t, "What is the policy on X?", f.registry.Title(ctx, "c_brandnew"))
	assert.Equal(t, []threads.Thread{{ID: "c_brandnew", Title: "What is the policy on X?"}}, f.registry.Persisted(ctx))

	_, err = f.session.Send(ctx, "A follow up question")
	require.NoError(t, err)
	assert.Equal(t, "What is the policy on X?", f.registry.Title(ctx, "c_brandnew"))

	require.Len(t, f.backend.asks, 2)
	assert.Equal(t, backend.AskRequest{Question: "What is the policy on X?", ClientID: "rsms", ConversationID: "c_brandnew"}, f.backend.asks[0])
	assert.Equal(t, StateReady, f.session.State())
}

func TestSendOpensFirstReferenceOfAnswer(t *testing.T) {
	f := newFixture(t, "c_thread01")
	f.backend.askFn = func(req backend.AskRequest) (*backend.AskResponse, error) {
		return &backend.AskResponse{
			Answer:     "see docs",
			References: []transcript.Reference{{URL: "/first", Title: "First"}, {URL: "/second"}},
		}, nil
	}
	f.viewer.Open(transcript.Reference{URL: "/old"})

	msg, err := f.session.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, msg.References, 2)

	cur, ok := f.viewer.Current()
	require.True(t, ok)
	assert.Equal(t, "/first", cur.URL)
}

func TestSendFailureAppendsErrorMessage(t *testing.T) {
	f := newFixture(t, "c_thread01")
	f.backend.askFn = func(req backend.AskRequest) (*backend.AskResponse, error) {
		return nil, &backend.APIError{StatusCode: 429, Detail: "rate limited"}
	}

	msg, err := f.session.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, transcript.RoleAssistant, msg.Role)
	assert.Equal(t, "Error: rate limited", msg.Content)
	assert.Empty(t, msg.References)

	f.backend.askFn = nil
	msg, err = f.session.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "answer to again", msg.Content)
	assert.Len(t, f.session.Messages(), 4)
}

func TestSendTransportFailureAppendsErrorMessage(t *testing.T) {
	f := newFixture(t, "c_thread01")
	f.backend.askFn = func(req backend.AskRequest) (*backend.AskResponse, error) {
		return nil, errors.New("connection refused")
	}

	msg, err := f.session.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Error: connection refused", msg.Content)
}

func TestAnswerForInactiveThreadIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_thread01")
	f.session.Load(ctx)
	<-f.backend.started

	release := make(chan struct{})
	asked := make(chan struct{})
	f.backend.askFn = func(req backend.AskRequest) (*backend.AskResponse, error) {
		close(asked)
		<-release
		return &backend.AskResponse{Answer: "late", References: []transcript.Reference{{URL: "/late"}}}, nil
	}

	result := make(chan *transcript.Message, 1)
	go func() {
		msg, _ := f.session.Send(ctx, "q")
		result <- msg
	}()
	<-asked

	f.backend.askFn = nil
	require.NoError(t, f.session.SwitchThread(ctx, "c_thread02"))
	<-f.backend.started
	close(release)

	assert.Nil(t, <-result)
	assert.Empty(t, f.session.Messages())
	_, ok := f.viewer.Current()
	assert.False(t, ok)
}

func TestSwitchThreadResetsViewer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_thread01")
	f.session.Load(ctx)
	f.viewer.Open(transcript.Reference{URL: "/a"})

	require.NoError(t, f.session.SwitchThread(ctx, "c_thread02"))
	_, ok := f.viewer.Current()
	assert.False(t, ok)
	assert.Equal(t, "c_thread02", f.registry.Active())

	assert.Error(t, f.session.SwitchThread(ctx, ""))
}

func TestNewThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_thread01")
	f.session.Load(ctx)
	_, err := f.session.Send(ctx, "first")
	require.NoError(t, err)

	id := f.session.NewThread(ctx)
	assert.NotEqual(t, "c_thread01", id)
	assert.Equal(t, id, f.session.ThreadID())
	assert.Empty(t, f.session.Messages())

	list := f.session.Threads(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, threads.Thread{ID: id, Title: threads.UntitledTitle}, list[1])
}

func TestDeleteThreadRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_thread01")
	f.session.Load(ctx)
	_, err := f.session.Send(ctx, "first")
	require.NoError(t, err)

	_, err = f.session.DeleteThread(ctx, "c_thread01", prompt.Static(false))
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Len(t, f.registry.Persisted(ctx), 1)

	res, err := f.session.DeleteThread(ctx, "c_thread01", prompt.Static(true))
	require.NoError(t, err)
	assert.True(t, res.WasActive)
	assert.NotEqual(t, "c_thread01", f.session.ThreadID())
	assert.Equal(t, res.Active, f.session.ThreadID())
	assert.Empty(t, f.session.Messages())
	assert.Empty(t, f.registry.Persisted(ctx))
}

func TestDeleteInactiveThreadKeepsTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "c_thread01")
	_, err := f.registry.RecordFirstTitle(ctx, "c_other001", "Other")
	require.NoError(t, err)
	f.session.Load(ctx)
	_, err = f.session.Send(ctx, "first")
	require.NoError(t, err)

	res, err := f.session.DeleteThread(ctx, "c_other001", prompt.Static(true))
	require.NoError(t, err)
	assert.False(t, res.WasActive)
	assert.Equal(t, "c_thread01", f.session.ThreadID())
	assert.Len(t, f.session.Messages(), 2)
}

// gatedViewer holds viewer opens until released so a thread change can be
// started while an open is in progress.
type gatedViewer struct {
	*viewer.Synchronizer
	entered chan struct{}
	release chan struct{}
}

func newGatedViewer() *gatedViewer {
	return &gatedViewer{
		Synchronizer: viewer.NewSynchronizer(),
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
}

func (g *gatedViewer) Open(ref transcript.Reference) {
	g.entered <- struct{}{}
	<-g.release
	g.Synchronizer.Open(ref)
}

func (g *gatedViewer) AutoOpen(msgs ...*transcript.Message) bool {
	if transcript.FirstWithReferences(msgs) == nil {
		return false
	}
	g.entered <- struct{}{}
	<-g.release
	return g.Synchronizer.AutoOpen(msgs...)
}

func newGatedFixture(t *testing.T, active string) (*fixture, *gatedViewer) {
	fb := newFakeBackend()
	registry, err := threads.NewRegistry(threads.NewInMemoryStore(), "rsms", threads.WithActiveThread(active))
	require.NoError(t, err)
	v := newGatedViewer()
	s := New(fb, registry,
		WithViewer(v),
		WithCodec(transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))),
	)
	return &fixture{backend: fb, registry: registry, viewer: v.Synchronizer, session: s}, v
}

func switchWhileOpening(t *testing.T, f *fixture, v *gatedViewer, run func()) {
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		run()
	}()
	select {
	case <-v.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("viewer was never opened")
	}

	switched := make(chan error, 1)
	go func() { switched <- f.session.SwitchThread(ctx, "c_thread02") }()
	time.Sleep(50 * time.Millisecond)
	close(v.release)

	<-done
	require.NoError(t, <-switched)

	assert.Equal(t, "c_thread02", f.session.ThreadID())
	_, ok := f.viewer.Current()
	assert.False(t, ok, "reference of the previous thread must not stay open")
}

func TestSwitchDuringLoadAutoOpenClearsViewer(t *testing.T) {
	f, v := newGatedFixture(t, "c_thread01")
	f.backend.histories["c_thread01"] = []transcript.Entry{
		{Role: transcript.RoleAssistant, Content: `[REFS]<a class="ref-link" data-url="/a" data-title="A">A</a>`},
	}

	switchWhileOpening(t, f, v, func() { f.session.Load(context.Background()) })
}

func TestSwitchDuringAnswerOpenClearsViewer(t *testing.T) {
	f, v := newGatedFixture(t, "c_thread01")
	f.session.Load(context.Background())
	<-f.backend.started
	f.backend.askFn = func(req backend.AskRequest) (*backend.AskResponse, error) {
		return &backend.AskResponse{Answer: "see", References: []transcript.Reference{{URL: "/b", Title: "B"}}}, nil
	}

	switchWhileOpening(t, f, v, func() {
		_, err := f.session.Send(context.Background(), "where?")
		assert.NoError(t, err)
	})
}

func TestLoadKeepsWellFormedHistoryEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"role":"user","content":"hi"},{"role":"assistant","content":"fine answer"},{"role":"assistant","content":"x","references":[{"url":5,"title":"A"}]}]`))
	}))
	t.Cleanup(server.Close)
	client, err := backend.NewClient(server.URL)
	require.NoError(t, err)

	registry, err := threads.NewRegistry(threads.NewInMemoryStore(), "rsms", threads.WithActiveThread("c_thread01"))
	require.NoError(t, err)
	s := New(client, registry, WithCodec(transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))))

	s.Load(context.Background())

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Contains(t, msgs[1].Content, "fine answer")
	assert.Contains(t, msgs[2].Content, "x")
	assert.Empty(t, msgs[2].References)
}
