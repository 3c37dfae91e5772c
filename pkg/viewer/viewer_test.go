package viewer

import (
	"sync"
	"testing"

	"github.com/go-go-golems/docqa/pkg/events"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingSink) Publish(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := []events.EventType{}
	for _, e := range r.events {
		ret = append(ret, e.Type)
	}
	return ret
}

func TestOpenLastWriterWins(t *testing.T) {
	s := NewSynchronizer()
	_, ok := s.Current()
	assert.False(t, ok)

	s.Open(transcript.Reference{URL: "/a", Title: "A"})
	s.Open(transcript.Reference{URL: "/b", Title: "B"})

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, transcript.Reference{URL: "/b", Title: "B"}, cur)

	s.Close()
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestAutoOpenFirstReference(t *testing.T) {
	codec := transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))
	s := NewSynchronizer()

	msgs := codec.Decode([]transcript.Entry{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "answer", References: []transcript.Reference{{URL: "/a", Title: "A"}, {URL: "/z"}}},
	})
	assert.True(t, s.AutoOpen(msgs...))
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, transcript.Reference{URL: "/a", Title: "A"}, cur)
}

func TestAutoOpenWithoutReferencesLeavesViewerUnchanged(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynchronizer(WithSink(sink))
	s.Open(transcript.Reference{URL: "/previous"})

	msgs := []*transcript.Message{
		transcript.NewUserMessage("hi"),
		{Role: transcript.RoleAssistant, Content: "no refs", References: []transcript.Reference{}},
	}
	assert.False(t, s.AutoOpen(msgs...))

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "/previous", cur.URL)
	assert.Equal(t, []events.EventType{events.EventTypeViewerOpened}, sink.types())
}

func TestResetPublishesOnlyWhenOpen(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynchronizer(WithSink(sink))

	s.Reset()
	assert.Empty(t, sink.types())

	s.Open(transcript.Reference{URL: "/a"})
	s.Reset()
	s.Close()
	assert.Equal(t, []events.EventType{
		events.EventTypeViewerOpened,
		events.EventTypeViewerReset,
		events.EventTypeViewerClosed,
	}, sink.types())
}

func TestResolveURL(t *testing.T) {
	s := NewSynchronizer(WithBaseURL("https://docs.example.com/"))
	assert.Equal(t, "https://docs.example.com/files/a.pdf", s.ResolveURL(transcript.Reference{URL: "/files/a.pdf"}))
	assert.Equal(t, "https://docs.example.com/files/a.pdf", s.ResolveURL(transcript.Reference{URL: "files/a.pdf"}))
	assert.Equal(t, "https://cdn.example.com/x.pdf", s.ResolveURL(transcript.Reference{URL: "https://cdn.example.com/x.pdf"}))
	assert.Equal(t, "", s.ResolveURL(transcript.Reference{}))

	assert.Equal(t, "/files/a.pdf", ResolveURL("", "/files/a.pdf"))
	assert.Equal(t, "", ResolveURL("https://docs.example.com", "javascript:alert(1)"))
}

func TestResolveURLBelowBasePath(t *testing.T) {
	assert.Equal(t, "http://h/docs/files/a.pdf", ResolveURL("http://h/docs", "/files/a.pdf"))
	assert.Equal(t, "http://h/docs/a%20b.pdf", ResolveURL("http://h/docs/", "a%20b.pdf"))
	assert.Equal(t, "http://h/x", ResolveURL("http://h/docs/", "../x"))
	assert.Equal(t, "http://h/docs/a.pdf?page=2#p3", ResolveURL("http://h/docs/", "./a.pdf?page=2#p3"))
}
