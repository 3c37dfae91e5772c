package viewer

import (
	"net/url"
	"strings"
	"sync"

	"github.com/go-go-golems/docqa/pkg/events"
	"github.com/go-go-golems/docqa/pkg/security"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/rs/zerolog/log"
)

// Synchronizer owns the single reference shown by the document viewer. Open
// replaces it unconditionally, the last caller wins.
type Synchronizer struct {
	mu      sync.Mutex
	current *transcript.Reference
	baseURL string
	sink    events.Sink
}

type Option func(*Synchronizer)

func WithBaseURL(baseURL string) Option {
	return func(s *Synchronizer) {
		s.baseURL = baseURL
	}
}

// WithSink publishes every slot change to sink.
func WithSink(sink events.Sink) Option {
	return func(s *Synchronizer) {
		s.sink = sink
	}
}

func NewSynchronizer(options ...Option) *Synchronizer {
	ret := &Synchronizer{
		sink: events.NopSink{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *Synchronizer) Open(ref transcript.Reference) {
	s.mu.Lock()
	r := ref
	s.current = &r
	s.mu.Unlock()

	log.Debug().Str("url", ref.URL).Str("title", ref.Title).Msg("viewer opened reference")
	events.PublishBlind(s.sink, &events.Event{Type: events.EventTypeViewerOpened, Reference: &r})
}

// Close is the user dismissing the document.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	events.PublishBlind(s.sink, &events.Event{Type: events.EventTypeViewerClosed})
}

// Reset returns the viewer to its empty state when a different thread is
// activated.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	wasOpen := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if wasOpen {
		events.PublishBlind(s.sink, &events.Event{Type: events.EventTypeViewerReset})
	}
}

func (s *Synchronizer) Current() (transcript.Reference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return transcript.Reference{}, false
	}
	return *s.current, true
}

// AutoOpen opens the first reference of the first message carrying any. It
// leaves the viewer untouched when no message has references.
func (s *Synchronizer) AutoOpen(msgs ...*transcript.Message) bool {
	m := transcript.FirstWithReferences(msgs)
	if m == nil {
		return false
	}
	s.Open(m.References[0])
	return true
}

// ResolveURL resolves a reference URL against the viewer base URL. Absolute
// URLs are returned unchanged, relative ones are resolved below the base path.
func (s *Synchronizer) ResolveURL(ref transcript.Reference) string {
	return ResolveURL(s.baseURL, ref.URL)
}

// Absolute URLs other than http(s) resolve to "".
func ResolveURL(baseURL string, ref string) string {
	if ref == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err == nil && u.IsAbs() {
		if err := security.ValidateURL(ref, security.DocumentPolicy); err != nil {
			log.Warn().Err(err).Str("url", ref).Msg("refusing document url")
			return ""
		}
		return ref
	}
	if baseURL == "" {
		return ref
	}

	// References are relative to the base directory, even with a leading
	// slash.
	base, berr := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	rel, rerr := url.Parse(strings.TrimLeft(ref, "/"))
	if berr != nil || rerr != nil {
		log.Warn().Str("base", baseURL).Str("url", ref).Msg("could not resolve document url")
		return ""
	}
	return base.ResolveReference(rel).String()
}
