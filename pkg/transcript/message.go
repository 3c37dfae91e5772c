package transcript

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Reference is a citation into a source document. URL is an opaque path that
// the viewer resolves against its base URL.
type Reference struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
}

func (r Reference) IsZero() bool {
	return r.URL == "" && r.Title == ""
}

// Entry is one element of a persisted backend history record.
type Entry struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	References []Reference `json:"references,omitempty"`
}

// Message is a decoded transcript entry.
//
// Content is rendered for assistant messages and raw for user messages. It is
// empty for messages reconstructed from a citation carrier. Raw keeps the
// undecoded text (the markdown answer or the user's question).
type Message struct {
	ID         uuid.UUID   `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Raw        string      `json:"raw,omitempty"`
	References []Reference `json:"references,omitempty"`
	// Question is the user question this message answers. It is only set on
	// freshly produced assistant messages.
	Question string `json:"question,omitempty"`
}

func NewUserMessage(text string) *Message {
	return &Message{
		ID:      uuid.New(),
		Role:    RoleUser,
		Content: text,
		Raw:     text,
	}
}

func (m *Message) HasReferences() bool {
	return m != nil && len(m.References) > 0
}

// Answer returns the text feedback should be attached to.
func (m *Message) Answer() string {
	if m.Raw != "" {
		return m.Raw
	}
	return m.Content
}

func (m *Message) IsCitationOnly() bool {
	return m.Role == RoleAssistant && strings.TrimSpace(m.Content) == "" && len(m.References) > 0
}

type PayloadType string

const (
	PayloadTypeProse     PayloadType = "prose"
	PayloadTypeCitations PayloadType = "citations"
)

// Payload is the content of an assistant entry: either markdown prose or a
// citation carrier holding anchor markup.
type Payload interface {
	PayloadType() PayloadType
}

type ProsePayload struct {
	Markdown   string
	References []Reference
}

func (p *ProsePayload) PayloadType() PayloadType {
	return PayloadTypeProse
}

var _ Payload = (*ProsePayload)(nil)

type CitationPayload struct {
	Markup string
}

func (p *CitationPayload) PayloadType() PayloadType {
	return PayloadTypeCitations
}

var _ Payload = (*CitationPayload)(nil)

// Classify splits an assistant entry into its payload variant.
func Classify(e Entry) Payload {
	if strings.HasPrefix(e.Content, CitationPrefix) {
		return &CitationPayload{Markup: strings.TrimPrefix(e.Content, CitationPrefix)}
	}
	return &ProsePayload{Markdown: e.Content, References: e.References}
}

// NewErrorMessage is the assistant message shown in place of a failed answer.
func NewErrorMessage(question string, detail string) *Message {
	text := "Error: " + detail
	return &Message{
		ID:         uuid.New(),
		Role:       RoleAssistant,
		Content:    text,
		Raw:        text,
		References: []Reference{},
		Question:   question,
	}
}
