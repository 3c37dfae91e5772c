package transcript

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Codec decodes backend history into messages. Decoding never fails: entries
// that cannot be understood degrade to the most conservative message.
type Codec struct {
	renderer Renderer
}

type CodecOption func(*Codec)

func WithRenderer(r Renderer) CodecOption {
	return func(c *Codec) {
		c.renderer = r
	}
}

func NewCodec(options ...CodecOption) *Codec {
	ret := &Codec{
		renderer: NewHTMLRenderer(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *Codec) Decode(entries []Entry) []*Message {
	ret := make([]*Message, 0, len(entries))
	for i, e := range entries {
		switch e.Role {
		case RoleUser:
			ret = append(ret, NewUserMessage(e.Content))
		case RoleAssistant:
			ret = append(ret, c.decodeAssistant(e))
		default:
			log.Warn().Int("index", i).Str("role", string(e.Role)).Msg("skipping transcript entry with unknown role")
		}
	}
	return ret
}

func (c *Codec) decodeAssistant(e Entry) *Message {
	msg := &Message{
		ID:   uuid.New(),
		Role: RoleAssistant,
	}

	switch p := Classify(e).(type) {
	case *CitationPayload:
		msg.References = ParseCitations(p.Markup)
		if len(msg.References) == 0 {
			log.Warn().Msg("citation entry carries no citation anchors")
		}
	case *ProsePayload:
		msg.Raw = p.Markdown
		msg.Content = c.RenderAnswer(p.Markdown)
		msg.References = p.References
	}

	return msg
}

// RenderAnswer renders markdown, falling back to the raw text if the renderer
// fails.
func (c *Codec) RenderAnswer(markdown string) string {
	rendered, err := c.renderer.Render(markdown)
	if err != nil {
		log.Warn().Err(err).Msg("could not render answer, using raw markdown")
		return markdown
	}
	return rendered
}

// NewAnswer builds a freshly produced assistant message.
func (c *Codec) NewAnswer(question string, answer string, refs []Reference) *Message {
	return &Message{
		ID:         uuid.New(),
		Role:       RoleAssistant,
		Content:    c.RenderAnswer(answer),
		Raw:        answer,
		References: refs,
		Question:   question,
	}
}

// FirstWithReferences returns the first message carrying at least one
// reference, or nil.
func FirstWithReferences(msgs []*Message) *Message {
	for _, m := range msgs {
		if m.HasReferences() {
			return m
		}
	}
	return nil
}

// QuestionFor returns the question answered by msgs[idx]: the message's own
// question if set, otherwise the nearest preceding user message.
func QuestionFor(msgs []*Message, idx int) string {
	if idx < 0 || idx >= len(msgs) {
		return ""
	}
	if q := msgs[idx].Question; q != "" {
		return q
	}
	for i := idx - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Raw
		}
	}
	return ""
}
