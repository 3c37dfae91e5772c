package cmds

import (
	"io"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/pkg/errors"
)

const defaultTranscriptTemplate = `# {{ .Title }}
Conversation {{ .ThreadID }} ({{ .Tenant }}), exported {{ .ExportedAt | date "2006-01-02 15:04" }}

{{ range .Messages -}}
**{{ .Role | title }}** [{{ .Index }}]:

{{ .Content | trim }}
{{ range .References }}
- [{{ default .URL .Title }}]({{ .URL }})
{{- end }}

---
{{ end -}}
`

type TranscriptData struct {
	ThreadID   string
	Tenant     string
	Title      string
	ExportedAt time.Time
	Messages   []TranscriptMessage
}

type TranscriptMessage struct {
	Index      int
	Role       string
	Content    string
	References []transcript.Reference
}

func newTranscriptData(threadID, tenant, title string, msgs []*transcript.Message, resolve func(transcript.Reference) string) TranscriptData {
	ret := TranscriptData{
		ThreadID:   threadID,
		Tenant:     tenant,
		Title:      title,
		ExportedAt: time.Now(),
	}
	for idx, m := range msgs {
		refs := make([]transcript.Reference, 0, len(m.References))
		for _, ref := range m.References {
			refs = append(refs, transcript.Reference{URL: resolve(ref), Title: ref.Title})
		}
		ret.Messages = append(ret.Messages, TranscriptMessage{
			Index:      idx,
			Role:       string(m.Role),
			Content:    m.Content,
			References: refs,
		})
	}
	return ret
}

func renderTranscript(w io.Writer, tpl string, data TranscriptData) error {
	if tpl == "" {
		tpl = defaultTranscriptTemplate
	}
	t, err := template.New("transcript").Funcs(sprig.TxtFuncMap()).Parse(tpl)
	if err != nil {
		return errors.Wrap(err, "could not parse transcript template")
	}
	return t.Execute(w, data)
}
