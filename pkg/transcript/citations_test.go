package transcript

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCitationsDocumentOrder(t *testing.T) {
	markup := `<div><a class="ref-link" data-url="/docs/a.pdf" data-title="A">A</a>` +
		`<p>text</p><a class="ref-link extra" data-url="/docs/b.pdf" data-title="B">B</a></div>`

	refs := ParseCitations(markup)
	require.Len(t, refs, 2)
	assert.Equal(t, Reference{URL: "/docs/a.pdf", Title: "A"}, refs[0])
	assert.Equal(t, Reference{URL: "/docs/b.pdf", Title: "B"}, refs[1])
}

func TestParseCitationsCountMatchesAnchors(t *testing.T) {
	for _, n := range []int{0, 1, 3, 17} {
		t.Run(fmt.Sprintf("%d anchors", n), func(t *testing.T) {
			var sb strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&sb, `<a class="ref-link" data-url="/d/%d" data-title="T%d">x</a>`, i, i)
			}
			refs := ParseCitations(sb.String())
			require.Len(t, refs, n)
			for i, ref := range refs {
				assert.Equal(t, fmt.Sprintf("/d/%d", i), ref.URL)
			}
		})
	}
}

func TestParseCitationsMissingAttributes(t *testing.T) {
	refs := ParseCitations(`<a class="ref-link" data-url="/only-url">x</a><a class="ref-link" data-title="Only title">y</a>`)
	require.Len(t, refs, 2)
	assert.Equal(t, Reference{URL: "/only-url"}, refs[0])
	assert.Equal(t, Reference{Title: "Only title"}, refs[1])
}

func TestParseCitationsIgnoresOtherAnchors(t *testing.T) {
	refs := ParseCitations(`<a href="/x" data-url="/x">plain</a><span class="ref-link" data-url="/y"></span>`)
	assert.Empty(t, refs)
	assert.NotNil(t, refs)
}

func TestParseCitationsMalformedMarkup(t *testing.T) {
	for _, markup := range []string{"", "   ", "<<<div", "no markup at all", `<a class="ref-link" data-url="/unterminated`} {
		assert.NotPanics(t, func() {
			refs := ParseCitations(markup)
			assert.NotNil(t, refs)
		})
	}
}

func TestEncodeCitationsIsParsedBack(t *testing.T) {
	refs := []Reference{
		{URL: "/docs/policy.pdf#page=3", Title: `Policy "X" & more`},
		{URL: "/docs/untitled.pdf"},
	}
	encoded := EncodeCitations(refs)
	require.True(t, strings.HasPrefix(encoded, CitationPrefix))

	p, ok := Classify(Entry{Role: RoleAssistant, Content: encoded}).(*CitationPayload)
	require.True(t, ok)
	assert.Equal(t, refs, ParseCitations(p.Markup))
}
