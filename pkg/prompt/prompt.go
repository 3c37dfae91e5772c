package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/tcnksm/go-input"
)

// Confirmer asks the user to approve a deliberate action.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Commenter asks for an optional free text comment. ok is false when the
// user cancelled.
type Commenter interface {
	Comment(ctx context.Context, question string) (comment string, ok bool, err error)
}

// Static answers every confirmation with the same value.
type Static bool

func (s Static) Confirm(context.Context, string) (bool, error) {
	return bool(s), nil
}

var _ Confirmer = Static(true)

// StaticComment returns a fixed comment without asking.
type StaticComment struct {
	Text      string
	Cancelled bool
}

func (s StaticComment) Comment(context.Context, string) (string, bool, error) {
	if s.Cancelled {
		return "", false, nil
	}
	return s.Text, true, nil
}

var _ Commenter = StaticComment{}

// Terminal prompts on a terminal through go-input.
type Terminal struct {
	ui *input.UI
}

var _ Confirmer = (*Terminal)(nil)
var _ Commenter = (*Terminal)(nil)

func NewTerminal(w io.Writer, r io.Reader) *Terminal {
	return &Terminal{
		ui: &input.UI{
			Writer: w,
			Reader: r,
		},
	}
}

func (t *Terminal) Confirm(_ context.Context, question string) (bool, error) {
	answer, err := t.ui.Ask(question+" [y/n]", &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "yes", "n", "no":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "could not read confirmation")
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Comment asks for a comment, then for confirmation to submit it.
func (t *Terminal) Comment(ctx context.Context, question string) (string, bool, error) {
	comment, err := t.ui.Ask(question, &input.Options{
		Required:  false,
		HideOrder: true,
	})
	if err != nil {
		return "", false, errors.Wrap(err, "could not read comment")
	}
	ok, err := t.Confirm(ctx, "Submit feedback?")
	if err != nil || !ok {
		return "", false, err
	}
	return strings.TrimSpace(comment), true, nil
}

// Ask reads a required value. Secret values are masked, which needs the
// terminal to be an *os.File.
func (t *Terminal) Ask(_ context.Context, question string, secret bool) (string, error) {
	answer, err := t.ui.Ask(question, &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
		Mask:      secret,
	})
	if err != nil {
		return "", errors.Wrapf(err, "could not read %q", question)
	}
	return strings.TrimSpace(answer), nil
}
