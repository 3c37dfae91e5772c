package cmds

import (
	"context"
	"io"
	"os"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/config"
	"github.com/go-go-golems/docqa/pkg/feedback"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const renderWidth = 80

// environment is what every backend command needs: resolved settings, the
// stored credentials and an instrumented client.
type environment struct {
	settings *config.Settings
	creds    *config.Credentials
	client   *backend.Client
	registry *prometheus.Registry
}

func newEnvironment() (*environment, error) {
	creds, err := config.LoadCredentials(config.DefaultCredentialsPath())
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable credentials")
		creds = nil
	}

	settings, err := config.FromViper(viper.GetViper(), creds)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := backend.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	client, err := backend.NewClient(settings.BaseURL,
		backend.WithTimeout(settings.Timeout),
		backend.WithToken(settings.Token),
		backend.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("base_url", settings.BaseURL).
		Str("tenant", settings.Tenant).
		Str("store", string(settings.Store)).
		Str("store_path", settings.StorePath).
		Msg("environment ready")

	return &environment{
		settings: settings,
		creds:    creds,
		client:   client,
		registry: reg,
	}, nil
}

// openRegistry opens the thread store, optionally resuming threadID.
func (e *environment) openRegistry(threadID string) (*threads.Registry, error) {
	var options []threads.RegistryOption
	if threadID != "" {
		if err := threads.ValidateThreadID(threadID); err != nil {
			return nil, err
		}
		options = append(options, threads.WithActiveThread(threadID))
	}

	store, err := e.settings.OpenStore()
	if err != nil {
		return nil, errors.Wrap(err, "could not open thread store")
	}
	registry, err := threads.NewRegistry(store, e.settings.Tenant, options...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return registry, nil
}

func (e *environment) feedbackOptions() []feedback.Option {
	if e.settings.UserID == "" {
		return nil
	}
	return []feedback.Option{feedback.WithUserID(e.settings.UserID)}
}

// logRequests logs the request counters gathered during the command.
func (e *environment) logRequests() {
	families, err := e.registry.Gather()
	if err != nil {
		log.Debug().Err(err).Msg("could not gather request metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil {
				continue
			}
			ev := log.Debug().Str("metric", mf.GetName())
			for _, l := range m.GetLabel() {
				ev = ev.Str(l.GetName(), l.GetValue())
			}
			ev.Float64("value", c.GetValue()).Msg("backend requests")
		}
	}
}

// terminalCodec renders answers for the terminal, falling back to the raw
// markdown when output is not a terminal.
func terminalCodec() *transcript.Codec {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))
	}
	r, err := transcript.NewTerminalRenderer(renderWidth, "auto")
	if err != nil {
		log.Warn().Err(err).Msg("falling back to plain output")
		return transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))
	}
	return transcript.NewCodec(transcript.WithRenderer(r))
}

// withTerminal runs f with a prompt on the controlling terminal.
func withTerminal(f func(t *prompt.Terminal) error) error {
	tty, err := prompt.OpenTTY()
	if err != nil {
		return errors.Wrap(err, "could not open terminal")
	}
	defer func() {
		if err := tty.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close tty")
		}
	}()
	return f(prompt.NewTerminal(tty, tty))
}

// askIfEmpty prompts for value on the terminal unless it is already set.
func askIfEmpty(ctx context.Context, value *string, question string, secret bool) error {
	if *value != "" {
		return nil
	}
	return withTerminal(func(t *prompt.Terminal) error {
		answer, err := t.Ask(ctx, question, secret)
		if err != nil {
			return err
		}
		*value = answer
		return nil
	})
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func printReferences(w io.Writer, refs []transcript.Reference, resolve func(transcript.Reference) string) error {
	for i, ref := range refs {
		title := ref.Title
		if title == "" {
			title = ref.URL
		}
		if _, err := io.WriteString(w, formatReference(i+1, title, resolve(ref))); err != nil {
			return err
		}
	}
	return nil
}
