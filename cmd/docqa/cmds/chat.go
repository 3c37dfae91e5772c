package cmds

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/docqa/pkg/events"
	"github.com/go-go-golems/docqa/pkg/session"
	"github.com/go-go-golems/docqa/pkg/ui"
	"github.com/go-go-golems/docqa/pkg/viewer"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about your documents in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, _ := cmd.Flags().GetString("thread")
			return runChat(cmd.Context(), threadID)
		},
	}
	cmd.Flags().String("thread", "", "Resume a conversation")
	return cmd
}

func runChat(ctx context.Context, threadID string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.logRequests()

	registry, err := env.openRegistry(threadID)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error().Err(err).Msg("could not close thread store")
		}
	}()

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()
	sink := router.Sink()

	v := viewer.NewSynchronizer(
		viewer.WithBaseURL(env.settings.ViewerBaseURL),
		viewer.WithSink(sink),
	)
	s := session.New(env.client, registry,
		session.WithViewer(v),
		session.WithCodec(terminalCodec()),
		session.WithSink(sink),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	isOutputTerminal := isatty.IsTerminal(os.Stdout.Fd())
	options := []tea.ProgramOption{
		tea.WithMouseCellMotion(), // turn on mouse support so we can track the mouse wheel
		tea.WithContext(ctx),
	}
	if !isOutputTerminal {
		options = append(options, tea.WithOutput(os.Stderr))
	} else {
		options = append(options, tea.WithAltScreen())
	}

	p := tea.NewProgram(
		ui.NewModel(ctx, s, v, env.client, ui.WithFeedbackOptions(env.feedbackOptions()...)),
		options...,
	)

	forward := ui.EventForwardFunc(p)
	router.AddEventHandler("ui-viewer", events.TopicViewer, forward)
	router.AddEventHandler("ui-session", events.TopicSession, forward)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(egCtx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-egCtx.Done():
			return nil
		}
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	err = eg.Wait()
	log.Debug().Str("thread", s.ThreadID()).Msg("chat finished")
	return err
}
