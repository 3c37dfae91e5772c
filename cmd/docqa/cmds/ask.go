package cmds

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/docqa/pkg/session"
	"github.com/go-go-golems/docqa/pkg/viewer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			threadID, _ := cmd.Flags().GetString("thread")

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

			v := viewer.NewSynchronizer(viewer.WithBaseURL(env.settings.ViewerBaseURL))
			s := session.New(env.client, registry,
				session.WithViewer(v),
				session.WithCodec(terminalCodec()),
			)

			answer, err := s.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if answer == nil {
				return nil
			}

			out := cmd.OutOrStdout()
			_, err = fmt.Fprintln(out, strings.TrimRight(answer.Content, "\n"))
			if err != nil {
				return err
			}
			if err := printReferences(out, answer.References, v.ResolveURL); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", s.ThreadID())
			return err
		},
	}
	cmd.Flags().String("thread", "", "Continue a conversation")
	return cmd
}

func formatReference(n int, title string, url string) string {
	return fmt.Sprintf("[%d] %s <%s>\n", n, title, url)
}
