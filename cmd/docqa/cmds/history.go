package cmds

import (
	"os"

	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/go-go-golems/docqa/pkg/viewer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <thread-id>",
		Short: "Export the transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			threadID := args[0]
			if err := threads.ValidateThreadID(threadID); err != nil {
				return err
			}

			tpl := ""
			if path, _ := cmd.Flags().GetString("template"); path != "" {
				b, err := os.ReadFile(path)
				if err != nil {
					return errors.Wrap(err, "could not read template")
				}
				tpl = string(b)
			}

			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.logRequests()

			registry, err := env.openRegistry("")
			if err != nil {
				return err
			}
			defer func() {
				if err := registry.Close(); err != nil {
					log.Error().Err(err).Msg("could not close thread store")
				}
			}()

			entries, err := env.client.History(ctx, threadID, env.settings.Tenant)
			if err != nil {
				return err
			}
			codec := transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{}))
			msgs := codec.Decode(entries)

			v := viewer.NewSynchronizer(viewer.WithBaseURL(env.settings.ViewerBaseURL))
			data := newTranscriptData(threadID, env.settings.Tenant, registry.Title(ctx, threadID), msgs, v.ResolveURL)
			return renderTranscript(cmd.OutOrStdout(), tpl, data)
		},
	}
	cmd.Flags().String("template", "", "text/template file (sprig functions available)")
	return cmd
}
