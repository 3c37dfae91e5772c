package cmds

import (
	"fmt"
	"strconv"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/feedback"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewFeedbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <thread-id> <message-index>",
		Short: "Rate an answer of a conversation",
		Long: "Rate an answer of a conversation. Message indexes are the ones printed by " +
			"`docqa history`.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			threadID := args[0]
			if err := threads.ValidateThreadID(threadID); err != nil {
				return err
			}
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "invalid message index %q", args[1])
			}

			up, _ := cmd.Flags().GetBool("up")
			down, _ := cmd.Flags().GetBool("down")
			if up == down {
				return errors.New("exactly one of --up or --down is required")
			}

			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.logRequests()

			entries, err := env.client.History(ctx, threadID, env.settings.Tenant)
			if err != nil {
				return err
			}
			msgs := transcript.NewCodec(transcript.WithRenderer(transcript.PlainRenderer{})).Decode(entries)
			a, err := feedback.ForMessage(env.client, threadID, env.settings.Tenant, msgs, idx, env.feedbackOptions()...)
			if err != nil {
				return errors.Wrapf(err, "message %d", idx)
			}

			polarity := backend.FeedbackThumbsUp
			if up {
				err = a.ThumbsUp(ctx)
			} else {
				polarity = backend.FeedbackThumbsDown
				err = thumbsDown(cmd, a)
			}
			if errors.Is(err, feedback.ErrCancelled) {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
				return err
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for message %d\n", polarity, idx)
			return err
		},
	}
	cmd.Flags().Bool("up", false, "Mark the answer as helpful")
	cmd.Flags().Bool("down", false, "Mark the answer as not helpful")
	cmd.Flags().String("comment", "", "Comment for negative feedback (asked interactively if omitted)")
	return cmd
}

func thumbsDown(cmd *cobra.Command, a *feedback.Attachment) error {
	if cmd.Flags().Changed("comment") {
		comment, _ := cmd.Flags().GetString("comment")
		return a.ThumbsDown(cmd.Context(), prompt.StaticComment{Text: comment})
	}
	if !isInteractive() {
		return a.ThumbsDown(cmd.Context(), prompt.StaticComment{})
	}
	return withTerminal(func(t *prompt.Terminal) error {
		return a.ThumbsDown(cmd.Context(), t)
	})
}
