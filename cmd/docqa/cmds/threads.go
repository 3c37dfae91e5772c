package cmds

import (
	"fmt"
	"text/tabwriter"

	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/session"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewThreadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage saved conversations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			return withRegistry(func(env *environment, registry *threads.Registry) error {
				list, err := threads.FilterByTitle(registry.Persisted(cmd.Context()), filter)
				if err != nil {
					return errors.Wrapf(err, "invalid filter %q", filter)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tTITLE")
				for _, t := range list {
					_, _ = fmt.Fprintf(w, "%s\t%s\n", t.ID, t.DisplayTitle())
				}
				return w.Flush()
			})
		},
	}
	listCmd.Flags().String("filter", "", "Glob matched against titles, e.g. '*policy*'")

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Print a fresh conversation id",
		Long:  "Print a fresh conversation id. The conversation is saved once its first question is asked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), threads.NewThreadID())
			return err
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return withRegistry(func(env *environment, registry *threads.Registry) error {
				s := session.New(env.client, registry)
				run := func(confirmer prompt.Confirmer) error {
					res, err := s.DeleteThread(cmd.Context(), args[0], confirmer)
					if errors.Is(err, session.ErrNotConfirmed) {
						_, err = fmt.Fprintln(cmd.OutOrStdout(), "kept")
						return err
					}
					if err != nil {
						return err
					}
					if !res.Removed {
						return errors.Errorf("no saved conversation %s", args[0])
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
					return err
				}

				if yes {
					return run(prompt.Static(true))
				}
				return withTerminal(func(t *prompt.Terminal) error {
					return run(t)
				})
			})
		},
	}
	deleteCmd.Flags().Bool("yes", false, "Do not ask for confirmation")

	cmd.AddCommand(listCmd, newCmd, deleteCmd)
	return cmd
}

func withRegistry(f func(env *environment, registry *threads.Registry) error) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	registry, err := env.openRegistry("")
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error().Err(err).Msg("could not close thread store")
		}
	}()
	return f(env, registry)
}
