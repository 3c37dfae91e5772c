package cmds

import (
	"fmt"
	"text/tabwriter"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/muesli/reflow/truncate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewDashboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the feedback collected for the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			feedbackType, _ := cmd.Flags().GetString("type")
			t := backend.FeedbackType(feedbackType)
			if t != "" && !t.IsValid() {
				return errors.Errorf("invalid feedback type %q (thumbs_up, thumbs_down)", feedbackType)
			}

			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.logRequests()

			d, err := env.client.FeedbackDashboard(cmd.Context(), backend.DashboardQuery{
				ClientID:     env.settings.Tenant,
				Page:         page,
				PageSize:     pageSize,
				FeedbackType: t,
			})
			if err != nil {
				return err
			}
			return printDashboard(cmd, d)
		},
	}
	cmd.Flags().Int("page", 1, "Page to show")
	cmd.Flags().Int("page-size", backend.DefaultDashboardPageSize, "Items per page")
	cmd.Flags().String("type", "", "Only show thumbs_up or thumbs_down")
	return cmd
}

func printDashboard(cmd *cobra.Command, d *backend.Dashboard) error {
	out := cmd.OutOrStdout()
	s := d.Stats
	_, err := fmt.Fprintf(out, "total %d, thumbs up %d (%.2f%%), thumbs down %d (%.2f%%)\n\n",
		s.TotalFeedback, s.ThumbsUpCount, s.ThumbsUpPercentage, s.ThumbsDownCount, s.ThumbsDownPercentage)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CONVERSATION\tTYPE\tQUESTION\tCOMMENT\tCREATED")
	for _, item := range d.Items {
		comment := ""
		if item.Comment != nil {
			comment = *item.Comment
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.ConversationID,
			item.FeedbackType,
			truncate.StringWithTail(item.Question, 40, "…"),
			truncate.StringWithTail(comment, 30, "…"),
			item.CreatedAt,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "\npage %d of %d\n", d.CurrentPage, d.TotalPages)
	return err
}
