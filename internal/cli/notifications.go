package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// NotificationsOptions holds flags for the notifications command.
type NotificationsOptions struct {
	*RootOptions
	Limit int
}

// NewNotificationsCommand creates the notifications command.
func NewNotificationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NotificationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "notifications <recipient>",
		Short: "List notifications delivered to a recipient",
		Example: `  trackctl notifications alice
  trackctl notifications alice --limit 10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(rootOpts)
			query := url.Values{}
			if opts.Limit > 0 {
				query.Set("limit", strconv.Itoa(opts.Limit))
			}
			var result map[string]any
			if err := c.get("/api/v1/notifications/"+url.PathEscape(args[0]), query, &result); err != nil {
				return err
			}
			return render(cmd, rootOpts, result)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum notifications to return (server default 50)")

	return cmd
}
