package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	*RootOptions
	AfterVersion int64
}

// NewAggregateCommand creates the aggregate command with its subcommands.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Inspect per-aggregate event history",
	}

	cmd.AddCommand(newAggregateVersionCommand(rootOpts))
	cmd.AddCommand(newAggregateEventsCommand(rootOpts))

	return cmd
}

func newAggregateVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version <code>",
		Short: "Show the highest event version recorded for an aggregate",
		Example: `  trackctl aggregate version FT-1
  trackctl aggregate version REL-2026-Q3 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(rootOpts)
			var result map[string]any
			if err := c.get("/api/v1/aggregates/"+url.PathEscape(args[0])+"/version", nil, &result); err != nil {
				return err
			}
			return render(cmd, rootOpts, result)
		},
	}
}

func newAggregateEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <code>",
		Short: "List an aggregate's events, optionally after a version",
		Example: `  trackctl aggregate events FT-1
  trackctl aggregate events FT-1 --after 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(rootOpts)
			query := url.Values{}
			if opts.AfterVersion > 0 {
				query.Set("after_version", strconv.FormatInt(opts.AfterVersion, 10))
			}
			var result map[string]any
			if err := c.get("/api/v1/aggregates/"+url.PathEscape(args[0])+"/events", query, &result); err != nil {
				return err
			}
			return render(cmd, rootOpts, result)
		},
	}

	cmd.Flags().Int64Var(&opts.AfterVersion, "after", 0, "return only events with version greater than this")

	return cmd
}
