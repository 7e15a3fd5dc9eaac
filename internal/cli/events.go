package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	AggregateCode string
	AggregateType string
	EventType     string
	From          string
	To            string
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events [event-id]",
		Short: "Query the event log",
		Long: `Query the event log by exactly one filter, or fetch a single event by id.

Examples:
  trackctl events --aggregate FT-1
  trackctl events --event-type FEATURE_UPDATED
  trackctl events --from 2026-08-01T00:00:00Z --to 2026-08-29T00:00:00Z
  trackctl events 0198c0de-1111-7000-8000-000000000001`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.AggregateCode, "aggregate", "", "filter by aggregate code")
	cmd.Flags().StringVar(&opts.AggregateType, "aggregate-type", "", "filter by aggregate type (feature|release)")
	cmd.Flags().StringVar(&opts.EventType, "event-type", "", "filter by event type")
	cmd.Flags().StringVar(&opts.From, "from", "", "start of created-at range (RFC3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end of created-at range (RFC3339)")

	return cmd
}

func runEvents(cmd *cobra.Command, opts *EventsOptions, args []string) error {
	c := newClient(opts.RootOptions)

	if len(args) == 1 {
		var event map[string]any
		if err := c.get("/api/v1/events/"+url.PathEscape(args[0]), nil, &event); err != nil {
			return err
		}
		return render(cmd, opts.RootOptions, event)
	}

	query := url.Values{}
	if opts.AggregateCode != "" {
		query.Set("aggregate_code", opts.AggregateCode)
	}
	if opts.AggregateType != "" {
		query.Set("aggregate_type", opts.AggregateType)
	}
	if opts.EventType != "" {
		query.Set("event_type", opts.EventType)
	}
	if opts.From != "" {
		query.Set("from", opts.From)
	}
	if opts.To != "" {
		query.Set("to", opts.To)
	}
	if len(query) == 0 {
		return fmt.Errorf("an event id or exactly one filter flag is required")
	}

	var result map[string]any
	if err := c.get("/api/v1/events", query, &result); err != nil {
		return err
	}
	return render(cmd, opts.RootOptions, result)
}
