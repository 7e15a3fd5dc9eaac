package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	AggregateCode string
	AggregateType string
	EventType     string
	From          string
	To            string
	DryRun        bool
}

// replayRequest mirrors the server's replay request body.
type replayRequest struct {
	AggregateCode string `json:"aggregate_code,omitempty"`
	AggregateType string `json:"aggregate_type,omitempty"`
	EventType     string `json:"event_type,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	DryRun        bool   `json:"dry_run"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay stored events through the registered listeners",
		Long: `Replay a slice of the event log, selected by exactly one filter.

Use --dry-run to count matching events without dispatching them.

Examples:
  trackctl replay --aggregate FT-1
  trackctl replay --event-type FEATURE_DEPENDENCY_ADDED --dry-run
  trackctl replay --from 2026-08-01T00:00:00Z --to 2026-08-29T00:00:00Z`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.AggregateCode, "aggregate", "", "replay events for one aggregate code")
	cmd.Flags().StringVar(&opts.AggregateType, "aggregate-type", "", "replay events for one aggregate type (feature|release)")
	cmd.Flags().StringVar(&opts.EventType, "event-type", "", "replay events of one event type")
	cmd.Flags().StringVar(&opts.From, "from", "", "start of created-at range (RFC3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end of created-at range (RFC3339)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count matching events without dispatching")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	req := replayRequest{
		AggregateCode: opts.AggregateCode,
		AggregateType: opts.AggregateType,
		EventType:     opts.EventType,
		From:          opts.From,
		To:            opts.To,
		DryRun:        opts.DryRun,
	}
	if req.AggregateCode == "" && req.AggregateType == "" && req.EventType == "" && req.From == "" && req.To == "" {
		return fmt.Errorf("exactly one of --aggregate, --aggregate-type, --event-type, or --from/--to is required")
	}

	c := newClient(opts.RootOptions)
	var result map[string]any
	if err := c.post("/api/v1/events/replay", req, &result); err != nil {
		return err
	}
	return render(cmd, opts.RootOptions, result)
}
