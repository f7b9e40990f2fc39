package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/lemos-dev/lemos/internal/timespec"
	"github.com/lemos-dev/lemos/internal/unifiedlog"
	"github.com/spf13/cobra"
)

var (
	logsJSON          bool
	logsLimit         int
	logsEventTypes    []string
	logsConstellation string
	logsSince         string
	logsUntil         string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query the unified activity log",
	Long: `Query the unified activity log, newest entries first.

Entries are enriched with the global context that was active when the
underlying event fired.`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output in JSON format")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Maximum number of entries")
	logsCmd.Flags().StringSliceVar(&logsEventTypes, "type", nil, "Filter by event type (repeatable)")
	logsCmd.Flags().StringVar(&logsConstellation, "constellation", "", "Filter by constellation id")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Only entries after this time ('1h30m' or RFC3339)")
	logsCmd.Flags().StringVar(&logsUntil, "until", "", "Only entries before this time ('1h30m' or RFC3339)")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	start, end, err := timespec.ParseRange(logsSince, logsUntil)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	entries := rt.logger.QueryLogs(ctx, unifiedlog.Filter{
		EventTypes:      logsEventTypes,
		ConstellationID: logsConstellation,
		Start:           start,
		End:             end,
		Limit:           logsLimit,
	})

	if logsJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal log entries: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No log entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tCONSTELLATION\tRITUAL")
	for _, entry := range entries {
		constellation := entry.ConstellationID
		if constellation == "" {
			constellation = "-"
		}
		ritualID := entry.RitualID
		if ritualID == "" {
			ritualID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"), entry.EventType, constellation, ritualID)
	}
	return w.Flush()
}
