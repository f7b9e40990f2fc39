package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats <constellation-id>",
	Short: "Show aggregated statistics for a constellation",
	Long: `Show aggregated statistics for a constellation: session and ritual
counts, total focus minutes, ritual completion rate and last activity.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	stats := rt.constellations.Stats(ctx, args[0])

	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Constellation:   %s\n", stats.ConstellationID)
	fmt.Printf("Sessions:        %d\n", stats.TotalSessions)
	fmt.Printf("Rituals:         %d\n", stats.TotalRituals)
	fmt.Printf("Total minutes:   %d\n", stats.TotalMinutes)
	fmt.Printf("Completion rate: %d%%\n", stats.CompletionRate)
	if stats.LastActivityAt != nil {
		fmt.Printf("Last activity:   %s\n", stats.LastActivityAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("Last activity:   -\n")
	}
	return nil
}
