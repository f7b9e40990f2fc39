package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lemos-dev/lemos/internal/printer"
	"github.com/lemos-dev/lemos/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run an instance and stream its events",
	Long: `Run a LemOS instance and print every event published on the bus as a
human-readable line, until interrupted.

Session ticks are omitted from the stream.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	renderer := watch.New(rt.app.Bus(), os.Stdout)
	defer renderer.Stop()

	printer.Success("Watching LemOS instance '%s'", rt.cfg.Instance)
	printer.Info("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}
