package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lemos-dev/lemos/internal/printer"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a LemOS instance",
	Long: `Run a LemOS instance in the foreground.

Loads the config file, connects to Redis, wires every module onto the
shared event bus and blocks until interrupted. On SIGINT/SIGTERM the
modules are stopped in reverse order and pending writes are drained.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	printer.Success("LemOS instance '%s' running", rt.cfg.Instance)
	printer.Info("Rituals loaded: %d", len(rt.rituals.Definitions()))
	printer.Info("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	printer.Info("Shutting down...")
	return nil
}
