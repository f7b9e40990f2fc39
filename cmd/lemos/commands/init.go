package commands

import (
	"fmt"

	"github.com/lemos-dev/lemos/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new LemOS instance",
	Long: `Initialize a new LemOS instance with a default configuration.

Creates lemos.yml with a starter ritual, default reward table and local
Redis connection settings.

Use --force to overwrite an existing config file.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(configPath, forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(configPath)
	return nil
}
