package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/lemos-dev/lemos/internal/printer"
	"github.com/spf13/cobra"
)

var (
	constellationsJSON     bool
	constellationsArchived bool

	createDescription string
	createColor       string
	createIcon        string
)

var constellationsCmd = &cobra.Command{
	Use:   "constellations",
	Short: "Manage constellations (goal groupings)",
	Long: `Manage constellations, the named groupings that sessions and rituals
are attributed to.

Without a subcommand, lists the known constellations.`,
	RunE: runConstellationsList,
}

var constellationsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new constellation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConstellationsCreate,
}

var constellationsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a constellation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConstellationsArchive,
}

func init() {
	constellationsCmd.Flags().BoolVar(&constellationsJSON, "json", false, "Output in JSON format")
	constellationsCmd.Flags().BoolVar(&constellationsArchived, "archived", false, "Include archived constellations")

	constellationsCreateCmd.Flags().StringVar(&createDescription, "description", "", "Constellation description")
	constellationsCreateCmd.Flags().StringVar(&createColor, "color", "", "Display color")
	constellationsCreateCmd.Flags().StringVar(&createIcon, "icon", "", "Display icon")

	constellationsCmd.AddCommand(constellationsCreateCmd)
	constellationsCmd.AddCommand(constellationsArchiveCmd)
	rootCmd.AddCommand(constellationsCmd)
}

func runConstellationsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	definitions := rt.constellations.List(ctx, constellationsArchived)

	if constellationsJSON {
		data, err := json.MarshalIndent(definitions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal constellations: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(definitions) == 0 {
		fmt.Println("No constellations found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION\tARCHIVED")
	for _, def := range definitions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", def.ID, def.Name, def.Description, def.Archived)
	}
	return w.Flush()
}

func runConstellationsCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	id, err := rt.constellations.Create(ctx, args[0], createDescription, createColor, createIcon)
	if err != nil {
		return err
	}

	printer.Success("Created constellation '%s' (id: %s)", args[0], id)
	return nil
}

func runConstellationsArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if err := rt.constellations.Archive(ctx, args[0]); err != nil {
		return err
	}

	printer.Success("Archived constellation '%s'", args[0])
	return nil
}
