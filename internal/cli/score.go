package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trane-project/trane/internal/daemon"
)

var scoreCmd = &cobra.Command{
	Use:   "score UNIT_ID",
	Short: "Print a unit's current cached score",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	if err := requireLibraryFlag(); err != nil {
		return err
	}
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return err
	}

	d, err := daemon.Open(cfg, libraryFlag)
	if err != nil {
		return fmt.Errorf("open daemon: %w", err)
	}
	defer d.Close()

	handles, err := d.ResolveHandles([]string{args[0]})
	if err != nil {
		return err
	}

	score, known, err := d.Cache().Score(context.Background(), handles[0])
	if err != nil {
		return fmt.Errorf("score unit: %w", err)
	}
	if !known {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: unknown (no trials yet)\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %.3f\n", args[0], score)
	return nil
}
