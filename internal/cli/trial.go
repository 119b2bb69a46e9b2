package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trane-project/trane/internal/daemon"
	"github.com/trane-project/trane/internal/domain"
)

var trialScoreFlag int

func init() {
	trialCmd.Flags().IntVar(&trialScoreFlag, "score", 0, "grade, 1..5 (required)")
	trialCmd.MarkFlagRequired("score")
}

var trialCmd = &cobra.Command{
	Use:   "trial EXERCISE_ID",
	Short: "Record a graded trial for an exercise",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrial,
}

func runTrial(cmd *cobra.Command, args []string) error {
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

	err = d.Scheduler().RecordTrial(context.Background(), domain.Trial{
		Exercise:  handles[0],
		Score:     trialScoreFlag,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("record trial: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recorded trial for %s: score %d\n", args[0], trialScoreFlag)
	return nil
}
