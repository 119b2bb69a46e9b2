package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trane-project/trane/internal/daemon"
	"github.com/trane-project/trane/internal/domain"
)

var rewardMagnitudeFlag float64

func init() {
	rewardCmd.Flags().Float64Var(&rewardMagnitudeFlag, "magnitude", 0, "signed reward magnitude, stored as given; the reward scorer clamps the decayed sum to [-1,1] (required)")
	rewardCmd.MarkFlagRequired("magnitude")
}

var rewardCmd = &cobra.Command{
	Use:   "reward UNIT_ID",
	Short: "Record a direct reward event for a unit, bypassing trial propagation",
	Args:  cobra.ExactArgs(1),
	RunE:  runReward,
}

func runReward(cmd *cobra.Command, args []string) error {
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

	event := domain.RewardEvent{
		Unit:            handles[0],
		SignedMagnitude: float32(rewardMagnitudeFlag),
		Timestamp:       time.Now(),
	}
	if err := d.Rewards().Append(context.Background(), event); err != nil {
		return fmt.Errorf("record reward: %w", err)
	}
	d.Cache().InvalidateReward(handles[0])
	fmt.Fprintf(cmd.OutOrStdout(), "recorded reward for %s: %.3f\n", args[0], rewardMagnitudeFlag)
	return nil
}
