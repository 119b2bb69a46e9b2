package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trane-project/trane/internal/daemon"
	"github.com/trane-project/trane/internal/scheduler"
)

var batchCourseFlag []string

func init() {
	batchCmd.Flags().StringSliceVar(&batchCourseFlag, "course", nil, "restrict the batch to these course IDs (repeatable)")
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Request an exercise batch and print it as JSON",
	RunE:  runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
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

	filter := scheduler.NoFilter()
	if len(batchCourseFlag) > 0 {
		handles, err := d.ResolveHandles(batchCourseFlag)
		if err != nil {
			return err
		}
		filter = scheduler.CourseFilter{Handles: handles}
	}

	candidates, err := d.Scheduler().GetExerciseBatch(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("get exercise batch: %w", err)
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, d.Graph().Interner().String(c.Exercise))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
