// Package cli provides the trane command-line interface: a thin cobra
// wrapper over internal/daemon for running the scheduler as a server or
// invoking it directly against a local library and sqlite store.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&libraryFlag, "library", "", "path to a unit library JSON file (required)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to a trane.toml config file (defaults to ~/.trane/trane.toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(trialCmd)
	rootCmd.AddCommand(rewardCmd)
	rootCmd.AddCommand(scoreCmd)
}

var (
	libraryFlag string
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "trane",
	Short: "Spaced-repetition exercise scheduler",
	Long: `trane schedules practice exercises over a unit dependency graph of
courses, lessons, and exercises. It tracks per-exercise mastery with a
forgetting-curve memory model, propagates reward up the dependency graph,
and samples exercise batches by mastery window.`,
}

// Execute runs the root command; called from cmd/trane/main.go.
func Execute() error { return rootCmd.Execute() }

func configPath() (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".trane", "trane.toml"), nil
}

func requireLibraryFlag() error {
	if libraryFlag == "" {
		return fmt.Errorf("--library is required")
	}
	return nil
}
