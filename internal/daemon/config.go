// Package daemon wires the graph, cache, propagator, and scheduler into a
// long-running process: it loads configuration, opens storage, and starts
// the HTTP API.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/trane-project/trane/internal/domain"
)

// Config is the top-level daemon configuration, loaded from a TOML file.
type Config struct {
	API       APIConfig       `toml:"api"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Log       LogConfig       `toml:"log"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// StorageConfig configures on-disk state.
type StorageConfig struct {
	DataDir    string `toml:"data_dir"`
	MaxStorage string `toml:"max_storage"` // human size, e.g. "10GB"
}

// SchedulerConfig configures scheduler tuning, mirroring
// scheduler.Options but expressed in TOML-friendly primitive types.
type SchedulerConfig struct {
	BatchSize         int     `toml:"batch_size"`
	CandidateMultiple int     `toml:"candidate_multiple"`
	SupersedingScore  float32 `toml:"superseding_score"`
	PropagationDepth  int     `toml:"propagation_depth"`
	PassingVersion    string  `toml:"passing_version"` // "v1" or "v2"
	Seed              int64   `toml:"seed"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// DefaultConfig returns the daemon's built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MetricsEnabled: true,
		},
		Storage: StorageConfig{
			DataDir:    defaultDataDir(),
			MaxStorage: "10GB",
		},
		Scheduler: SchedulerConfig{
			BatchSize:         50,
			CandidateMultiple: 10,
			SupersedingScore:  3.75,
			PropagationDepth:  5,
			PassingVersion:    "v1",
			Seed:              1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.trane"
	}
	return filepath.Join(home, ".trane")
}

// LoadConfig reads path and merges it over DefaultConfig. A missing file is
// not an error — the caller runs with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("daemon: read config %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("daemon: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// passingVersion maps the config string to a domain.PassingPredicateVersion.
func (c SchedulerConfig) passingVersion() (domain.PassingPredicateVersion, error) {
	switch c.PassingVersion {
	case "", "v1":
		return domain.PassingV1, nil
	case "v2":
		return domain.PassingV2, nil
	default:
		return 0, fmt.Errorf("daemon: unknown scheduler.passing_version %q", c.PassingVersion)
	}
}

// parseStorageSize parses a human storage size like "50GB" into bytes.
// Unrecognized or empty input falls back to 10GB.
func parseStorageSize(s string) uint64 {
	const defaultBytes = 10 * 1024 * 1024 * 1024
	if s == "" {
		return defaultBytes
	}
	var num float64
	var unit string
	if _, err := fmt.Sscanf(s, "%f%s", &num, &unit); err != nil {
		return defaultBytes
	}
	var mult uint64
	switch unit {
	case "GB":
		mult = 1024 * 1024 * 1024
	case "MB":
		mult = 1024 * 1024
	case "TB":
		mult = 1024 * 1024 * 1024 * 1024
	default:
		return defaultBytes
	}
	return uint64(num * float64(mult))
}
