// Package config provides YAML-based project configuration for codefang:
// which plugins a scan enables, the Pipeline Engine's resource knobs, and
// arbitrary per-plugin settings passed through to plugin.Context.Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Config holds project-level configuration for a codefang scan.
type Config struct {
	// Plugins lists the plugin IDs to register for a scan, in order.
	// An empty list means "whatever the CLI's --plugins flag selects".
	Plugins []string `mapstructure:"plugins"`

	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Settings holds arbitrary per-plugin configuration, keyed by plugin
	// ID, forwarded to plugin.Context.Config at Initialise time.
	Settings map[string]map[string]any `mapstructure:"settings"`
}

// PipelineConfig holds the CLI-facing subset of the Pipeline Engine's
// tunable knobs. Size and duration fields are left as strings/durations
// for direct handoff to framework.ConfigParams, which parses them with
// the same humanize/duration rules as the equivalent CLI flags.
type PipelineConfig struct {
	Workers          int           `mapstructure:"workers"`
	MemoryBudget     string        `mapstructure:"memory_budget"`
	QueueCeiling     string        `mapstructure:"queue_ceiling"`
	GOGC             int           `mapstructure:"gogc"`
	BallastSize      string        `mapstructure:"ballast_size"`
	ShutdownDeadline time.Duration `mapstructure:"shutdown_deadline"`
}

// LoadConfig reads project configuration from configPath (an explicit
// file) or, when empty, from ".codefang.yaml"/".codefang.yml" in the
// current directory. Values are overridable by CODEFANG_-prefixed
// environment variables with "_" in place of ".". A missing default
// file is not an error and defaults apply; a missing explicit configPath
// returns ErrConfigNotFound.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(".codefang")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
	}

	viperCfg.SetEnvPrefix("CODEFANG")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError

		notFound := errors.As(readErr, &notFoundErr) || errors.Is(readErr, fs.ErrNotExist)

		switch {
		case notFound && configPath != "":
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		case notFound:
			// No explicit path requested: missing config is not an error.
		default:
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	return &cfg, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("pipeline.workers", DefaultPipelineWorkers)
	viperCfg.SetDefault("pipeline.memory_budget", DefaultPipelineMemoryBudget)
	viperCfg.SetDefault("pipeline.queue_ceiling", DefaultPipelineQueueCeiling)
	viperCfg.SetDefault("pipeline.gogc", DefaultPipelineGOGC)
	viperCfg.SetDefault("pipeline.ballast_size", DefaultPipelineBallastSize)
	viperCfg.SetDefault("pipeline.shutdown_deadline", DefaultPipelineShutdownDeadline)
}
