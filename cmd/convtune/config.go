package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the convtune configuration file (~/.config/convtune/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	DBPath  string `yaml:"db_path"`
	Backend string `yaml:"backend"`
	Device  string `yaml:"device"`

	// Tuning defaults
	Search          *bool  `yaml:"search"`
	SaveRequests    *bool  `yaml:"save_requests"`
	TimerIterations *int   `yaml:"timer_iterations"`
	Seed            *int64 `yaml:"seed"`
	Bias            *bool  `yaml:"bias"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "convtune", "config.yaml")
}

// applyCommonConfig applies config file defaults to the shared flags when
// the corresponding flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.DBPath != "" && !c.IsSet("db-path") {
		dbPath = cfg.DBPath
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.Device != "" && !c.IsSet("device") {
		deviceName = cfg.Device
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyTuneConfig applies config file defaults to the tuning flags.
func applyTuneConfig(c *cli.Command, cfg Config, search, saveRequests, bias *bool) {
	if cfg.Search != nil && search != nil && !c.IsSet("search") {
		*search = *cfg.Search
	}
	if cfg.SaveRequests != nil && saveRequests != nil && !c.IsSet("save-requests") {
		*saveRequests = *cfg.SaveRequests
	}
	if cfg.Bias != nil && bias != nil && !c.IsSet("bias") {
		*bias = *cfg.Bias
	}
	if cfg.TimerIterations != nil && !c.IsSet("iterations") {
		iterations = *cfg.TimerIterations
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFrom(configPath())
}

func loadConfigFrom(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
