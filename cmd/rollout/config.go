package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the rollout configuration file
// ($XDG_CONFIG_HOME/rollout/config.yaml). Pointer fields distinguish "not
// set" from zero values.
type Config struct {
	Model   string `yaml:"model"`
	Backend string `yaml:"backend"`

	ContextSize *int64 `yaml:"context_size"`
	BatchSize   *int64 `yaml:"batch_size"`
	Threads     *int64 `yaml:"threads"`
	Seed        *int64 `yaml:"seed"`

	// Generation defaults file, see inference.GenDefaults.
	GenerationConfig string `yaml:"generation_config"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rollout", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) Config {
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

// applyLogConfig applies config file defaults to the logging flags when the
// corresponding flag was not explicitly set.
func applyLogConfig(isSet func(string) bool, cfg Config) {
	if cfg.LogLevel != "" && !isSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !isSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults to the model flags.
func applyModelConfig(isSet func(string) bool, cfg Config) {
	if cfg.Model != "" && !isSet("model") {
		modelPath = cfg.Model
	}
	if cfg.Backend != "" && !isSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.ContextSize != nil && !isSet("context-size") {
		contextSize = *cfg.ContextSize
	}
	if cfg.BatchSize != nil && !isSet("batch-size") {
		batchSize = *cfg.BatchSize
	}
	if cfg.Threads != nil && !isSet("threads") {
		threads = *cfg.Threads
	}
	if cfg.Seed != nil && !isSet("seed") {
		seed = *cfg.Seed
	}
}

// applyGenerateConfig applies config file defaults to generate command variables.
func applyGenerateConfig(isSet func(string) bool, cfg Config, genConfig, streamMode *string) {
	applyModelConfig(isSet, cfg)
	if cfg.GenerationConfig != "" && !isSet("generation-config") {
		*genConfig = cfg.GenerationConfig
	}
	if cfg.StreamMode != "" && !isSet("stream-mode") {
		*streamMode = cfg.StreamMode
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(isSet func(string) bool, cfg Config, genConfig, addr *string) {
	applyModelConfig(isSet, cfg)
	if cfg.GenerationConfig != "" && !isSet("generation-config") {
		*genConfig = cfg.GenerationConfig
	}
	if cfg.ServerAddress != "" && !isSet("addr") {
		*addr = cfg.ServerAddress
	}
}
