// Package config loads the peer station's configuration: the channel
// range to calibrate, the protocol timeouts, and the trace log rotation
// settings. Defaults layer under an optional YAML file, which layers
// under environment variable overrides; the merged result is validated
// before use.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Valid 802.15.4 channel range.
const (
	MinChannel = 11
	MaxChannel = 26
)

// Config is the complete peer station configuration.
type Config struct {
	Channels   ChannelsConfig   `yaml:"channels"`
	Timing     TimingConfig     `yaml:"timing"`
	Recording  RecordingConfig  `yaml:"recording"`
	SmartStake SmartStakeConfig `yaml:"smartStake"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChannelsConfig bounds the channel walk.
type ChannelsConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// TimingConfig holds the protocol timeouts. The firmware expresses these
// in 32 kHz ticks; here they are milliseconds, with the TX timeout in
// microseconds because 15.625 ms does not divide evenly.
type TimingConfig struct {
	// RXTimeoutMs is the inter-packet timeout while recording tuning
	// codes from the mote.
	RXTimeoutMs int `yaml:"rxTimeoutMs"`

	// RXLongTimeoutMs is used for the first packet on a channel and
	// after the mote's coarse code is expected to roll over.
	RXLongTimeoutMs int `yaml:"rxLongTimeoutMs"`

	// TXTimeoutUs is how long to wait for an acknowledgment before
	// retransmitting.
	TXTimeoutUs int `yaml:"txTimeoutUs"`
}

// RecordingConfig bounds the tuning-code recording buffers.
type RecordingConfig struct {
	// MaxRecordedCodes caps how many tuning codes are recorded per
	// channel before averaging; past the cap the oldest are discarded.
	MaxRecordedCodes int `yaml:"maxRecordedCodes"`

	// MidCodeThreshold is the mid code at or above which the mote's
	// coarse code is about to roll over, warranting the long timeout.
	MidCodeThreshold int `yaml:"midCodeThreshold"`
}

// SmartStakeConfig configures the post-calibration sensor RX mode.
type SmartStakeConfig struct {
	// Channel is the 802.15.4 channel ADC data arrives on.
	Channel int `yaml:"channel"`

	// OutputPath is where decoded sensor frames are appended. Empty
	// sends them to the trace log only.
	OutputPath string `yaml:"outputPath"`
}

// LoggingConfig holds trace log rotation settings.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from the default file, an optional file named
// by PEERSTATION_CONFIG, and environment variable overrides.
func Load() (*Config, error) {
	cfg := getDefaultConfig()

	if err := loadFromFile(cfg, "config/peerstation.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path := os.Getenv("PEERSTATION_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from a specific YAML file over the
// defaults, then validates.
func LoadFile(path string) (*Config, error) {
	cfg := getDefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// getDefaultConfig returns the configuration the firmware ships with.
func getDefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Start: 17,
			End:   18,
		},
		Timing: TimingConfig{
			RXTimeoutMs:     500,   // 32768 >> 1 ticks @ 32 kHz
			RXLongTimeoutMs: 2000,  // 32768 << 1 ticks @ 32 kHz
			TXTimeoutUs:     15625, // 32768 >> 6 ticks @ 32 kHz
		},
		Recording: RecordingConfig{
			MaxRecordedCodes: 128,
			MidCodeThreshold: 24,
		},
		SmartStake: SmartStakeConfig{
			Channel: 17,
		},
		Logging: LoggingConfig{
			File:       "logs/peerstation.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if start := os.Getenv("PEERSTATION_CHANNEL_START"); start != "" {
		if n, err := strconv.Atoi(start); err == nil {
			cfg.Channels.Start = n
		}
	}
	if end := os.Getenv("PEERSTATION_CHANNEL_END"); end != "" {
		if n, err := strconv.Atoi(end); err == nil {
			cfg.Channels.End = n
		}
	}
	if file := os.Getenv("PEERSTATION_LOG_FILE"); file != "" {
		cfg.Logging.File = file
	}
}

// validateConfig validates the configuration.
func validateConfig(cfg *Config) error {
	if cfg.Channels.Start < MinChannel || cfg.Channels.Start > MaxChannel {
		return fmt.Errorf("start channel %d outside [%d, %d]", cfg.Channels.Start, MinChannel, MaxChannel)
	}
	if cfg.Channels.End < MinChannel || cfg.Channels.End > MaxChannel {
		return fmt.Errorf("end channel %d outside [%d, %d]", cfg.Channels.End, MinChannel, MaxChannel)
	}
	if cfg.Channels.End < cfg.Channels.Start {
		return fmt.Errorf("end channel %d is below start channel %d", cfg.Channels.End, cfg.Channels.Start)
	}

	if cfg.Timing.RXTimeoutMs <= 0 {
		return fmt.Errorf("rx timeout %d ms must be positive", cfg.Timing.RXTimeoutMs)
	}
	if cfg.Timing.RXLongTimeoutMs < cfg.Timing.RXTimeoutMs {
		return fmt.Errorf("long rx timeout %d ms must be >= rx timeout %d ms", cfg.Timing.RXLongTimeoutMs, cfg.Timing.RXTimeoutMs)
	}
	if cfg.Timing.TXTimeoutUs <= 0 {
		return fmt.Errorf("tx timeout %d us must be positive", cfg.Timing.TXTimeoutUs)
	}

	if cfg.Recording.MaxRecordedCodes <= 0 {
		return fmt.Errorf("max recorded codes %d must be positive", cfg.Recording.MaxRecordedCodes)
	}
	if cfg.Recording.MidCodeThreshold < 0 || cfg.Recording.MidCodeThreshold > 31 {
		return fmt.Errorf("mid code threshold %d outside [0, 31]", cfg.Recording.MidCodeThreshold)
	}

	if cfg.SmartStake.Channel < MinChannel || cfg.SmartStake.Channel > MaxChannel {
		return fmt.Errorf("smart stake channel %d outside [%d, %d]", cfg.SmartStake.Channel, MinChannel, MaxChannel)
	}

	if cfg.Logging.File == "" {
		return fmt.Errorf("log file path must not be empty")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("log max size %d MB must be positive", cfg.Logging.MaxSizeMB)
	}

	return nil
}
