package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config represents the complete configuration for the bluemock harness
type Config struct {
	Service Service `yaml:"service"`
	Network Network `yaml:"network"`
	Audio   Audio   `yaml:"audio"`
	Timing  Timing  `yaml:"timing"`
	Roles   Roles   `yaml:"roles"`
	Logging Logging `yaml:"logging"`
}

// Service identifies the mock as the provider of a named service
type Service struct {
	Name string `yaml:"name"`
}

// Network holds control and data-plane listener settings
type Network struct {
	HTTP HTTP `yaml:"http"`
	Tap  Tap  `yaml:"tap"`
}

// HTTP holds the JSON-RPC control server settings
type HTTP struct {
	Port         int    `yaml:"port"`
	ServerHeader string `yaml:"serverHeader"`
}

// Tap holds the PCM tap TCP server settings
type Tap struct {
	Port         int      `yaml:"port"`
	AllowedCIDRs []string `yaml:"allowedCidrs"`
}

// Audio holds the synthesized payload parameters
type Audio struct {
	SampleRate  int `yaml:"sampleRate"`  // A2DP stream rate (Hz)
	Channels    int `yaml:"channels"`    // A2DP channel count
	ToneHz      int `yaml:"toneHz"`      // synthesized tone frequency
	VolumeDiv   int `yaml:"volumeDiv"`   // full scale divided by this; keeps payload quiet
	BlockFrames int `yaml:"blockFrames"` // frames per delivery iteration
	MTU         int `yaml:"mtu"`         // data-plane read/write MTU in bytes
}

// Timing holds all timing-related settings
type Timing struct {
	TimeoutSec   int `yaml:"timeoutSec"`   // session-idle timeout before teardown
	FuzzDelayMs  int `yaml:"fuzzDelayMs"`  // artificial delay at create/teardown boundaries
	IdlePollMs   int `yaml:"idlePollMs"`   // delivery worker poll while handle absent
	WriteLimitMs int `yaml:"writeLimitMs"` // bound on a single data-plane write
}

// Roles selects which transport roles the topology builder creates
type Roles struct {
	Source bool `yaml:"source"`
	Sink   bool `yaml:"sink"`
	Voice  bool `yaml:"voice"`
}

// Logging holds log output settings
type Logging struct {
	File       string `yaml:"file"` // empty means stderr only
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Fuzzing reports whether artificial delays are enabled
func (c *Config) Fuzzing() bool {
	return c.Timing.FuzzDelayMs > 0
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := Default()

	// Load from config file if BLUEMOCK_CONFIG is set
	if path := os.Getenv("BLUEMOCK_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %v", path, err)
		}
	}

	// Override with environment variables
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return cfg, nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Service: Service{
			Name: "org.bluemock",
		},
		Network: Network{
			HTTP: HTTP{
				Port:         8989,
				ServerHeader: "",
			},
			Tap: Tap{
				Port:         50100,
				AllowedCIDRs: []string{"127.0.0.0/8", "::1/128"},
			},
		},
		Audio: Audio{
			SampleRate:  44100,
			Channels:    2,
			ToneHz:      440,
			VolumeDiv:   128, // do not generate loud data
			BlockFrames: 1024,
			MTU:         256,
		},
		Timing: Timing{
			TimeoutSec:   5,
			FuzzDelayMs:  0,
			IdlePollMs:   10,
			WriteLimitMs: 100,
		},
		Roles: Roles{},
		Logging: Logging{
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if name := os.Getenv("BLUEMOCK_SERVICE"); name != "" {
		cfg.Service.Name = name
	}

	if timeout := os.Getenv("BLUEMOCK_TIMEOUT_SEC"); timeout != "" {
		if sec, err := strconv.Atoi(timeout); err == nil {
			cfg.Timing.TimeoutSec = sec
		}
	}

	if delay := os.Getenv("BLUEMOCK_FUZZ_DELAY_MS"); delay != "" {
		if ms, err := strconv.Atoi(delay); err == nil {
			cfg.Timing.FuzzDelayMs = ms
		}
	}
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name must not be empty")
	}

	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d, must be positive", cfg.Audio.SampleRate)
	}

	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 8 {
		return fmt.Errorf("invalid channel count %d, must be in [1, 8]", cfg.Audio.Channels)
	}

	if cfg.Audio.ToneHz <= 0 || cfg.Audio.ToneHz >= cfg.Audio.SampleRate/2 {
		return fmt.Errorf("tone frequency %d Hz is outside (0, %d)", cfg.Audio.ToneHz, cfg.Audio.SampleRate/2)
	}

	if cfg.Audio.VolumeDiv < 1 {
		return fmt.Errorf("volume divisor must be at least 1, got %d", cfg.Audio.VolumeDiv)
	}

	if cfg.Audio.BlockFrames <= 0 {
		return fmt.Errorf("block size %d frames is invalid", cfg.Audio.BlockFrames)
	}

	if cfg.Audio.MTU <= 0 {
		return fmt.Errorf("MTU %d is invalid", cfg.Audio.MTU)
	}

	if cfg.Timing.TimeoutSec < 0 {
		return fmt.Errorf("timeout %d seconds is invalid", cfg.Timing.TimeoutSec)
	}

	if cfg.Timing.IdlePollMs < 1 || cfg.Timing.IdlePollMs > 1000 {
		return fmt.Errorf("idle poll interval %d ms is outside reasonable range [1, 1000]", cfg.Timing.IdlePollMs)
	}

	if cfg.Timing.FuzzDelayMs < 0 {
		return fmt.Errorf("fuzz delay %d ms is invalid", cfg.Timing.FuzzDelayMs)
	}

	if cfg.Timing.WriteLimitMs < 1 {
		return fmt.Errorf("write limit %d ms is invalid", cfg.Timing.WriteLimitMs)
	}

	return nil
}
