package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for spicebridge
type Config struct {
	// MaxNetlistSize caps accepted netlist text in bytes (0 = default)
	MaxNetlistSize int `json:"maxNetlistSize,omitempty"`

	// Heuristics configures port auto-detection spellings
	Heuristics HeuristicsConfig `json:"heuristics,omitempty"`

	// Compose contains composition options
	Compose ComposeConfig `json:"compose,omitempty"`
}

// HeuristicsConfig lists the conventional node spellings used by port
// auto-detection. Empty lists fall back to the built-in table.
type HeuristicsConfig struct {
	// Inputs are node spellings classified as input ports
	Inputs []string `json:"inputs,omitempty"`

	// Outputs are node spellings classified as output ports
	Outputs []string `json:"outputs,omitempty"`

	// Power are node spellings classified as power rails
	Power []string `json:"power,omitempty"`

	// Grounds are node spellings bound to the gnd role
	Grounds []string `json:"grounds,omitempty"`
}

// ComposeConfig contains composition options
type ComposeConfig struct {
	// SharedPorts are roles whose nodes are shared across stages and
	// never prefixed
	SharedPorts []string `json:"sharedPorts,omitempty"`

	// AllowIncludes permits .include/.lib directives in stage netlists
	AllowIncludes bool `json:"allowIncludes,omitempty"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxNetlistSize: 1_000_000,
		Heuristics: HeuristicsConfig{
			Inputs:  []string{"in", "inp", "in1", "in2", "in3", "inp1", "inp2", "input"},
			Outputs: []string{"out", "vout", "output"},
			Power:   []string{"vcc", "vdd", "vee", "vss"},
			Grounds: []string{"0", "gnd"},
		},
		Compose: ComposeConfig{
			SharedPorts:   []string{"gnd"},
			AllowIncludes: false,
		},
	}
}

// Load finds and loads the configuration file
// Search order:
//  1. ./spicebridge.json (current working directory)
//  2. ./.spicebridge.json (current working directory)
//  3. ~/.config/spicebridge/config.json
//
// Returns DefaultConfig if no file is found.
func Load() (*Config, error) {
	candidates := []string{
		"spicebridge.json",
		".spicebridge.json",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "spicebridge", "config.json"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.MaxNetlistSize <= 0 {
		cfg.MaxNetlistSize = DefaultConfig().MaxNetlistSize
	}
	return cfg, nil
}

// Save writes the configuration to the given path
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
