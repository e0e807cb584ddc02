package elektroid

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a CLI or bridge daemon: which
// device to open and at what log verbosity, plus the optional GPIO cancel
// button and network-bridge announcement settings. Grounded on the
// teacher's YAML-backed config pattern.
type Config struct {
	DevNode  string `yaml:"dev_node"`
	LogLevel string `yaml:"log_level"`

	Bridge struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		Port        int    `yaml:"port"`
	} `yaml:"bridge"`

	CancelButton struct {
		Enabled bool   `yaml:"enabled"`
		Chip    string `yaml:"chip"`
		Line    int    `yaml:"line"`
	} `yaml:"cancel_button"`
}

// DefaultConfig returns the config a fresh install starts from.
func DefaultConfig() Config {
	c := Config{DevNode: "/dev/snd/midiC1D0", LogLevel: "info"}
	c.Bridge.ServiceName = "elektroid-transfer"
	c.Bridge.Port = 6868
	c.CancelButton.Chip = "gpiochip0"
	c.CancelButton.Line = 17
	return c
}

// LoadConfig reads and parses a YAML config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading config %s: %v", ErrIO, path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config %s: %v", ErrInvalidArg, path, err)
	}
	return cfg, nil
}
