// Package config loads the ccmeter configuration file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ccmeter/ccmeter/internal/model"
	"github.com/ccmeter/ccmeter/internal/notify"
)

// Config holds the resolved configuration. All fields have working
// defaults so an absent config file means "track everything, notify
// never".
type Config struct {
	Enabled       bool                      `yaml:"enabled"`
	StoragePath   string                    `yaml:"storage_path"`
	MachineID     string                    `yaml:"machine_id"`
	Notifications Notifications             `yaml:"notifications"`
	Pricing       map[string]model.RateCard `yaml:"pricing"`
}

// Notifications is the on-disk shape of the notification policy.
type Notifications struct {
	Enabled              bool    `yaml:"enabled"`
	Mode                 string  `yaml:"mode"` // messages, cost, time
	MessageThreshold     int     `yaml:"message_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd"`
	TimeThresholdMinutes int     `yaml:"time_threshold_minutes"`
}

// Policy converts the on-disk settings to the resolved policy.
func (n Notifications) Policy() notify.Policy {
	return notify.Policy{
		Enabled:          n.Enabled,
		Mode:             notify.Mode(n.Mode),
		MessageThreshold: n.MessageThreshold,
		CostThresholdUSD: n.CostThresholdUSD,
		TimeThreshold:    time.Duration(n.TimeThresholdMinutes) * time.Minute,
	}
}

// configPath returns the path to the config file.
func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ccmeter.yaml"), nil
}

// Load loads the configuration from the default location, falling back
// to defaults when no file exists.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyFallbacks(cfg)
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return applyFallbacks(cfg)
}

// Save writes the configuration to the default location.
func Save(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func defaults() *Config {
	return &Config{
		Enabled: true,
		Pricing: make(map[string]model.RateCard),
	}
}

func applyFallbacks(cfg *Config) (*Config, error) {
	if cfg.StoragePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.StoragePath = filepath.Join(home, ".ccmeter", "usage.db")
	}
	if cfg.MachineID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.MachineID = hostname
	}
	if cfg.Pricing == nil {
		cfg.Pricing = make(map[string]model.RateCard)
	}
	return cfg, nil
}
