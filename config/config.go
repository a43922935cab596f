// Package config loads the points-engine YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/points-engine/points"
)

// Store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// Profile is one browser profile a run drives.
type Profile struct {
	Name   string `yaml:"name"`   // profile directory, also the identity key
	Label  string `yaml:"label"`  // account email shown in the dashboard
	Number int    `yaml:"number"` // 1-based position, defaults to list order

	// UserDataDir overrides Config.UserDataDir. Profiles run concurrently
	// only when their user data dirs differ.
	UserDataDir string `yaml:"user_data_dir"`
}

// Config is the whole application configuration.
type Config struct {
	UserDataDir string    `yaml:"user_data_dir"`
	BrowserBin  string    `yaml:"browser_bin"`
	Headless    bool      `yaml:"headless"`
	Profiles    []Profile `yaml:"profiles"`

	SearchesPerProfile int           `yaml:"searches_per_profile"`
	WaitMin            time.Duration `yaml:"wait_min"`
	WaitMax            time.Duration `yaml:"wait_max"`

	Store        string `yaml:"store"`
	HistoryFile  string `yaml:"history_file"`
	ProgressFile string `yaml:"progress_file"`
	SQLitePath   string `yaml:"sqlite_path"`

	Listen          string `yaml:"listen"`
	Schedule        string `yaml:"schedule"`
	RedeemThreshold int64  `yaml:"redeem_threshold"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SearchesPerProfile <= 0 {
		c.SearchesPerProfile = 30
	}
	if c.WaitMin <= 0 {
		c.WaitMin = 25 * time.Second
	}
	if c.WaitMax <= 0 {
		c.WaitMax = 65 * time.Second
	}
	if c.Store == "" {
		c.Store = StoreJSON
	}
	if c.HistoryFile == "" {
		c.HistoryFile = "historial_puntos.json"
	}
	if c.ProgressFile == "" {
		c.ProgressFile = "progreso_busquedas.json"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "points.db"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.RedeemThreshold <= 0 {
		c.RedeemThreshold = points.DefaultRedeemThreshold
	}
	for i := range c.Profiles {
		if c.Profiles[i].Number <= 0 {
			c.Profiles[i].Number = i + 1
		}
		if c.Profiles[i].UserDataDir == "" {
			c.Profiles[i].UserDataDir = c.UserDataDir
		}
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Store != StoreJSON && c.Store != StoreSQLite {
		return fmt.Errorf("store must be %q or %q, got %q", StoreJSON, StoreSQLite, c.Store)
	}
	if c.WaitMax < c.WaitMin {
		return fmt.Errorf("wait_max (%s) is below wait_min (%s)", c.WaitMax, c.WaitMin)
	}
	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profiles[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("profiles[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Identities returns the configured profile names in order.
func (c *Config) Identities() []points.Identity {
	ids := make([]points.Identity, len(c.Profiles))
	for i, p := range c.Profiles {
		ids[i] = points.Identity(p.Name)
	}
	return ids
}
