package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration, assembled once at process
// start and treated as immutable afterwards.
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Container     ContainerConfig     `toml:"container"`
	Window        WindowConfig        `toml:"window"`
	Notifications NotificationsConfig `toml:"notifications"`
	Repos         []RepoConfig        `toml:"repos"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	StateDir      string `toml:"state_dir"`
	PollIntervalS int    `toml:"poll_interval_s"`
	MaxParallel   int    `toml:"max_parallel"`
	MaxOpenPRs    int    `toml:"max_open_prs"`
}

// ContainerConfig holds worker container settings
type ContainerConfig struct {
	Image      string            `toml:"image"`
	TimeoutMin int               `toml:"timeout_min"`
	Env        map[string]string `toml:"env"`
}

// WindowConfig confines dispatch to a recurring cron window
type WindowConfig struct {
	Cron        string `toml:"cron"`
	DurationMin int    `toml:"duration_min"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// RepoConfig describes one orchestrated repository
type RepoConfig struct {
	Name           string `toml:"name"`
	CandidateLabel string `toml:"candidate_label"`
	DoneLabel      string `toml:"done_label"`
	FailedLabel    string `toml:"failed_label"`
	BranchPrefix   string `toml:"branch_prefix"`
	Image          string `toml:"image"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			StateDir:      filepath.Join(home, ".local", "share", "kiln"),
			PollIntervalS: 60,
			MaxParallel:   3,
			MaxOpenPRs:    5,
		},
		Container: ContainerConfig{
			Image:      "ghcr.io/kilnworks/worker:latest",
			TimeoutMin: 60,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.General.StateDir = ExpandPath(cfg.General.StateDir)
	return cfg, nil
}

// Validate checks the settings an operator can get wrong.
func (c *Config) Validate() error {
	if len(c.Repos) == 0 {
		return fmt.Errorf("no repositories configured")
	}
	for _, repo := range c.Repos {
		if !strings.Contains(repo.Name, "/") {
			return fmt.Errorf("repository %q must be owner/name", repo.Name)
		}
		if repo.CandidateLabel == "" {
			return fmt.Errorf("repository %q has no candidate_label", repo.Name)
		}
	}
	if c.General.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1")
	}
	return nil
}

// ImageFor returns the container image for a repository, falling back to
// the global default.
func (c *Config) ImageFor(repo RepoConfig) string {
	if repo.Image != "" {
		return repo.Image
	}
	return c.Container.Image
}

// PollInterval returns the inter-cycle sleep.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.General.PollIntervalS) * time.Second
}

// ContainerTimeout returns the per-worker timeout.
func (c *Config) ContainerTimeout() time.Duration {
	return time.Duration(c.Container.TimeoutMin) * time.Minute
}

// WindowDuration returns how long the dispatch window stays open after
// each cron activation.
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.Window.DurationMin) * time.Minute
}

// State layout. Every path below StateDir is owned by exactly one component.

func (c *Config) RecordsDir() string   { return filepath.Join(c.General.StateDir, "state") }
func (c *Config) LocksDir() string     { return filepath.Join(c.General.StateDir, "locks") }
func (c *Config) HooksDir() string     { return filepath.Join(c.General.StateDir, "hooks") }
func (c *Config) InboxDir() string     { return filepath.Join(c.General.StateDir, "inbox") }
func (c *Config) LogsDir() string      { return filepath.Join(c.General.StateDir, "logs") }
func (c *Config) EventLogPath() string { return filepath.Join(c.General.StateDir, "events.jsonl") }
func (c *Config) DBPath() string       { return filepath.Join(c.General.StateDir, "kiln.db") }

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kiln", "config.toml")
}
