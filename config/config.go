package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"safemigrator/settings"
)

// Config is the process configuration. Environment variables take the
// MIGRATOR_ prefix; the optional YAML file adds the settings record and the
// archive sinks.
type Config struct {
	// DataDir is where the reference host and the request queue keep their
	// Pebble databases.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	UploadsRoot  string `env:"UPLOADS_ROOT" envDefault:"./uploads"`
	UploadsURL   string `env:"UPLOADS_URL" envDefault:"/uploads"`
	BackupSubdir string `env:"BACKUP_SUBDIR" envDefault:"webp-migrator-backup"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	AuthSecret string `env:"AUTH_SECRET"`

	// RedisURL switches the coordinator lock from the in-process mutex to a
	// Redis lock shared by every process pointing at the same host.
	RedisURL string `env:"REDIS_URL"`

	LogFile  string `env:"LOG_FILE"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`
	TickBudget   time.Duration `env:"TICK_BUDGET" envDefault:"25s"`

	ConfigFile string `env:"CONFIG"`

	Settings settings.Settings
	Sinks    []Sink
}

// Sink is one archive destination for committed backups. Access carries
// the backend-specific credentials and locations (bucket, region, host...).
type Sink struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Prefix string            `yaml:"prefix"`
	Access map[string]string `yaml:"access"`
}

type fileConfig struct {
	Settings *settings.Settings `yaml:"settings"`
	Sinks    []Sink             `yaml:"sinks"`
}

// Load parses the environment and, when MIGRATOR_CONFIG is set, the YAML
// file it points to.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "MIGRATOR_"}); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	cfg.Settings = settings.Default()
	if cfg.ConfigFile != "" {
		if err := cfg.loadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	fc := fileConfig{Settings: &c.Settings}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	for i, s := range fc.Sinks {
		if s.Type == "" {
			return fmt.Errorf("config: sink %d has no type", i)
		}
	}
	c.Sinks = fc.Sinks
	return nil
}

// BackupRoot is the absolute directory backups are created under.
func (c *Config) BackupRoot() string {
	return filepath.Join(c.UploadsRoot, c.BackupSubdir)
}

// GetHostDBPath returns the path of the reference host database.
// Path: {DataDir}/host.db
func (c *Config) GetHostDBPath() string {
	return filepath.Join(c.DataDir, "host.db")
}

// GetQueueDBPath returns the path of the request queue database.
// Path: {DataDir}/queue.db
func (c *Config) GetQueueDBPath() string {
	return filepath.Join(c.DataDir, "queue.db")
}
