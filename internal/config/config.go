// Package config resolves runtime tuning for the bidding daemon from the
// environment, with an optional YAML file underneath. Identity (agent id and
// node name) comes from the CLI; everything else comes from here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's runtime tuning.
type Config struct {
	// DBDriver is "sqlite" (default) or "postgres".
	DBDriver string `yaml:"db_driver"`
	// DBURL is the postgres connection string (falls back to DATABASE_URL).
	DBURL string `yaml:"db_url"`
	// Home is the directory holding the SQLite database (default ~/.ganuda).
	Home string `yaml:"home"`

	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	OpenTaskLimit     int           `yaml:"open_task_limit"`

	// MetricsAddr enables the Prometheus /metrics listener when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
	// PprofAddr enables the pprof listener when non-empty.
	PprofAddr string `yaml:"pprof_addr"`
}

// Default returns the built-in tuning.
func Default() Config {
	return Config{
		DBDriver:          "sqlite",
		PollInterval:      10 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		OpenTaskLimit:     10,
	}
}

// Load resolves the config: defaults, then the YAML file named by
// GANUDA_CONFIG (if set), then GANUDA_* environment variables on top.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("GANUDA_CONFIG"); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Home == "" {
		home, err := ResolveHome("")
		if err != nil {
			return cfg, err
		}
		cfg.Home = home
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("GANUDA_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("GANUDA_DB_URL"); v != "" {
		cfg.DBURL = v
	} else if cfg.DBURL == "" {
		cfg.DBURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("GANUDA_HOME"); v != "" {
		cfg.Home = filepath.Clean(v)
	}
	if v := os.Getenv("GANUDA_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("GANUDA_PPROF_ADDR"); v != "" {
		cfg.PprofAddr = v
	}
	if v := os.Getenv("GANUDA_OPEN_TASK_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid GANUDA_OPEN_TASK_LIMIT: %q", v)
		}
		cfg.OpenTaskLimit = n
	}
	if err := envDuration("GANUDA_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return err
	}
	if err := envDuration("GANUDA_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval); err != nil {
		return err
	}
	return nil
}

// envDuration parses either a Go duration ("30s") or a bare number of seconds.
func envDuration(key string, dest *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, v)
		}
		*dest = d
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		*dest = time.Duration(secs) * time.Second
		return nil
	}
	return fmt.Errorf("invalid %s: %q", key, v)
}

// ResolveHome returns the data directory (override, GANUDA_HOME, or ~/.ganuda).
func ResolveHome(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	if env := os.Getenv("GANUDA_HOME"); env != "" {
		return filepath.Clean(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, ".ganuda"), nil
}
