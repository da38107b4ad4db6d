package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Line    LineConfig     `toml:"line" yaml:"line"`
	Storage StorageConfig  `toml:"storage" yaml:"storage"`
	Raw     map[string]any `toml:"-" yaml:"-"`
	Path    string         `toml:"-" yaml:"-"`
}

type LineConfig struct {
	MinRobots     int     `toml:"min_robots" yaml:"min_robots"`
	MaxRobots     int     `toml:"max_robots" yaml:"max_robots"`
	SwitchPenalty float64 `toml:"switch_penalty" yaml:"switch_penalty"`
	Seed          int64   `toml:"seed" yaml:"seed"`
}

type StorageConfig struct {
	DBPath   string `toml:"db_path" yaml:"db_path"`
	TraceDir string `toml:"trace_dir" yaml:"trace_dir"`
}

func Default() Config {
	return Config{
		Line: LineConfig{
			MinRobots:     2,
			MaxRobots:     30,
			SwitchPenalty: 5.0,
		},
		Storage: StorageConfig{
			DBPath: "data/foobar.db",
		},
	}
}

// Load reads the config file at path on top of Default and applies FOOBAR_*
// environment overrides. An empty path falls back to ~/.foobar/config.toml,
// which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()

	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := decode(resolved, bytes, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Path = resolved
	case path == "" && errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Line.MinRobots < 1 {
		return fmt.Errorf("line.min_robots must be at least 1, got %d", c.Line.MinRobots)
	}
	if c.Line.MaxRobots < c.Line.MinRobots {
		return fmt.Errorf("line.max_robots %d is below line.min_robots %d", c.Line.MaxRobots, c.Line.MinRobots)
	}
	// a single robot only ever mines bar, so the pool could never grow
	if c.Line.MinRobots < 2 && c.Line.MaxRobots > c.Line.MinRobots {
		return fmt.Errorf("line.min_robots must be at least 2 to grow the pool to %d, got %d", c.Line.MaxRobots, c.Line.MinRobots)
	}
	if c.Line.SwitchPenalty <= 0 {
		return fmt.Errorf("line.switch_penalty must be positive, got %g", c.Line.SwitchPenalty)
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	return nil
}

func decode(path string, bytes []byte, cfg *Config) error {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(bytes, cfg); err != nil {
			return fmt.Errorf("decode config file: %w", err)
		}
		if err := yaml.Unmarshal(bytes, &raw); err != nil {
			return fmt.Errorf("decode raw config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(bytes), cfg); err != nil {
			return fmt.Errorf("decode config file: %w", err)
		}
		if _, err := toml.Decode(string(bytes), &raw); err != nil {
			return fmt.Errorf("decode raw config: %w", err)
		}
	}
	cfg.Raw = raw
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"FOOBAR_MIN_ROBOTS", &cfg.Line.MinRobots},
		{"FOOBAR_MAX_ROBOTS", &cfg.Line.MaxRobots},
	}
	for _, item := range ints {
		raw, ok := lookup(item.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.dst = v
	}

	if raw, ok := lookup("FOOBAR_SEED"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("parse FOOBAR_SEED: %w", err)
		}
		cfg.Line.Seed = v
	}
	if raw, ok := lookup("FOOBAR_SWITCH_PENALTY"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("parse FOOBAR_SWITCH_PENALTY: %w", err)
		}
		cfg.Line.SwitchPenalty = v
	}
	if raw, ok := lookup("FOOBAR_DB_PATH"); ok && strings.TrimSpace(raw) != "" {
		cfg.Storage.DBPath = strings.TrimSpace(raw)
	}
	if raw, ok := lookup("FOOBAR_TRACE_DIR"); ok {
		cfg.Storage.TraceDir = strings.TrimSpace(raw)
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foobar/config.toml"
	}
	return filepath.Join(home, ".foobar", "config.toml")
}
