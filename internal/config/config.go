package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds run defaults. Precedence is defaults < file < env < flags;
// flags are merged by the command layer.
type Config struct {
	Threads   int           `yaml:"threads"`
	Timeout   time.Duration `yaml:"timeout"`
	KATimeout time.Duration `yaml:"keep_alive_timeout"`
	UserAgent string        `yaml:"user_agent"`
	Proxy     string        `yaml:"proxy"`
	Headers   []string      `yaml:"headers"`
	LimitRate string        `yaml:"limit_rate"`
	TempDir   string        `yaml:"temp_dir"`
}

func DefaultConfig() Config {
	return Config{
		Threads:   1,
		Timeout:   3 * time.Minute,
		KATimeout: 90 * time.Second,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/accel/config.yaml or the platform equivalent.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "accel", "config.yaml")
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error unless the path was given explicitly.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("error reading config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file %s: %v", path, err)
	}
	if cfg.Threads < 1 {
		return cfg, fmt.Errorf("invalid threads in %s: %d", path, cfg.Threads)
	}
	return cfg, nil
}

// LoadEnvFile sources a .env file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading env file %s: %v", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any ACCEL_* variables present.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("ACCEL_THREADS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid ACCEL_THREADS %q", v)
		}
		cfg.Threads = n
	}
	if v, ok := os.LookupEnv("ACCEL_USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := os.LookupEnv("ACCEL_PROXY"); ok {
		cfg.Proxy = v
	}
	if v, ok := os.LookupEnv("ACCEL_TEMP_DIR"); ok {
		cfg.TempDir = v
	}
	if v, ok := os.LookupEnv("ACCEL_LIMIT_RATE"); ok {
		cfg.LimitRate = v
	}
	return nil
}
