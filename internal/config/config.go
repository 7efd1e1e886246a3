// Package config loads client settings. Precedence, lowest first: built-in
// defaults, the YAML file, DOCDESK_* environment variables (a .env file in the
// working directory is read too), and command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "DOCDESK_"

// Config holds every client setting.
type Config struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CACert   string        `yaml:"ca_cert"`
	Insecure bool          `yaml:"insecure"`
	RPS      float64       `yaml:"rps"`
	Burst    int           `yaml:"burst"`

	StateDir     string `yaml:"state_dir"`
	StateDSN     string `yaml:"state_dsn"`
	StateProfile string `yaml:"state_profile"`
	// Passphrase is read from the environment only.
	Passphrase string `yaml:"-"`

	LogLevel    string `yaml:"log_level"`
	LogDir      string `yaml:"log_dir"`
	LogMaxFiles int    `yaml:"log_max_files"`

	SearchDebounce  time.Duration `yaml:"search_debounce"`
	SearchMinLength int           `yaml:"search_min_length"`
	SearchLimit     int           `yaml:"search_limit"`
	ListLimit       int           `yaml:"list_limit"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Dir returns the per-user configuration directory.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "docdesk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "docdesk")
}

// DefaultPath is the YAML file read when no explicit path is given.
func DefaultPath() string { return filepath.Join(Dir(), "config.yaml") }

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BaseURL:         "http://localhost:8000",
		Timeout:         30 * time.Second,
		RPS:             10,
		Burst:           5,
		StateDir:        Dir(),
		StateProfile:    "default",
		LogLevel:        "info",
		LogMaxFiles:     5,
		SearchDebounce:  500 * time.Millisecond,
		SearchMinLength: 3,
		SearchLimit:     10,
	}
}

// Load reads path (or DefaultPath when empty) over the defaults, then the environment.
// A missing default file is fine; a missing explicit file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*dst = d
		}
	}

	str("BASE_URL", &c.BaseURL)
	dur("TIMEOUT", &c.Timeout)
	str("CA_CERT", &c.CACert)
	if v, ok := lookup(EnvPrefix + "INSECURE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, EnvPrefix+"INSECURE")
		}
		c.Insecure = b
	}
	if v, ok := lookup(EnvPrefix + "RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, EnvPrefix+"RPS")
		}
		c.RPS = f
	}
	num("BURST", &c.Burst)
	str("STATE_DIR", &c.StateDir)
	str("STATE_DSN", &c.StateDSN)
	str("STATE_PROFILE", &c.StateProfile)
	if v, ok := lookup(EnvPrefix + "PASSPHRASE"); ok {
		c.Passphrase = v
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_DIR", &c.LogDir)
	num("LOG_MAX_FILES", &c.LogMaxFiles)
	dur("SEARCH_DEBOUNCE", &c.SearchDebounce)
	num("SEARCH_MIN_LENGTH", &c.SearchMinLength)
	num("SEARCH_LIMIT", &c.SearchLimit)
	num("LIST_LIMIT", &c.ListLimit)
	str("METRICS_ADDR", &c.MetricsAddr)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Validate checks the merged settings.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.RequestURL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RPS, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.StateDir, validation.Required),
		validation.Field(&c.StateProfile, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogMaxFiles, validation.Min(1)),
		validation.Field(&c.SearchDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.SearchMinLength, validation.Min(1)),
		validation.Field(&c.SearchLimit, validation.Min(0)),
		validation.Field(&c.ListLimit, validation.Min(0)),
		validation.Field(&c.CACert, validation.When(c.Insecure, validation.Empty.Error("ca_cert and insecure are mutually exclusive"))),
	)
}
