// Package config handles loading application configuration from a YAML file
// with environment variable overrides.
//
// Config file format (nxt-shelf.yaml):
//
//	listen_addr: ":8080"
//	backend: "sqlite"
//	data_dir: "./data"
//	auth_password: "mysecretpassword"
//	lookup_timeout: "10s"
//
// Configuration sources, in increasing priority order:
//  1. Built-in defaults
//  2. YAML config file (located by FindConfigFile or explicit path)
//  3. Environment variables (LISTEN_ADDR, BACKEND, DATA_DIR, DATABASE_URL, ...)
//
// A .env file in the working directory is loaded into the environment first
// (see LoadDotEnv), so it behaves like real environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends lists the accepted values of Config.Backend.
var Backends = []string{"fs", "sqlite", "postgres", "redis"}

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the TCP address for the HTTP server (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// Password is the shared password for form-based authentication.
	// Leave empty to disable authentication (development/trusted-network use only).
	Password string `yaml:"auth_password"`

	// Backend selects the storage implementation.
	// "fs"       – JSON key-value file in DataDir (default)
	// "sqlite"   – books table in {DataDir}/shelf.db
	// "postgres" – books table in DatabaseURL
	// "redis"    – JSON array under StorageKey on RedisAddr
	Backend string `yaml:"backend"`

	// DataDir holds local storage for the fs and sqlite backends.
	DataDir string `yaml:"data_dir"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `yaml:"database_url"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// StorageKey is the key the collection is stored under by key-value backends.
	StorageKey string `yaml:"storage_key"`

	// LookupURL, when set, is an external endpoint answering
	// GET <url>?isbn=<digits> with {success, book}. When empty, Open Library
	// is queried directly at OpenLibraryURL.
	LookupURL      string `yaml:"lookup_url"`
	OpenLibraryURL string `yaml:"openlibrary_url"`

	// LookupTimeoutStr is a duration string ("10s"). Parsed into LookupTimeout by Load().
	LookupTimeoutStr string        `yaml:"lookup_timeout"`
	LookupTimeout    time.Duration `yaml:"-"`

	// LookupRPS caps Open Library requests per second.
	LookupRPS int `yaml:"lookup_rps"`

	// LookupRetries is the number of retries on 429/5xx and network errors.
	LookupRetries int `yaml:"lookup_retries"`

	// ScanQuietPeriodStr is how long a barcode scan waits after the last
	// detection before emitting its batch. Parsed into ScanQuietPeriod by Load().
	ScanQuietPeriodStr string        `yaml:"scan_quiet_period"`
	ScanQuietPeriod    time.Duration `yaml:"-"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// PrettyLog selects colored console output instead of JSON.
	PrettyLog bool `yaml:"pretty_log"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		Backend:            "fs",
		DataDir:            "./data",
		RedisAddr:          "localhost:6379",
		StorageKey:         "nxt-shelf:books",
		OpenLibraryURL:     "https://openlibrary.org",
		LookupTimeoutStr:   "10s",
		LookupTimeout:      10 * time.Second,
		LookupRPS:          1,
		LookupRetries:      2,
		ScanQuietPeriodStr: "5s",
		ScanQuietPeriod:    5 * time.Second,
		LogLevel:           "info",
	}
}

// LoadDotEnv loads ./.env into the process environment. Variables that are
// already set win. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from the YAML file at path (if non-empty), then
// applies environment variable overrides on top. Returns the merged Config.
// If path is empty, only defaults and environment variables are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	// Environment variables always override file values so that Docker /
	// systemd overrides still work even when a config file is present.
	envString(&cfg.ListenAddr, "LISTEN_ADDR")
	envString(&cfg.Password, "AUTH_PASSWORD")
	envString(&cfg.Backend, "BACKEND")
	envString(&cfg.DataDir, "DATA_DIR")
	envString(&cfg.DatabaseURL, "DATABASE_URL")
	envString(&cfg.RedisAddr, "REDIS_ADDR")
	envString(&cfg.RedisPassword, "REDIS_PASSWORD")
	envInt(&cfg.RedisDB, "REDIS_DB")
	envString(&cfg.StorageKey, "STORAGE_KEY")
	envString(&cfg.LookupURL, "LOOKUP_URL")
	envString(&cfg.OpenLibraryURL, "OPENLIBRARY_URL")
	envString(&cfg.LookupTimeoutStr, "LOOKUP_TIMEOUT")
	envInt(&cfg.LookupRPS, "LOOKUP_RPS")
	envInt(&cfg.LookupRetries, "LOOKUP_RETRIES")
	envString(&cfg.ScanQuietPeriodStr, "SCAN_QUIET_PERIOD")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("PRETTY_LOG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PrettyLog = b
		}
	}

	// Invalid duration strings are silently ignored; the defaults are
	// preserved unless the YAML or env explicitly set a valid value.
	if d, err := time.ParseDuration(cfg.LookupTimeoutStr); err == nil && d > 0 {
		cfg.LookupTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ScanQuietPeriodStr); err == nil && d > 0 {
		cfg.ScanQuietPeriod = d
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return cfg, nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	switch c.Backend {
	case "fs", "sqlite":
		if c.DataDir == "" {
			return fmt.Errorf("backend %q needs data_dir", c.Backend)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("backend %q needs database_url", c.Backend)
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("backend %q needs redis_addr", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want one of %s)", c.Backend, strings.Join(Backends, ", "))
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is empty")
	}
	return nil
}

// FindConfigFile returns the path to the first config file found in the
// standard search order, or "" if none is found.
//
// Search order:
//  1. NXT_SHELF_CONFIG environment variable (explicit override)
//  2. ./nxt-shelf.yaml (current working directory)
//  3. ~/.config/nxt-shelf/config.yaml (XDG user config)
func FindConfigFile() string {
	// 1. Explicit path via environment variable.
	if p := os.Getenv("NXT_SHELF_CONFIG"); p != "" {
		return p
	}

	// 2. Config file in the current working directory.
	if _, err := os.Stat("nxt-shelf.yaml"); err == nil {
		return "nxt-shelf.yaml"
	}

	// 3. XDG user config directory.
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "nxt-shelf", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
