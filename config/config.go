// Package config loads the settings of the asset store service.
//
// Values are resolved in four layers, each overriding the previous one:
// built-in defaults, an optional YAML file, environment variables and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ErmitaVulpe/cookbook/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig      = "COOKBOOK_CONFIG"
	EnvCdnPath     = "CDN_PATH"
	EnvDatabaseURL = "DATABASE_URL"
	EnvAdminToken  = "ADMIN_TOKEN"
	EnvLogLevel    = "LOG_LEVEL"
)

type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// ShutdownTimeout bounds the graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig configures the asset store.
type StorageConfig struct {
	// Path is the storage root. Env: CDN_PATH
	Path string `yaml:"path"`
	// Reconcile repairs the index from the directory tree on startup.
	Reconcile bool `yaml:"reconcile"`
	// MaxConcurrentEncodes bounds parallel image conversions; 0 uses GOMAXPROCS.
	MaxConcurrentEncodes int `yaml:"max_concurrent_encodes"`
	// MaxImageSize limits a single uploaded image, e.g. "10MiB".
	MaxImageSize ByteSize `yaml:"max_image_size"`
}

// CatalogConfig configures the recipe catalog.
type CatalogConfig struct {
	// Address selects the backend, see catalog.Parse. Env: DATABASE_URL
	Address string `yaml:"address"`
}

type AuthConfig struct {
	// Token is the bearer token accepted on mutating routes. Empty disables
	// authorization. Env: ADMIN_TOKEN
	Token string `yaml:"token"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error, fatal. Env: LOG_LEVEL
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	JSON    bool   `yaml:"json"`
	NoColor bool   `yaml:"no_color"`
}

// Default returns the configuration used before any layer is applied.
func Default() *Config {
	return &Config{
		Listen:          ":3000",
		ShutdownTimeout: 10 * time.Second,
		Storage: StorageConfig{
			Path:         "cdn",
			MaxImageSize: 10 * MiB,
		},
		Catalog: CatalogConfig{
			Address: "sqlite://cookbook.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the configuration from args (without the program name) and
// the environment as reported by getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	var (
		configPath   string
		listen       string
		cdnPath      string
		databaseURL  string
		logLevel     string
		logFile      string
		reconcile    bool
		maxImageSize ByteSize
	)

	flagSet := pflag.NewFlagSet("cookbook-cdn", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env "+EnvConfig+")")
	flagSet.StringVar(&listen, "listen", cfg.Listen, "HTTP listen address")
	flagSet.StringVar(&cdnPath, "cdn-path", cfg.Storage.Path, "storage root of the asset store (env "+EnvCdnPath+")")
	flagSet.StringVar(&databaseURL, "database-url", cfg.Catalog.Address, "recipe catalog address (env "+EnvDatabaseURL+")")
	flagSet.StringVar(&logLevel, "log-level", cfg.Log.Level, "log level (env "+EnvLogLevel+")")
	flagSet.StringVar(&logFile, "log-file", "", "write logs to this file with rotation")
	flagSet.BoolVar(&reconcile, "reconcile", false, "repair the asset index from the directory tree on startup")
	maxImageSize = cfg.Storage.MaxImageSize
	flagSet.Var(&maxImageSize, "max-image-size", "largest accepted image upload")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	if configPath == "" {
		configPath = getenv(EnvConfig)
	}
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvironment(getenv)

	if flagSet.Changed("listen") {
		cfg.Listen = listen
	}
	if flagSet.Changed("cdn-path") {
		cfg.Storage.Path = cdnPath
	}
	if flagSet.Changed("database-url") {
		cfg.Catalog.Address = databaseURL
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flagSet.Changed("reconcile") {
		cfg.Storage.Reconcile = reconcile
	}
	if flagSet.Changed("max-image-size") {
		cfg.Storage.MaxImageSize = maxImageSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile merges the YAML file at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	return nil
}

func (c *Config) applyEnvironment(getenv func(string) string) {
	if value := getenv(EnvCdnPath); value != "" {
		c.Storage.Path = value
	}
	if value := getenv(EnvDatabaseURL); value != "" {
		c.Catalog.Address = value
	}
	if value := getenv(EnvAdminToken); value != "" {
		c.Auth.Token = value
	}
	if value := getenv(EnvLogLevel); value != "" {
		c.Log.Level = value
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}
	if c.Storage.MaxConcurrentEncodes < 0 {
		errs = append(errs, fmt.Errorf("storage.max_concurrent_encodes cannot be negative"))
	}
	if c.Storage.MaxImageSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.max_image_size must be positive"))
	}
	if strings.TrimSpace(c.Catalog.Address) == "" {
		errs = append(errs, fmt.Errorf("catalog.address is required"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level. Validate guarantees it parses.
func (c *Config) LogLevel() log.LogLevel {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.Info
	}
	return level
}
