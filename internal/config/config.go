package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings.
type Config struct {
	Governor  GovernorConfig `yaml:"governor" mapstructure:"governor"`
	GitHub    GitHubConfig   `yaml:"github" mapstructure:"github"`
	Store     StoreConfig    `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Log       LogConfig      `yaml:"log" mapstructure:"log"`
	Languages []string       `yaml:"languages" mapstructure:"languages"` // empty means all
}

type GovernorConfig struct {
	MaxWorkers   int           `yaml:"max_workers" mapstructure:"max_workers"`
	RecycleAfter int           `yaml:"recycle_after" mapstructure:"recycle_after"` // files per worker lifetime
	FileTimeout  time.Duration `yaml:"file_timeout" mapstructure:"file_timeout"`
	MaxSteps     int           `yaml:"max_steps" mapstructure:"max_steps"` // traversal pops per file
}

type GitHubConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`     // GitHub Enterprise API root
}

type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // sqlite, bolt, file
	Path    string `yaml:"path" mapstructure:"path"`
}

type CacheConfig struct {
	ContentEntries int `yaml:"content_entries" mapstructure:"content_entries"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
	File  string `yaml:"file" mapstructure:"file"`
}

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendFile   = "file"
)

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Governor: GovernorConfig{
			MaxWorkers:   8,
			RecycleAfter: 50,
			FileTimeout:  30 * time.Second,
			MaxSteps:     50000,
		},
		GitHub: GitHubConfig{
			RateLimit: 10,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    filepath.Join(".callgraph", "graph.db"),
		},
		Cache: CacheConfig{
			ContentEntries: 512,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, or from .callgraph/config.yaml or
// ./config.yaml when path is empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("governor.max_workers", cfg.Governor.MaxWorkers)
	v.SetDefault("governor.recycle_after", cfg.Governor.RecycleAfter)
	v.SetDefault("governor.file_timeout", cfg.Governor.FileTimeout)
	v.SetDefault("governor.max_steps", cfg.Governor.MaxSteps)
	v.SetDefault("github.rate_limit", cfg.GitHub.RateLimit)
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("cache.content_entries", cfg.Cache.ContentEntries)
	v.SetDefault("log.level", cfg.Log.Level)

	v.SetEnvPrefix("CALLGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".callgraph")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env files, earlier files taking precedence.
func loadEnvFiles() {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && cfg.GitHub.Token == "" {
		cfg.GitHub.Token = token
	}
	if p := os.Getenv("CALLGRAPH_STORE_PATH"); p != "" {
		cfg.Store.Path = p
	}
	if l := os.Getenv("CALLGRAPH_LOG_LEVEL"); l != "" {
		cfg.Log.Level = l
	}
}

// Validate checks the governor limits and store backend.
func (c *Config) Validate() error {
	if c.Governor.MaxWorkers < 1 {
		return fmt.Errorf("config: governor.max_workers must be positive, got %d", c.Governor.MaxWorkers)
	}
	if c.Governor.RecycleAfter < 1 {
		return fmt.Errorf("config: governor.recycle_after must be positive, got %d", c.Governor.RecycleAfter)
	}
	if c.Governor.FileTimeout <= 0 {
		return fmt.Errorf("config: governor.file_timeout must be positive, got %s", c.Governor.FileTimeout)
	}
	if c.Governor.MaxSteps < 1 {
		return fmt.Errorf("config: governor.max_steps must be positive, got %d", c.Governor.MaxSteps)
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendBolt, BackendFile:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	return nil
}
