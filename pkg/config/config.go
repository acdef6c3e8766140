// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Paths, Search, Builder, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Paths   PathsConfig   `yaml:"paths"`
	Search  SearchConfig  `yaml:"search"`
	Builder BuilderConfig `yaml:"builder"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PathsConfig locates every on-disk artifact: the binary row store, the
// monolithic index directory, the shard directory, and the lookup tables.
type PathsConfig struct {
	DataRoot   string `yaml:"dataRoot"`
	LookupRoot string `yaml:"lookupRoot"`
	IndexRoot  string `yaml:"indexRoot"`
	ShardsRoot string `yaml:"shardsRoot"`
	DocmetaBin string `yaml:"docmetaBin"`
}

// SearchConfig controls query planning and result limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MinLimit     int `yaml:"minLimit"`
	MaxLimit     int `yaml:"maxLimit"`
	// SelectivityFactor decides whether a date-range union is materialized:
	// the union is built when its estimated size is at most
	// SelectivityFactor times the smallest other candidate list.
	SelectivityFactor int `yaml:"selectivityFactor"`
	// MonoCacheSize bounds the number of parsed monolithic index files kept
	// in memory.
	MonoCacheSize int `yaml:"monoCacheSize"`
}

// BuilderConfig controls the offline index builder.
type BuilderConfig struct {
	TwoLevel      bool `yaml:"twoLevel"`
	ProgressRows  int  `yaml:"progressRows"`
	ProgressFiles int  `yaml:"progressFiles"`
}

// RedisConfig holds Redis connection and caching parameters for the optional
// search-result cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.Paths.resolve()
	return cfg, nil
}

// defaultConfig returns a Config with defaults matching the standard data
// layout under the working directory.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Paths: PathsConfig{
			DataRoot:   "data",
			LookupRoot: "lookup",
		},
		Search: SearchConfig{
			DefaultLimit:      40,
			MinLimit:          1,
			MaxLimit:          200,
			SelectivityFactor: 4,
			MonoCacheSize:     8,
		},
		Builder: BuilderConfig{
			TwoLevel:      true,
			ProgressRows:  250000,
			ProgressFiles: 5000,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// resolve fills the derived paths that were not set explicitly. IndexRoot,
// ShardsRoot, and DocmetaBin all hang off DataRoot unless overridden.
func (p *PathsConfig) resolve() {
	if p.IndexRoot == "" {
		p.IndexRoot = filepath.Join(p.DataRoot, "index")
	}
	if p.ShardsRoot == "" {
		p.ShardsRoot = filepath.Join(p.DataRoot, "index_sharded")
	}
	if p.DocmetaBin == "" {
		p.DocmetaBin = filepath.Join(p.DataRoot, "docmeta", "docmeta.bin")
	}
}

// applyEnvOverrides reads GS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GS_DATA_ROOT"); v != "" {
		cfg.Paths.DataRoot = v
	}
	if v := os.Getenv("GS_LOOKUP_ROOT"); v != "" {
		cfg.Paths.LookupRoot = v
	}
	if v := os.Getenv("GS_INDEX_ROOT"); v != "" {
		cfg.Paths.IndexRoot = v
	}
	if v := os.Getenv("GS_SHARDS_ROOT"); v != "" {
		cfg.Paths.ShardsRoot = v
	}
	if v := os.Getenv("GS_DOCMETA_BIN"); v != "" {
		cfg.Paths.DocmetaBin = v
	}
	if v := os.Getenv("GS_SEARCH_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.MaxLimit = n
		}
	}
	if v := os.Getenv("GS_SEARCH_SELECTIVITY_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.SelectivityFactor = n
		}
	}
	if v := os.Getenv("GS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
