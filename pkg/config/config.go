// Package config loads the file service's configuration from a TOML file
// with environment-variable overrides, matching the precedence
// cmdline > env > file described by the system's configuration surface.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Metadata holds the primary/replica relational-store connection config.
type Metadata struct {
	Driver          string `mapstructure:"driver" toml:"driver"` // "sqlite3" or "mysql"
	Host            string `mapstructure:"host" toml:"host"`
	Port            int    `mapstructure:"port" toml:"port"`
	Database        string `mapstructure:"database" toml:"database"`
	User            string `mapstructure:"user" toml:"user"`
	Password        string `mapstructure:"password" toml:"password"`
	ReplicaHost     string `mapstructure:"replica_host" toml:"replica_host"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" toml:"max_open_conns"`
	RetryIntervalS  int    `mapstructure:"retry_interval_seconds" toml:"retry_interval_seconds"`
}

// LocalStorage holds the local blob store's configuration.
type LocalStorage struct {
	Base           string `mapstructure:"base" toml:"base"`
	EncryptData    bool   `mapstructure:"encrypt_data" toml:"encrypt_data"`
	CompressData   bool   `mapstructure:"compress_data" toml:"compress_data"`
}

// ObjectStorage holds the remote (S3-compatible) blob store's configuration.
type ObjectStorage struct {
	Endpoint            string `mapstructure:"endpoint" toml:"endpoint"`
	Region              string `mapstructure:"region" toml:"region"`
	Bucket              string `mapstructure:"bucket" toml:"bucket"`
	AccessKey           string `mapstructure:"access_key" toml:"access_key"`
	SecretKey           string `mapstructure:"secret_key" toml:"secret_key"`
	PathStyle           bool   `mapstructure:"path_style" toml:"path_style"`
	UseSSL              bool   `mapstructure:"use_ssl" toml:"use_ssl"`
	SyncSupport         bool   `mapstructure:"sync_support" toml:"sync_support"`
	RetrySeconds        int    `mapstructure:"retry_seconds" toml:"retry_seconds"`
	SyncOnStartup       bool   `mapstructure:"sync_on_startup" toml:"sync_on_startup"`
	SyncOnDemand        bool   `mapstructure:"sync_on_demand" toml:"sync_on_demand"`
}

// Cache holds the in-memory LRU's sizing configuration.
type Cache struct {
	Threshold      float64 `mapstructure:"threshold" toml:"threshold"`
	MaxCacheSizeMB int64   `mapstructure:"max_cache_size_mb" toml:"max_cache_size_mb"`
}

// Culler holds the background culler's configuration.
type Culler struct {
	Enabled   bool    `mapstructure:"enabled" toml:"enabled"`
	Threshold float64 `mapstructure:"threshold" toml:"threshold"`
	Strategy  string  `mapstructure:"strategy" toml:"strategy"` // "lru" or "lfu"
	Batch     int     `mapstructure:"batch" toml:"batch"`
}

// Config is the top-level configuration for the service.
type Config struct {
	Metadata           Metadata      `mapstructure:"metadata" toml:"metadata"`
	LocalStorage       LocalStorage  `mapstructure:"local_storage" toml:"local_storage"`
	ObjectStorage      ObjectStorage `mapstructure:"object_storage" toml:"object_storage"`
	Cache              Cache         `mapstructure:"cache" toml:"cache"`
	Culler             Culler        `mapstructure:"culler" toml:"culler"`
	MultiTenantEnabled bool          `mapstructure:"multi_tenant_enabled" toml:"multi_tenant_enabled"`
	LogLevel           string        `mapstructure:"log_level" toml:"log_level"`
}

// Default returns the zero-value config with sane defaults filled in.
func Default() *Config {
	return &Config{
		Metadata: Metadata{
			Driver:         "sqlite3",
			Database:       "vault.db",
			MaxOpenConns:   10,
			RetryIntervalS: 5,
		},
		LocalStorage: LocalStorage{Base: "./data/blobs"},
		ObjectStorage: ObjectStorage{
			RetrySeconds: 30,
		},
		Cache: Cache{
			Threshold:      0.9,
			MaxCacheSizeMB: 256,
		},
		Culler: Culler{
			Enabled:   true,
			Threshold: 0.85,
			Strategy:  "lru",
			Batch:     50,
		},
		MultiTenantEnabled: true,
		LogLevel:           "info",
	}
}

// Load reads a TOML file into Config, then applies environment variable
// overrides on top of it. cmdline flags, when a binary parses them, should
// be applied by the caller after Load returns, so they win last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw := map[string]interface{}{}
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, errors.Wrapf(err, "error decoding config file %s", path)
		}
		if err := mapstructure.Decode(raw, cfg); err != nil {
			return nil, errors.Wrap(err, "error mapping config file")
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PG_HOST"); v != "" {
		cfg.Metadata.Driver = "mysql"
		cfg.Metadata.Host = v
	}
	if v := os.Getenv("PG_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Metadata.Port = p
		}
	}
	if v := os.Getenv("PG_DATABASE"); v != "" {
		cfg.Metadata.Database = v
	}
	if v := os.Getenv("PG_USER"); v != "" {
		cfg.Metadata.User = v
	}
	if v := os.Getenv("PG_PASSWORD"); v != "" {
		cfg.Metadata.Password = v
	}
	if v := os.Getenv("STORAGE_BASE"); v != "" {
		cfg.LocalStorage.Base = v
	}
	if v := os.Getenv("ENCRYPT_DATA"); v != "" {
		cfg.LocalStorage.EncryptData = v == "true"
	}
	if v := os.Getenv("COMPRESS_DATA"); v != "" {
		cfg.LocalStorage.CompressData = v == "true"
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.ObjectStorage.Endpoint = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.ObjectStorage.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.ObjectStorage.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.ObjectStorage.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.ObjectStorage.SecretKey = v
	}
	if v := os.Getenv("S3_PATH_STYLE"); v != "" {
		cfg.ObjectStorage.PathStyle = v == "true"
	}
	if v := os.Getenv("S3_SYNC_SUPPORT"); v != "" {
		cfg.ObjectStorage.SyncSupport = v == "true"
	}
	if v := os.Getenv("S3_RETRY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ObjectStorage.RetrySeconds = n
		}
	}
	if v := os.Getenv("S3_SYNC_ON_STARTUP"); v != "" {
		cfg.ObjectStorage.SyncOnStartup = v == "true"
	}
	if v := os.Getenv("S3_SYNC_ON_DEMAND"); v != "" {
		cfg.ObjectStorage.SyncOnDemand = v == "true"
	}
	if v := os.Getenv("CACHE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cache.Threshold = f
		}
	}
	if v := os.Getenv("MAX_CACHE_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxCacheSizeMB = n
		}
	}
	if v := os.Getenv("MULTI_TENANT_ENABLED"); v != "" {
		cfg.MultiTenantEnabled = v == "true"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
