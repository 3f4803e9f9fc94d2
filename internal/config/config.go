// Package config loads bencherd's configuration from a YAML file with
// environment-variable overrides, following the ambient-stack convention
// carried over from the teacher corpus: one Config struct, unmarshaled
// once at startup, passed down by value/pointer rather than read back from
// globals at each call site.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// OCIBackendKind selects the OCI storage backend (§4.6).
type OCIBackendKind string

const (
	OCIBackendLocal OCIBackendKind = "local"
	OCIBackendS3    OCIBackendKind = "s3"
)

// Config is bencherd's full runtime configuration.
type Config struct {
	// ListenAddr is the REST + WebSocket + OCI HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// DBPath is the SQLite database file path. Defaults under the user's
	// home directory when unset (§4.1).
	DBPath string `yaml:"db_path"`

	// MaxPoolConns sets the read pool size, clamped to [2, 8]; zero (the
	// default) sizes it as clamp(GOMAXPROCS, 2, 8) (§4.1).
	MaxPoolConns int `yaml:"max_pool_conns"`

	// BusyTimeout is the SQLite busy-wait budget (§4.1).
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// HeartbeatTimeout and HeartbeatGrace parameterize the runner channel
	// deadline math (§4.5, B1/B2).
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	HeartbeatGrace   time.Duration `yaml:"heartbeat_grace"`

	// MaxConnections is the process-wide concurrent-connection cap (§5).
	MaxConnections int `yaml:"max_connections"`

	// RunnerRateLimitPerSecond and RunnerRateLimitBurst configure the
	// per-runner token bucket (§5 backpressure).
	RunnerRateLimitPerSecond float64 `yaml:"runner_rate_limit_per_second"`
	RunnerRateLimitBurst     int     `yaml:"runner_rate_limit_burst"`

	// BcryptCost is the hashing cost for stored runner push secrets.
	BcryptCost int `yaml:"bcrypt_cost"`

	// OCI selects and parameterizes the OCI storage backend.
	OCI OCIConfig `yaml:"oci"`
}

// OCIConfig parameterizes the OCI registry's storage backend (§4.6).
type OCIConfig struct {
	Backend OCIBackendKind `yaml:"backend"`

	// LocalRoot is used when Backend == OCIBackendLocal; it defaults to a
	// directory sibling to DBPath (§6 Persisted state layout).
	LocalRoot string `yaml:"local_root"`

	// S3Bucket/S3Prefix/S3Region are used when Backend == OCIBackendS3.
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ListenAddr:               ":8080",
		MaxPoolConns:             0,
		BusyTimeout:              5 * time.Second,
		HeartbeatTimeout:         30 * time.Second,
		HeartbeatGrace:           10 * time.Second,
		MaxConnections:           1024,
		RunnerRateLimitPerSecond: 5,
		RunnerRateLimitBurst:     10,
		BcryptCost: 10,
		OCI: OCIConfig{
			Backend: OCIBackendLocal,
		},
	}
}

// Load reads a YAML config file, applies it over Default(), then applies
// BENCHER_*-prefixed environment variable overrides, and finally resolves
// defaults that depend on the home directory or on DBPath.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %q", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %q", path)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.resolveDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BENCHER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BENCHER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BENCHER_MAX_POOL_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPoolConns = n
		}
	}
	if v := os.Getenv("BENCHER_OCI_BACKEND"); v != "" {
		cfg.OCI.Backend = OCIBackendKind(v)
	}
	if v := os.Getenv("BENCHER_OCI_S3_BUCKET"); v != "" {
		cfg.OCI.S3Bucket = v
	}
}

func (cfg *Config) resolveDefaults() error {
	if cfg.DBPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "resolving home directory for default db_path")
		}
		cfg.DBPath = home + "/.bencher/bencher.db"
	}
	expanded, err := homedir.Expand(cfg.DBPath)
	if err != nil {
		return errors.Wrapf(err, "expanding db_path %q", cfg.DBPath)
	}
	cfg.DBPath = expanded

	if cfg.OCI.Backend == OCIBackendLocal && cfg.OCI.LocalRoot == "" {
		cfg.OCI.LocalRoot = cfg.DBPath + "-oci"
	}
	if cfg.OCI.Backend == OCIBackendS3 && cfg.OCI.S3Bucket == "" {
		return fmt.Errorf("oci.s3_bucket is required when oci.backend is %q", OCIBackendS3)
	}
	return nil
}
