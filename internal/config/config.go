package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
)

type Config struct {
	Port               int      `mapstructure:"port"`
	GRPCPort           int      `mapstructure:"grpc_port"`              // gRPC health endpoint; 0 = disabled
	DatabaseDriver     string   `mapstructure:"database_driver"`        // sqlite or postgres
	DatabasePath       string   `mapstructure:"database_path"`          // SQLite file, or a postgres DSN
	LogLevel           string   `mapstructure:"log_level"`
	LogFormat          string   `mapstructure:"log_format"`             // json or console
	LogFile            string   `mapstructure:"log_file"`               // rotating file; empty = stderr only
	LogMaxSizeMB       int      `mapstructure:"log_max_size_mb"`
	LogMaxBackups      int      `mapstructure:"log_max_backups"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerMin    int      `mapstructure:"rate_limit_per_min"`     // Per client IP; 0 = disabled
	RateLimitBurst     int      `mapstructure:"rate_limit_burst"`
	KubeconfigPath     string   `mapstructure:"kubeconfig_path"`
	KubeContext        string   `mapstructure:"kube_context"`
	RequestTimeoutSec  int      `mapstructure:"request_timeout_sec"`    // HTTP read/write; 0 = use server default
	BuildTimeoutSec    int      `mapstructure:"build_timeout_sec"`      // Graph request context timeout
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`
	K8sTimeoutSec      int      `mapstructure:"k8s_timeout_sec"`        // Timeout for live snapshot collection
	K8sRateLimitPerSec float64  `mapstructure:"k8s_rate_limit_per_sec"` // Token bucket rate for list calls; 0 = no limit
	K8sRateLimitBurst  int      `mapstructure:"k8s_rate_limit_burst"`
	IncludeWorkloads   bool     `mapstructure:"include_workloads"`      // List pods for live snapshots
	GraphCacheSize     int      `mapstructure:"graph_cache_size"`       // 0 = cache disabled
	GraphCacheTTLSec   int      `mapstructure:"graph_cache_ttl_sec"`    // 0 = entries never expire
	GraphMaxNodes      int      `mapstructure:"graph_max_nodes"`        // Reject larger graphs; 0 = no limit
	MaxSnapshotBytes   int      `mapstructure:"max_snapshot_bytes"`
	TracingEndpoint    string   `mapstructure:"tracing_endpoint"`       // OTLP collector; empty = disabled
	TracingSampleRate  float64  `mapstructure:"tracing_sample_rate"`

	Layout layout.Options `mapstructure:"layout"`
}

// Load reads config.yaml from the usual locations, then environment variables
// (RBACGRAPH_PORT, RBACGRAPH_LAYOUT_DIRECTION, ...). A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/rbacgraph/")
	v.AddConfigPath("$HOME/.rbacgraph")
	v.AddConfigPath(".")

	// Defaults
	v.SetDefault("port", 8090)
	v.SetDefault("grpc_port", 0)
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_path", "./rbacgraph.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 10)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_limit_per_min", 600)
	v.SetDefault("rate_limit_burst", 120)
	v.SetDefault("kubeconfig_path", "")
	v.SetDefault("kube_context", "")
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("build_timeout_sec", 20)
	v.SetDefault("shutdown_timeout_sec", 15)
	v.SetDefault("k8s_timeout_sec", 30)
	v.SetDefault("k8s_rate_limit_per_sec", 0) // 0 = disabled
	v.SetDefault("k8s_rate_limit_burst", 0)
	v.SetDefault("include_workloads", true)
	v.SetDefault("graph_cache_size", 256)
	v.SetDefault("graph_cache_ttl_sec", 300)
	v.SetDefault("graph_max_nodes", 5000)
	v.SetDefault("max_snapshot_bytes", 8<<20)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sample_rate", 1.0)
	v.SetDefault("layout.direction", string(layout.TopToBottom))
	v.SetDefault("layout.node_separation", layout.DefaultNodeSeparation)
	v.SetDefault("layout.rank_separation", layout.DefaultRankSeparation)
	v.SetDefault("layout.orphan_columns", layout.DefaultOrphanColumns)
	v.SetDefault("layout.orphan_spacing", layout.DefaultOrphanSpacing)
	v.SetDefault("layout.ordering_passes", layout.DefaultOrderingPasses)

	// Environment variables
	v.SetEnvPrefix("RBACGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Layout = cfg.Layout.Normalized()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database_driver %q: want sqlite or postgres", c.DatabaseDriver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log_format %q: want json or console", c.LogFormat)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc_port %d", c.GRPCPort)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("invalid tracing_sample_rate %v: want 0..1", c.TracingSampleRate)
	}
	return nil
}
