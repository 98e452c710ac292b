package domain

import "time"

// Config is the top-level application configuration tree, unmarshaled by
// viper from YAML + environment variables.
type Config struct {
	Server        ServerConfig                    `mapstructure:"server"`
	Database      DatabaseConfig                  `mapstructure:"database"`
	Redis         RedisConfig                     `mapstructure:"redis"`
	Logging       LoggingConfig                   `mapstructure:"logging"`
	Sources       map[string]SourceConfig         `mapstructure:"sources"`
	EvidenceTiers EvidenceTierConfig              `mapstructure:"evidence_tiers"`
	APIDefaults   APIDefaultsConfig               `mapstructure:"api_defaults"`
	Cache         map[string]CacheNamespaceConfig `mapstructure:"cache"`
	Network       NetworkConfig                   `mapstructure:"network"`
}

// ServerConfig configures the ingestion daemon's own housekeeping — it does
// not stand up the API server itself; it only needs
// a host/port for the health-check listener operators point a liveness
// probe at.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HealthPort      int           `mapstructure:"health_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the pgx connection pool.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the L2 durable cache tier's connection pool.
type RedisConfig struct {
	URL         string        `mapstructure:"url"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// LoggingConfig configures the logrus-backed structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RateLimitConfig is the per-source pacing configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	ChunkSize         int     `mapstructure:"chunk_size"`
	TransactionSize   int     `mapstructure:"transaction_size"`
}

// SmartUpdateConfig configures the duplicate-rate stop condition used by
// adapters supporting incremental fetch.
type SmartUpdateConfig struct {
	MaxPages           int     `mapstructure:"max_pages"`
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"`
	ConsecutivePages   int     `mapstructure:"consecutive_pages"`
}

// TimeoutConfig is the triple-nested timeout budget.
type TimeoutConfig struct {
	PerRequest    time.Duration `mapstructure:"per_request"`
	PerRetryBatch time.Duration `mapstructure:"per_retry_batch"`
	PerPage       time.Duration `mapstructure:"per_page"`
	Failsafe      time.Duration `mapstructure:"failsafe"`
}

// SourceConfig is one entry of the `sources.<name>` configuration section.
type SourceConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	BaseURL     string            `mapstructure:"base_url"`
	Weight      float64           `mapstructure:"weight"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	SmartUpdate SmartUpdateConfig `mapstructure:"smart_update"`
	Timeouts    TimeoutConfig     `mapstructure:"timeouts"`
	Normalizer  string            `mapstructure:"normalizer"` // "log_scale" | "categorical" | "count"
}

// TierRange is one row of the evidence_tiers.ranges configuration list.
type TierRange struct {
	Range     string       `mapstructure:"range"`
	Label     EvidenceTier `mapstructure:"label"`
	Threshold float64      `mapstructure:"threshold"`
	Color     string       `mapstructure:"color"`
}

// EvidenceTierConfig carries the thresholds used by the scoring engine —
// never hardcoded in component code.
type EvidenceTierConfig struct {
	Ranges           []TierRange        `mapstructure:"ranges"`
	FilterThresholds map[string]float64 `mapstructure:"filter_thresholds"`
}

// APIDefaultsConfig configures the query layer's defaults.
type APIDefaultsConfig struct {
	HideZeroScores  bool `mapstructure:"hide_zero_scores"`
	DefaultPageSize int  `mapstructure:"default_page_size"`
	MaxPageSize     int  `mapstructure:"max_page_size"`
	MaxIDListSize   int  `mapstructure:"max_id_list_size"`
}

// CacheNamespaceConfig is one entry of the `cache.<namespace>` section.
type CacheNamespaceConfig struct {
	TTLSeconds   int `mapstructure:"ttl_seconds"`
	L1MaxEntries int `mapstructure:"l1_max_entries"`
}

// NetworkConfig configures the network-analysis engine.
type NetworkConfig struct {
	DefaultClusterAlgorithm string        `mapstructure:"default_cluster_algorithm"`
	MaxGeneIDs              int           `mapstructure:"max_gene_ids"`
	GOEnrichmentTimeout     time.Duration `mapstructure:"go_enrichment_timeout"`
	GOEnrichmentMinInterval time.Duration `mapstructure:"go_enrichment_min_interval"`
	FDRThreshold            float64       `mapstructure:"fdr_threshold"`
}
