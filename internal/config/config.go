// Package config loads the application configuration using Viper, with
// well-known defaults for every section.
package config

import (
	"fmt"
	"strings"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/spf13/viper"
)

// Manager loads, validates, and serves the application configuration tree.
type Manager struct {
	config *domain.Config
}

// NewManager builds a Manager, reading config.yaml (if present) layered
// under environment variables and the defaults in setDefaults.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/kidney-genetics-core/")

	viper.SetEnvPrefix("KGC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables.
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.health_port", 8090)
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "kidney_genetics")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.pool_timeout", "5s")
	viper.SetDefault("redis.max_retries", 3)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	for name, base := range map[string]string{
		"panelapp":          "https://panelapp.genomicsengland.co.uk/api/v1",
		"clingen":           "https://search.clinicalgenome.org/kb/gene-validity",
		"gencc":             "https://search.thegencc.org/api",
		"hpo":               "https://ontology.jax.org/api/network",
		"clinvar":           "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		"pubtator":          "https://www.ncbi.nlm.nih.gov/research/pubtator3-api",
		"string_ppi":        "https://string-db.org/api",
		"diagnostic_panels": "",
	} {
		p := "sources." + name + "."
		viper.SetDefault(p+"enabled", true)
		viper.SetDefault(p+"base_url", base)
		viper.SetDefault(p+"rate_limit.requests_per_second", 3.0)
		viper.SetDefault(p+"rate_limit.chunk_size", 300)
		viper.SetDefault(p+"rate_limit.transaction_size", 1000)
		viper.SetDefault(p+"smart_update.max_pages", 500)
		viper.SetDefault(p+"smart_update.duplicate_threshold", 0.9)
		viper.SetDefault(p+"smart_update.consecutive_pages", 3)
		viper.SetDefault(p+"timeouts.per_request", "30s")
		viper.SetDefault(p+"timeouts.per_retry_batch", "60s")
		viper.SetDefault(p+"timeouts.per_page", "90s")
		viper.SetDefault(p+"timeouts.failsafe", "120s")
	}
	viper.SetDefault("sources.panelapp.weight", 0.20)
	viper.SetDefault("sources.panelapp.normalizer", "count")
	viper.SetDefault("sources.clingen.weight", 0.25)
	viper.SetDefault("sources.clingen.normalizer", "categorical")
	viper.SetDefault("sources.gencc.weight", 0.15)
	viper.SetDefault("sources.gencc.normalizer", "categorical")
	viper.SetDefault("sources.hpo.weight", 0.10)
	viper.SetDefault("sources.hpo.normalizer", "count")
	viper.SetDefault("sources.clinvar.weight", 0.15)
	viper.SetDefault("sources.clinvar.normalizer", "categorical")
	viper.SetDefault("sources.pubtator.weight", 0.10)
	viper.SetDefault("sources.pubtator.normalizer", "log_scale")
	viper.SetDefault("sources.string_ppi.weight", 0.0)
	viper.SetDefault("sources.string_ppi.normalizer", "count")
	viper.SetDefault("sources.diagnostic_panels.weight", 0.05)
	viper.SetDefault("sources.diagnostic_panels.normalizer", "count")

	viper.SetDefault("evidence_tiers.ranges", []map[string]any{
		{"range": "[70,100]", "label": string(domain.TierComprehensiveSupport), "threshold": 70.0, "color": "#1b7a3d"},
		{"range": "[50,70)", "label": string(domain.TierMultiSourceSupport), "threshold": 50.0, "color": "#3d9970"},
		{"range": "[30,50)", "label": string(domain.TierEstablishedSupport), "threshold": 30.0, "color": "#8fbc3f"},
		{"range": "[20,30)", "label": string(domain.TierPreliminaryEvidence), "threshold": 20.0, "color": "#e2b93b"},
		{"range": "(0,20)", "label": string(domain.TierMinimalEvidence), "threshold": 0.0, "color": "#e08a3b"},
		{"range": "{0}", "label": string(domain.TierInsufficient), "threshold": 0.0, "color": "#999999"},
	})
	viper.SetDefault("evidence_tiers.filter_thresholds", map[string]float64{
		string(domain.TierComprehensiveSupport): 70.0,
		string(domain.TierMultiSourceSupport):   50.0,
		string(domain.TierEstablishedSupport):   30.0,
		string(domain.TierPreliminaryEvidence):  20.0,
		string(domain.TierMinimalEvidence):      0.0,
	})

	viper.SetDefault("api_defaults.hide_zero_scores", true)
	viper.SetDefault("api_defaults.default_page_size", 25)
	viper.SetDefault("api_defaults.max_page_size", 500)
	viper.SetDefault("api_defaults.max_id_list_size", 1000)

	for _, ns := range []string{"annotations", "hgnc", "http", "files", "pubtator", "gencc", "panelapp", "hpo", "clingen", "network_analysis"} {
		p := "cache." + ns + "."
		viper.SetDefault(p+"ttl_seconds", 3600)
		viper.SetDefault(p+"l1_max_entries", 1000)
	}
	viper.SetDefault("cache.network_analysis.ttl_seconds", 3600)

	viper.SetDefault("network.default_cluster_algorithm", "leiden")
	viper.SetDefault("network.max_gene_ids", 2000)
	viper.SetDefault("network.go_enrichment_timeout", "120s")
	viper.SetDefault("network.go_enrichment_min_interval", "2s")
	viper.SetDefault("network.fdr_threshold", 0.05)
}

// GetConfig returns the full configuration tree.
func (m *Manager) GetConfig() *domain.Config { return m.config }

// GetDatabaseConfig returns the database connection settings.
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig { return &m.config.Database }

// Reload re-reads configuration from disk/env.
func (m *Manager) Reload() error { return m.loadConfig() }

// Validate checks the configuration for the minimum viable settings.
func (m *Manager) Validate() error {
	config := m.config

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	weightSum := 0.0
	for name, src := range config.Sources {
		if src.Enabled {
			weightSum += src.Weight
		}
		_ = name
	}
	if weightSum > 0 && (weightSum < 0.99 || weightSum > 1.01) {
		return fmt.Errorf("enabled source weights must sum to 1.0, got %.4f", weightSum)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString builds a libpq-style DSN for pgxpool.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}
