package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/symptom-assessment-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v       *viper.Viper
	envFile string
	config  *domain.Config
}

// NewManager creates a new configuration manager. A .env file in the working
// directory is loaded first when present; variables already set win.
func NewManager() (*Manager, error) {
	return NewManagerWithEnvFile(".env")
}

// NewManagerWithEnvFile is NewManager with an explicit dotenv path.
func NewManagerWithEnvFile(envFile string) (*Manager, error) {
	m := &Manager{v: viper.New(), envFile: envFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	if m.envFile != "" {
		if err := godotenv.Load(m.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading env file %s: %w", m.envFile, err)
		}
	}

	v := m.v
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/symptom-assessment/")

	v.SetEnvPrefix("SYMPTOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by the upstream services.
	bindings := map[string]string{
		"llm.api_key":                 "OPENAI_API_KEY",
		"external_api.pubmed.email":   "PUBMED_API_EMAIL",
		"external_api.pubmed.tool":    "PUBMED_API_TOOL",
		"external_api.pubmed.api_key": "NCBI_API_KEY",
		"database.url":                "DATABASE_URL",
		"cache.redis_url":             "REDIS_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "SYMPTOM_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	m.setDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "110s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "symptom-assessment.db")
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.classifier_model", "gpt-4o")
	v.SetDefault("llm.assessment_model", "gpt-4o")
	v.SetDefault("llm.timeout", "60s")

	// External API defaults
	v.SetDefault("external_api.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/")
	v.SetDefault("external_api.pubmed.email", "symptom-assessment@example.com")
	v.SetDefault("external_api.pubmed.tool", "symptom-assessment")
	v.SetDefault("external_api.pubmed.timeout", "15s")
	v.SetDefault("external_api.pubmed.rate_limit", 3)

	v.SetDefault("external_api.clinical_trials.base_url", "https://clinicaltrials.gov/api/v2/studies")
	v.SetDefault("external_api.clinical_trials.timeout", "15s")
	v.SetDefault("external_api.clinical_trials.rate_limit", 5)

	// Cache defaults
	v.SetDefault("cache.memory_size", 500)
	v.SetDefault("cache.memory_ttl", "1h")
	v.SetDefault("cache.redis_ttl", "24h")
	v.SetDefault("cache.pool_size", 10)

	// Pipeline defaults
	v.SetDefault("pipeline.literature_max_results", 3)
	v.SetDefault("pipeline.trials_max_results", 3)
	v.SetDefault("pipeline.max_references", 2)
	v.SetDefault("pipeline.replay_window", 6)
	v.SetDefault("pipeline.max_sessions", 1000)
	v.SetDefault("pipeline.session_ttl", "30m")
	v.SetDefault("pipeline.source_timeout", "20s")
	v.SetDefault("pipeline.model_timeout", "90s")
	v.SetDefault("pipeline.document_char_limit", domain.DocumentCharLimit)

	v.SetDefault("appointments.policy", "urgent")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("mcp.server_name", "symptom-assessment")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.request_timeout", "120s")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// Load returns the loaded configuration
func (m *Manager) Load() (*domain.Config, error) {
	return m.config, nil
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	m.v = viper.New()
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate(config *domain.Config) error {
	if config == nil {
		config = m.config
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch strings.ToLower(config.Database.Driver) {
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("database sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if config.Database.URL == "" {
			return fmt.Errorf("database url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}

	if config.ExternalAPI.PubMed.BaseURL == "" {
		return fmt.Errorf("PubMed base URL is required")
	}
	if config.ExternalAPI.ClinicalTrials.BaseURL == "" {
		return fmt.Errorf("ClinicalTrials.gov base URL is required")
	}

	p := config.Pipeline
	if p.ReplayWindow < 0 {
		return fmt.Errorf("invalid replay window: %d", p.ReplayWindow)
	}
	if p.MaxReferences <= 0 || p.LiteratureMaxResults <= 0 || p.TrialsMaxResults <= 0 {
		return fmt.Errorf("retrieval limits must be positive")
	}
	if p.MaxSessions < 0 || p.SessionTTL < 0 {
		return fmt.Errorf("session limits must not be negative")
	}

	switch config.Appointments.Policy {
	case "urgent", "always", "never":
	default:
		return fmt.Errorf("invalid appointment policy: %s", config.Appointments.Policy)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}
