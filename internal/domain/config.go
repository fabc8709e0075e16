package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	LLM          LLMConfig          `mapstructure:"llm"`
	ExternalAPI  ExternalAPIConfig  `mapstructure:"external_api"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Appointments AppointmentsConfig `mapstructure:"appointments"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	MCP          MCPConfig          `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres"
	URL             string        `mapstructure:"url"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LLMConfig represents the generative backend configuration
type LLMConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	ClassifierModel string        `mapstructure:"classifier_model"`
	AssessmentModel string        `mapstructure:"assessment_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ExternalAPIConfig represents external API configuration
type ExternalAPIConfig struct {
	PubMed         PubMedConfig         `mapstructure:"pubmed"`
	ClinicalTrials ClinicalTrialsConfig `mapstructure:"clinical_trials"`
}

// PubMedConfig represents PubMed E-utilities configuration
type PubMedConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Email     string        `mapstructure:"email"` // Required by NCBI
	Tool      string        `mapstructure:"tool"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// ClinicalTrialsConfig represents ClinicalTrials.gov v2 API configuration
type ClinicalTrialsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// CacheConfig represents the evidence cache tiers
type CacheConfig struct {
	MemorySize int           `mapstructure:"memory_size"`
	MemoryTTL  time.Duration `mapstructure:"memory_ttl"`
	RedisURL   string        `mapstructure:"redis_url"`
	RedisTTL   time.Duration `mapstructure:"redis_ttl"`
	PoolSize   int           `mapstructure:"pool_size"`
}

// PipelineConfig bounds retrieval, history replay and per-call timeouts.
// History is kept per session; MaxSessions and SessionTTL bound it.
type PipelineConfig struct {
	LiteratureMaxResults int           `mapstructure:"literature_max_results"`
	TrialsMaxResults     int           `mapstructure:"trials_max_results"`
	MaxReferences        int           `mapstructure:"max_references"`
	ReplayWindow         int           `mapstructure:"replay_window"`
	MaxSessions          int           `mapstructure:"max_sessions"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	SourceTimeout        time.Duration `mapstructure:"source_timeout"`
	ModelTimeout         time.Duration `mapstructure:"model_timeout"`
	DocumentCharLimit    int           `mapstructure:"document_char_limit"`
}

// AppointmentsConfig selects the appointment scheduling policy
type AppointmentsConfig struct {
	Policy string `mapstructure:"policy"` // "urgent", "always", "never"
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}
