// Package config provides configuration management for the assessment server.
// This file contains the lightweight configuration for the standalone MCP process.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/symptom-assessment-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the SQLite database

	// Cache settings
	CacheMaxItems int           // Maximum items in the evidence memory cache
	CacheTTL      time.Duration // Evidence cache TTL

	// Upstream credentials
	OpenAIAPIKey string // Required for classification and assessment
	NCBIAPIKey   string // Optional: raises the PubMed rate limit
	PubMedEmail  string
	PubMedTool   string

	// Model selection
	Model string

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".symptom-assessment")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 500,
		CacheTTL:      time.Hour,
		PubMedEmail:   "symptom-assessment@example.com",
		PubMedTool:    "symptom-assessment",
		Model:         "gpt-4o",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables, after an
// optional .env file. Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	_ = godotenv.Load()
	cfg := DefaultLiteConfig()

	if v := os.Getenv("SYMPTOM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("SYMPTOM_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("SYMPTOM_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.NCBIAPIKey = os.Getenv("NCBI_API_KEY")
	if v := os.Getenv("PUBMED_API_EMAIL"); v != "" {
		cfg.PubMedEmail = v
	}
	if v := os.Getenv("PUBMED_API_TOOL"); v != "" {
		cfg.PubMedTool = v
	}
	if v := os.Getenv("SYMPTOM_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("SYMPTOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SYMPTOM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// DBPath returns the path to the SQLite database.
func (c *LiteConfig) DBPath() string {
	return filepath.Join(c.DataDir, "assessments.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ToConfig expands the lite settings into a full configuration backed by
// SQLite and the in-memory cache tier. Logs go to stderr because stdout
// carries the MCP stdio transport.
func (c *LiteConfig) ToConfig() *domain.Config {
	return &domain.Config{
		Database: domain.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: c.DBPath(),
		},
		LLM: domain.LLMConfig{
			APIKey:          c.OpenAIAPIKey,
			ClassifierModel: c.Model,
			AssessmentModel: c.Model,
			Timeout:         60 * time.Second,
		},
		ExternalAPI: domain.ExternalAPIConfig{
			PubMed: domain.PubMedConfig{
				APIKey: c.NCBIAPIKey,
				Email:  c.PubMedEmail,
				Tool:   c.PubMedTool,
			},
		},
		Cache: domain.CacheConfig{
			MemorySize: c.CacheMaxItems,
			MemoryTTL:  c.CacheTTL,
		},
		Pipeline: domain.PipelineConfig{
			LiteratureMaxResults: 3,
			TrialsMaxResults:     3,
			MaxReferences:        2,
			ReplayWindow:         6,
			MaxSessions:          1000,
			SessionTTL:           30 * time.Minute,
			SourceTimeout:        20 * time.Second,
			ModelTimeout:         90 * time.Second,
			DocumentCharLimit:    domain.DocumentCharLimit,
		},
		Appointments: domain.AppointmentsConfig{Policy: "never"},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: "stderr",
		},
		MCP: domain.MCPConfig{
			ServerName:     "symptom-assessment",
			ServerVersion:  "1.0.0",
			RequestTimeout: 2 * time.Minute,
		},
	}
}
