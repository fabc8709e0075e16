package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.OpenAIAPIKey)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, "symptom-assessment", cfg.PubMedTool)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("SYMPTOM_DATA_DIR", "/tmp/test-symptom")
	t.Setenv("SYMPTOM_CACHE_MAX_ITEMS", "50")
	t.Setenv("SYMPTOM_CACHE_TTL", "10m")
	t.Setenv("SYMPTOM_LOG_LEVEL", "debug")
	t.Setenv("SYMPTOM_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PUBMED_API_EMAIL", "dev@example.org")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-symptom", cfg.DataDir)
	assert.Equal(t, 50, cfg.CacheMaxItems)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "dev@example.org", cfg.PubMedEmail)
}

func TestLoadLiteConfig_InvalidValuesIgnored(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("SYMPTOM_CACHE_MAX_ITEMS", "-4")
	t.Setenv("SYMPTOM_CACHE_TTL", "soon")

	cfg := LoadLiteConfig()

	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
}

func TestLiteConfig_DBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.symptom-assessment"}

	assert.Equal(t, "/home/user/.symptom-assessment/assessments.db", cfg.DBPath())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "nested", "data")}

	require.NoError(t, cfg.EnsureDataDir())

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLiteConfig_ToConfig(t *testing.T) {
	cfg := DefaultLiteConfig()
	cfg.DataDir = "/var/lib/symptom"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.CacheMaxItems = 42

	full := cfg.ToConfig()

	assert.Equal(t, "sqlite", full.Database.Driver)
	assert.Equal(t, "/var/lib/symptom/assessments.db", full.Database.SQLitePath)
	assert.Equal(t, "sk-test", full.LLM.APIKey)
	assert.Equal(t, "gpt-4o", full.LLM.AssessmentModel)
	assert.Equal(t, 42, full.Cache.MemorySize)
	assert.Empty(t, full.Cache.RedisURL)
	assert.Equal(t, 6, full.Pipeline.ReplayWindow)
	assert.Equal(t, 1000, full.Pipeline.MaxSessions)
	assert.Equal(t, "stderr", full.Logging.Output)
	assert.Equal(t, "symptom-assessment", full.ExternalAPI.PubMed.Tool)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"SYMPTOM_DATA_DIR",
		"SYMPTOM_CACHE_MAX_ITEMS",
		"SYMPTOM_CACHE_TTL",
		"SYMPTOM_MODEL",
		"SYMPTOM_LOG_LEVEL",
		"SYMPTOM_LOG_FORMAT",
		"OPENAI_API_KEY",
		"NCBI_API_KEY",
		"PUBMED_API_EMAIL",
		"PUBMED_API_TOOL",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}
