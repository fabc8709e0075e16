package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-assessment-server/internal/domain"
)

func TestNewManager_Defaults(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("DATABASE_URL", "")

	m, err := NewManagerWithEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "gpt-4o", cfg.LLM.AssessmentModel)
	assert.Equal(t, 3, cfg.Pipeline.LiteratureMaxResults)
	assert.Equal(t, 2, cfg.Pipeline.MaxReferences)
	assert.Equal(t, 6, cfg.Pipeline.ReplayWindow)
	assert.Equal(t, 1000, cfg.Pipeline.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.SessionTTL)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.SourceTimeout)
	assert.Equal(t, domain.DocumentCharLimit, cfg.Pipeline.DocumentCharLimit)
	assert.Equal(t, "urgent", cfg.Appointments.Policy)
	assert.Equal(t, "https://clinicaltrials.gov/api/v2/studies", cfg.ExternalAPI.ClinicalTrials.BaseURL)

	require.NoError(t, m.Validate(nil))
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("OPENAI_API_KEY", "sk-live")
	t.Setenv("PUBMED_API_EMAIL", "ops@example.org")
	t.Setenv("SYMPTOM_SERVER_PORT", "8088")
	t.Setenv("SYMPTOM_PIPELINE_REPLAY_WINDOW", "4")

	m, err := NewManagerWithEnvFile("")
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "sk-live", cfg.LLM.APIKey)
	assert.Equal(t, "ops@example.org", cfg.ExternalAPI.PubMed.Email)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.ReplayWindow)
}

func TestNewManager_DotEnvFile(t *testing.T) {
	clearEnvVars(t)

	// godotenv never overrides a variable that exists, even when empty.
	require.NoError(t, os.Unsetenv("NCBI_API_KEY"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NCBI_API_KEY=from-dotenv\n"), 0600))

	m, err := NewManagerWithEnvFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", m.GetConfig().ExternalAPI.PubMed.APIKey)
}

func TestManager_Validate(t *testing.T) {
	clearEnvVars(t)
	m, err := NewManagerWithEnvFile("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(c *domain.Config)
		wantErr string
	}{
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }, "invalid server port"},
		{"unknown driver", func(c *domain.Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"postgres without url", func(c *domain.Config) {
			c.Database.Driver = "postgres"
			c.Database.URL = ""
		}, "database url is required"},
		{"bad policy", func(c *domain.Config) { c.Appointments.Policy = "sometimes" }, "invalid appointment policy"},
		{"bad log level", func(c *domain.Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"zero references", func(c *domain.Config) { c.Pipeline.MaxReferences = 0 }, "retrieval limits"},
		{"negative sessions", func(c *domain.Config) { c.Pipeline.MaxSessions = -1 }, "session limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *m.GetConfig()
			tt.mutate(&cfg)
			err := m.Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
