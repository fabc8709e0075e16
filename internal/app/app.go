// Package app assembles the assessment pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
	"github.com/symptom-assessment-server/internal/llm"
	"github.com/symptom-assessment-server/internal/service"
	"github.com/symptom-assessment-server/internal/store"
	"github.com/symptom-assessment-server/pkg/external"
)

// App holds the long-lived components shared by the HTTP and MCP processes
type App struct {
	Orchestrator *service.Orchestrator
	Store        *store.SQLStore
	Cache        *external.EvidenceCache
	Sources      []*external.ResilientSource
	Policy       service.AppointmentPolicy
	logger       *logrus.Logger
}

// New wires the pipeline. When withStore is false no database is opened.
func New(ctx context.Context, cfg *domain.Config, withStore bool, logger *logrus.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	policy, err := service.NewAppointmentPolicy(cfg.Appointments.Policy)
	if err != nil {
		return nil, err
	}

	cache, err := external.NewEvidenceCache(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence cache: %w", err)
	}

	pubmed := external.NewResilientSource(external.NewPubMedClient(external.PubMedConfig{
		BaseURL:   cfg.ExternalAPI.PubMed.BaseURL,
		APIKey:    cfg.ExternalAPI.PubMed.APIKey,
		Email:     cfg.ExternalAPI.PubMed.Email,
		Tool:      cfg.ExternalAPI.PubMed.Tool,
		Timeout:   cfg.ExternalAPI.PubMed.Timeout,
		RateLimit: cfg.ExternalAPI.PubMed.RateLimit,
	}, logger), external.DefaultCircuitBreakerConfig(), logger)

	trials := external.NewResilientSource(external.NewClinicalTrialsClient(external.ClinicalTrialsConfig{
		BaseURL:   cfg.ExternalAPI.ClinicalTrials.BaseURL,
		Timeout:   cfg.ExternalAPI.ClinicalTrials.Timeout,
		RateLimit: cfg.ExternalAPI.ClinicalTrials.RateLimit,
	}, logger), external.DefaultCircuitBreakerConfig(), logger)

	client := llm.NewClient(cfg.LLM, logger)

	orchestrator, err := service.NewOrchestrator(service.OrchestratorDeps{
		Classifier: llm.NewClassifier(client),
		Model:      llm.NewAssessmentModel(client),
		Literature: external.NewCachedSource(pubmed, cache),
		Trials:     external.NewCachedSource(trials, cache),
		Composer:   service.NewPromptComposer(),
		Normalizer: service.NewResponseNormalizer(cfg.Pipeline.MaxReferences, logger),
		Sessions:   service.NewSessionHistory(cfg.Pipeline.MaxSessions, cfg.Pipeline.SessionTTL, cfg.Pipeline.ReplayWindow),
	}, cfg.Pipeline, logger)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	a := &App{
		Orchestrator: orchestrator,
		Cache:        cache,
		Sources:      []*external.ResilientSource{pubmed, trials},
		Policy:       policy,
		logger:       logger,
	}

	if withStore {
		st, err := store.Open(ctx, cfg.Database, logger)
		if err != nil {
			_ = cache.Close()
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		a.Store = st
	}

	logger.WithFields(logrus.Fields{
		"database": cfg.Database.Driver,
		"store":    withStore,
		"redis":    cfg.Cache.RedisURL != "",
		"policy":   cfg.Appointments.Policy,
	}).Info("Assessment pipeline ready")

	return a, nil
}

// Close releases the store and cache connections
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	return errors.Join(errs...)
}
