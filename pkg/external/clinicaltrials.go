package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/symptom-assessment-server/internal/domain"
)

const (
	clinicalTrialsStudyURL = "https://clinicaltrials.gov/study/%s"
	trialSummaryLimit      = 300
)

// ClinicalTrialsClient searches the ClinicalTrials.gov v2 studies API
type ClinicalTrialsClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// ClinicalTrialsConfig contains configuration for the ClinicalTrials.gov client
type ClinicalTrialsConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int
}

// NewClinicalTrialsClient creates a new ClinicalTrials.gov client
func NewClinicalTrialsClient(config ClinicalTrialsConfig, logger *logrus.Logger) *ClinicalTrialsClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://clinicaltrials.gov/api/v2/studies"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &ClinicalTrialsClient{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:     logger,
	}
}

// Name implements domain.EvidenceSource
func (c *ClinicalTrialsClient) Name() domain.EvidenceSourceName {
	return domain.SourceClinicalTrials
}

type studiesResponse struct {
	Studies []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus   string `json:"overallStatus"`
				StartDateStruct struct {
					Date string `json:"date"`
				} `json:"startDateStruct"`
				CompletionDateStruct struct {
					Date string `json:"date"`
				} `json:"completionDateStruct"`
			} `json:"statusModule"`
			DesignModule struct {
				Phases []string `json:"phases"`
			} `json:"designModule"`
			ConditionsModule struct {
				Conditions []string `json:"conditions"`
			} `json:"conditionsModule"`
			DescriptionModule struct {
				BriefSummary string `json:"briefSummary"`
			} `json:"descriptionModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

// Search queries the registry with the plain refined terms
func (c *ClinicalTrialsClient) Search(ctx context.Context, query domain.RefinedQuery, maxResults int) []domain.EvidenceRecord {
	term := query.Terms
	if maxResults <= 0 {
		maxResults = 3
	}

	trials, err := c.searchStudies(ctx, term, maxResults)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"query": term,
		}).WithError(err).Warn("ClinicalTrials.gov search failed")
		return []domain.EvidenceRecord{domain.SourceError{Source: domain.SourceClinicalTrials, Query: term, Reason: err.Error()}}
	}
	if len(trials) == 0 {
		return []domain.EvidenceRecord{domain.NoResults{Source: domain.SourceClinicalTrials, Query: term}}
	}

	records := make([]domain.EvidenceRecord, len(trials))
	for i, t := range trials {
		records[i] = t
	}
	return records
}

func (c *ClinicalTrialsClient) searchStudies(ctx context.Context, term string, maxResults int) ([]domain.ClinicalTrial, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("query.term", term)
	params.Set("pageSize", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ClinicalTrials.gov API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed studiesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	trials := make([]domain.ClinicalTrial, 0, len(parsed.Studies))
	for _, study := range parsed.Studies {
		p := study.ProtocolSection
		nctID := p.IdentificationModule.NCTID

		phase := "N/A"
		if len(p.DesignModule.Phases) > 0 {
			phase = p.DesignModule.Phases[0]
		}
		conditions := p.ConditionsModule.Conditions
		if conditions == nil {
			conditions = []string{}
		}

		trials = append(trials, domain.ClinicalTrial{
			NCTID:          nctID,
			Title:          p.IdentificationModule.BriefTitle,
			Status:         p.StatusModule.OverallStatus,
			Phase:          phase,
			Summary:        truncateSummary(p.DescriptionModule.BriefSummary),
			StartDate:      p.StatusModule.StartDateStruct.Date,
			CompletionDate: p.StatusModule.CompletionDateStruct.Date,
			Conditions:     conditions,
			URL:            fmt.Sprintf(clinicalTrialsStudyURL, nctID),
		})
		if len(trials) == maxResults {
			break
		}
	}
	return trials, nil
}

func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= trialSummaryLimit {
		return s
	}
	return string(runes[:trialSummaryLimit-3]) + "..."
}
