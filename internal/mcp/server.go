package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
	"github.com/symptom-assessment-server/internal/logging"
	"github.com/symptom-assessment-server/internal/service"
)

const (
	defaultServerName    = "symptom-assessment-mcp"
	defaultServerVersion = "v0.1.0"
	defaultMaxResults    = 3
	maxSearchResults     = 20
	maxSymptomsLength    = 10000
	maxSessionIDLength   = 128
	defaultToolTimeout   = 2 * time.Minute
)

// Pipeline is the part of the orchestrator exposed as tools
type Pipeline interface {
	Assess(ctx context.Context, input domain.SymptomInput) *domain.Assessment
	Retrieve(ctx context.Context, rawText string, maxResults int) service.EvidenceBundle
}

// Recorder persists completed assessments
type Recorder interface {
	SaveAssessment(ctx context.Context, record *domain.AssessmentRecord) error
}

// AssessSymptomsParams defines parameters for the assess_symptoms tool
type AssessSymptomsParams struct {
	Symptoms       string `json:"symptoms"`
	Age            *int   `json:"age,omitempty"`
	Sex            string `json:"sex,omitempty"`
	MedicalHistory string `json:"medical_history,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

// SearchEvidenceParams defines parameters for the search_evidence tool
type SearchEvidenceParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// SearchEvidenceResult is the structured output of search_evidence
type SearchEvidenceResult struct {
	Query      domain.RefinedQuery        `json:"query"`
	Literature []domain.LiteratureArticle `json:"literature"`
	Trials     []domain.ClinicalTrial     `json:"trials"`
	Failures   []domain.SourceError       `json:"failures,omitempty"`
}

// Server exposes the assessment pipeline over the Model Context Protocol
type Server struct {
	pipeline  Pipeline
	recorder  Recorder
	mcpServer *mcp.Server
	config    domain.MCPConfig
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with both tools registered
func NewServer(pipeline Pipeline, config domain.MCPConfig, logger *logrus.Logger) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.ServerName == "" {
		config.ServerName = defaultServerName
	}
	if config.ServerVersion == "" {
		config.ServerVersion = defaultServerVersion
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultToolTimeout
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    config.ServerName,
		Version: config.ServerVersion,
	}, nil)

	s := &Server{
		pipeline:  pipeline,
		mcpServer: mcpServer,
		config:    config,
		logger:    logger,
	}
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "assess_symptoms",
		Description: "Assess free-text symptoms and return an urgency level, recommendations and supporting literature and clinical trials",
	}, s.handleAssessSymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_evidence",
		Description: "Refine a symptom description into a search query and return matching PubMed articles and ClinicalTrials.gov studies",
	}, s.handleSearchEvidence)

	s.logger.WithField("tools", 2).Info("MCP tools registered")
}

// WithRecorder enables persistence of medical, non-degraded assessments
func (s *Server) WithRecorder(r Recorder) *Server {
	s.recorder = r
	return s
}

// Run serves the tools over stdio until ctx is cancelled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"name":    s.config.ServerName,
		"version": s.config.ServerVersion,
	}).Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) handleAssessSymptoms(ctx context.Context, req *mcp.CallToolRequest, params AssessSymptomsParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.toolContext(ctx)
	defer cancel()
	log := logging.Entry(ctx, s.logger).WithField("tool", "assess_symptoms")
	log.Info("Tool invoked")

	symptoms := strings.TrimSpace(params.Symptoms)
	if verr := validateAssess(symptoms, params.Age, params.SessionID); verr != nil {
		return s.createErrorResult("Invalid parameters", verr), nil, nil
	}

	assessment := s.pipeline.Assess(ctx, domain.SymptomInput{
		RawText:        symptoms,
		Age:            params.Age,
		Sex:            params.Sex,
		MedicalHistory: params.MedicalHistory,
		SessionID:      sessionKey(params.SessionID),
	})

	s.record(ctx, log, symptoms, assessment)

	result, err := jsonResult(assessment)
	if err != nil {
		return s.createErrorResult("Failed to encode assessment", err), nil, nil
	}
	log.WithField("urgency", assessment.UrgencyLevel).Info("Tool completed")
	return result, assessment, nil
}

func (s *Server) handleSearchEvidence(ctx context.Context, req *mcp.CallToolRequest, params SearchEvidenceParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.toolContext(ctx)
	defer cancel()
	log := logging.Entry(ctx, s.logger).WithField("tool", "search_evidence")
	log.Info("Tool invoked")

	query := strings.TrimSpace(params.Query)
	if query == "" {
		return s.createErrorResult("Missing required parameter", domain.NewValidationError("query", "query is required", params.Query)), nil, nil
	}
	limit := params.MaxResults
	switch {
	case limit <= 0:
		limit = defaultMaxResults
	case limit > maxSearchResults:
		limit = maxSearchResults
	}

	bundle := s.pipeline.Retrieve(ctx, query, limit)
	literature := domain.SummarizeEvidence(bundle.Literature)
	trials := domain.SummarizeEvidence(bundle.Trials)

	out := SearchEvidenceResult{
		Query:      bundle.Query,
		Literature: firstN(literature.Articles, limit),
		Trials:     firstN(trials.Trials, limit),
		Failures:   append(literature.Failures, trials.Failures...),
	}
	if out.Literature == nil {
		out.Literature = []domain.LiteratureArticle{}
	}
	if out.Trials == nil {
		out.Trials = []domain.ClinicalTrial{}
	}

	result, err := jsonResult(out)
	if err != nil {
		return s.createErrorResult("Failed to encode evidence", err), nil, nil
	}
	log.WithFields(logrus.Fields{
		"articles": len(out.Literature),
		"trials":   len(out.Trials),
		"failures": len(out.Failures),
	}).Info("Tool completed")
	return result, out, nil
}

func (s *Server) record(ctx context.Context, log *logrus.Entry, symptoms string, assessment *domain.Assessment) {
	if s.recorder == nil || !assessment.IsMedicalQuery || assessment.Degraded() {
		return
	}
	record := &domain.AssessmentRecord{Symptoms: symptoms, Assessment: *assessment}
	if err := s.recorder.SaveAssessment(ctx, record); err != nil {
		log.WithError(err).Error("Failed to persist assessment")
		return
	}
	log.WithField("assessment_id", record.ID).Debug("Assessment persisted")
}

// toolContext tags the call with a request id and applies the configured timeout
func (s *Server) toolContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}
	s.logger.WithField("error", errorText).Warn("Tool call rejected")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func validateAssess(symptoms string, age *int, sessionID string) *domain.ValidationError {
	if symptoms == "" {
		return domain.NewValidationError("symptoms", "symptoms are required", symptoms)
	}
	if len([]rune(symptoms)) > maxSymptomsLength {
		return domain.NewValidationError("symptoms", fmt.Sprintf("must be at most %d characters", maxSymptomsLength), nil)
	}
	if age != nil && (*age < 0 || *age > 150) {
		return domain.NewValidationError("age", "must be between 0 and 150", *age)
	}
	if len(sessionID) > maxSessionIDLength {
		return domain.NewValidationError("session_id", fmt.Sprintf("must be at most %d characters", maxSessionIDLength), nil)
	}
	return nil
}

// sessionKey namespaces tool sessions apart from HTTP ones; no id means no replay
func sessionKey(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return "mcp:" + id
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
