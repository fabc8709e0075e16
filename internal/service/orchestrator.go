package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/symptom-assessment-server/internal/domain"
	"github.com/symptom-assessment-server/internal/logging"
)

// OrchestratorDeps are the collaborators of an Orchestrator. Either evidence
// source may be nil, in which case it contributes no evidence.
type OrchestratorDeps struct {
	Classifier domain.QueryClassifier
	Model      domain.AssessmentModel
	Literature domain.EvidenceSource
	Trials     domain.EvidenceSource
	Composer   *PromptComposer
	Normalizer *ResponseNormalizer
	Sessions   *SessionHistory
}

// EvidenceBundle is the outcome of one retrieval round
type EvidenceBundle struct {
	Query      domain.RefinedQuery     `json:"query"`
	Literature []domain.EvidenceRecord `json:"-"`
	Trials     []domain.EvidenceRecord `json:"-"`
}

// Orchestrator runs the assessment pipeline and owns the per-session conversation history
type Orchestrator struct {
	classifier domain.QueryClassifier
	model      domain.AssessmentModel
	literature domain.EvidenceSource
	trials     domain.EvidenceSource
	composer   *PromptComposer
	normalizer *ResponseNormalizer
	sessions   *SessionHistory
	cfg        domain.PipelineConfig
	logger     *logrus.Logger
}

// NewOrchestrator wires an orchestrator from explicit dependencies
func NewOrchestrator(deps OrchestratorDeps, cfg domain.PipelineConfig, logger *logrus.Logger) (*Orchestrator, error) {
	if deps.Classifier == nil {
		return nil, fmt.Errorf("orchestrator requires a query classifier")
	}
	if deps.Model == nil {
		return nil, fmt.Errorf("orchestrator requires an assessment model")
	}
	if logger == nil {
		logger = logrus.New()
	}

	if cfg.LiteratureMaxResults <= 0 {
		cfg.LiteratureMaxResults = 3
	}
	if cfg.TrialsMaxResults <= 0 {
		cfg.TrialsMaxResults = 3
	}
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = maxPromptReferences
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = DefaultReplayWindow
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 20 * time.Second
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 90 * time.Second
	}

	o := &Orchestrator{
		classifier: deps.Classifier,
		model:      deps.Model,
		literature: deps.Literature,
		trials:     deps.Trials,
		composer:   deps.Composer,
		normalizer: deps.Normalizer,
		sessions:   deps.Sessions,
		cfg:        cfg,
		logger:     logger,
	}
	if o.composer == nil {
		o.composer = NewPromptComposer()
	}
	if o.normalizer == nil {
		o.normalizer = NewResponseNormalizer(cfg.MaxReferences, logger)
	}
	if o.sessions == nil {
		o.sessions = NewSessionHistory(cfg.MaxSessions, cfg.SessionTTL, cfg.ReplayWindow)
	}
	return o, nil
}

// Assess runs the full pipeline. It never fails: internal errors produce a
// degraded assessment carrying a caller-safe error message. Prior turns are
// replayed only from input.SessionID; an empty session is stateless.
func (o *Orchestrator) Assess(ctx context.Context, input domain.SymptomInput) *domain.Assessment {
	if logging.RequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}
	log := logging.Entry(ctx, o.logger).WithField("component", "orchestrator")
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
	classification, err := o.classifier.Classify(cctx, input.RawText, input.PatientContext())
	cancel()
	if err != nil {
		return o.degrade(ctx, log, err, nil)
	}
	log.WithFields(logrus.Fields{
		"is_medical":         classification.IsMedical,
		"documents_relevant": classification.DocumentsRelevant,
	}).Info("Query classified")

	var articles []domain.LiteratureArticle
	var trials []domain.ClinicalTrial
	if classification.IsMedical {
		bundle := o.Retrieve(ctx, input.RawText, 0)
		articles = domain.SummarizeEvidence(bundle.Literature).Articles
		trials = domain.SummarizeEvidence(bundle.Trials).Trials
	}

	if err := ctx.Err(); err != nil {
		return o.degrade(ctx, log, err, classification)
	}

	docs := IncludedDocuments(input, *classification)
	turns := o.composer.Compose(input, *classification, articles, o.sessions.Window(input.SessionID, o.cfg.ReplayWindow))

	mctx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
	raw, content, err := o.model.Invoke(mctx, turns)
	cancel()
	if err != nil {
		return o.degrade(ctx, log, err, classification)
	}

	o.sessions.Append(input.SessionID,
		domain.ConversationTurn{Role: domain.RoleUser, Content: input.RawText},
		domain.ConversationTurn{Role: domain.RoleAssistant, Content: content},
	)

	usedIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		usedIDs = append(usedIDs, d.ID)
	}

	assessment := o.normalizer.Normalize(raw, *classification, articles, trials, usedIDs)
	log.WithFields(logrus.Fields{
		"urgency_level": assessment.UrgencyLevel,
		"references":    len(assessment.LiteratureReferences),
		"trials":        len(assessment.ClinicalTrials),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Assessment completed")

	return assessment
}

// Retrieve refines rawText and queries both evidence sources concurrently.
// maxResults caps each source; zero or less uses the configured limits.
// An empty refined query skips retrieval.
func (o *Orchestrator) Retrieve(ctx context.Context, rawText string, maxResults int) EvidenceBundle {
	log := logging.Entry(ctx, o.logger).WithField("component", "orchestrator")

	bundle := EvidenceBundle{Query: RefineQuery(rawText)}
	if bundle.Query.IsEmpty {
		log.Info("Refined query is empty, skipping evidence retrieval")
		return bundle
	}

	literatureLimit, trialsLimit := o.cfg.LiteratureMaxResults, o.cfg.TrialsMaxResults
	if maxResults > 0 {
		literatureLimit, trialsLimit = maxResults, maxResults
	}

	var g errgroup.Group
	if o.literature != nil {
		g.Go(func() error {
			bundle.Literature = o.search(ctx, o.literature, bundle.Query, literatureLimit)
			return nil
		})
	}
	if o.trials != nil {
		g.Go(func() error {
			bundle.Trials = o.search(ctx, o.trials, bundle.Query, trialsLimit)
			return nil
		})
	}
	_ = g.Wait()

	return bundle
}

func (o *Orchestrator) search(ctx context.Context, src domain.EvidenceSource, q domain.RefinedQuery, maxResults int) []domain.EvidenceRecord {
	sctx, cancel := context.WithTimeoutCause(ctx, o.cfg.SourceTimeout, domain.ErrSourceTimeout)
	defer cancel()

	records := src.Search(sctx, q, maxResults)

	summary := domain.SummarizeEvidence(records)
	fields := logrus.Fields{"source": src.Name(), "terms": q.Terms}
	log := logging.Entry(ctx, o.logger).WithFields(fields)
	switch {
	case len(summary.Failures) > 0:
		log.WithField("reason", summary.Failures[0].Reason).Warn("Evidence source failed, continuing without it")
	case len(summary.Empty) > 0:
		log.Info("Evidence source returned no results")
	default:
		log.WithField("count", len(summary.Articles)+len(summary.Trials)).Debug("Evidence retrieved")
	}
	return records
}

// History returns a copy of the retained turns of one session
func (o *Orchestrator) History(sessionID string) []domain.ConversationTurn {
	return o.sessions.Turns(sessionID)
}

func (o *Orchestrator) degrade(ctx context.Context, log *logrus.Entry, err error, classification *domain.ClassificationResult) *domain.Assessment {
	log.WithError(err).Error("Assessment failed, returning degraded response")

	switch {
	case errors.Is(err, domain.ErrConfiguration):
		a := DegradedAssessment("The AI service is not configured. Please set up the API key.", classification,
			"For technical support, contact the system administrator to set up the API key")
		a.UrgencyDescription = "Due to system configuration error, we recommend consulting with a healthcare professional"
		if classification == nil {
			a.ClassificationReason = "Unable to classify due to API configuration issue"
		}
		return a
	case errors.Is(err, domain.ErrClassification):
		return DegradedAssessment("Failed to classify the request", classification)
	case errors.Is(err, domain.ErrOutputContract):
		return DegradedAssessment("The AI service returned an unreadable assessment", classification)
	case errors.Is(err, domain.ErrModelInvocation):
		return DegradedAssessment("Failed to communicate with AI service", classification)
	case ctx.Err() != nil:
		return DegradedAssessment("The assessment request was cancelled", classification)
	default:
		return DegradedAssessment("Failed to complete symptom assessment", classification)
	}
}
