package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
)

// Canned text used when the model omits a field or the pipeline degrades.
const (
	DefaultDisclaimer = "This is an AI-assisted pre-assessment and not a medical diagnosis. " +
		"Always consult with a healthcare professional for proper medical advice."

	HighUrgencyDescription   = "Seek immediate medical attention"
	MediumUrgencyDescription = "Consult with a healthcare provider soon"
	LowUrgencyDescription    = "Monitor symptoms and practice appropriate self-care"

	MissingReasoning      = "No detailed reasoning was provided for this assessment."
	ConsultProfessional   = "Consult with a healthcare professional as soon as possible"
	referenceAbstractSize = 200
)

// ResponseNormalizer repairs model output into a complete Assessment
type ResponseNormalizer struct {
	maxReferences int
	logger        *logrus.Logger
}

// NewResponseNormalizer creates a normalizer capping each evidence list at maxReferences
func NewResponseNormalizer(maxReferences int, logger *logrus.Logger) *ResponseNormalizer {
	if maxReferences <= 0 {
		maxReferences = maxPromptReferences
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ResponseNormalizer{maxReferences: maxReferences, logger: logger}
}

// Normalize builds an Assessment from raw model output and retrieved evidence.
// Unknown or missing urgency becomes low; every list is non-nil.
func (n *ResponseNormalizer) Normalize(
	raw *domain.RawAssessment,
	classification domain.ClassificationResult,
	articles []domain.LiteratureArticle,
	trials []domain.ClinicalTrial,
	usedDocumentIDs []string,
) *domain.Assessment {
	if raw == nil {
		raw = &domain.RawAssessment{}
	}
	if missing := raw.MissingFields(); len(missing) > 0 {
		n.logger.WithField("missing_fields", missing).Warn("Assessment output violated contract, applying defaults")
	}

	level, known := domain.ParseUrgencyLevel(deref(raw.UrgencyLevel))
	description := strings.TrimSpace(deref(raw.UrgencyDescription))
	if !known {
		if raw.UrgencyLevel != nil {
			n.logger.WithField("urgency_level", *raw.UrgencyLevel).Warn("Unrecognized urgency level, defaulting to low")
		}
		description = LowUrgencyDescription
	} else if description == "" {
		description = cannedDescription(level)
	}

	reasoning := strings.TrimSpace(deref(raw.Reasoning))
	if reasoning == "" {
		reasoning = MissingReasoning
	}

	disclaimer := strings.TrimSpace(deref(raw.Disclaimer))
	if disclaimer == "" {
		disclaimer = DefaultDisclaimer
	}

	return &domain.Assessment{
		UrgencyLevel:         level,
		UrgencyDescription:   description,
		Reasoning:            reasoning,
		Recommendations:      nonNil([]string(raw.Recommendations)),
		Dos:                  nonNil([]string(raw.Dos)),
		Donts:                nonNil([]string(raw.Donts)),
		Disclaimer:           disclaimer,
		IsMedicalQuery:       classification.IsMedical,
		ClassificationReason: classification.Reason,
		UsedDocumentIDs:      nonNil(usedDocumentIDs),
		LiteratureReferences: n.references(articles),
		ClinicalTrials:       n.trials(trials),
	}
}

func (n *ResponseNormalizer) references(articles []domain.LiteratureArticle) []domain.LiteratureArticle {
	out := make([]domain.LiteratureArticle, 0, n.maxReferences)
	for _, a := range articles {
		if len(out) == n.maxReferences {
			break
		}
		a.Abstract = truncateRunes(a.Abstract, referenceAbstractSize, "...")
		a.Keywords = nonNil(a.Keywords)
		a.MeshTerms = nonNil(a.MeshTerms)
		out = append(out, a)
	}
	return out
}

func (n *ResponseNormalizer) trials(trials []domain.ClinicalTrial) []domain.ClinicalTrial {
	out := make([]domain.ClinicalTrial, 0, n.maxReferences)
	for _, t := range trials {
		if len(out) == n.maxReferences {
			break
		}
		t.Conditions = nonNil(t.Conditions)
		out = append(out, t)
	}
	return out
}

// DegradedAssessment is the well-formed response returned when the pipeline fails.
// message is shown to the caller; causes belong in the log.
func DegradedAssessment(message string, classification *domain.ClassificationResult, extra ...string) *domain.Assessment {
	a := &domain.Assessment{
		UrgencyLevel:         domain.UrgencyMedium,
		UrgencyDescription:   "Due to an error in processing, we recommend consulting with a healthcare professional",
		Reasoning:            "Assessment error occurred. Please consult with a healthcare professional.",
		Recommendations:      append([]string{ConsultProfessional}, extra...),
		Dos:                  []string{},
		Donts:                []string{},
		Disclaimer:           DefaultDisclaimer,
		IsMedicalQuery:       true,
		ClassificationReason: "Unable to classify due to a processing error",
		UsedDocumentIDs:      []string{},
		LiteratureReferences: []domain.LiteratureArticle{},
		ClinicalTrials:       []domain.ClinicalTrial{},
		Error:                message,
	}
	if classification != nil {
		a.IsMedicalQuery = classification.IsMedical
		a.ClassificationReason = classification.Reason
	}
	return a
}

func cannedDescription(level domain.UrgencyLevel) string {
	switch level {
	case domain.UrgencyHigh:
		return HighUrgencyDescription
	case domain.UrgencyMedium:
		return MediumUrgencyDescription
	default:
		return LowUrgencyDescription
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func truncateRunes(s string, limit int, marker string) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + marker
}
