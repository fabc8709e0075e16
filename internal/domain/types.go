package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UrgencyLevel is the triage outcome of an assessment
type UrgencyLevel string

const (
	UrgencyHigh   UrgencyLevel = "high"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyLow    UrgencyLevel = "low"
)

// ParseUrgencyLevel maps free-form model output onto the urgency enum.
// ok is false when the value is not recognized.
func ParseUrgencyLevel(s string) (UrgencyLevel, bool) {
	switch UrgencyLevel(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyHigh:
		return UrgencyHigh, true
	case UrgencyMedium:
		return UrgencyMedium, true
	case UrgencyLow:
		return UrgencyLow, true
	default:
		return UrgencyLow, false
	}
}

// Role identifies the author of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message exchanged with the generative model
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const (
	// DocumentCharLimit caps the text of a single document excerpt.
	DocumentCharLimit = 2000
	// TruncationMarker is appended to excerpts cut at DocumentCharLimit.
	TruncationMarker = "...(truncated)"
)

// DocumentExcerpt is bounded text extracted from a patient document
type DocumentExcerpt struct {
	ID            string `json:"id"`
	SourceLabel   string `json:"source_label"`
	TruncatedText string `json:"truncated_text"`
}

// NewDocumentExcerpt bounds text to limit characters, appending TruncationMarker when cut.
// A non-positive limit falls back to DocumentCharLimit.
func NewDocumentExcerpt(id, sourceLabel, text string, limit int) DocumentExcerpt {
	if limit <= 0 {
		limit = DocumentCharLimit
	}
	runes := []rune(text)
	if len(runes) > limit {
		text = string(runes[:limit]) + TruncationMarker
	}
	return DocumentExcerpt{ID: id, SourceLabel: sourceLabel, TruncatedText: text}
}

// SymptomInput is the immutable request to the assessment pipeline
type SymptomInput struct {
	RawText        string            `json:"raw_text"`
	Age            *int              `json:"age,omitempty"`
	Sex            string            `json:"sex,omitempty"`
	MedicalHistory string            `json:"medical_history,omitempty"`
	Documents      []DocumentExcerpt `json:"patient_context_documents,omitempty"`
	SessionID      string            `json:"session_id,omitempty"` // Scopes history replay; empty is stateless
}

// PatientContext renders the optional demographics as a single line.
func (in SymptomInput) PatientContext() string {
	var parts []string
	if in.Age != nil {
		parts = append(parts, fmt.Sprintf("Age: %d", *in.Age))
	}
	if in.Sex != "" {
		parts = append(parts, "Sex: "+in.Sex)
	}
	if in.MedicalHistory != "" {
		parts = append(parts, "Medical History: "+in.MedicalHistory)
	}
	if len(parts) == 0 {
		return "No additional patient information provided"
	}
	return strings.Join(parts, "; ")
}

// ClassificationResult is the classifier's verdict on a request
type ClassificationResult struct {
	IsMedical         bool   `json:"is_medical"`
	Reason            string `json:"reason"`
	DocumentsRelevant bool   `json:"relevant_medical_documents"`
}

// RefinedQuery is the search term set derived from raw symptom text
type RefinedQuery struct {
	Terms    string   `json:"terms"`
	IsEmpty  bool     `json:"is_empty"`
	Symptoms []string `json:"symptoms,omitempty"`
}

// LiteratureQuery returns a title/abstract-restricted query when known symptoms were
// recognized, otherwise the plain terms.
func (q RefinedQuery) LiteratureQuery() string {
	if len(q.Symptoms) == 0 {
		return q.Terms
	}
	clauses := make([]string, len(q.Symptoms))
	for i, s := range q.Symptoms {
		clauses[i] = fmt.Sprintf("%q[Title/Abstract]", s)
	}
	return strings.Join(clauses, " AND ")
}

// Assessment is the stable output of the pipeline
type Assessment struct {
	UrgencyLevel         UrgencyLevel        `json:"urgency_level"`
	UrgencyDescription   string              `json:"urgency_description"`
	Reasoning            string              `json:"reasoning"`
	Recommendations      []string            `json:"recommendations"`
	Dos                  []string            `json:"dos"`
	Donts                []string            `json:"donts"`
	Disclaimer           string              `json:"disclaimer"`
	IsMedicalQuery       bool                `json:"is_medical_query"`
	ClassificationReason string              `json:"classification_reason"`
	UsedDocumentIDs      []string            `json:"used_document_ids"`
	LiteratureReferences []LiteratureArticle `json:"literature_references"`
	ClinicalTrials       []ClinicalTrial     `json:"clinical_trials"`
	Error                string              `json:"error,omitempty"`
}

// Degraded reports whether the assessment was produced after an internal failure.
func (a *Assessment) Degraded() bool {
	return a.Error != ""
}

// StringList accepts either a JSON array of strings or a single string.
// Non-string array elements are skipped and any other JSON value is treated as absent.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var many []json.RawMessage
	if err := json.Unmarshal(data, &many); err == nil {
		if many == nil {
			*l = nil
			return nil
		}
		out := make([]string, 0, len(many))
		for _, item := range many {
			var s string
			if json.Unmarshal(item, &s) == nil {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		*l = nil
		return nil
	}
	if one == "" {
		*l = []string{}
		return nil
	}
	*l = []string{one}
	return nil
}

// RawAssessment is the model output before normalization. Pointer and nil slice
// fields distinguish absent keys from empty values.
type RawAssessment struct {
	UrgencyLevel       *string    `json:"urgency_level"`
	UrgencyDescription *string    `json:"urgency_description"`
	Reasoning          *string    `json:"reasoning"`
	Recommendations    StringList `json:"recommendations"`
	Dos                StringList `json:"dos"`
	Donts              StringList `json:"donts"`
	Disclaimer         *string    `json:"disclaimer"`
}

type rawAssessmentWire struct {
	UrgencyLevel       json.RawMessage `json:"urgency_level"`
	UrgencyDescription json.RawMessage `json:"urgency_description"`
	Reasoning          json.RawMessage `json:"reasoning"`
	Recommendations    StringList      `json:"recommendations"`
	Dos                StringList      `json:"dos"`
	Donts              StringList      `json:"donts"`
	Disclaimer         json.RawMessage `json:"disclaimer"`
}

// UnmarshalJSON tolerates wrongly typed fields. A non-string urgency_level keeps
// its literal text so it reads as unrecognized; other non-string text fields are absent.
func (r *RawAssessment) UnmarshalJSON(data []byte) error {
	var wire rawAssessmentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = RawAssessment{
		UrgencyLevel:       looseScalar(wire.UrgencyLevel),
		UrgencyDescription: looseString(wire.UrgencyDescription),
		Reasoning:          looseString(wire.Reasoning),
		Recommendations:    wire.Recommendations,
		Dos:                wire.Dos,
		Donts:              wire.Donts,
		Disclaimer:         looseString(wire.Disclaimer),
	}
	return nil
}

func looseString(raw json.RawMessage) *string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return nil
	}
	return &s
}

func looseScalar(raw json.RawMessage) *string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if s := looseString(raw); s != nil {
		return s
	}
	return &trimmed
}

// DecodeRawAssessment parses model content. It fails only when content is not a JSON object.
func DecodeRawAssessment(content string) (*RawAssessment, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("decode assessment content: not a JSON object")
	}
	var raw RawAssessment
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("decode assessment content: %w", err)
	}
	return &raw, nil
}

// MissingFields lists required keys the model omitted.
func (r *RawAssessment) MissingFields() []string {
	var missing []string
	if r.UrgencyLevel == nil {
		missing = append(missing, "urgency_level")
	}
	if r.UrgencyDescription == nil {
		missing = append(missing, "urgency_description")
	}
	if r.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if r.Recommendations == nil {
		missing = append(missing, "recommendations")
	}
	return missing
}

// Medication is a prescribed medication from a patient profile
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// SurgicalProcedure is one entry of a patient's surgical history
type SurgicalProcedure struct {
	Procedure string `json:"procedure"`
	Date      string `json:"date,omitempty"`
}

// PatientProfile is the stored record used to enrich symptom input
type PatientProfile struct {
	ID                int64               `json:"id"`
	FirstName         string              `json:"first_name"`
	LastName          string              `json:"last_name"`
	Age               *int                `json:"age,omitempty"`
	Gender            string              `json:"gender,omitempty"`
	MedicalHistory    string              `json:"medical_history,omitempty"`
	ChronicConditions []string            `json:"chronic_conditions,omitempty"`
	Allergies         []string            `json:"allergies,omitempty"`
	Medications       []Medication        `json:"medications,omitempty"`
	SurgicalHistory   []SurgicalProcedure `json:"surgical_history,omitempty"`
}

// StoredDocument is an uploaded patient document with extracted text
type StoredDocument struct {
	ID          int64     `json:"id"`
	PatientID   int64     `json:"patient_id"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type"`
	ContentText string    `json:"content_text,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// AssessmentRecord is a persisted assessment
type AssessmentRecord struct {
	ID         int64      `json:"id"`
	PatientID  *int64     `json:"patient_id,omitempty"`
	Symptoms   string     `json:"symptoms"`
	Assessment Assessment `json:"assessment"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AppointmentStatus tracks an appointment through its lifecycle
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a follow-up created from an assessment
type Appointment struct {
	ID           int64             `json:"id"`
	PatientID    *int64            `json:"patient_id,omitempty"`
	AssessmentID int64             `json:"assessment_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	UrgencyLevel UrgencyLevel      `json:"urgency_level"`
	Status       AppointmentStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}
