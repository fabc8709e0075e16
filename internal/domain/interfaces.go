package domain

import (
	"context"
)

// QueryClassifier decides whether a request needs medical assessment
type QueryClassifier interface {
	Classify(ctx context.Context, rawText, patientContext string) (*ClassificationResult, error)
}

// EvidenceSource is an external literature or trials index. Search never
// returns an error: failures are reported as a SourceError record.
type EvidenceSource interface {
	Name() EvidenceSourceName
	Search(ctx context.Context, query RefinedQuery, maxResults int) []EvidenceRecord
}

// AssessmentModel invokes the generative backend under the JSON output contract
type AssessmentModel interface {
	Invoke(ctx context.Context, turns []ConversationTurn) (*RawAssessment, string, error)
}

// AssessmentStore persists assessments and the patient data used to enrich them
type AssessmentStore interface {
	GetProfile(ctx context.Context, patientID int64) (*PatientProfile, error)
	FindProfileByName(ctx context.Context, firstName, lastName string) (*PatientProfile, error)
	SaveProfile(ctx context.Context, profile *PatientProfile) error
	ListDocuments(ctx context.Context, patientID int64) ([]StoredDocument, error)
	SaveDocument(ctx context.Context, doc *StoredDocument) error
	SaveAssessment(ctx context.Context, record *AssessmentRecord) error
	GetAssessment(ctx context.Context, id int64) (*AssessmentRecord, error)
	ListAssessments(ctx context.Context, patientID *int64, limit int) ([]AssessmentRecord, error)
	SaveAppointment(ctx context.Context, appt *Appointment) error
	ListAppointments(ctx context.Context, patientID int64) ([]Appointment, error)
	Close() error
}

// ConfigManager defines configuration management
type ConfigManager interface {
	Load() (*Config, error)
	Validate(*Config) error
}
