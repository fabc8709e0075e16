package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/symptom-assessment-server/internal/domain"
)

var (
	// urgentTermRe marks a description as urgent unless negationRe matches the text before it.
	urgentTermRe = regexp.MustCompile(`\b(?:emergency|urgent(?:ly)?|immediate(?:ly)?|severe(?:ly)?)\b`)
	negationRe   = regexp.MustCompile(`(?:\b(?:no|not|non|without|never)|n't)(?:[\s-]+\w+){0,2}[\s-]*$`)
)

const appointmentTitleLength = 50

// AppointmentPolicy decides whether an assessment results in an appointment
type AppointmentPolicy interface {
	ShouldSchedule(a *domain.Assessment) bool
}

// UrgencyGatedPolicy schedules only urgent assessments
type UrgencyGatedPolicy struct{}

func (UrgencyGatedPolicy) ShouldSchedule(a *domain.Assessment) bool {
	return IsUrgent(a)
}

// AlwaysPolicy schedules every persisted assessment. Intended for demonstrations.
type AlwaysPolicy struct{}

func (AlwaysPolicy) ShouldSchedule(*domain.Assessment) bool { return true }

// NeverPolicy disables appointment creation
type NeverPolicy struct{}

func (NeverPolicy) ShouldSchedule(*domain.Assessment) bool { return false }

// NewAppointmentPolicy resolves a configured policy name
func NewAppointmentPolicy(name string) (AppointmentPolicy, error) {
	switch strings.ToLower(name) {
	case "", "urgent":
		return UrgencyGatedPolicy{}, nil
	case "always":
		return AlwaysPolicy{}, nil
	case "never":
		return NeverPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown appointment policy %q", name)
	}
}

// IsUrgent reports whether the assessment is high urgency or its description
// calls for urgent care. Negated mentions such as "not an emergency" do not count.
func IsUrgent(a *domain.Assessment) bool {
	if a.UrgencyLevel == domain.UrgencyHigh {
		return true
	}
	desc := strings.ToLower(a.UrgencyDescription)
	for _, loc := range urgentTermRe.FindAllStringIndex(desc, -1) {
		if !negationRe.MatchString(desc[:loc[0]]) {
			return true
		}
	}
	return false
}

// BuildAppointment derives the follow-up appointment for a persisted assessment.
func BuildAppointment(record *domain.AssessmentRecord) *domain.Appointment {
	a := record.Assessment
	urgent := IsUrgent(&a)

	title := truncateRunes(a.UrgencyDescription, appointmentTitleLength, "") + "..."
	level := a.UrgencyLevel
	if urgent {
		title = "EMERGENCY: " + title
		level = domain.UrgencyHigh
	}

	description := fmt.Sprintf("Symptoms: %s\n\nReasoning: %s\n\nRecommendations: %s",
		record.Symptoms, a.Reasoning, strings.Join(a.Recommendations, "\n"))

	return &domain.Appointment{
		PatientID:    record.PatientID,
		AssessmentID: record.ID,
		Title:        title,
		Description:  description,
		UrgencyLevel: level,
		Status:       domain.AppointmentPending,
	}
}
