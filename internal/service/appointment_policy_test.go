package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-assessment-server/internal/domain"
)

func TestIsUrgent(t *testing.T) {
	tests := []struct {
		name        string
		level       domain.UrgencyLevel
		description string
		expected    bool
	}{
		{"high level", domain.UrgencyHigh, "Go now", true},
		{"emergency in description", domain.UrgencyMedium, "This may be an EMERGENCY", true},
		{"severe in description", domain.UrgencyLow, "Severe pain warrants a visit", true},
		{"routine", domain.UrgencyLow, "Monitor symptoms and practice appropriate self-care", false},
		{"medium", domain.UrgencyMedium, "Consult with a healthcare provider soon", false},
		{"canned high description", domain.UrgencyMedium, HighUrgencyDescription, true},
		{"negation elsewhere", domain.UrgencyLow, "No fever, but severe headache", true},
		{"no immediate danger", domain.UrgencyLow, "No immediate danger, rest at home", false},
		{"not severe", domain.UrgencyLow, "Symptoms are not severe", false},
		{"not an emergency", domain.UrgencyMedium, "This is not an emergency", false},
		{"non-urgent", domain.UrgencyMedium, "Book a non-urgent follow-up", false},
		{"isn't urgent", domain.UrgencyLow, "It isn't urgent", false},
		{"substring only", domain.UrgencyLow, "Persevere with fluids", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &domain.Assessment{UrgencyLevel: tt.level, UrgencyDescription: tt.description}
			assert.Equal(t, tt.expected, IsUrgent(a))
			assert.Equal(t, tt.expected, UrgencyGatedPolicy{}.ShouldSchedule(a))
		})
	}
}

func TestNewAppointmentPolicy(t *testing.T) {
	low := &domain.Assessment{UrgencyLevel: domain.UrgencyLow, UrgencyDescription: "rest"}

	p, err := NewAppointmentPolicy("")
	require.NoError(t, err)
	assert.IsType(t, UrgencyGatedPolicy{}, p)
	assert.False(t, p.ShouldSchedule(low))

	p, err = NewAppointmentPolicy("ALWAYS")
	require.NoError(t, err)
	assert.True(t, p.ShouldSchedule(low))

	p, err = NewAppointmentPolicy("never")
	require.NoError(t, err)
	assert.False(t, p.ShouldSchedule(&domain.Assessment{UrgencyLevel: domain.UrgencyHigh}))

	_, err = NewAppointmentPolicy("weekly")
	assert.Error(t, err)
}

func TestBuildAppointment(t *testing.T) {
	patientID := int64(12)
	record := &domain.AssessmentRecord{
		ID:        40,
		PatientID: &patientID,
		Symptoms:  "chest pain",
		Assessment: domain.Assessment{
			UrgencyLevel:       domain.UrgencyHigh,
			UrgencyDescription: strings.Repeat("Seek care ", 10),
			Reasoning:          "possible cardiac event",
			Recommendations:    []string{"Call emergency services", "Chew aspirin if advised"},
		},
	}

	appt := BuildAppointment(record)

	assert.Equal(t, int64(40), appt.AssessmentID)
	assert.Equal(t, &patientID, appt.PatientID)
	assert.Equal(t, "EMERGENCY: "+strings.Repeat("Seek care ", 10)[:50]+"...", appt.Title)
	assert.Equal(t, domain.UrgencyHigh, appt.UrgencyLevel)
	assert.Equal(t, domain.AppointmentPending, appt.Status)
	assert.Contains(t, appt.Description, "Symptoms: chest pain")
	assert.Contains(t, appt.Description, "Call emergency services\nChew aspirin if advised")

	record.Assessment.UrgencyLevel = domain.UrgencyLow
	record.Assessment.UrgencyDescription = "Rest"
	routine := BuildAppointment(record)
	assert.Equal(t, "Rest...", routine.Title)
	assert.Equal(t, domain.UrgencyLow, routine.UrgencyLevel)
}
