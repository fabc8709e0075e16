package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-assessment-server/internal/domain"
)

func testProfile() *domain.PatientProfile {
	age := 58
	return &domain.PatientProfile{
		ID:                3,
		FirstName:         "Ana",
		LastName:          "Lopez",
		Age:               &age,
		Gender:            "female",
		MedicalHistory:    "Type 2 diabetes",
		ChronicConditions: []string{"diabetes", "hypertension"},
		Allergies:         []string{"penicillin"},
		Medications: []domain.Medication{
			{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily"},
			{Dosage: "orphan"},
		},
		SurgicalHistory: []domain.SurgicalProcedure{{Procedure: "Appendectomy", Date: "2009"}},
	}
}

func TestEnrichFromProfile(t *testing.T) {
	input := EnrichFromProfile(domain.SymptomInput{RawText: "dizzy"}, testProfile())

	require.NotNil(t, input.Age)
	assert.Equal(t, 58, *input.Age)
	assert.Equal(t, "female", input.Sex)
	assert.True(t, strings.HasPrefix(input.MedicalHistory, "Information from patient profile:\n"))
	assert.Contains(t, input.MedicalHistory, "Medical History: Type 2 diabetes")
	assert.Contains(t, input.MedicalHistory, "Chronic Conditions: diabetes, hypertension")
	assert.Contains(t, input.MedicalHistory, "Allergies: penicillin")
	assert.Contains(t, input.MedicalHistory, "Medications: Metformin 500mg twice daily")
	assert.NotContains(t, input.MedicalHistory, "orphan")
	assert.Contains(t, input.MedicalHistory, "Surgical History: Appendectomy (2009)")
}

func TestEnrichFromProfile_KeepsProvidedValues(t *testing.T) {
	age := 30
	input := EnrichFromProfile(domain.SymptomInput{
		RawText:        "dizzy",
		Age:            &age,
		Sex:            "male",
		MedicalHistory: "asthma",
	}, testProfile())

	assert.Equal(t, 30, *input.Age)
	assert.Equal(t, "male", input.Sex)
	assert.True(t, strings.HasPrefix(input.MedicalHistory, "asthma\n\nAdditional information from patient profile:\n"))

	unchanged := EnrichFromProfile(domain.SymptomInput{RawText: "x"}, nil)
	assert.Equal(t, domain.SymptomInput{RawText: "x"}, unchanged)
}

func TestDocumentExcerpts(t *testing.T) {
	docs := []domain.StoredDocument{
		{ID: 1, Filename: "labs.pdf", FileType: "pdf", ContentText: "Glucose 140"},
		{ID: 2, Filename: "scan.png", FileType: "png", ContentText: "   "},
		{ID: 3, Filename: "notes.txt", FileType: "txt", ContentText: strings.Repeat("n", 30)},
	}

	excerpts := DocumentExcerpts(docs, 10)

	require.Len(t, excerpts, 2)
	assert.Equal(t, "1", excerpts[0].ID)
	assert.Equal(t, "labs.pdf (pdf)", excerpts[0].SourceLabel)
	assert.Equal(t, "Glucose 14"+domain.TruncationMarker, excerpts[0].TruncatedText)
	assert.Equal(t, "3", excerpts[1].ID)
}
