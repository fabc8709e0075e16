package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUrgencyLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected UrgencyLevel
		ok       bool
	}{
		{"high", UrgencyHigh, true},
		{" Medium ", UrgencyMedium, true},
		{"LOW", UrgencyLow, true},
		{"critical", UrgencyLow, false},
		{"", UrgencyLow, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := ParseUrgencyLevel(tt.input)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestNewDocumentExcerpt(t *testing.T) {
	short := NewDocumentExcerpt("7", "labs.pdf (pdf)", "Hemoglobin 13.5", 0)
	assert.Equal(t, "Hemoglobin 13.5", short.TruncatedText)

	long := NewDocumentExcerpt("8", "notes.txt (txt)", strings.Repeat("a", DocumentCharLimit+10), 0)
	assert.True(t, strings.HasSuffix(long.TruncatedText, TruncationMarker))
	assert.Len(t, long.TruncatedText, DocumentCharLimit+len(TruncationMarker))

	exact := NewDocumentExcerpt("9", "x", strings.Repeat("b", 5), 5)
	assert.Equal(t, "bbbbb", exact.TruncatedText)
}

func TestSymptomInputPatientContext(t *testing.T) {
	age := 45
	assert.Equal(t, "No additional patient information provided", SymptomInput{RawText: "cough"}.PatientContext())
	assert.Equal(t,
		"Age: 45; Sex: female; Medical History: asthma",
		SymptomInput{Age: &age, Sex: "female", MedicalHistory: "asthma"}.PatientContext())
	assert.Equal(t, "Sex: male", SymptomInput{Sex: "male"}.PatientContext())
}

func TestRefinedQueryLiteratureQuery(t *testing.T) {
	plain := RefinedQuery{Terms: "itchy elbow"}
	assert.Equal(t, "itchy elbow", plain.LiteratureQuery())

	focused := RefinedQuery{Terms: "bad headache nausea", Symptoms: []string{"headache", "nausea"}}
	assert.Equal(t, `"headache"[Title/Abstract] AND "nausea"[Title/Abstract]`, focused.LiteratureQuery())
}

func TestDecodeRawAssessment(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		raw, err := DecodeRawAssessment(`{"urgency_level":"high","urgency_description":"Go now",
			"reasoning":"chest pain","recommendations":["Call 911"],"dos":["Rest"],"donts":[]}`)
		require.NoError(t, err)
		assert.Empty(t, raw.MissingFields())
		assert.Equal(t, "high", *raw.UrgencyLevel)
		assert.Equal(t, []string{"Rest"}, []string(raw.Dos))
		assert.NotNil(t, raw.Donts)
		assert.Nil(t, raw.Disclaimer)
	})

	t.Run("single string recommendation", func(t *testing.T) {
		raw, err := DecodeRawAssessment(`{"recommendations":"Drink water"}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"Drink water"}, []string(raw.Recommendations))
		assert.ElementsMatch(t, []string{"urgency_level", "urgency_description", "reasoning"}, raw.MissingFields())
	})

	t.Run("wrongly typed fields", func(t *testing.T) {
		raw, err := DecodeRawAssessment(`{"urgency_level":3,"urgency_description":{"text":"soon"},
			"reasoning":null,"recommendations":[{"action":"call 911"},"Rest"],"dos":42,"disclaimer":false}`)
		require.NoError(t, err)
		require.NotNil(t, raw.UrgencyLevel)
		assert.Equal(t, "3", *raw.UrgencyLevel)
		assert.Nil(t, raw.UrgencyDescription)
		assert.Nil(t, raw.Reasoning)
		assert.Nil(t, raw.Disclaimer)
		assert.Equal(t, []string{"Rest"}, []string(raw.Recommendations))
		assert.Nil(t, raw.Dos)
	})

	t.Run("only non-string recommendations", func(t *testing.T) {
		raw, err := DecodeRawAssessment(`{"urgency_level":"low","recommendations":[{"action":"call 911"}]}`)
		require.NoError(t, err)
		assert.NotNil(t, raw.Recommendations)
		assert.Empty(t, raw.Recommendations)
		assert.NotContains(t, raw.MissingFields(), "recommendations")
	})

	tests := []struct {
		name    string
		content string
	}{
		{"prose", "I think you are fine"},
		{"array", `["high"]`},
		{"null", "null"},
		{"truncated object", `{"urgency_level":"high"`},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := DecodeRawAssessment(tt.content)
			assert.Error(t, err)
		})
	}
}
