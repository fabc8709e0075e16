package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-assessment-server/internal/domain"
)

func TestPromptComposer_Compose(t *testing.T) {
	composer := NewPromptComposer()
	replay := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: `{"urgency_level":"low"}`},
	}

	turns := composer.Compose(domain.SymptomInput{RawText: "cough"}, domain.ClassificationResult{IsMedical: true}, nil, replay)

	require.Len(t, turns, 4)
	assert.Equal(t, domain.RoleSystem, turns[0].Role)
	assert.Contains(t, turns[0].Content, `"dos"`)
	assert.Contains(t, turns[0].Content, `"donts"`)
	assert.Equal(t, replay, turns[1:3])
	assert.Equal(t, domain.RoleUser, turns[3].Role)
}

func TestPromptComposer_UserPromptOrdering(t *testing.T) {
	composer := NewPromptComposer()
	age := 61
	input := domain.SymptomInput{
		RawText:        "crushing chest pain",
		Age:            &age,
		Sex:            "male",
		MedicalHistory: "hypertension",
		Documents: []domain.DocumentExcerpt{
			domain.NewDocumentExcerpt("3", "ecg.pdf (pdf)", "ST elevation", 0),
		},
	}
	articles := []domain.LiteratureArticle{
		{PMID: "111", Title: "Acute MI"},
		{PMID: "222", Title: "Chest pain triage"},
		{PMID: "333", Title: "Third article"},
	}

	prompt := composer.UserPrompt(input, domain.ClassificationResult{IsMedical: true, DocumentsRelevant: true}, articles)

	positions := []int{
		strings.Index(prompt, "Patient symptoms: crushing chest pain"),
		strings.Index(prompt, "Patient information: Age: 61; Sex: male; Medical History: hypertension"),
		strings.Index(prompt, "--- Document 1 ---"),
		strings.Index(prompt, "Document: ecg.pdf (pdf)\nContent:\nST elevation"),
		strings.Index(prompt, closingInstruction),
		strings.Index(prompt, "Relevant medical literature:"),
	}
	for i, p := range positions {
		require.GreaterOrEqual(t, p, 0, "section %d missing", i)
		if i > 0 {
			assert.Greater(t, p, positions[i-1], "section %d out of order", i)
		}
	}

	assert.Contains(t, prompt, "- Acute MI (PMID: 111)")
	assert.Contains(t, prompt, "- Chest pain triage (PMID: 222)")
	assert.NotContains(t, prompt, "Third article")
}

func TestPromptComposer_OptionalBlocks(t *testing.T) {
	composer := NewPromptComposer()
	input := domain.SymptomInput{
		RawText:   "sore throat",
		Documents: []domain.DocumentExcerpt{{ID: "1", SourceLabel: "labs.pdf (pdf)", TruncatedText: "normal"}},
	}

	prompt := composer.UserPrompt(input, domain.ClassificationResult{IsMedical: true}, nil)

	assert.Contains(t, prompt, "Patient information: No additional patient information provided")
	assert.NotContains(t, prompt, "Patient's Medical Documents")
	assert.NotContains(t, prompt, "Relevant medical literature")
	assert.True(t, strings.HasSuffix(prompt, closingInstruction))

	relevantNoDocs := composer.UserPrompt(domain.SymptomInput{RawText: "x"}, domain.ClassificationResult{DocumentsRelevant: true}, nil)
	assert.NotContains(t, relevantNoDocs, "Patient's Medical Documents")
}
