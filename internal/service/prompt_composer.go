package service

import (
	"fmt"
	"strings"

	"github.com/symptom-assessment-server/internal/domain"
)

// AssessmentPolicy is the system turn sent with every assessment request.
const AssessmentPolicy = `You are an AI medical pre-assessment assistant speaking DIRECTLY TO THE PATIENT.
Your task is to evaluate the patient's reported symptoms and provide an initial assessment of urgency.

IMPORTANT GUIDELINES:
1. ALWAYS speak directly to the patient (use "you" instead of "the patient")
2. Use a compassionate, clear, and reassuring tone
3. NEVER provide a definitive diagnosis - only assess the urgency level
4. When symptoms are potentially serious, err on the side of caution
5. Consider patient demographics (age, sex, medical history) when relevant
6. Always include a clear disclaimer about the limitations of AI assessment
7. Always include a list of things the patient should do and a list of things the patient should avoid

Urgency Levels:
- high: Conditions requiring immediate medical attention (e.g., chest pain with shortness of breath)
- medium: Conditions requiring care soon (e.g., high fever with stiff neck)
- low: Conditions that can be managed with routine care or self-care (e.g., common cold)

Format your response as a JSON object with the following structure:
{
    "urgency_level": "high | medium | low",
    "urgency_description": "brief description of the urgency recommendation addressed to the patient",
    "reasoning": "explanation of your assessment addressed directly to the patient",
    "recommendations": ["recommendation addressed to the patient", "..."],
    "dos": ["something the patient should do", "..."],
    "donts": ["something the patient should avoid", "..."],
    "disclaimer": "I'm an AI assistant and this is not a medical diagnosis. Please consult with a healthcare professional for proper medical advice."
}`

const (
	closingInstruction  = "Please assess the urgency of these symptoms and provide recommendations."
	maxPromptReferences = 2
)

// PromptComposer assembles the turns for one assessment request
type PromptComposer struct {
	policy        string
	maxReferences int
}

// NewPromptComposer creates a composer with the default policy
func NewPromptComposer() *PromptComposer {
	return &PromptComposer{policy: AssessmentPolicy, maxReferences: maxPromptReferences}
}

// Compose returns the system turn, the replay window (oldest first) and the new user turn.
func (c *PromptComposer) Compose(
	input domain.SymptomInput,
	classification domain.ClassificationResult,
	articles []domain.LiteratureArticle,
	replay []domain.ConversationTurn,
) []domain.ConversationTurn {
	turns := make([]domain.ConversationTurn, 0, len(replay)+2)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleSystem, Content: c.policy})
	turns = append(turns, replay...)
	turns = append(turns, domain.ConversationTurn{
		Role:    domain.RoleUser,
		Content: c.UserPrompt(input, classification, articles),
	})
	return turns
}

// UserPrompt renders the user turn: symptoms, patient summary, optional documents,
// the closing instruction and, last, the literature block.
func (c *PromptComposer) UserPrompt(
	input domain.SymptomInput,
	classification domain.ClassificationResult,
	articles []domain.LiteratureArticle,
) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Patient symptoms: %s\n\n", input.RawText)
	fmt.Fprintf(&b, "Patient information: %s\n\n", input.PatientContext())

	if docs := IncludedDocuments(input, classification); len(docs) > 0 {
		b.WriteString("\n\nPatient's Medical Documents:\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "\n--- Document %d ---\n", i+1)
			fmt.Fprintf(&b, "Document: %s\nContent:\n%s\n", doc.SourceLabel, doc.TruncatedText)
		}
		b.WriteString("\nPlease consider these medical documents in your assessment.\n")
	}

	b.WriteString("\n" + closingInstruction)

	if len(articles) > c.maxReferences {
		articles = articles[:c.maxReferences]
	}
	if len(articles) > 0 {
		b.WriteString("\n\nRelevant medical literature:\n")
		for _, a := range articles {
			fmt.Fprintf(&b, "- %s (PMID: %s)\n", a.Title, a.PMID)
		}
	}

	return b.String()
}

// IncludedDocuments returns the excerpts that go into the prompt: all of them when the
// classifier judged documents relevant, none otherwise.
func IncludedDocuments(input domain.SymptomInput, classification domain.ClassificationResult) []domain.DocumentExcerpt {
	if !classification.DocumentsRelevant || len(input.Documents) == 0 {
		return nil
	}
	return input.Documents
}
