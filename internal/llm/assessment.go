package llm

import (
	"context"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/symptom-assessment-server/internal/domain"
)

const assessmentStage = "assessment_model"

// AssessmentModel implements domain.AssessmentModel with forced JSON output
type AssessmentModel struct {
	client *Client
}

// NewAssessmentModel creates a new assessment model
func NewAssessmentModel(client *Client) *AssessmentModel {
	return &AssessmentModel{client: client}
}

// Invoke sends the composed turns and decodes the JSON reply. It returns the
// raw content alongside the decoded value so it can be kept in history.
func (m *AssessmentModel) Invoke(ctx context.Context, turns []domain.ConversationTurn) (*domain.RawAssessment, string, error) {
	if err := m.client.requireCredential(assessmentStage); err != nil {
		return nil, "", err
	}

	resp, err := m.client.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.client.assessmentModel,
		// A literal 0 is dropped by omitempty and the API would apply its default.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: toMessages(turns),
	})
	if err != nil {
		m.client.logger.WithFields(describeAPIError(err)).WithError(err).Error("Assessment request failed")
		return nil, "", invocationError(domain.ErrCodeModelInvocation, assessmentStage, err)
	}

	msg, err := firstChoice(resp, assessmentStage)
	if err != nil {
		return nil, "", err
	}

	raw, err := domain.DecodeRawAssessment(msg.Content)
	if err != nil {
		return nil, msg.Content, domain.NewPipelineError(domain.ErrCodeOutputContract, assessmentStage,
			"assessment content is not a JSON object", err)
	}
	return raw, msg.Content, nil
}
