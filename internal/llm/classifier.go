package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/symptom-assessment-server/internal/domain"
)

// ClassificationToolName is the single function the classifier forces the model to call.
const ClassificationToolName = "classify_medical_query"

const (
	classifierStage       = "classifier"
	classifierTemperature = 0.2
	classifierInstruction = "You are a medical assistant that determines if a message contains medical symptoms or conditions. " +
		"Analyze if this query requires medical assessment and if it needs PubMed research."
)

var classificationTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        ClassificationToolName,
		Description: "Determine if the message is a medical query requiring assessment",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"is_medical": {
					Type:        jsonschema.Boolean,
					Description: "Whether the message describes medical symptoms or conditions",
				},
				"reason": {
					Type:        jsonschema.String,
					Description: "Brief explanation of the classification",
				},
				"relevant_medical_documents": {
					Type:        jsonschema.Boolean,
					Description: "Whether the patient's medical documents are relevant to this query",
				},
			},
			Required: []string{"is_medical", "reason"},
		},
	},
}

// Classifier implements domain.QueryClassifier with a forced tool call
type Classifier struct {
	client *Client
}

// NewClassifier creates a new classifier
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

type classificationArgs struct {
	IsMedical         *bool   `json:"is_medical"`
	Reason            *string `json:"reason"`
	DocumentsRelevant bool    `json:"relevant_medical_documents"`
}

// Classify asks the model whether rawText needs a medical assessment.
func (c *Classifier) Classify(ctx context.Context, rawText, patientContext string) (*domain.ClassificationResult, error) {
	if err := c.client.requireCredential(classifierStage); err != nil {
		return nil, err
	}

	resp, err := c.client.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.client.classifierModel,
		Temperature: classifierTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierInstruction},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Message: %s\n\nPatient context: %s", rawText, patientContext)},
		},
		Tools: []openai.Tool{classificationTool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: ClassificationToolName},
		},
	})
	if err != nil {
		c.client.logger.WithFields(describeAPIError(err)).WithError(err).Error("Classification request failed")
		return nil, invocationError(domain.ErrCodeClassification, classifierStage, err)
	}

	msg, err := firstChoice(resp, classifierStage)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeClassification, classifierStage, "no classification returned", err)
	}
	return parseClassification(msg)
}

func parseClassification(msg openai.ChatCompletionMessage) (*domain.ClassificationResult, error) {
	for _, call := range msg.ToolCalls {
		if call.Function.Name != ClassificationToolName {
			continue
		}
		var args classificationArgs
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, domain.NewPipelineError(domain.ErrCodeClassification, classifierStage,
				"tool arguments are not valid JSON", err)
		}
		if args.IsMedical == nil || args.Reason == nil {
			return nil, domain.NewPipelineError(domain.ErrCodeClassification, classifierStage,
				"tool arguments missing is_medical or reason", nil)
		}
		return &domain.ClassificationResult{
			IsMedical:         *args.IsMedical,
			Reason:            *args.Reason,
			DocumentsRelevant: args.DocumentsRelevant,
		}, nil
	}
	return nil, domain.NewPipelineError(domain.ErrCodeClassification, classifierStage,
		"model did not call "+ClassificationToolName, nil)
}
