// Package llm adapts the OpenAI chat completion API to the classifier and
// assessment model used by the pipeline.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
)

// PlaceholderAPIKey is shipped in sample environments and never valid.
const PlaceholderAPIKey = "dummy-api-key-for-testing"

const (
	defaultModel   = "gpt-4o"
	defaultTimeout = 60 * time.Second
)

// Client wraps an OpenAI client with credential checks shared by the
// classifier and the assessment model.
type Client struct {
	api             *openai.Client
	apiKey          string
	classifierModel string
	assessmentModel string
	logger          *logrus.Logger
}

// NewClient creates a new client. It never fails on a missing key: calls
// fail fast with a configuration error instead.
func NewClient(cfg domain.LLMConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = defaultModel
	}
	if cfg.AssessmentModel == "" {
		cfg.AssessmentModel = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oaCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &Client{
		api:             openai.NewClientWithConfig(oaCfg),
		apiKey:          cfg.APIKey,
		classifierModel: cfg.ClassifierModel,
		assessmentModel: cfg.AssessmentModel,
		logger:          logger,
	}
	if !c.HasValidCredential() {
		logger.Warn("No valid OpenAI API key configured, assessments will be degraded")
	}
	return c
}

// HasValidCredential reports whether an API key other than the placeholder is set.
func (c *Client) HasValidCredential() bool {
	key := strings.TrimSpace(c.apiKey)
	return key != "" && key != PlaceholderAPIKey
}

func (c *Client) requireCredential(stage string) error {
	if c.HasValidCredential() {
		return nil
	}
	return domain.NewPipelineError(domain.ErrCodeConfiguration, stage,
		"no valid OpenAI API key configured", nil)
}

func toMessages(turns []domain.ConversationTurn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := string(t.Role)
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return msgs
}

// describeAPIError extracts loggable fields from go-openai errors.
func describeAPIError(err error) logrus.Fields {
	fields := logrus.Fields{}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		fields["status_code"] = apiErr.HTTPStatusCode
		fields["api_error_type"] = apiErr.Type
	case errors.As(err, &reqErr):
		fields["status_code"] = reqErr.HTTPStatusCode
	}
	return fields
}

func firstChoice(resp openai.ChatCompletionResponse, stage string) (openai.ChatCompletionMessage, error) {
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, domain.NewPipelineError(
			domain.ErrCodeModelInvocation, stage, "completion returned no choices", nil)
	}
	return resp.Choices[0].Message, nil
}

func invocationError(code, stage string, err error) error {
	return domain.NewPipelineError(code, stage, fmt.Sprintf("%s request failed", stage), err)
}
