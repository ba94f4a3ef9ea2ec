package estimator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when Config.Model is empty.
const DefaultOpenAIModel = openai.GPT4oMini

func init() {
	Register("openai", func(_ context.Context, cfg Config) (Estimator, error) {
		return NewOpenAI(cfg)
	})
}

// OpenAI estimates through the chat completions API with image inputs.
type OpenAI struct {
	client *openai.Client
	model  string
	cfg    Config
}

// NewOpenAI creates an OpenAI-backed estimator. cfg.APIKey is required.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		cfg:    cfg,
	}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string {
	return "openai"
}

// Estimate sends one user message holding the prompt and every image.
func (o *OpenAI) Estimate(ctx context.Context, images [][]byte, notes []string) (*Result, error) {
	if err := checkEvidence(images, notes); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: openAIParts(images, notes),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}

	return Parse(resp.Choices[0].Message.Content)
}

func openAIParts(images [][]byte, notes []string) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: BuildPrompt(notes),
	})
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + ImageMIMEType + ";base64," + base64.StdEncoding.EncodeToString(img),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return parts
}
