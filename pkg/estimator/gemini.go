package estimator

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when Config.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

func init() {
	Register("gemini", func(ctx context.Context, cfg Config) (Estimator, error) {
		return NewGemini(ctx, cfg)
	})
}

// Gemini estimates through the Gemini API using the Gen AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	cfg    Config
}

// NewGemini creates a Gemini-backed estimator. cfg.APIKey is required.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &Gemini{client: client, model: model, cfg: cfg}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return "gemini"
}

// Estimate sends the prompt and every image in one GenerateContent call.
func (g *Gemini) Estimate(ctx context.Context, images [][]byte, notes []string) (*Result, error) {
	if err := checkEvidence(images, notes); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(0.2)),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(images, notes), config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

func geminiContents(images [][]byte, notes []string) []*genai.Content {
	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, &genai.Part{Text: BuildPrompt(notes)})
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: ImageMIMEType,
				Data:     img,
			},
		})
	}
	return []*genai.Content{{Role: "user", Parts: parts}}
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates in response", ErrMalformedResponse)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text += part.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate", ErrMalformedResponse)
	}
	return text, nil
}
