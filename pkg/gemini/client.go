// Package gemini adapts the Google Gen AI SDK to the field resolver's
// generator interface.
package gemini

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 256
)

const systemPrompt = `You fill in website contact forms on behalf of a business.
Answer with a single JSON object of the form {"value": "..."} and nothing else.`

// Models is the subset of *genai.Models the generator calls.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator answers form-field prompts with Gemini.
type Generator struct {
	models    Models
	model     string
	maxTokens int32
}

// Option configures NewGenerator.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = u }
}

// NewGenerator creates a Gemini API client for apiKey.
func NewGenerator(ctx context.Context, apiKey, model string, maxTokens int, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	for _, o := range opts {
		o(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return NewGeneratorWithModels(client.Models, model, maxTokens), nil
}

// NewGeneratorWithModels wraps an existing Models implementation.
func NewGeneratorWithModels(m Models, model string, maxTokens int) *Generator {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Generator{models: m, model: model, maxTokens: int32(maxTokens)}
}

// Generate implements resolve.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.2),
		MaxOutputTokens:   g.maxTokens,
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", eris.New("gemini: no candidates")
	}
	if u := resp.UsageMetadata; u != nil {
		zap.L().Debug("gemini: generation complete",
			zap.String("model", g.model),
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
		)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Errorf("gemini: empty completion (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}
