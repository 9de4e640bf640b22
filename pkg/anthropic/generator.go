package anthropic

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 256
)

// generatorSystem frames every field prompt and is identical across calls,
// so it is marked for prompt caching.
const generatorSystem = `You fill in website contact forms on behalf of a business.
Answer with a single JSON object of the form {"value": "..."} and nothing else.
Keep values short, plausible and consistent with the business context.`

// Generator answers form-field prompts with Claude.
type Generator struct {
	client    Client
	model     string
	maxTokens int64
}

// NewGenerator wraps client. Empty model and non-positive maxTokens take defaults.
func NewGenerator(client Client, model string, maxTokens int64) *Generator {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Generator{client: client, model: model, maxTokens: maxTokens}
}

// Generate sends prompt as a single user turn and returns the reply text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	reply, err := g.client.Complete(ctx, Completion{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		System:      generatorSystem,
		CacheTTL:    "5m",
		Prompt:      prompt,
		Temperature: 0.2,
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic: generate")
	}
	reply.Usage.Log(g.model, "field_resolve")

	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return "", eris.New("anthropic: generate: empty completion")
	}
	return text, nil
}
