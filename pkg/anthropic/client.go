// Package anthropic wraps the Anthropic SDK as a single-turn completion
// client for the field resolver.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client sends single-turn completions.
type Client interface {
	Complete(ctx context.Context, c Completion) (*Reply, error)
}

// Completion is one system frame plus one user prompt.
type Completion struct {
	Model     string
	MaxTokens int64
	System    string
	// CacheTTL marks the system frame for prompt caching ("5m" or "1h").
	// Empty disables caching.
	CacheTTL    string
	Prompt      string
	Temperature float64
}

// Reply is the text of a completion with its accounting.
type Reply struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client backed by the SDK. Extra options are passed
// through, e.g. option.WithBaseURL in tests.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) Complete(ctx context.Context, in Completion) (*Reply, error) {
	msg, err := c.client.Messages.New(ctx, newParams(in))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: complete")
	}
	return replyFrom(msg), nil
}

func newParams(in Completion) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(in.Model),
		MaxTokens:   in.MaxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(in.Prompt))},
		Temperature: sdk.Float(in.Temperature),
	}
	if in.System != "" {
		frame := sdk.TextBlockParam{Text: in.System}
		if in.CacheTTL != "" {
			cc := sdk.NewCacheControlEphemeralParam()
			cc.TTL = sdk.CacheControlEphemeralTTL(in.CacheTTL)
			frame.CacheControl = cc
		}
		params.System = []sdk.TextBlockParam{frame}
	}
	return params
}

// replyFrom keeps only text blocks; tool calls are never requested.
func replyFrom(msg *sdk.Message) *Reply {
	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &Reply{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
}
