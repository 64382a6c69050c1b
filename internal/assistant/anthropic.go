package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic sends requests through the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// Compile-time interface check.
var _ Provider = (*Anthropic)(nil)

// NewAnthropic creates a provider. Extra request options (base URL, HTTP
// client) are passed through to the SDK. Retries are disabled.
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) *Anthropic {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Anthropic{client: anthropic.NewClient(all...), model: model}
}

// Complete implements Provider.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if len(req.Image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(req.ImageType, base64.StdEncoding.EncodeToString(req.Image)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Text))

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}
	return sb.String(), nil
}
