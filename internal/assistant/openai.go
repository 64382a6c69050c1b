package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAI talks to an OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

// Compile-time interface check.
var _ Provider = (*OpenAI)(nil)

// OpenAIOption configures an OpenAI provider.
type OpenAIOption func(*OpenAI)

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) OpenAIOption {
	return func(o *OpenAI) { o.http.Timeout = d }
}

// NewOpenAI creates a provider. endpoint is the full chat/completions URL.
func NewOpenAI(endpoint, apiKey, model string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type payload struct {
	Model     string    `json:"model,omitempty"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements Provider.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var msgs []message
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: []content{{Type: "text", Text: req.System}}})
	}
	user := message{Role: "user", Content: []content{{Type: "text", Text: req.Text}}}
	if len(req.Image) > 0 {
		url := "data:" + req.ImageType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
		user.Content = append(user.Content, content{Type: "image_url", ImageURL: &imageURL{URL: url}})
	}
	msgs = append(msgs, user)

	data, err := json.Marshal(payload{Model: o.model, Messages: msgs, MaxTokens: req.MaxTokens})
	if err != nil {
		return "", fmt.Errorf("openai: marshal payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: API %s: %s", resp.Status, truncate(string(body), 200))
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("openai: unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response (no choices)")
	}
	return result.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
