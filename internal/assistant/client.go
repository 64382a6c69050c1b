// Package assistant talks to the external language models that suggest
// recipes and read ingredients off fridge photos. Requests are single shot;
// failures are returned to the caller without retry.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/pantry/internal/models"
)

// Units the recogniser may report.
var Units = []string{"个", "根", "片", "袋", "盒", "份", "g", "颗", "块", "桶"}

// ErrNotConfigured is returned when no provider is set for an operation.
var ErrNotConfigured = errors.New("assistant: provider not configured")

const chatSystemPrompt = "你是专业烹饪助手，请根据用户的冰箱食材和提出的需求，按照时下的季节和流行趋势提供符合当前季节的菜谱建议和详细烹饪方式。"

const recognizePrompt = `请识别这张图片中的食材，严格按照JSON格式返回：
[{"name": "食材名称", "quantity": 数量, "unit": "单位", "type": "类别"}]

要求：
1. quantity必须是数字
2. unit只能是: 个、根、片、袋、盒、份、g、颗、块、桶中的一个
3. type只能是: 蔬菜、肉类、调料、其他中的一个
4. 如果无法确定数量，默认设为1
5. 只返回JSON数组，不要任何解释文字`

// Request is one model call.
type Request struct {
	System    string
	Text      string
	Image     []byte
	ImageType string // MIME type of Image
	MaxTokens int
}

// Provider sends a request to a model and returns its text reply.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client runs the chat and recognition flows.
type Client struct {
	chat   Provider
	vision Provider
	logger *slog.Logger
}

// New creates a Client. Either provider may be nil, which disables the
// corresponding operation.
func New(chat, vision Provider, logger *slog.Logger) *Client {
	return &Client{chat: chat, vision: vision, logger: logger}
}

// FridgeContext renders stock as the context line prepended to chat prompts.
func FridgeContext(stock []models.Ingredient) string {
	parts := make([]string, len(stock))
	for i, ing := range stock {
		parts[i] = fmt.Sprintf("%s(%g%s)", ing.Name, ing.Quantity, ing.Unit)
	}
	list := strings.Join(parts, "、")
	if list == "" {
		list = "暂无"
	}
	return "我的冰箱里有已有食材: " + list
}

// Chat asks for recipe suggestions given the current stock.
func (c *Client) Chat(ctx context.Context, prompt string, stock []models.Ingredient) (string, error) {
	if c.chat == nil {
		return "", ErrNotConfigured
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("assistant: empty prompt")
	}
	reply, err := c.chat.Complete(ctx, Request{
		System:    chatSystemPrompt,
		Text:      FridgeContext(stock) + "\n\n" + prompt,
		MaxTokens: 2000,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: chat: %w", err)
	}
	return reply, nil
}

// Recognize asks the vision model which ingredients are in image.
func (c *Client) Recognize(ctx context.Context, image []byte, mediaType string) ([]models.IngredientDelta, error) {
	if c.vision == nil {
		return nil, ErrNotConfigured
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("assistant: empty image")
	}
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	reply, err := c.vision.Complete(ctx, Request{
		Text:      recognizePrompt,
		Image:     image,
		ImageType: mediaType,
		MaxTokens: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: recognize: %w", err)
	}
	items, err := ParseRecognized(reply)
	if err != nil {
		return nil, err
	}
	return c.sanitize(items), nil
}

// ParseRecognized decodes the model's JSON array, tolerating a Markdown code
// fence around it.
func ParseRecognized(reply string) ([]models.IngredientDelta, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var raw []struct {
		Name     string      `json:"name"`
		Quantity json.Number `json:"quantity"`
		Unit     string      `json:"unit"`
		Type     string      `json:"type"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("assistant: malformed recognition reply: %w", err)
	}
	out := make([]models.IngredientDelta, 0, len(raw))
	for _, r := range raw {
		qty, _ := r.Quantity.Float64()
		out = append(out, models.IngredientDelta{
			Name:     strings.TrimSpace(r.Name),
			Quantity: qty,
			Unit:     strings.TrimSpace(r.Unit),
			Type:     models.IngredientType(strings.TrimSpace(r.Type)),
		})
	}
	return out, nil
}

// sanitize drops nameless items and items in units outside Units, defaults a
// missing quantity to 1 and an unknown category to Other.
func (c *Client) sanitize(items []models.IngredientDelta) []models.IngredientDelta {
	out := make([]models.IngredientDelta, 0, len(items))
	for _, it := range items {
		if it.Name == "" || !slices.Contains(Units, it.Unit) {
			c.logger.Warn("assistant: dropped recognised item",
				slog.String("name", it.Name), slog.String("unit", it.Unit))
			continue
		}
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		if t, ok := models.ParseIngredientType(string(it.Type)); ok {
			it.Type = t
		} else {
			it.Type = models.TypeOther
		}
		out = append(out, it)
	}
	return out
}
