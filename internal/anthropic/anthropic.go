package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/vasilisp/edurag/internal/data"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/backai"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = string(anthropic.ModelClaudeSonnet4_5_20250929)
)

// Anthropic requires an explicit output limit
const maxTokens = 4096

// Client generates with Claude. It has no embedding endpoint; pair it with
// another embedding provider.
type Client struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewClient(baseURL string, apiKey string, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &Client{client: &client, model: anthropic.Model(model)}, nil
}

// convertMessages moves system messages into system blocks, after the base
// prompt.
func convertMessages(systemPrompt string, history []backai.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	system := []anthropic.TextBlockParam{{Text: systemPrompt}}
	messages := make([]anthropic.MessageParam, 0, len(history))

	for _, msg := range history {
		switch msg.Role {
		case backai.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case backai.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return messages, system
}

func (c *Client) send(ctx context.Context, messages []anthropic.MessageParam, system []anthropic.TextBlockParam) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages error: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	return reply.String(), nil
}

func (c *Client) Generate(ctx context.Context, history []backai.Message, retrieved string) (string, error) {
	util.Assert(c != nil, "Generate nil client")

	messages, system := convertMessages(data.PromptWithContext(retrieved), history)
	return c.send(ctx, messages, system)
}

func (c *Client) DescribeImage(ctx context.Context, image string) (string, error) {
	util.Assert(c != nil, "DescribeImage nil client")

	mediaType, raw, err := util.DecodeImage(image)
	if err != nil {
		return "", err
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(
			anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(raw)),
			anthropic.NewTextBlock(data.DescribePrompt),
		),
	}

	return c.send(ctx, messages, nil)
}
