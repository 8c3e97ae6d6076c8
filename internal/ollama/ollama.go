package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/vasilisp/edurag/internal/data"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/backai"
	"github.com/vasilisp/edurag/pkg/embedding"
)

const (
	DefaultBaseURL        = "http://localhost:11434"
	DefaultModel          = "llama3.1:latest"
	DefaultVisionModel    = "llava:latest"
	DefaultEmbeddingModel = "nomic-embed-text"
)

// Client talks to a local Ollama server. Image descriptions use a separate
// vision model.
type Client struct {
	client         *api.Client
	model          string
	visionModel    string
	embeddingModel string
}

func NewClient(baseURL string, httpClient *http.Client, model string, visionModel string, embeddingModel string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if model == "" {
		model = DefaultModel
	}
	if visionModel == "" {
		visionModel = DefaultVisionModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:         api.NewClient(parsedURL, httpClient),
		model:          model,
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
	}, nil
}

func (c *Client) chat(ctx context.Context, model string, messages []api.Message) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
	}

	var reply strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	return reply.String(), nil
}

func (c *Client) Generate(ctx context.Context, history []backai.Message, retrieved string) (string, error) {
	util.Assert(c != nil, "Generate nil client")

	messages := make([]api.Message, 0, len(history)+1)
	messages = append(messages, api.Message{Role: string(backai.RoleSystem), Content: data.PromptWithContext(retrieved)})
	for _, msg := range history {
		messages = append(messages, api.Message{Role: string(msg.Role), Content: msg.Content})
	}

	return c.chat(ctx, c.model, messages)
}

func (c *Client) DescribeImage(ctx context.Context, image string) (string, error) {
	util.Assert(c != nil, "DescribeImage nil client")

	_, raw, err := util.DecodeImage(image)
	if err != nil {
		return "", err
	}

	return c.chat(ctx, c.visionModel, []api.Message{{
		Role:    string(backai.RoleUser),
		Content: data.DescribePrompt,
		Images:  []api.ImageData{raw},
	}})
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	util.Assert(c != nil, "Embed nil client")

	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	return embedding.FromFloat32(resp.Embeddings[0]), nil
}
