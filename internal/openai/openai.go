package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/vasilisp/edurag/internal/data"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/backai"
)

const (
	DefaultModel          = string(openai.ChatModelGPT4o)
	DefaultEmbeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
)

type Client struct {
	client              openai.Client
	model               string
	embeddingModel      string
	embeddingDimensions int
}

func NewClient(token string, baseURL string, model string, embeddingModel string, embeddingDimensions int) *Client {
	util.Assert(token != "", "NewClient empty token")
	util.Assert(embeddingDimensions >= 0, "NewClient negative embeddingDimensions")

	opts := []option.RequestOption{option.WithAPIKey(token)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	if model == "" {
		model = DefaultModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	return &Client{
		client:              openai.NewClient(opts...),
		model:               model,
		embeddingModel:      embeddingModel,
		embeddingDimensions: embeddingDimensions,
	}
}

func splitTextIntoChunks(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text) // Handle multi-byte characters
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// average of chunk embeddings
func meanVector(vectors [][]float64) []float64 {
	util.Assert(len(vectors) > 0, "meanVector empty vectors")

	mean := make([]float64, len(vectors[0]))
	for _, vector := range vectors {
		for i, v := range vector {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(vectors))
	}
	return mean
}

func (c *Client) Embed(ctx context.Context, str string) ([]float64, error) {
	util.Assert(c != nil, "embed nil client")
	util.Assert(str != "", "embed empty string")

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: splitTextIntoChunks(str, 512)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	}
	if c.embeddingDimensions > 0 {
		params.Dimensions = openai.Opt(int64(c.embeddingDimensions))
	}

	embedding, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	vectors := make([][]float64, len(embedding.Data))
	for i, d := range embedding.Data {
		vectors[i] = d.Embedding
	}

	return meanVector(vectors), nil
}

func extractGPTResponse(chatCompletion *openai.ChatCompletion) (string, error) {
	if chatCompletion == nil {
		return "", fmt.Errorf("nil chatCompletion")
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return chatCompletion.Choices[0].Message.Content, nil
}

func messageParams(systemPrompt string, history []backai.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))

	for _, msg := range history {
		switch msg.Role {
		case backai.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case backai.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	return messages
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(c.model),
	})
	if err != nil {
		return "", fmt.Errorf("ChatCompletion error: %w", err)
	}

	return extractGPTResponse(chatCompletion)
}

func (c *Client) Generate(ctx context.Context, history []backai.Message, retrieved string) (string, error) {
	util.Assert(c != nil, "Generate nil client")

	return c.complete(ctx, messageParams(data.PromptWithContext(retrieved), history))
}

func (c *Client) DescribeImage(ctx context.Context, image string) (string, error) {
	util.Assert(c != nil, "DescribeImage nil client")

	url, err := util.ImageDataURL(image)
	if err != nil {
		return "", err
	}

	return c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(data.DescribePrompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
		}),
	})
}
