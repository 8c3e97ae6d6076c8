package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const DefaultSearchURL = "https://api.duckduckgo.com/"

const maxRelatedTopics = 3

// WebSearch queries the DuckDuckGo Instant Answer API.
type WebSearch struct {
	baseURL string
	client  *http.Client
}

func NewWebSearch(baseURL string, client *http.Client) *WebSearch {
	if baseURL == "" {
		baseURL = DefaultSearchURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WebSearch{baseURL: baseURL, client: client}
}

func (*WebSearch) Name() string { return "web_search" }

func (*WebSearch) Description() string {
	return "Search the web for current information (args: q)"
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	Answer        string         `json:"Answer"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

// flatten related topics, which may be nested one level in groups
func flattenTopics(topics []relatedTopic, out []relatedTopic) []relatedTopic {
	for _, topic := range topics {
		if len(topic.Topics) > 0 {
			out = flattenTopics(topic.Topics, out)
			continue
		}
		if topic.Text != "" {
			out = append(out, topic)
		}
	}
	return out
}

func formatAnswer(query string, answer *instantAnswer) string {
	var sb strings.Builder

	if answer.Heading != "" {
		fmt.Fprintf(&sb, "%s\n", answer.Heading)
	}
	if answer.Answer != "" {
		fmt.Fprintf(&sb, "%s\n", answer.Answer)
	}
	if answer.AbstractText != "" {
		fmt.Fprintf(&sb, "%s\n", answer.AbstractText)
		if answer.AbstractURL != "" {
			fmt.Fprintf(&sb, "Source: %s\n", answer.AbstractURL)
		}
	}

	topics := flattenTopics(answer.RelatedTopics, nil)
	if len(topics) > maxRelatedTopics {
		topics = topics[:maxRelatedTopics]
	}
	for _, topic := range topics {
		fmt.Fprintf(&sb, "- %s (%s)\n", topic.Text, topic.FirstURL)
	}

	if sb.Len() == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (w *WebSearch) Call(ctx context.Context, args Args) (string, error) {
	query, ok := args.Lookup("q", "query")
	if !ok || query == "" {
		return "", fmt.Errorf("missing argument q")
	}

	zerolog.Ctx(ctx).Debug().Msgf("web search: %s", query)

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search request failed: %s", resp.Status)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	return formatAnswer(query, &answer), nil
}
