package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/edurag/pkg/backai"
)

const (
	providerOpenAI    = "openai"
	providerOllama    = "ollama"
	providerAnthropic = "anthropic"
)

// config is read from a JSON file first; environment variables override it.
type config struct {
	Provider            string `json:"provider,omitempty" env:"EDURAG_PROVIDER"`
	EmbeddingProvider   string `json:"embeddingProvider,omitempty" env:"EDURAG_EMBEDDING_PROVIDER"`
	OpenAIToken         string `json:"openaiToken,omitempty" env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `json:"openaiBaseURL,omitempty" env:"OPENAI_BASE_URL"`
	AnthropicToken      string `json:"anthropicToken,omitempty" env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL    string `json:"anthropicBaseURL,omitempty" env:"ANTHROPIC_BASE_URL"`
	OllamaURL           string `json:"ollamaURL,omitempty" env:"EDURAG_OLLAMA_URL"`
	Model               string `json:"model,omitempty" env:"EDURAG_MODEL"`
	VisionModel         string `json:"visionModel,omitempty" env:"EDURAG_VISION_MODEL"`
	EmbeddingModel      string `json:"embeddingModel,omitempty" env:"EDURAG_EMBEDDING_MODEL"`
	EmbeddingDimensions int    `json:"embeddingDimensions,omitempty" env:"EDURAG_EMBEDDING_DIMENSIONS"`
	DocsPath            string `json:"docsPath,omitempty" env:"EDURAG_DOCS_PATH"`
	CachePath           string `json:"cachePath,omitempty" env:"EDURAG_CACHE_PATH"`
	SearchURL           string `json:"searchURL,omitempty" env:"EDURAG_SEARCH_URL"`
	ToolFailure         string `json:"toolFailure,omitempty" env:"EDURAG_TOOL_FAILURE"`
	LogLevel            string `json:"logLevel,omitempty" env:"EDURAG_LOG_LEVEL"`
	LogFormat           string `json:"logFormat,omitempty" env:"EDURAG_LOG_FORMAT"`
	Port                int    `json:"port,omitempty" env:"PORT"`
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

func configPath() (string, error) {
	if path := os.Getenv("EDURAG_CONFIG"); path != "" {
		return expandHome(path)
	}
	return expandHome("~/.config/edurag.json")
}

// readConfig parses the config file. A missing file yields an empty config.
func readConfig(path string) (*config, error) {
	var config config

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

func (c *config) setDefaults() error {
	if c.Provider == "" {
		c.Provider = providerOpenAI
	}
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = c.Provider
		if c.Provider == providerAnthropic {
			c.EmbeddingProvider = providerOpenAI
		}
	}
	if c.CachePath == "" {
		c.CachePath = "~/.cache/edurag/embeddings.sqlite"
	}
	if c.ToolFailure == "" {
		c.ToolFailure = backai.ToolFailureInline.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}

	var err error
	if c.CachePath, err = expandHome(c.CachePath); err != nil {
		return err
	}
	if c.DocsPath, err = expandHome(c.DocsPath); err != nil {
		return err
	}
	return nil
}

func (c *config) validate() error {
	switch c.Provider {
	case providerOpenAI, providerOllama, providerAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.EmbeddingProvider {
	case providerOpenAI, providerOllama:
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.EmbeddingProvider)
	}

	if (c.Provider == providerOpenAI || c.EmbeddingProvider == providerOpenAI) && c.OpenAIToken == "" {
		return fmt.Errorf("openaiToken is required for the OpenAI provider")
	}
	if c.Provider == providerAnthropic && c.AnthropicToken == "" {
		return fmt.Errorf("anthropicToken is required for the Anthropic provider")
	}

	if c.EmbeddingDimensions < 0 {
		return fmt.Errorf("embeddingDimensions must not be negative")
	}
	if c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if _, err := backai.ParseToolFailurePolicy(c.ToolFailure); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}

	return nil
}

func loadConfig() (*config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	config, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.setDefaults(); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func setupLogging(config *config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC822})
	}
}
