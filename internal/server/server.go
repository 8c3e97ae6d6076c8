package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/edurag/internal/anthropic"
	"github.com/vasilisp/edurag/internal/api"
	"github.com/vasilisp/edurag/internal/data"
	"github.com/vasilisp/edurag/internal/ollama"
	"github.com/vasilisp/edurag/internal/openai"
	"github.com/vasilisp/edurag/internal/sqlite"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/backai"
	"github.com/vasilisp/edurag/pkg/tools"
)

// chat bodies may carry base64 images
const maxBodyBytes = 20 << 20

type toolLister interface {
	List() []tools.Info
}

type ctx struct {
	config *config
	db     *sql.DB
	index  *backai.LazyIndex
	tools  toolLister
	backai *backai.Ctx
}

type backends struct {
	generator backai.Generator
	embedder  backai.Embedder
	// embedding space identifier for the cache
	embeddingModel string
}

func newBackends(config *config) (*backends, error) {
	var openaiClient *openai.Client
	if config.Provider == providerOpenAI || config.EmbeddingProvider == providerOpenAI {
		openaiClient = openai.NewClient(config.OpenAIToken, config.OpenAIBaseURL, config.Model, config.EmbeddingModel, config.EmbeddingDimensions)
	}

	var ollamaClient *ollama.Client
	if config.Provider == providerOllama || config.EmbeddingProvider == providerOllama {
		var err error
		ollamaClient, err = ollama.NewClient(config.OllamaURL, nil, config.Model, config.VisionModel, config.EmbeddingModel)
		if err != nil {
			return nil, err
		}
	}

	var b backends

	switch config.Provider {
	case providerOpenAI:
		b.generator = openaiClient
	case providerOllama:
		b.generator = ollamaClient
	case providerAnthropic:
		client, err := anthropic.NewClient(config.AnthropicBaseURL, config.AnthropicToken, config.Model)
		if err != nil {
			return nil, err
		}
		b.generator = client
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}

	model := config.EmbeddingModel
	switch config.EmbeddingProvider {
	case providerOpenAI:
		b.embedder = openaiClient
		if model == "" {
			model = openai.DefaultEmbeddingModel
		}
	case providerOllama:
		b.embedder = ollamaClient
		if model == "" {
			model = ollama.DefaultEmbeddingModel
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", config.EmbeddingProvider)
	}
	b.embeddingModel = fmt.Sprintf("%s/%s/%d", config.EmbeddingProvider, model, config.EmbeddingDimensions)

	return &b, nil
}

func newTools(config *config) (*tools.Registry, error) {
	learning, err := tools.NewLearningData(data.LearningData)
	if err != nil {
		return nil, err
	}

	return tools.NewRegistry(
		tools.NewWebSearch(config.SearchURL, nil),
		tools.NewUIComponent(),
		learning,
	)
}

func newCtx(config *config) (*ctx, error) {
	util.Assert(config != nil, "newCtx nil config")

	setupLogging(config)

	db, err := sqlite.Init(config.CachePath)
	if err != nil {
		return nil, err
	}

	b, err := newBackends(config)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry, err := newTools(config)
	if err != nil {
		db.Close()
		return nil, err
	}

	policy, err := backai.ParseToolFailurePolicy(config.ToolFailure)
	if err != nil {
		db.Close()
		return nil, err
	}

	ix := &indexer{db: db, embedder: b.embedder, model: b.embeddingModel, docsPath: config.DocsPath}
	index := backai.NewLazyIndex(ix.build)
	retriever := backai.NewIndexRetriever(index, backai.NewCachedEmbedder(b.embedder, backai.DefaultEmbeddingCacheBytes))

	return &ctx{
		config: config,
		db:     db,
		index:  index,
		tools:  registry,
		backai: backai.NewCtx(b.generator, retriever, registry, policy),
	}, nil
}

func (ctx *ctx) Close() {
	util.Assert(ctx != nil, "Close nil ctx")
	if ctx.db != nil {
		ctx.db.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func chatResponse(resp backai.Response) api.ChatResponse {
	out := api.ChatResponse{Message: resp.Message}

	if resp.ImageAnalyzed {
		imageAnalyzed := true
		out.ImageAnalyzed = &imageAnalyzed
		return out
	}

	contextUsed, toolsUsed := resp.ContextUsed, resp.ToolsUsed
	out.ContextUsed = &contextUsed
	out.ToolsUsed = &toolsUsed

	for _, outcome := range resp.Tools {
		if outcome.Err != nil {
			out.ToolErrors = append(out.ToolErrors, api.ToolError{
				Tool:  outcome.Directive.Name,
				Error: outcome.Err.Error(),
			})
		}
	}

	return out
}

func toolsResponse(ctx *ctx) api.ToolsResponse {
	infos := ctx.tools.List()

	available := make([]api.ToolInfo, len(infos))
	for i, info := range infos {
		available[i] = api.ToolInfo{Name: info.Name, Description: info.Description}
	}

	return api.ToolsResponse{AvailableTools: available, Message: api.ReadyMessage}
}

func postChat(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	req, err := backai.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rejected chat request")
		writeError(w, backai.Status(err), backai.PublicMessage(err))
		return
	}

	resp, err := ctx.backai.Query(r.Context(), req)
	if err != nil {
		writeError(w, backai.Status(err), backai.PublicMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse(resp))
}

func chatHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		postChat(ctx, w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toolsResponse(ctx))
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func handlerWith[T interface{}](t T, fn func(T, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(t, w, r)
	}
}

func newHandler(ctx *ctx) http.Handler {
	util.Assert(ctx != nil, "newHandler nil ctx")

	mux := http.NewServeMux()
	mux.HandleFunc(api.ChatPath, handlerWith(ctx, chatHandler))
	mux.HandleFunc(api.HealthPath, healthHandler)

	return chainMiddlewares(mux, withCORS, withLogging)
}

// Index builds the passage index once so that embeddings are cached before
// the server starts. An argument overrides the configured docs path.
func Index(args []string) {
	config, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if len(args) > 0 {
		config.DocsPath = args[0]
	}

	ctx, err := newCtx(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer ctx.Close()

	db, err := ctx.index.Get(log.Logger.WithContext(context.Background()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build index")
	}

	log.Info().Msg(db.Stats())
}

func Main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, err := newCtx(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer ctx.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", ctx.config.Port),
		Handler:           newHandler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-stop.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info().Msgf("Server starting on port %d...", ctx.config.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
