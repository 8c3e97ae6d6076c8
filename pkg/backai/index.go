package backai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/search"
)

type BuildFunc func(ctx context.Context) (*search.DB, error)

// LazyIndex builds the retrieval index on first use. Concurrent first callers
// share one build; a failed build is not remembered and the next caller
// retries. The built index is read-only.
type LazyIndex struct {
	build BuildFunc
	db    atomic.Pointer[search.DB]
	mu    sync.Mutex
}

func NewLazyIndex(build BuildFunc) *LazyIndex {
	util.Assert(build != nil, "NewLazyIndex nil build")
	return &LazyIndex{build: build}
}

func (l *LazyIndex) Get(ctx context.Context) (*search.DB, error) {
	if db := l.db.Load(); db != nil {
		return db, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if db := l.db.Load(); db != nil {
		return db, nil
	}

	db, err := l.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	util.Assert(db != nil, "LazyIndex build returned nil")

	zerolog.Ctx(ctx).Info().Msg(db.Stats())

	l.db.Store(db)
	return db, nil
}

// IndexRetriever ranks passages of a LazyIndex against an embedded query.
type IndexRetriever struct {
	index    *LazyIndex
	embedder Embedder
}

func NewIndexRetriever(index *LazyIndex, embedder Embedder) *IndexRetriever {
	util.Assert(index != nil, "NewIndexRetriever nil index")
	util.Assert(embedder != nil, "NewIndexRetriever nil embedder")

	return &IndexRetriever{index: index, embedder: embedder}
}

func (r *IndexRetriever) Search(ctx context.Context, query string, limit int) ([]Passage, error) {
	db, err := r.index.Get(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize query: %w", err)
	}

	results, err := db.Search(vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	passages := make([]Passage, len(results))
	for i, result := range results {
		passages[i] = Passage{ID: result.ID, Text: result.Text, Distance: result.Distance}
	}

	return passages, nil
}
