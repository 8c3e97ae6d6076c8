package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/vasilisp/edurag/internal/corpus"
	"github.com/vasilisp/edurag/internal/data"
	"github.com/vasilisp/edurag/internal/sqlite"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/backai"
	"github.com/vasilisp/edurag/pkg/search"
)

// indexer builds the passage index, reusing embeddings cached in SQLite.
type indexer struct {
	db       *sql.DB
	embedder backai.Embedder
	// identifies the embedding space in cache keys
	model    string
	docsPath string
}

func (ix *indexer) passages() ([]corpus.Passage, error) {
	passages, err := corpus.Load(data.Corpus())
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in corpus: %w", err)
	}

	if ix.docsPath == "" {
		return passages, nil
	}

	docs, err := corpus.Load(os.DirFS(ix.docsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load documents from %s: %w", ix.docsPath, err)
	}
	for i := range docs {
		docs[i].ID = "docs/" + docs[i].ID
	}

	return append(passages, docs...), nil
}

func (ix *indexer) vector(ctx context.Context, passage *corpus.Passage) ([]float64, bool, error) {
	key := sqlite.Key(ix.model, passage.Text)

	vector, ok, err := sqlite.Lookup(ctx, ix.db, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return vector, true, nil
	}

	vector, err = ix.embedder.Embed(ctx, passage.Text)
	if err != nil {
		return nil, false, fmt.Errorf("failed to vectorize passage %s: %w", passage.ID, err)
	}

	if err := sqlite.Insert(ctx, ix.db, key, passage.ID, vector, time.Now().Unix()); err != nil {
		return nil, false, err
	}

	return vector, false, nil
}

func (ix *indexer) build(ctx context.Context) (*search.DB, error) {
	util.Assert(ix != nil, "build nil indexer")

	// other requests may be waiting on this build
	ctx = context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)

	passages, err := ix.passages()
	if err != nil {
		return nil, err
	}

	db := search.NewDB()
	stamp := time.Now()
	cached := 0

	for i := range passages {
		passage := &passages[i]

		vector, hit, err := ix.vector(ctx, passage)
		if err != nil {
			return nil, err
		}
		if hit {
			cached++
		}

		if err := db.Add(passage.ID, passage.Text, vector, stamp); err != nil {
			return nil, fmt.Errorf("failed to index passage %s: %w", passage.ID, err)
		}
	}

	stored, err := sqlite.Count(ix.db)
	if err != nil {
		return nil, err
	}

	logger.Info().Msgf("indexed %d passages (%d from cache, %d embeddings stored)", len(passages), cached, stored)
	return db, nil
}
