package backai

import (
	"context"
	"fmt"

	"github.com/golang/groupcache"
	"github.com/google/uuid"
	"github.com/vasilisp/edurag/internal/util"
	"github.com/vasilisp/edurag/pkg/embedding"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

const DefaultEmbeddingCacheBytes = 8 << 20

// CachedEmbedder memoizes query embeddings in a groupcache group, so repeated
// questions skip the embedding backend. Concurrent misses on the same text are
// coalesced by groupcache.
type CachedEmbedder struct {
	group *groupcache.Group
}

func NewCachedEmbedder(embedder Embedder, cacheBytes int64) *CachedEmbedder {
	util.Assert(embedder != nil, "NewCachedEmbedder nil embedder")
	util.Assert(cacheBytes > 0, "NewCachedEmbedder non-positive cacheBytes")

	// group names are process-global
	name := "embeddings-" + uuid.NewString()

	group := groupcache.NewGroup(name, cacheBytes, groupcache.GetterFunc(
		func(ctx context.Context, key string, dest groupcache.Sink) error {
			vector, err := embedder.Embed(ctx, key)
			if err != nil {
				return err
			}
			return dest.SetBytes(embedding.Encode(vector))
		}))

	return &CachedEmbedder{group: group}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	util.Assert(c != nil, "Embed nil CachedEmbedder")

	var buf []byte
	if err := c.group.Get(ctx, text, groupcache.AllocatingByteSliceSink(&buf)); err != nil {
		return nil, err
	}

	vector, err := embedding.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("corrupt cached embedding: %w", err)
	}

	return vector, nil
}
