package search

import (
	"container/heap"
	"fmt"
	"sort"
	"time"

	"github.com/vasilisp/edurag/internal/util"
	"gonum.org/v1/gonum/mat"
)

type Result struct {
	ID       string
	Text     string
	Distance float64
}

// Compute cosine similarity
func cosineSimilarity(a, b []float64) float64 {
	va := mat.NewVecDense(len(a), a)
	vb := mat.NewVecDense(len(b), b)
	dotProduct := mat.Dot(va, vb)
	normA := mat.Norm(va, 2)
	normB := mat.Norm(vb, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (normA * normB)
}

func cosineDistance(a, b []float64) float64 {
	return 1 - cosineSimilarity(a, b)
}

type row struct {
	text   string
	vector []float64
	stamp  time.Time
}

// DB is a brute-force vector index. Add is not safe for concurrent use;
// once populated the DB may be searched concurrently.
type DB struct {
	rows       map[string]row
	dimensions int
}

func NewDB() *DB {
	return &DB{rows: make(map[string]row)}
}

// Add inserts or replaces a row. Older stamps never overwrite newer ones.
func (db *DB) Add(id string, text string, emb []float64, stamp time.Time) error {
	util.Assert(db.rows != nil, "Add nil rows")

	if len(emb) == 0 {
		return fmt.Errorf("empty embedding for %s", id)
	}
	if db.dimensions == 0 {
		db.dimensions = len(emb)
	} else if len(emb) != db.dimensions {
		return fmt.Errorf("embedding for %s has %d dimensions, index has %d", id, len(emb), db.dimensions)
	}

	if existing, ok := db.rows[id]; ok && existing.stamp.After(stamp) {
		return nil
	}

	db.rows[id] = row{text: text, vector: emb, stamp: stamp}
	return nil
}

// worse results sort first so the heap root is the one to evict
func worse(a, b Result) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

type resultHeap []Result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(Result))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

type bestResults struct {
	results *resultHeap
	maxSize int
}

func newBestResults(maxSize int) bestResults {
	results := resultHeap{}
	heap.Init(&results)

	return bestResults{
		results: &results,
		maxSize: maxSize,
	}
}

func (br bestResults) Add(result Result) {
	heap.Push(br.results, result)
	if br.results.Len() > br.maxSize {
		heap.Pop(br.results)
	}
}

func (br bestResults) Get() []Result {
	results := *br.results
	sort.Slice(results, func(i, j int) bool {
		return worse(results[j], results[i])
	})
	return results
}

// Search returns at most maxResults rows ordered by ascending cosine
// distance; equal distances are ordered by ID.
func (db *DB) Search(query []float64, maxResults int) ([]Result, error) {
	util.Assert(db.rows != nil, "Search nil rows")

	if maxResults <= 0 {
		return []Result{}, nil
	}
	if len(db.rows) > 0 && len(query) != db.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), db.dimensions)
	}

	bestResults := newBestResults(maxResults)

	// brute-force, calculate cosine similarity with all embeddings
	for id, row := range db.rows {
		bestResults.Add(Result{
			ID:       id,
			Text:     row.text,
			Distance: cosineDistance(query, row.vector),
		})
	}

	return bestResults.Get(), nil
}

func (db *DB) Len() int {
	return len(db.rows)
}

func (db *DB) Stats() string {
	util.Assert(db.rows != nil, "Stats nil rows")

	return fmt.Sprintf("DB stats: %d rows, %d dimensions", len(db.rows), db.dimensions)
}
