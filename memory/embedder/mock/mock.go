package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic embeddings from a text hash. Identical
// texts always embed identically, which makes vector search testable without
// a model.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with all-MiniLM-L6-v2 dimensions.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// Embed derives a unit vector from the FNV hash of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, e.dimensions)
	for i := range embedding {
		// LCG over the hash keeps every component deterministic.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
