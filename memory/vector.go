package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemoslabs/mnemos/core"
)

// Collection names for the associative layer. Each node family lands in the
// collection matching its level of abstraction.
const (
	CollectionExperience = "experience"
	CollectionConcept    = "concept"
	CollectionInsight    = "insight"
)

// collectionForType maps a node type to its vector collection. Types outside
// the map are symbolic-only and never embedded.
func collectionForType(nodeType string) (string, bool) {
	switch nodeType {
	case core.NodeUserImpulse, core.NodeFinalResponse, core.NodeFact, core.NodeReport, core.NodeQuery:
		return CollectionExperience, true
	case core.NodeConcept:
		return CollectionConcept, true
	case core.NodeKnowledgeCrystal:
		return CollectionInsight, true
	default:
		return "", false
	}
}

// Hit is one vector search result: a node ID with its cosine similarity.
type Hit struct {
	ID    string
	Score float64
}

// VectorIndex is the associative layer: chromem-go collections over node
// contents, with a ristretto cache in front of the embedder so repeated
// texts (concept names, recurring queries) are embedded once.
type VectorIndex struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	embedder    Embedder
	cache       *ristretto.Cache
	logger      *log.Logger
}

// NewVectorIndex opens (or creates) the vector database at path. An empty
// path keeps everything in memory, which the tests rely on.
func NewVectorIndex(path string, embedder Embedder, logger *log.Logger) (*VectorIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20, // 32 MiB of cached embeddings
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	idx := &VectorIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		embedder:    embedder,
		cache:       cache,
		logger:      logger,
	}
	for _, name := range []string{CollectionExperience, CollectionConcept, CollectionInsight} {
		col, err := db.GetOrCreateCollection(name, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		idx.collections[name] = col
	}
	return idx, nil
}

// Add embeds content and stores it under the node's collection. Node types
// with no collection mapping and empty contents are silently skipped.
func (v *VectorIndex) Add(ctx context.Context, id, nodeType, content string) error {
	name, ok := collectionForType(nodeType)
	if !ok || strings.TrimSpace(content) == "" {
		return nil
	}
	embedding, err := v.embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed %s: %w", id, err)
	}
	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"type": nodeType},
	}
	if err := v.collections[name].AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

// Search embeds the query and returns up to k hits from the named collection,
// keeping only node types in allowed (nil allows everything). Search problems
// degrade to an empty result; recall must never fail an entire cycle.
func (v *VectorIndex) Search(ctx context.Context, collection, query string, k int, allowed map[string]bool) []Hit {
	col, ok := v.collections[collection]
	if !ok {
		return nil
	}
	n := col.Count()
	if n == 0 {
		return nil
	}
	if k > n {
		k = n
	}
	embedding, err := v.embed(ctx, query)
	if err != nil {
		v.logger.Warn("query embedding failed", "collection", collection, "error", err)
		return nil
	}
	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		v.logger.Warn("vector query failed", "collection", collection, "error", err)
		return nil
	}
	var hits []Hit
	for _, r := range results {
		if allowed != nil && !allowed[r.Metadata["type"]] {
			continue
		}
		hits = append(hits, Hit{ID: r.ID, Score: float64(r.Similarity)})
	}
	return hits
}

func (v *VectorIndex) embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := v.cache.Get(text); ok {
		if emb, ok := cached.([]float32); ok {
			return emb, nil
		}
	}
	emb, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	v.cache.Set(text, emb, int64(len(emb)*4))
	return emb, nil
}

// Close releases the cache. The chromem database persists on every write and
// needs no explicit shutdown.
func (v *VectorIndex) Close() {
	v.cache.Close()
}
