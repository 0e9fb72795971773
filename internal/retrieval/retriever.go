package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/embeddings"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/vectordb"
)

// Snippet is one retrieved document fragment
type Snippet struct {
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// Retriever composes the embedding service and the vector store into
// text-in, snippets-out semantic search.
type Retriever struct {
	embedder *embeddings.Service
	store    *vectordb.Client
	logger   *zap.Logger
}

// NewRetriever creates a semantic retriever
func NewRetriever(embedder *embeddings.Service, store *vectordb.Client, logger *zap.Logger) *Retriever {
	return &Retriever{embedder: embedder, store: store, logger: logger}
}

// Search embeds the text and returns the top k snippets
func (r *Retriever) Search(ctx context.Context, text string, k int) ([]Snippet, error) {
	if r.store == nil || !r.store.Enabled() {
		return nil, fmt.Errorf("semantic retrieval unavailable")
	}

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := r.store.Search(ctx, "", vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	snippets := make([]Snippet, 0, len(points))
	for _, p := range points {
		content, _ := p.Payload["content"].(string)
		if content == "" {
			if text, ok := p.Payload["text"].(string); ok {
				content = text
			}
		}
		if content == "" {
			continue
		}
		snippets = append(snippets, Snippet{
			Content:  content,
			Metadata: p.Payload,
			Score:    p.Score,
		})
	}

	r.logger.Debug("Semantic search complete",
		zap.Int("requested", k),
		zap.Int("returned", len(snippets)),
	)
	return snippets, nil
}
