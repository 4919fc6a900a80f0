// Package retrieval stores document chunks in an embedded chromem-go vector
// database and serves similarity queries whose scores feed the confidence
// validator and prompt assembly.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/chunk"
)

// ErrInvalidConfig indicates invalid retrieval configuration.
var ErrInvalidConfig = errors.New("invalid retrieval configuration")

// Config configures the embedded vector store.
type Config struct {
	// Path is the directory for persistent storage.
	Path string

	// Collection is the collection name (default: checkd_docs).
	Collection string

	// EmbedURL is the Ollama base URL for embeddings
	// (default: http://127.0.0.1:11434/api).
	EmbedURL string

	// EmbedModel is the embedding model (default: nomic-embed-text).
	EmbedModel string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "checkd_docs"
	}
	if c.EmbedURL == "" {
		c.EmbedURL = "http://127.0.0.1:11434/api"
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "nomic-embed-text"
	}
}

// Result is one retrieved chunk with its similarity score.
type Result struct {
	Text   string
	Source string
	Index  int
	Score  float64
}

// Store wraps a chromem-go collection.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// NewStore opens (or creates) the persistent vector store.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	embed := chromem.NewEmbeddingFuncOllama(cfg.EmbedModel, cfg.EmbedURL)
	col, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}

	return &Store{db: db, collection: col, logger: logger}, nil
}

// Ingest adds chunks to the collection. Document IDs are derived from
// source and index, so re-ingesting a document overwrites its chunks.
func (s *Store) Ingest(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("%s#%d", c.Source, c.Index),
			Content: c.Text,
			Metadata: map[string]string{
				"source":      c.Source,
				"chunk_index": strconv.Itoa(c.Index),
				"score":       strconv.FormatFloat(c.Score, 'f', 2, 64),
			},
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	s.logger.Info("ingested chunks",
		zap.Int("count", len(docs)),
		zap.String("source", chunks[0].Source))
	return nil
}

// Query returns the top-k chunks most similar to the query text.
func (s *Store) Query(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 5
	}
	if count := s.collection.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	hits, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		idx, _ := strconv.Atoi(h.Metadata["chunk_index"])
		out = append(out, Result{
			Text:   h.Content,
			Source: h.Metadata["source"],
			Index:  idx,
			Score:  float64(h.Similarity),
		})
	}
	return out, nil
}

// Scores extracts the similarity scores from results, preserving order.
func Scores(results []Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}
