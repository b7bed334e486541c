package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/ingest"
)

// ErrEmptyIndex is returned when the documents yield no text to index.
var ErrEmptyIndex = errors.New("no content to index")

// Indexer embeds chunked documents into a fresh in-memory vector collection.
type Indexer struct {
	Embed       chromem.EmbeddingFunc
	Chunker     ingest.Chunker
	Concurrency int
	Logger      *zap.Logger
}

// Index is a queryable vector collection over a fixed document set.
type Index struct {
	collection *chromem.Collection
}

// Hit is one retrieved chunk.
type Hit struct {
	ID     string
	Source string
	Text   string
	Score  float32
}

// Build indexes docs. Each call owns its own database, so an index never
// sees documents added after its creation.
func (ix *Indexer) Build(ctx context.Context, docs []ingest.Document) (*Index, error) {
	if ix.Embed == nil {
		return nil, fmt.Errorf("indexer: embedding function is required")
	}
	chunks := ix.Chunker.Split(docs)
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection("documents", map[string]string{"documents": strconv.Itoa(len(docs))}, ix.Embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	records := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, chromem.Document{
			ID:       c.ID,
			Metadata: c.Metadata,
			Content:  c.Text,
		})
	}

	concurrency := ix.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := col.AddDocuments(ctx, records, concurrency); err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}

	if ix.Logger != nil {
		ix.Logger.Debug("index built", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))
	}
	return &Index{collection: col}, nil
}

// Len reports the number of indexed chunks.
func (i *Index) Len() int {
	return i.collection.Count()
}

// Search returns up to k chunks ordered by similarity.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if n := i.collection.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := i.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:     r.ID,
			Source: r.Metadata["file_name"],
			Text:   r.Content,
			Score:  r.Similarity,
		})
	}
	return hits, nil
}
