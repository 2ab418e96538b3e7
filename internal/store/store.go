package store

import (
	"context"
	"errors"

	"github.com/sjproject/dartsearch/pkg/models"
)

// ErrNotIndexed is returned by Search and Chunks for documents with no
// entries in the index.
var ErrNotIndexed = errors.New("document not indexed")

// Stats summarizes index contents for the stats endpoint.
type Stats struct {
	Documents   int `json:"documents"`
	TotalChunks int `json:"total_chunks"`
}

// VectorIndex persists chunk vectors and metadata, keyed by document.
//
// Replace is the only write path during indexing: it removes any previous
// entries for the document and installs the new set as one atomic operation,
// so concurrent readers observe either the old or the new index, never a mix.
type VectorIndex interface {
	Replace(ctx context.Context, documentID string, chunks []models.Chunk) error
	Search(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error)
	Delete(ctx context.Context, documentID string) error
	Chunks(ctx context.Context, documentID string) ([]models.Chunk, error)
	Stats(ctx context.Context) (Stats, error)
}
