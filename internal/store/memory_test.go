package store

import (
	"context"
	"errors"
	"testing"

	"github.com/sjproject/dartsearch/pkg/models"
)

func chunk(id, docID string, vec []float32) models.Chunk {
	return models.Chunk{
		ID:         id,
		DocumentID: docID,
		Kind:       models.KindNarrative,
		Text:       "text for " + id,
		TokenCount: 3,
		Embedding:  vec,
	}
}

func TestMemorySearchScopedByDocument(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Replace(ctx, "doc-a", []models.Chunk{
		chunk("a1", "doc-a", []float32{1, 0}),
		chunk("a2", "doc-a", []float32{0, 1}),
	}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := m.Replace(ctx, "doc-b", []models.Chunk{
		chunk("b1", "doc-b", []float32{1, 0}),
	}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	res, err := m.Search(ctx, "doc-a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	for _, r := range res {
		if r.Chunk.DocumentID != "doc-a" {
			t.Errorf("result from wrong document: %s", r.Chunk.DocumentID)
		}
	}
	// Best cosine match first.
	if res[0].Chunk.ID != "a1" {
		t.Errorf("expected a1 first, got %s", res[0].Chunk.ID)
	}
	if res[0].Similarity <= res[1].Similarity {
		t.Errorf("results not sorted by similarity: %v, %v", res[0].Similarity, res[1].Similarity)
	}
}

func TestMemorySearchUnknownDocument(t *testing.T) {
	m := NewMemory()
	_, err := m.Search(context.Background(), "missing", []float32{1}, 5)
	if !errors.Is(err, ErrNotIndexed) {
		t.Errorf("expected ErrNotIndexed, got %v", err)
	}
}

func TestMemoryReplaceSupersedes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Replace(ctx, "doc", []models.Chunk{
		chunk("old-1", "doc", []float32{1}),
		chunk("old-2", "doc", []float32{1}),
	}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := m.Replace(ctx, "doc", []models.Chunk{
		chunk("new-1", "doc", []float32{1}),
	}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	chunks, err := m.Chunks(ctx, "doc")
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "new-1" {
		t.Errorf("old entries survived the swap: %+v", chunks)
	}
}

func TestMemoryReplaceCopiesInput(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	in := []models.Chunk{chunk("c1", "doc", []float32{1})}
	if err := m.Replace(ctx, "doc", in); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	in[0].Text = "mutated after replace"

	chunks, err := m.Chunks(ctx, "doc")
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if chunks[0].Text != "text for c1" {
		t.Error("stored chunks share memory with the caller's slice")
	}
}

func TestMemorySearchSkipsUnembeddedChunks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Replace(ctx, "doc", []models.Chunk{
		chunk("with-vec", "doc", []float32{1}),
		chunk("no-vec", "doc", nil),
	}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	res, err := m.Search(ctx, "doc", []float32{1}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res) != 1 || res[0].Chunk.ID != "with-vec" {
		t.Errorf("expected only the embedded chunk, got %+v", res)
	}
}

func TestMemoryDeleteAndStats(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Replace(ctx, "doc-a", []models.Chunk{chunk("a1", "doc-a", []float32{1})})
	_ = m.Replace(ctx, "doc-b", []models.Chunk{
		chunk("b1", "doc-b", []float32{1}),
		chunk("b2", "doc-b", []float32{1}),
	})

	st, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Documents != 2 || st.TotalChunks != 3 {
		t.Errorf("stats = %+v, want 2 documents / 3 chunks", st)
	}

	if err := m.Delete(ctx, "doc-a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Chunks(ctx, "doc-a"); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("expected ErrNotIndexed after delete, got %v", err)
	}

	st, _ = m.Stats(ctx)
	if st.Documents != 1 || st.TotalChunks != 2 {
		t.Errorf("stats after delete = %+v, want 1 document / 2 chunks", st)
	}
}

func TestMemorySearchTopN(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var chunks []models.Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunk(string(rune('a'+i)), "doc", []float32{float32(i), 1}))
	}
	_ = m.Replace(ctx, "doc", chunks)

	res, err := m.Search(ctx, "doc", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res) != 3 {
		t.Errorf("expected 3 results, got %d", len(res))
	}
}
