package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/sjproject/dartsearch/internal/store"
	"github.com/sjproject/dartsearch/pkg/models"
)

// MockEmbedder implements the QueryEmbedder interface for testing
type MockEmbedder struct {
	EmbedOneFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedOneFunc != nil {
		return m.EmbedOneFunc(ctx, text)
	}
	return []float32{0.1, 0.2}, nil
}

// MockIndex implements the store.VectorIndex interface for testing
type MockIndex struct {
	SearchFunc func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error)
}

func (m *MockIndex) Search(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, documentID, vec, topN)
	}
	return nil, nil
}

func (m *MockIndex) Replace(ctx context.Context, documentID string, chunks []models.Chunk) error {
	return nil
}
func (m *MockIndex) Delete(ctx context.Context, documentID string) error { return nil }
func (m *MockIndex) Chunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	return nil, nil
}
func (m *MockIndex) Stats(ctx context.Context) (store.Stats, error) { return store.Stats{}, nil }

func scoredChunk(id, text string, sim float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk:      models.Chunk{ID: id, Text: text},
		Score:      sim,
		Similarity: sim,
	}
}

func TestRetrieveExactTermOutranksSimilarity(t *testing.T) {
	// A chunk containing the literal account name must outrank a chunk with
	// higher cosine similarity but no keyword hit.
	index := &MockIndex{
		SearchFunc: func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
			if topN != 6 { // topK 2 x multiplier 3
				t.Errorf("expected 6 candidates requested, got %d", topN)
			}
			return []models.ScoredChunk{
				scoredChunk("vague", "전반적인 실적이 개선되었습니다", 0.9),
				scoredChunk("exact", "영업이익은 전년 대비 15% 증가했습니다", 0.8),
			}, nil
		},
	}
	r := New(&MockEmbedder{}, index, Weights{Vector: 0.7, Keyword: 0.3}, 3)

	res, err := r.Retrieve(context.Background(), "doc", "영업이익 추이", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Chunk.ID != "exact" {
		t.Errorf("expected the exact-term chunk first, got %s", res[0].Chunk.ID)
	}
	if res[0].Score <= res[1].Score {
		t.Errorf("combined scores not descending: %v, %v", res[0].Score, res[1].Score)
	}
	// Raw similarity is preserved alongside the combined score.
	if res[0].Similarity != 0.8 {
		t.Errorf("similarity overwritten: got %v, want 0.8", res[0].Similarity)
	}
}

func TestRetrieveTieKeepsSimilarityOrder(t *testing.T) {
	index := &MockIndex{
		SearchFunc: func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
			return []models.ScoredChunk{
				scoredChunk("first", "no keyword here", 0.5),
				scoredChunk("second", "none here either", 0.5),
			}, nil
		},
	}
	r := New(&MockEmbedder{}, index, Weights{Vector: 0.7, Keyword: 0.3}, 3)

	res, err := r.Retrieve(context.Background(), "doc", "zzzz question", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if res[0].Chunk.ID != "first" || res[1].Chunk.ID != "second" {
		t.Errorf("tied scores reordered: %s, %s", res[0].Chunk.ID, res[1].Chunk.ID)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	index := &MockIndex{
		SearchFunc: func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
			var out []models.ScoredChunk
			for i := 0; i < topN; i++ {
				out = append(out, scoredChunk(string(rune('a'+i)), "text", float64(topN-i)/float64(topN)))
			}
			return out, nil
		},
	}
	r := New(&MockEmbedder{}, index, Weights{Vector: 1}, 3)

	res, err := r.Retrieve(context.Background(), "doc", "question", 4)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(res) != 4 {
		t.Errorf("expected 4 results, got %d", len(res))
	}
}

func TestRetrieveNoContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		searchFunc func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error)
	}{
		{
			name:  "document not indexed",
			query: "question",
			searchFunc: func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
				return nil, store.ErrNotIndexed
			},
		},
		{
			name:  "no candidates",
			query: "question",
			searchFunc: func(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
				return nil, nil
			},
		},
		{
			name:  "empty query",
			query: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&MockEmbedder{}, &MockIndex{SearchFunc: tt.searchFunc}, Weights{Vector: 1}, 3)
			_, err := r.Retrieve(context.Background(), "doc", tt.query, 5)
			if !errors.Is(err, ErrNoContext) {
				t.Errorf("expected ErrNoContext, got %v", err)
			}
		})
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	emb := &MockEmbedder{
		EmbedOneFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("provider down")
		},
	}
	r := New(emb, &MockIndex{}, Weights{Vector: 1}, 3)

	_, err := r.Retrieve(context.Background(), "doc", "question", 5)
	if err == nil || errors.Is(err, ErrNoContext) {
		t.Errorf("embed failure should surface as a plain error, got %v", err)
	}
}

func TestKeywords(t *testing.T) {
	got := keywords("삼성전자의 영업이익, 영업이익 and Q3 margin?")
	want := map[string]bool{"삼성전자의": true, "영업이익": true, "and": true, "q3": true, "margin": true}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v, want keys %v", got, want)
	}
	for _, k := range got {
		if !want[k] {
			t.Errorf("unexpected keyword %q", k)
		}
	}
}
