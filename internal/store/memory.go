package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sjproject/dartsearch/pkg/models"
)

// Memory is a process-local VectorIndex using brute-force cosine similarity.
// Replace swaps a document's slice in one assignment under the lock, which
// gives the same old-or-new visibility guarantee as the Postgres transaction.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]models.Chunk
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]models.Chunk)}
}

func (m *Memory) Replace(ctx context.Context, documentID string, chunks []models.Chunk) error {
	cp := make([]models.Chunk, len(chunks))
	copy(cp, chunks)
	now := time.Now()
	for i := range cp {
		if cp[i].CreatedAt.IsZero() {
			cp[i].CreatedAt = now
		}
	}
	m.mu.Lock()
	m.docs[documentID] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Search(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	chunks, ok := m.docs[documentID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotIndexed
	}
	if topN <= 0 {
		topN = 5
	}

	scored := make([]models.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		sim := cosine(vec, c.Embedding)
		scored = append(scored, models.ScoredChunk{Chunk: c, Score: sim, Similarity: sim})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if topN < len(scored) {
		scored = scored[:topN]
	}
	return scored, nil
}

func (m *Memory) Delete(ctx context.Context, documentID string) error {
	m.mu.Lock()
	delete(m.docs, documentID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Chunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks, ok := m.docs[documentID]
	if !ok {
		return nil, ErrNotIndexed
	}
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Documents: len(m.docs)}
	for _, chunks := range m.docs {
		st.TotalChunks += len(chunks)
	}
	return st, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
