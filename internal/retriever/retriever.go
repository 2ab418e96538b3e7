package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/sjproject/dartsearch/internal/store"
	"github.com/sjproject/dartsearch/pkg/models"
)

// ErrNoContext means the index holds nothing relevant for the document, so
// answering must not proceed to the language model.
var ErrNoContext = errors.New("no relevant content found")

// QueryEmbedder embeds a single query string. *ai.Embedder satisfies it.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Weights tunes the two rerank signals. They need not sum to one; the
// combined score is w_v*similarity + w_k*keyword_overlap.
type Weights struct {
	Vector  float64
	Keyword float64
}

// Retriever runs the two-stage search: cosine candidates from the vector
// index, then keyword-overlap reranking. Pure embedding similarity
// under-weights exact account names and figures, which decide most
// financial questions.
type Retriever struct {
	embedder   QueryEmbedder
	index      store.VectorIndex
	weights    Weights
	multiplier int // candidates fetched per requested result
}

func New(embedder QueryEmbedder, index store.VectorIndex, weights Weights, candidateMultiplier int) *Retriever {
	if candidateMultiplier < 1 {
		candidateMultiplier = 3
	}
	if weights.Vector == 0 && weights.Keyword == 0 {
		weights.Vector = 1
	}
	return &Retriever{embedder: embedder, index: index, weights: weights, multiplier: candidateMultiplier}
}

// Retrieve returns the topK chunks of one document ranked for the query.
// Each call re-ranks from current index state.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, topK int) ([]models.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNoContext)
	}
	if topK <= 0 {
		topK = 5
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := r.index.Search(ctx, documentID, vec, topK*r.multiplier)
	if err != nil {
		if errors.Is(err, store.ErrNotIndexed) {
			return nil, fmt.Errorf("%w: document %s", ErrNoContext, documentID)
		}
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: document %s", ErrNoContext, documentID)
	}

	terms := keywords(query)
	type ranked struct {
		models.ScoredChunk
		simRank int
	}
	rr := make([]ranked, len(candidates))
	for i, c := range candidates {
		overlap := keywordOverlap(terms, c.Chunk.Text)
		c.Score = r.weights.Vector*c.Similarity + r.weights.Keyword*overlap
		rr[i] = ranked{ScoredChunk: c, simRank: i}
	}

	// Descending combined score; ties keep the original similarity order.
	sort.SliceStable(rr, func(i, j int) bool {
		if rr[i].Score != rr[j].Score {
			return rr[i].Score > rr[j].Score
		}
		return rr[i].simRank < rr[j].simRank
	})

	if topK > len(rr) {
		topK = len(rr)
	}
	out := make([]models.ScoredChunk, topK)
	for i := range out {
		out[i] = rr[i].ScoredChunk
	}
	log.Debug().Str("document_id", documentID).Int("candidates", len(candidates)).
		Int("returned", len(out)).Msg("retrieval complete")
	return out, nil
}

// keywords extracts the query's significant terms: lowercased runs of
// letters and digits, at least two runes long, deduplicated. CJK compounds
// like account names stay whole.
func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// keywordOverlap is the fraction of query terms present in the chunk text.
func keywordOverlap(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
