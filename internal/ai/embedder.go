package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 10
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultCallTimeout = 30 * time.Second
	// Batches within one document may run in parallel, but only a little:
	// the provider quota is shared with query-time embedding.
	batchParallelism = 2
)

// Embedder turns chunk texts into vectors through a provider Client. It
// batches inputs, retries transient provider failures with exponential
// backoff, and guarantees all-or-nothing semantics: either every input gets
// a vector, in input order, or the call fails.
type Embedder struct {
	client      Client
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
}

type EmbedderOption func(*Embedder)

func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d > 0 {
			e.baseDelay = d
		}
	}
}

func WithCallTimeout(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func NewEmbedder(client Client, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		client:      client,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Embedder) Dim() int { return e.client.Dim() }

// Embed vectorizes texts, preserving input order. A batch that exhausts its
// retries fails the whole call; callers must treat a failure as "nothing was
// embedded" even though other batches may have succeeded.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedOne is the query-time convenience wrapper.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		vecs, err := e.client.EmbedBatch(callCtx, batch)
		cancel()
		if err == nil {
			if len(vecs) != len(batch) {
				return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch))
			}
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < e.maxAttempts {
			delay := e.baseDelay << (attempt - 1)
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).
				Msg("embedding batch failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", e.maxAttempts, lastErr)
}
