package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sjproject/dartsearch/internal/chunker"
	"github.com/sjproject/dartsearch/internal/normalize"
	"github.com/sjproject/dartsearch/internal/retriever"
	"github.com/sjproject/dartsearch/internal/source"
	"github.com/sjproject/dartsearch/internal/store"
	"github.com/sjproject/dartsearch/pkg/models"
)

var (
	// ErrNoTask is returned for unknown task IDs.
	ErrNoTask = errors.New("no such task")
	// ErrNotCancellable is returned when a task has progressed past the
	// point where cancellation is honored, or is already terminal.
	ErrNotCancellable = errors.New("task not cancellable")
	// ErrSummaryNotReady is returned while the document summary has not been
	// generated yet.
	ErrSummaryNotReady = errors.New("summary not ready")
)

// Embedder is the slice of ai.Embedder the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces the one-shot document digest after indexing. It is
// optional; without one, summary requests report ErrSummaryNotReady forever.
type Summarizer interface {
	Summarize(ctx context.Context, documentID, corpName string) (models.Summary, error)
}

// Manager owns the indexing job lifecycle: one goroutine per task walking
// PENDING through COMPLETE, a registry for status queries, and a semaphore
// bounding how many documents chunk and embed at once. Downloading is not
// capped; it is I/O-bound on the gateway, not on this process.
type Manager struct {
	src        source.DisclosureSource
	norm       normalize.Normalizer
	chunker    *chunker.Chunker
	embedder   Embedder
	index      store.VectorIndex
	summarizer Summarizer

	sem            chan struct{}
	summaryTimeout time.Duration

	mu        sync.Mutex
	tasks     map[string]*task
	active    map[string]string // documentID -> live task ID
	summaries map[string]summaryEntry
}

type summaryEntry struct {
	summary models.Summary
	cause   models.ErrorCause
	err     error
}

// Config carries the knobs the manager takes from the configuration layer.
type Config struct {
	MaxConcurrent  int
	SummaryTimeout time.Duration
}

func NewManager(src source.DisclosureSource, norm normalize.Normalizer, ch *chunker.Chunker,
	embedder Embedder, index store.VectorIndex, summarizer Summarizer, cfg Config) *Manager {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 5
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 60 * time.Second
	}
	return &Manager{
		src:            src,
		norm:           norm,
		chunker:        ch,
		embedder:       embedder,
		index:          index,
		summarizer:     summarizer,
		sem:            make(chan struct{}, cfg.MaxConcurrent),
		summaryTimeout: cfg.SummaryTimeout,
		tasks:          make(map[string]*task),
		active:         make(map[string]string),
		summaries:      make(map[string]summaryEntry),
	}
}

// Create starts an indexing task for the document and returns its ID. A
// second Create for a document whose task is still live returns the existing
// task instead of racing two pipelines over the same index entries. Once that
// task is terminal, Create starts a fresh run whose Replace atomically
// supersedes the old entries.
func (m *Manager) Create(documentID, corpName string) (string, error) {
	if documentID == "" {
		return "", errors.New("empty document id")
	}

	m.mu.Lock()
	if id, ok := m.active[documentID]; ok {
		if t := m.tasks[id]; t != nil && !t.currentState().Terminal() {
			m.mu.Unlock()
			log.Debug().Str("document_id", documentID).Str("task_id", id).
				Msg("joining live indexing task")
			return id, nil
		}
	}
	// An existing summary stays readable through the re-index; summarize
	// overwrites it only once the new run has produced a replacement.
	t := newTask(uuid.NewString(), documentID, corpName)
	m.tasks[t.id] = t
	m.active[documentID] = t.id
	m.mu.Unlock()

	log.Info().Str("document_id", documentID).Str("task_id", t.id).Msg("indexing task created")
	go m.run(t)
	return t.id, nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(taskID string) (models.Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %s", ErrNoTask, taskID)
	}
	return t.snapshot(), nil
}

// Cancel aborts a task that has not started chunking. Later stages run to
// completion so the atomic index swap is never interrupted halfway.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTask, taskID)
	}
	return t.cancelIfEarly()
}

// Summary returns the document digest once the post-indexing summarizer has
// produced it. A summary that timed out or failed reports its cause without
// affecting the COMPLETE state of the indexing task itself.
func (m *Manager) Summary(documentID string) (models.Summary, error) {
	m.mu.Lock()
	entry, ok := m.summaries[documentID]
	m.mu.Unlock()
	if !ok {
		return models.Summary{}, fmt.Errorf("%w: document %s", ErrSummaryNotReady, documentID)
	}
	if entry.err != nil {
		return models.Summary{}, fmt.Errorf("summary failed (%s): %w", entry.cause, entry.err)
	}
	return entry.summary, nil
}

// Tasks returns snapshots of every known task, newest first not guaranteed.
func (m *Manager) Tasks() []models.Task {
	m.mu.Lock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	m.mu.Unlock()
	return out
}

// run drives one task through the pipeline. Every failure maps to exactly
// one structured cause, and nothing reaches the index before the single
// Replace call, so a FAILED task leaves no partial entries behind.
func (m *Manager) run(t *task) {
	logger := log.With().Str("task_id", t.id).Str("document_id", t.documentID).Logger()
	defer t.cancel()

	defer func() {
		// Failed runs release the document slot so a retry can start clean.
		if t.currentState() == models.StateFailed {
			m.mu.Lock()
			if m.active[t.documentID] == t.id {
				delete(m.active, t.documentID)
			}
			m.mu.Unlock()
		}
	}()

	if err := t.advance(models.StateDownloading); err != nil {
		return // cancelled before it began
	}
	raw, err := m.src.Fetch(t.ctx, t.documentID)
	if err != nil {
		if t.ctx.Err() != nil {
			return // cancelIfEarly already recorded CANCELLED
		}
		logger.Error().Err(err).Msg("source fetch failed")
		t.fail(models.CauseSourceUnavailable, err)
		return
	}

	doc, err := m.norm.Normalize(t.documentID, t.corpName, raw)
	if err != nil {
		if t.ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("normalization failed")
		t.fail(models.CauseChunkingError, err)
		return
	}

	// The cap applies from CHUNKING through EMBEDDING; wait before entering.
	select {
	case m.sem <- struct{}{}:
	case <-t.ctx.Done():
		return
	}
	defer func() { <-m.sem }()

	if err := t.advance(models.StateChunking); err != nil {
		return // cancelled while queued
	}
	chunks := m.chunker.Chunk(doc)
	if len(chunks) == 0 {
		t.fail(models.CauseChunkingError, errors.New("document produced no chunks"))
		return
	}
	t.setChunkCount(len(chunks))

	if err := t.advance(models.StateEmbedding); err != nil {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := m.embedder.Embed(t.ctx, texts)
	if err != nil {
		logger.Error().Err(err).Msg("embedding failed")
		t.fail(models.CauseEmbeddingError, err)
		return
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}

	if err := t.advance(models.StateIndexing); err != nil {
		return
	}
	if err := m.index.Replace(t.ctx, t.documentID, chunks); err != nil {
		logger.Error().Err(err).Msg("index replace failed")
		t.fail(models.CauseIndexError, err)
		return
	}

	if err := t.advance(models.StateComplete); err != nil {
		return
	}
	logger.Info().Int("chunks", len(chunks)).Msg("indexing complete")

	// The digest runs outside the chunking cap: the index is already
	// consistent and queryable at this point.
	go m.summarize(t, logger)
}

// summarize runs the post-indexing digest on a bounded budget. Failure or
// timeout is recorded against the document, never against the task: the
// index itself is already consistent.
func (m *Manager) summarize(t *task, logger zerolog.Logger) {
	if m.summarizer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.summaryTimeout)
	defer cancel()

	summary, err := m.summarizer.Summarize(ctx, t.documentID, t.corpName)
	entry := summaryEntry{summary: summary}
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			entry.cause = models.CauseTimeout
		case errors.Is(err, retriever.ErrNoContext):
			entry.cause = models.CauseNoContext
		default:
			entry.cause = models.CauseSummaryError
		}
		entry.err = err
		logger.Warn().Err(err).Str("cause", string(entry.cause)).Msg("document summary failed")
	}
	m.mu.Lock()
	m.summaries[t.documentID] = entry
	m.mu.Unlock()
}
