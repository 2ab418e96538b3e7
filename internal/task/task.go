package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sjproject/dartsearch/pkg/models"
)

// stateOrder is the only legal forward path. FAILED is reachable from any
// non-terminal state; nothing else may be skipped or revisited.
var stateOrder = []models.TaskState{
	models.StatePending,
	models.StateDownloading,
	models.StateChunking,
	models.StateEmbedding,
	models.StateIndexing,
	models.StateComplete,
}

type task struct {
	mu sync.Mutex

	id         string
	documentID string
	corpName   string
	state      models.TaskState
	cause      models.ErrorCause
	err        error
	chunkCount int
	createdAt  time.Time
	updatedAt  time.Time
	history    []models.TaskState

	ctx    context.Context
	cancel context.CancelFunc
}

func newTask(id, documentID, corpName string) *task {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &task{
		id:         id,
		documentID: documentID,
		corpName:   corpName,
		state:      models.StatePending,
		createdAt:  now,
		updatedAt:  now,
		history:    []models.TaskState{models.StatePending},
		ctx:        ctx,
		cancel:     cancel,
	}
}

// advance moves to the next state in order. It refuses skips, backward
// moves, and transitions out of a terminal state.
func (t *task) advance(to models.TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return fmt.Errorf("task %s already %s", t.id, t.state)
	}
	for i, s := range stateOrder[:len(stateOrder)-1] {
		if s == t.state {
			if stateOrder[i+1] != to {
				return fmt.Errorf("illegal transition %s -> %s", t.state, to)
			}
			t.state = to
			t.updatedAt = time.Now()
			t.history = append(t.history, to)
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", t.state, to)
}

// fail moves to FAILED with a structured cause; no-op once terminal.
func (t *task) fail(cause models.ErrorCause, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLocked(cause, err)
}

func (t *task) failLocked(cause models.ErrorCause, err error) {
	if t.state.Terminal() {
		return
	}
	t.state = models.StateFailed
	t.cause = cause
	t.err = err
	t.updatedAt = time.Now()
	t.history = append(t.history, models.StateFailed)
	t.cancel()
}

// cancelIfEarly honors a cancellation request only before chunking begins.
// The check and the FAILED transition happen under one lock hold, so a task
// observed in DOWNLOADING cannot advance into CHUNKING before the cancel
// lands.
func (t *task) cancelIfEarly() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case models.StatePending, models.StateDownloading:
		t.failLocked(models.CauseCancelled, context.Canceled)
		return nil
	default:
		// Past DOWNLOADING the task runs to COMPLETE or FAILED so the index
		// is never left half-built.
		return fmt.Errorf("task %s is %s: %w", t.id, t.state, ErrNotCancellable)
	}
}

func (t *task) currentState() models.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *task) setChunkCount(n int) {
	t.mu.Lock()
	t.chunkCount = n
	t.mu.Unlock()
}

func (t *task) snapshot() models.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := models.Task{
		TaskID:     t.id,
		DocumentID: t.documentID,
		CorpName:   t.corpName,
		State:      t.state,
		Cause:      t.cause,
		ChunkCount: t.chunkCount,
		CreatedAt:  t.createdAt,
		UpdatedAt:  t.updatedAt,
	}
	if t.err != nil {
		snap.Error = t.err.Error()
	}
	return snap
}

func (t *task) stateHistory() []models.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.TaskState, len(t.history))
	copy(out, t.history)
	return out
}
