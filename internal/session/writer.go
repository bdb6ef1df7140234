// Package session decouples answer persistence from the caller: each
// recorded answer is written by a background goroutine so the answering
// surface never blocks on disk I/O. Flush is the single blocking
// durability point, used when a quiz session ends.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// ProgressWriter is the slice of the store the writer needs.
type ProgressWriter interface {
	UpsertStatus(ctx context.Context, upd types.StatusUpdate) error
}

// Writer queues answer writes to a background goroutine and tracks every
// answer of the current session so Flush can re-persist them synchronously.
type Writer struct {
	store ProgressWriter
	queue chan types.StatusUpdate

	inflight sync.WaitGroup

	mu      sync.Mutex
	pending []types.StatusUpdate
}

// NewWriter creates a writer with the given queue capacity.
func NewWriter(store ProgressWriter, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Writer{
		store: store,
		queue: make(chan types.StatusUpdate, queueSize),
	}
}

// Run consumes the queue until the context is cancelled. Write failures are
// logged and abandoned; Flush re-persists the session's answers anyway.
func (w *Writer) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "session",
		"worker", "answer-writer",
		"action", "worker_started",
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "session",
				"worker", "answer-writer",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case upd := <-w.queue:
			if err := w.store.UpsertStatus(ctx, upd); err != nil {
				slog.Error("background answer write failed",
					"component", "session",
					"worker", "answer-writer",
					"action", "write_failed",
					"quiz_id", upd.QuizID,
					"error", err,
				)
			}
			w.inflight.Done()
		}
	}
}

// Record submits one answer for asynchronous persistence. Never blocks: if
// the queue is full the write is skipped here and covered by the next
// Flush, which re-persists every session answer regardless.
func (w *Writer) Record(upd types.StatusUpdate) {
	w.mu.Lock()
	w.pending = append(w.pending, upd)
	w.mu.Unlock()

	w.inflight.Add(1)
	select {
	case w.queue <- upd:
	default:
		w.inflight.Done()
		slog.Debug("answer queue full, deferring to flush",
			"component", "session",
			"worker", "answer-writer",
			"action", "write_deferred",
			"quiz_id", upd.QuizID,
		)
	}
}

// Flush empties the answer queue, waits out any write the background
// worker still has in hand, then synchronously re-persists every answer
// recorded since the last flush. It does not depend on the worker being
// alive: a flush after the worker has stopped still persists the answers
// the worker never consumed. Only after a clean flush are the session's
// results guaranteed durable.
func (w *Writer) Flush(ctx context.Context) error {
	// Every queued entry is also in pending and gets persisted below, so
	// consuming it here only releases its inflight count.
drain:
	for {
		select {
		case <-w.queue:
			w.inflight.Done()
		default:
			break drain
		}
	}

	drained := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	for i, upd := range pending {
		if err := w.store.UpsertStatus(ctx, upd); err != nil {
			// Put the unflushed tail back so a retried flush covers it.
			w.mu.Lock()
			w.pending = append(append([]types.StatusUpdate{}, pending[i:]...), w.pending...)
			w.mu.Unlock()
			return fmt.Errorf("flush answer %s: %w", upd.QuizID, err)
		}
	}
	return nil
}
