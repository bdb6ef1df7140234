package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// recordingStore captures upserts and can be told to fail.
type recordingStore struct {
	mu       sync.Mutex
	upserts  []types.StatusUpdate
	failNext int
}

func (r *recordingStore) UpsertStatus(ctx context.Context, upd types.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return errors.New("disk unavailable")
	}
	r.upserts = append(r.upserts, upd)
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserts)
}

func update(quizID string) types.StatusUpdate {
	return types.StatusUpdate{
		QuizID:    quizID,
		Status:    types.StatusCorrect,
		UpdatedAt: baseTime,
	}
}

func TestRecord_PersistsInBackground(t *testing.T) {
	rs := &recordingStore{}
	w := NewWriter(rs, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Record(update("unit1-chapter1#0"))
	w.Record(update("unit1-chapter1#1"))

	deadline := time.Now().Add(time.Second)
	for rs.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("background writes not persisted, count = %d", rs.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlush_RepersistsSession(t *testing.T) {
	rs := &recordingStore{}
	w := NewWriter(rs, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Record(update("unit1-chapter1#0"))
	w.Record(update("unit1-chapter1#1"))

	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Each answer lands twice: once from the queue, once from the flush.
	if got := rs.count(); got != 4 {
		t.Errorf("upserts = %d, want 4", got)
	}

	// A second flush has nothing pending.
	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := rs.count(); got != 4 {
		t.Errorf("upserts after empty flush = %d, want 4", got)
	}
}

func TestRecord_QueueFullDefersToFlush(t *testing.T) {
	rs := &recordingStore{}
	w := NewWriter(rs, 1)

	// No Run loop: the queue fills after one entry, the rest are skipped.
	w.Record(update("unit1-chapter1#0"))
	w.Record(update("unit1-chapter1#1"))
	w.Record(update("unit1-chapter1#2"))

	// Drain the single queued entry so Flush's wait completes.
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	// One from the queue plus all three from the flush.
	if got := rs.count(); got != 4 {
		t.Errorf("upserts = %d, want 4", got)
	}

	seen := make(map[string]bool)
	rs.mu.Lock()
	for _, upd := range rs.upserts {
		seen[upd.QuizID] = true
	}
	rs.mu.Unlock()
	for _, id := range []string{"unit1-chapter1#0", "unit1-chapter1#1", "unit1-chapter1#2"} {
		if !seen[id] {
			t.Errorf("answer %s never persisted", id)
		}
	}
}

func TestFlush_FailureKeepsTail(t *testing.T) {
	rs := &recordingStore{}
	w := NewWriter(rs, 1)

	// Skip the queue entirely so only the flush path writes.
	w.Record(update("unit1-chapter1#0"))
	w.Record(update("unit1-chapter1#1"))
	w.Record(update("unit1-chapter1#2"))

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	// Wait for the single queued write to land, then fail the first
	// flush write.
	deadline := time.Now().Add(time.Second)
	for rs.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("queued write never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	rs.mu.Lock()
	rs.failNext = 1
	rs.mu.Unlock()

	if err := w.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}

	// The failed answer and the tail stay pending; a retry covers them.
	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]int)
	rs.mu.Lock()
	for _, upd := range rs.upserts {
		seen[upd.QuizID]++
	}
	rs.mu.Unlock()
	for _, id := range []string{"unit1-chapter1#0", "unit1-chapter1#1", "unit1-chapter1#2"} {
		if seen[id] == 0 {
			t.Errorf("answer %s lost after failed flush", id)
		}
	}
}

func TestFlush_PersistsWithoutWorker(t *testing.T) {
	rs := &recordingStore{}
	w := NewWriter(rs, 4)

	// The worker has already stopped, so the queued answers have no
	// consumer. Flush must drain them itself and persist from pending.
	w.Record(update("unit1-chapter1#0"))
	w.Record(update("unit1-chapter1#1"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush with stopped worker: %v", err)
	}
	if got := rs.count(); got != 2 {
		t.Errorf("persisted = %d, want 2", got)
	}
}

// blockingStore stalls every write until released, pinning the background
// worker mid-upsert.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) UpsertStatus(ctx context.Context, upd types.StatusUpdate) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func TestFlush_ContextCancelled(t *testing.T) {
	bs := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	w := NewWriter(bs, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Record(update("unit1-chapter1#0"))
	// The worker is now stuck inside the store write, so inflight cannot
	// drain and the flush has to give up with the context.
	<-bs.entered

	fctx, fcancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer fcancel()
	if err := w.Flush(fctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	close(bs.release)
}
