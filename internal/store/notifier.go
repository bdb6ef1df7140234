package store

import (
	"context"
	"sync"

	"github.com/halotuses/ai-passport-app-sub000/internal/types"
)

// ChangeEvent is the process-wide progress-change broadcast payload. All is
// set for bulk operations that touch every chapter.
type ChangeEvent struct {
	ChapterNumericID int
	All              bool
}

// Notifier fans out change events and snapshot subscriptions for one store.
// It replaces the implicit notification-center broadcast of the original
// design with an explicit observer registry.
type Notifier struct {
	store *SQLiteStore

	mu      sync.Mutex
	closed  bool
	nextID  int
	subs    map[int]*Subscription
	eventCh map[int]chan ChangeEvent
}

func newNotifier(s *SQLiteStore) *Notifier {
	return &Notifier{
		store:   s,
		subs:    make(map[int]*Subscription),
		eventCh: make(map[int]chan ChangeEvent),
	}
}

// Subscription is a live snapshot stream. It delivers one full snapshot on
// creation and one after every write affecting its scope, coalescing when
// the consumer lags: only the latest snapshot is retained, since each
// delivery is complete. Cancel releases the subscription; a subscription
// that is never cancelled stays live forever.
type Subscription struct {
	id       int
	chapter  *int
	limit    int
	ch       chan []types.ProgressRecord
	notifier *Notifier
}

// Snapshots returns the snapshot delivery channel. The channel closes when
// the subscription is cancelled or the store closes.
func (s *Subscription) Snapshots() <-chan []types.ProgressRecord {
	return s.ch
}

// Cancel unsubscribes and closes the snapshot channel. Idempotent: map
// membership under the notifier lock decides who closes the channel, so a
// second Cancel, or a Cancel racing the store's close, is a no-op.
func (s *Subscription) Cancel() {
	s.notifier.mu.Lock()
	defer s.notifier.mu.Unlock()
	if _, ok := s.notifier.subs[s.id]; ok {
		delete(s.notifier.subs, s.id)
		close(s.ch)
	}
}

// matches reports whether an event affects this subscription's scope.
func (s *Subscription) matches(evt ChangeEvent) bool {
	if evt.All || s.chapter == nil {
		return true
	}
	return *s.chapter == evt.ChapterNumericID
}

// observe registers a subscription and delivers its initial snapshot.
func (n *Notifier) observe(chapter *int, limit int) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &Subscription{
		id:       n.nextID,
		chapter:  chapter,
		limit:    limit,
		ch:       make(chan []types.ProgressRecord, 1),
		notifier: n,
	}

	if n.closed {
		// Store already closed: deliver nothing, channel closed.
		close(sub.ch)
		return sub
	}

	n.subs[sub.id] = sub
	n.deliverLocked(sub)
	return sub
}

// publish recomputes and delivers snapshots for every matching subscription
// and broadcasts the raw event. Runs synchronously on the writer's
// goroutine; deliveries never block (coalescing channels).
func (n *Notifier) publish(evt ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	for _, sub := range n.subs {
		if sub.matches(evt) {
			n.deliverLocked(sub)
		}
	}

	for _, ch := range n.eventCh {
		select {
		case ch <- evt:
		default: // slow listener, drop rather than block the write path
		}
	}
}

// deliverLocked computes a subscription's current snapshot and replaces any
// undelivered one. Caller holds mu.
func (n *Notifier) deliverLocked(sub *Subscription) {
	snap := n.snapshot(sub)

	// We are the only sender and hold mu, so draining one stale snapshot
	// always frees the slot. Loop until the latest snapshot lands.
	for {
		select {
		case sub.ch <- snap:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// snapshot runs the subscription's scoped query.
func (n *Notifier) snapshot(sub *Subscription) []types.ProgressRecord {
	ctx := context.Background()
	if sub.chapter != nil {
		recs := n.store.QuestionProgresses(ctx, *sub.chapter)
		if sub.limit > 0 && len(recs) > sub.limit {
			recs = recs[:sub.limit]
		}
		return recs
	}
	return n.store.FetchHistory(ctx, sub.limit)
}

// events registers a raw change-event listener.
func (n *Notifier) events() (<-chan ChangeEvent, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan ChangeEvent, 16)

	if n.closed {
		close(ch)
		return ch, func() {}
	}

	n.eventCh[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if existing, ok := n.eventCh[id]; ok {
			delete(n.eventCh, id)
			close(existing)
		}
	}
	return ch, cancel
}

// closeAll tears down every subscription and listener at store close.
func (n *Notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true

	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.ch)
	}
	for id, ch := range n.eventCh {
		delete(n.eventCh, id)
		close(ch)
	}
}
