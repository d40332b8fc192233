package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

type subscriber struct {
	id int
	fn func(State)
}

// Store is the queue state container. Every mutation is applied under one
// lock and published as a whole, so readers never see a half-updated item.
type Store struct {
	mu sync.Mutex

	items           []Item
	processing      bool
	paused          bool
	cancelRequested bool
	processed       int
	total           int
	version         uint64
	seq             uint64

	// changed is closed and replaced on every commit.
	changed chan struct{}
	subs    []subscriber
	nextSub int

	// notifyMu serializes subscriber delivery; delivered is the last
	// version handed out.
	notifyMu  sync.Mutex
	delivered uint64

	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		changed: make(chan struct{}),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// update runs fn under the lock and, when fn succeeds, commits: bumps the
// version, wakes waiters and notifies subscribers outside the lock.
func (s *Store) update(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	state := s.snapshotLocked()
	subs := make([]func(State), len(s.subs))
	for i, sub := range s.subs {
		subs[i] = sub.fn
	}
	s.mu.Unlock()

	s.publish(state, subs)
	return nil
}

func (s *Store) publish(state State, subs []func(State)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if state.Version <= s.delivered {
		return
	}
	s.delivered = state.Version
	for _, fn := range subs {
		fn(state)
	}
}

func (s *Store) snapshotLocked() State {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return State{
		Items:           items,
		Processing:      s.processing,
		Paused:          s.paused,
		CancelRequested: s.cancelRequested,
		ProcessedCount:  s.processed,
		TotalCount:      s.total,
		Version:         s.version,
	}
}

func (s *Store) indexLocked(sessionID uuid.UUID) int {
	for i := range s.items {
		if s.items[i].SessionID == sessionID {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy of the committed state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive committed states. Calls never overlap
// and arrive in increasing Version order; a state committed concurrently
// with a newer one may be skipped. fn runs on a mutating goroutine, must
// not block and must not mutate the store.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Item returns the queue entry for sessionID.
func (s *Store) Item(sessionID uuid.UUID) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(sessionID); i >= 0 {
		return s.items[i], true
	}
	return Item{}, false
}

// Enqueue appends a pending item. A session may only be queued once until
// its previous item has finished; a finished item is replaced.
func (s *Store) Enqueue(item Item) error {
	if item.SessionID == uuid.Nil || item.CdvDocID == "" || item.FicheDocID == "" {
		return common.NewAppError("QUEUE_ITEM_INVALID", errInvalidItem.Error(), common.ErrInvalidInput)
	}
	err := s.update(func() error {
		if i := s.indexLocked(item.SessionID); i >= 0 {
			if !s.items[i].Status.Finished() {
				return ErrAlreadyQueued
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.total--
		}
		item.Status = constants.QueuePending
		item.Error = ""
		item.CurrentStep = ""
		if item.EnqueuedAt.IsZero() {
			item.EnqueuedAt = s.now().UTC()
		}
		s.seq++
		item.seq = s.seq
		s.items = append(s.items, item)
		s.total++
		return nil
	})
	if err == nil {
		s.logger.Info("queue.item.enqueued", "session_id", item.SessionID, "product", item.Product, "client", item.Client)
	}
	return err
}

// Remove drops the item for sessionID unless it is being processed.
func (s *Store) Remove(sessionID uuid.UUID) error {
	return s.update(func() error {
		i := s.indexLocked(sessionID)
		if i < 0 {
			return ErrItemNotFound
		}
		if s.items[i].Status.Active() {
			return ErrItemActive
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		if s.total > 0 {
			s.total--
		}
		return nil
	})
}

// Pause stops new items from starting. The item in flight finishes.
func (s *Store) Pause() {
	_ = s.update(func() error {
		s.paused = true
		return nil
	})
}

func (s *Store) Resume() {
	_ = s.update(func() error {
		s.paused = false
		return nil
	})
}

// Cancel asks the running drain to stop at the next item boundary.
func (s *Store) Cancel() {
	_ = s.update(func() error {
		s.cancelRequested = true
		return nil
	})
}

// Clear empties the queue and resets counters. During a drain the active
// item is kept and the drain is asked to stop; the processing flag stays
// owned by the drain.
func (s *Store) Clear() {
	_ = s.update(func() error {
		kept := s.items[:0]
		for _, it := range s.items {
			if s.processing && it.Status.Active() {
				kept = append(kept, it)
			}
		}
		s.items = kept
		s.paused = false
		s.processed = 0
		s.total = len(kept)
		if s.processing {
			s.cancelRequested = true
		} else {
			s.cancelRequested = false
		}
		return nil
	})
}

// StartProcessing claims the single drain slot and clears pause and cancel.
func (s *Store) StartProcessing() error {
	return s.update(func() error {
		if s.processing {
			return ErrAlreadyProcessing
		}
		s.processing = true
		s.paused = false
		s.cancelRequested = false
		return nil
	})
}

// StopProcessing releases the drain slot.
func (s *Store) StopProcessing() {
	_ = s.update(func() error {
		s.processing = false
		return nil
	})
}

// PendingItems returns the pending items in insertion order.
func (s *Store) PendingItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.items {
		if it.Status == constants.QueuePending {
			out = append(out, it)
		}
	}
	return out
}

// Claim marks item as started if the same enqueue is still pending. A
// removed, restarted or re-enqueued item is not claimed.
func (s *Store) Claim(item Item) bool {
	claimed := false
	_ = s.update(func() error {
		i := s.indexLocked(item.SessionID)
		if i < 0 || s.items[i].seq != item.seq || s.items[i].Status != constants.QueuePending {
			return errNotClaimed
		}
		s.items[i].Status = constants.QueueOCRCdv
		s.items[i].CurrentStep = "Starting..."
		claimed = true
		return nil
	})
	return claimed
}

// UpdateItem sets status, error message and step label of one item.
func (s *Store) UpdateItem(sessionID uuid.UUID, status constants.QueueItemStatus, errMsg, step string) error {
	return s.update(func() error {
		i := s.indexLocked(sessionID)
		if i < 0 {
			return ErrItemNotFound
		}
		s.items[i].Status = status
		s.items[i].Error = errMsg
		s.items[i].CurrentStep = step
		return nil
	})
}

func (s *Store) IncrementProcessed() {
	_ = s.update(func() error {
		s.processed++
		return nil
	})
}

func (s *Store) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

func (s *Store) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// WaitWhilePaused blocks while the queue is paused. It wakes on every
// commit instead of polling. After maxPause the queue is resumed
// automatically. The result reports whether the drain should stop, either
// because cancel was requested or ctx is done.
func (s *Store) WaitWhilePaused(ctx context.Context, maxPause time.Duration) (cancelled bool) {
	var deadline <-chan time.Time
	if maxPause > 0 {
		t := time.NewTimer(maxPause)
		defer t.Stop()
		deadline = t.C
	}
	for {
		s.mu.Lock()
		paused, cancel, changed := s.paused, s.cancelRequested, s.changed
		s.mu.Unlock()

		if cancel {
			return true
		}
		if !paused {
			return false
		}
		select {
		case <-changed:
		case <-deadline:
			s.logger.Warn("queue.pause.force_resume", "max_pause", maxPause)
			s.Resume()
			return s.CancelRequested()
		case <-ctx.Done():
			return true
		}
	}
}
