package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

func newItem() Item {
	return Item{SessionID: uuid.New(), Product: "TOMATE", Client: "DUPONT", CdvDocID: uuid.NewString(), FicheDocID: uuid.NewString()}
}

func TestStore_EnqueueFIFOAndCounts(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return at }))
	a, b, c := newItem(), newItem(), newItem()
	for _, it := range []Item{a, b, c} {
		require.NoError(t, s.Enqueue(it))
	}

	pending := s.PendingItems()
	require.Len(t, pending, 3)
	assert.Equal(t, a.SessionID, pending[0].SessionID)
	assert.Equal(t, c.SessionID, pending[2].SessionID)
	assert.Equal(t, constants.QueuePending, pending[1].Status)
	assert.Equal(t, at, pending[0].EnqueuedAt)

	st := s.Snapshot()
	assert.Equal(t, 3, st.TotalCount)
	assert.Equal(t, 3, st.Counts()[constants.QueuePending])
}

func TestStore_EnqueueRejectsDuplicates(t *testing.T) {
	s := NewStore()
	it := newItem()
	require.NoError(t, s.Enqueue(it))
	assert.ErrorIs(t, s.Enqueue(it), ErrAlreadyQueued)

	require.NoError(t, s.UpdateItem(it.SessionID, constants.QueueOCRCdv, "", "sending"))
	assert.ErrorIs(t, s.Enqueue(it), ErrAlreadyQueued)

	require.NoError(t, s.UpdateItem(it.SessionID, constants.QueueError, "boom", ""))
	require.NoError(t, s.Enqueue(it))
	got, ok := s.Item(it.SessionID)
	require.True(t, ok)
	assert.Equal(t, constants.QueuePending, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, s.Snapshot().TotalCount)
}

func TestStore_EnqueueValidates(t *testing.T) {
	err := NewStore().Enqueue(Item{SessionID: uuid.New(), CdvDocID: "x"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestStore_Remove(t *testing.T) {
	s := NewStore()
	it := newItem()
	require.NoError(t, s.Enqueue(it))
	require.NoError(t, s.UpdateItem(it.SessionID, constants.QueueOCRFiche, "", ""))
	assert.ErrorIs(t, s.Remove(it.SessionID), ErrItemActive)

	require.NoError(t, s.UpdateItem(it.SessionID, constants.QueueDone, "", ""))
	require.NoError(t, s.Remove(it.SessionID))
	assert.ErrorIs(t, s.Remove(it.SessionID), ErrItemNotFound)
	assert.Zero(t, s.Snapshot().TotalCount)
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	it := newItem()
	require.NoError(t, s.Enqueue(it))

	snap := s.Snapshot()
	snap.Items[0].Status = constants.QueueDone

	got, _ := s.Item(it.SessionID)
	assert.Equal(t, constants.QueuePending, got.Status)
}

func TestStore_StartProcessingIsExclusive(t *testing.T) {
	s := NewStore()
	s.Pause()
	s.Cancel()
	require.NoError(t, s.StartProcessing())

	st := s.Snapshot()
	assert.True(t, st.Processing)
	assert.False(t, st.Paused)
	assert.False(t, st.CancelRequested)

	assert.ErrorIs(t, s.StartProcessing(), ErrAlreadyProcessing)
	s.StopProcessing()
	require.NoError(t, s.StartProcessing())
}

func TestStore_ClearKeepsActiveItemDuringDrain(t *testing.T) {
	s := NewStore()
	a, b := newItem(), newItem()
	require.NoError(t, s.Enqueue(a))
	require.NoError(t, s.Enqueue(b))
	require.NoError(t, s.StartProcessing())
	require.NoError(t, s.UpdateItem(a.SessionID, constants.QueueOCRCdv, "", ""))
	s.IncrementProcessed()

	s.Clear()
	st := s.Snapshot()
	require.Len(t, st.Items, 1)
	assert.Equal(t, a.SessionID, st.Items[0].SessionID)
	assert.True(t, st.CancelRequested)
	assert.True(t, st.Processing)
	assert.Zero(t, st.ProcessedCount)

	s.StopProcessing()
	require.NoError(t, s.UpdateItem(a.SessionID, constants.QueueDone, "", ""))
	s.Clear()
	st = s.Snapshot()
	assert.Empty(t, st.Items)
	assert.False(t, st.CancelRequested)
	assert.Zero(t, st.TotalCount)
}

func TestStore_SubscribeReceivesCommittedStates(t *testing.T) {
	s := NewStore()
	var (
		mu       sync.Mutex
		versions []uint64
	)
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, st.Version)
	})

	require.NoError(t, s.Enqueue(newItem()))
	s.Pause()
	_ = s.Enqueue(Item{}) // rejected, no notification
	unsubscribe()
	unsubscribe()
	s.Resume()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, versions)
}

func TestStore_SubscribersAreCalledSerially(t *testing.T) {
	s := NewStore()
	it := newItem()
	require.NoError(t, s.Enqueue(it))

	// No locking on purpose: delivery must never overlap.
	seen := map[uint64]bool{}
	var versions []uint64
	s.Subscribe(func(st State) {
		seen[st.Version] = true
		versions = append(versions, st.Version)
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.UpdateItem(it.SessionID, constants.QueueOCRFiche, "", "step")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Cancel()
		}
	}()
	wg.Wait()

	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
	assert.Equal(t, s.Snapshot().Version, versions[len(versions)-1])
	assert.Len(t, seen, len(versions))
}

func TestStore_Claim(t *testing.T) {
	s := NewStore()
	a, b := newItem(), newItem()
	require.NoError(t, s.Enqueue(a))
	require.NoError(t, s.Enqueue(b))
	pending := s.PendingItems()
	require.Len(t, pending, 2)

	require.True(t, s.Claim(pending[0]))
	got, _ := s.Item(a.SessionID)
	assert.Equal(t, constants.QueueOCRCdv, got.Status)
	assert.False(t, s.Claim(pending[0]), "already started")
	assert.ErrorIs(t, s.Remove(a.SessionID), ErrItemActive)

	require.NoError(t, s.Remove(b.SessionID))
	assert.False(t, s.Claim(pending[1]), "removed")

	require.NoError(t, s.Enqueue(b))
	assert.False(t, s.Claim(pending[1]), "re-enqueued")
	fresh := s.PendingItems()
	require.Len(t, fresh, 1)
	assert.True(t, s.Claim(fresh[0]))
}

func TestStore_WaitWhilePaused(t *testing.T) {
	t.Run("not paused returns immediately", func(t *testing.T) {
		s := NewStore()
		assert.False(t, s.WaitWhilePaused(context.Background(), time.Minute))
	})

	t.Run("wakes on resume", func(t *testing.T) {
		s := NewStore()
		s.Pause()
		done := make(chan bool)
		go func() { done <- s.WaitWhilePaused(context.Background(), time.Minute) }()

		time.Sleep(20 * time.Millisecond)
		s.Resume()
		select {
		case cancelled := <-done:
			assert.False(t, cancelled)
		case <-time.After(2 * time.Second):
			t.Fatal("wait did not return after resume")
		}
	})

	t.Run("wakes on cancel", func(t *testing.T) {
		s := NewStore()
		s.Pause()
		done := make(chan bool)
		go func() { done <- s.WaitWhilePaused(context.Background(), time.Minute) }()

		time.Sleep(20 * time.Millisecond)
		s.Cancel()
		assert.True(t, <-done)
	})

	t.Run("force resumes after max pause", func(t *testing.T) {
		s := NewStore()
		s.Pause()
		start := time.Now()
		assert.False(t, s.WaitWhilePaused(context.Background(), 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.False(t, s.Paused())
	})

	t.Run("context done stops the drain", func(t *testing.T) {
		s := NewStore()
		s.Pause()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.True(t, s.WaitWhilePaused(ctx, time.Minute))
	})
}
