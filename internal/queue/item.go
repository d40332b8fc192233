// Package queue holds the in-memory OCR work queue shared by the host and
// the queue processor. It is not persisted across restarts.
package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

var (
	ErrAlreadyProcessing = common.NewAppError("QUEUE_ALREADY_PROCESSING", "the queue is already being processed", common.ErrConflict)
	ErrAlreadyQueued     = common.NewAppError("QUEUE_ALREADY_QUEUED", "this session is already in the queue", common.ErrConflict)
	ErrItemActive        = common.NewAppError("QUEUE_ITEM_ACTIVE", "the item is being processed", common.ErrConflict)
	ErrItemNotFound      = common.NewAppError("QUEUE_ITEM_NOT_FOUND", "queue item not found", common.ErrNotFound)
	errInvalidItem       = errors.New("queue item needs a session id and both document ids")
	errNotClaimed        = errors.New("queue item is no longer pending")
)

// Item is one unit of OCR work: both documents of one session.
type Item struct {
	SessionID   uuid.UUID                 `json:"session_id"`
	Product     string                    `json:"product"`
	Client      string                    `json:"client"`
	CdvDocID    string                    `json:"cdv_doc_id"`
	FicheDocID  string                    `json:"fiche_doc_id"`
	Status      constants.QueueItemStatus `json:"status"`
	Error       string                    `json:"error,omitempty"`
	CurrentStep string                    `json:"current_step,omitempty"`
	EnqueuedAt  time.Time                 `json:"enqueued_at"`

	// seq identifies one enqueue of the session.
	seq uint64
}

// State is a committed, deep-copied view of the queue.
type State struct {
	Items           []Item `json:"items"`
	Processing      bool   `json:"is_processing"`
	Paused          bool   `json:"is_paused"`
	CancelRequested bool   `json:"cancel_requested"`
	ProcessedCount  int    `json:"processed_count"`
	TotalCount      int    `json:"total_count"`
	// Version increases with every committed mutation so observers can
	// discard stale notifications.
	Version uint64 `json:"version"`
}

// Counts tallies items per status.
func (s State) Counts() map[constants.QueueItemStatus]int {
	out := make(map[constants.QueueItemStatus]int, 5)
	for _, it := range s.Items {
		out[it.Status]++
	}
	return out
}
