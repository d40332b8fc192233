package constants

// SessionStatus is the lifecycle status of a CDV session (dossier).
type SessionStatus string

// Stable values (store these exact strings in DB).
const (
	SessionDraft           SessionStatus = "draft"            // imported, waiting for OCR
	SessionOCRRunning      SessionStatus = "ocr_running"      // picked up by the OCR queue
	SessionNeedsCorrection SessionStatus = "needs_correction" // OCR persisted, user review pending
	SessionValidated       SessionStatus = "validated"        // reviewed by the user
	SessionGenerated       SessionStatus = "generated"        // output documents produced
	SessionClosed          SessionStatus = "closed"           // matched in the closure dataset
)

var sessionOrder = []SessionStatus{
	SessionDraft,
	SessionOCRRunning,
	SessionNeedsCorrection,
	SessionValidated,
	SessionGenerated,
	SessionClosed,
}

// transitions lists every allowed from -> to move.
var transitions = map[SessionStatus][]SessionStatus{
	SessionDraft:           {SessionOCRRunning},
	SessionOCRRunning:      {SessionNeedsCorrection, SessionDraft},
	SessionNeedsCorrection: {SessionValidated, SessionOCRRunning, SessionDraft},
	SessionValidated:       {SessionGenerated, SessionOCRRunning, SessionDraft},
	SessionGenerated:       {SessionClosed, SessionOCRRunning, SessionDraft},
}

// Rank returns the position of s in the lifecycle, or -1 for unknown values.
func (s SessionStatus) Rank() int {
	for i, v := range sessionOrder {
		if v == s {
			return i
		}
	}
	return -1
}

func (s SessionStatus) Valid() bool { return s.Rank() >= 0 }

// Terminal reports whether nothing in the queue or the editor can move s further.
func (s SessionStatus) Terminal() bool { return s == SessionClosed }

// CanTransition reports whether from -> to is an allowed lifecycle move.
// Moving back to draft from a reviewed state is the rerun path: the session is
// reset before being queued again.
func CanTransition(from, to SessionStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// SessionStatuses returns all statuses in lifecycle order.
func SessionStatuses() []SessionStatus {
	out := make([]SessionStatus, len(sessionOrder))
	copy(out, sessionOrder)
	return out
}

// QueueItemStatus is the status of one unit of OCR work in the queue.
type QueueItemStatus string

const (
	QueuePending  QueueItemStatus = "pending"
	QueueOCRCdv   QueueItemStatus = "ocr_cdv"
	QueueOCRFiche QueueItemStatus = "ocr_fiche"
	QueueDone     QueueItemStatus = "done"
	QueueError    QueueItemStatus = "error"
)

// Active reports whether the item is currently being processed.
func (s QueueItemStatus) Active() bool {
	return s == QueueOCRCdv || s == QueueOCRFiche
}

// Finished reports whether the item reached done or error.
func (s QueueItemStatus) Finished() bool {
	return s == QueueDone || s == QueueError
}
