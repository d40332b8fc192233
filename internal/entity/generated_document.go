package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
)

// GeneratedDocument records an output file produced for a session.
type GeneratedDocument struct {
	ID          uuid.UUID               `json:"id"`
	SessionID   uuid.UUID               `json:"session_id"`
	Kind        constants.GeneratedKind `json:"kind"`
	FilePath    string                  `json:"file_path"`
	GeneratedAt time.Time               `json:"generated_at"`
}
