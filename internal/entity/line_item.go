package entity

import "github.com/google/uuid"

// LineItem is one row of a sale statement (ligne de vente).
type LineItem struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	Client      string    `json:"client"`
	Product     string    `json:"product"`
	Packages    int       `json:"packages"`
	GrossWeight float64   `json:"gross_weight"`
	NetWeight   float64   `json:"net_weight"`
	UnitPrice   float64   `json:"unit_price"`
	Order       int       `json:"order"`
}
