package ocr

import "context"

// SubmitRequest carries both source PDFs and the session metadata sent with them.
type SubmitRequest struct {
	SessionID string
	Product   string
	Client    string
	CdvPDF    []byte
	FichePDF  []byte
}

// CdvExtraction is the header extracted from the CDV document.
type CdvExtraction struct {
	Truck         string  `json:"camion"`
	ArrivalDate   string  `json:"date_arrivee"` // YYYY-MM-DD
	FeeTransit    float64 `json:"frais_transit"`
	FeeCommission float64 `json:"frais_commission"`
	FeeOther      float64 `json:"autre_frais"`
}

// LineExtraction is one sale line read from the lot sheet.
type LineExtraction struct {
	Client      string  `json:"client"`
	Product     string  `json:"produit"`
	Packages    int     `json:"colis"`
	GrossWeight float64 `json:"poids_brut"`
	NetWeight   float64 `json:"poids_net"`
	UnitPrice   float64 `json:"prix_unitaire_net"`
}

// FicheExtraction is the content extracted from the lot sheet.
type FicheExtraction struct {
	Lines []LineExtraction `json:"lignes"`
}

// Result is a terminal OCR result for a session.
type Result struct {
	SessionID string          `json:"sessionId"`
	Cdv       CdvExtraction   `json:"cdv"`
	Fiche     FicheExtraction `json:"fiche"`
	Raw       []byte          `json:"-"`
}

// Client is the remote OCR service. A nil result with a nil error from Submit
// means the job was accepted and must be polled; from Poll it means the job is
// still processing.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*Result, error)
	Poll(ctx context.Context, sessionID string) (*Result, error)
}

// ProgressFunc receives human readable progress labels.
type ProgressFunc func(step string)
