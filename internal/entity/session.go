package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
)

// Session represents a CDV dossier for data transfer between layers.
type Session struct {
	ID                uuid.UUID               `json:"id"`
	Status            constants.SessionStatus `json:"status"`
	Product           string                  `json:"product"`
	LotNumber         string                  `json:"lot_number"`
	Truck             string                  `json:"truck"`
	ArrivalDate       string                  `json:"arrival_date"` // YYYY-MM-DD
	FeeTransit        float64                 `json:"fee_transit"`
	FeeCommission     float64                 `json:"fee_commission"`
	FeeOther          float64                 `json:"fee_other"`
	FeeEU             float64                 `json:"fee_eu"`
	FeeIntl           float64                 `json:"fee_intl"`
	DeclaredWeight    float64                 `json:"declared_weight"`
	DeclaredUnitPrice float64                 `json:"declared_unit_price"`
	DeclarationDate   string                  `json:"declaration_date"` // date BAE, YYYY-MM-DD
	FileNumber        string                  `json:"file_number"`      // internal dossier reference
	Client            string                  `json:"client"`
	Supplier          string                  `json:"supplier"`
	DeclarationNumber string                  `json:"declaration_number"`
	PDFCdvPath        string                  `json:"pdf_cdv_path"`
	PDFFicheLotPath   string                  `json:"pdf_fiche_lot_path"`
	OCRRawCdv         string                  `json:"ocr_raw_cdv,omitempty"`
	OCRRawFiche       string                  `json:"ocr_raw_fiche,omitempty"`
	ReferenceMatched  bool                    `json:"reference_matched"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// HasDocuments reports whether both source PDFs are assigned.
func (s *Session) HasDocuments() bool {
	return s.PDFCdvPath != "" && s.PDFFicheLotPath != ""
}

// SessionPatch is a partial session update; nil fields are left untouched.
type SessionPatch struct {
	Status            *constants.SessionStatus
	Product           *string
	LotNumber         *string
	Truck             *string
	ArrivalDate       *string
	FeeTransit        *float64
	FeeCommission     *float64
	FeeOther          *float64
	FeeEU             *float64
	FeeIntl           *float64
	DeclaredWeight    *float64
	DeclaredUnitPrice *float64
	DeclarationDate   *string
	FileNumber        *string
	Client            *string
	Supplier          *string
	DeclarationNumber *string
	PDFCdvPath        *string
	PDFFicheLotPath   *string
	OCRRawCdv         *string
	OCRRawFiche       *string
	ReferenceMatched  *bool
}

// StatusPatch is shorthand for a patch that only moves the lifecycle status.
func StatusPatch(s constants.SessionStatus) SessionPatch {
	return SessionPatch{Status: &s}
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p == SessionPatch{}
}

// Apply copies the set fields of p onto s.
func (p SessionPatch) Apply(s *Session) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setNum := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	setStr(&s.Product, p.Product)
	setStr(&s.LotNumber, p.LotNumber)
	setStr(&s.Truck, p.Truck)
	setStr(&s.ArrivalDate, p.ArrivalDate)
	setNum(&s.FeeTransit, p.FeeTransit)
	setNum(&s.FeeCommission, p.FeeCommission)
	setNum(&s.FeeOther, p.FeeOther)
	setNum(&s.FeeEU, p.FeeEU)
	setNum(&s.FeeIntl, p.FeeIntl)
	setNum(&s.DeclaredWeight, p.DeclaredWeight)
	setNum(&s.DeclaredUnitPrice, p.DeclaredUnitPrice)
	setStr(&s.DeclarationDate, p.DeclarationDate)
	setStr(&s.FileNumber, p.FileNumber)
	setStr(&s.Client, p.Client)
	setStr(&s.Supplier, p.Supplier)
	setStr(&s.DeclarationNumber, p.DeclarationNumber)
	setStr(&s.PDFCdvPath, p.PDFCdvPath)
	setStr(&s.PDFFicheLotPath, p.PDFFicheLotPath)
	setStr(&s.OCRRawCdv, p.OCRRawCdv)
	setStr(&s.OCRRawFiche, p.OCRRawFiche)
	if p.ReferenceMatched != nil {
		s.ReferenceMatched = *p.ReferenceMatched
	}
}
