package entity

import "time"

// ReferenceRecord is one row of the external declaration dataset (cv_encours).
// Every column is nullable upstream.
type ReferenceRecord struct {
	FeeEU             *float64 `json:"FRAISUEP"`
	FeeIntl           *float64 `json:"FRAISINTP"`
	NetWeight         *float64 `json:"PDSN_30"`
	DeclaredUnitValue *float64 `json:"VALEUR_COMPTE_VENTE_30"`
	DeclarationTime   *string  `json:"DATEHEUREBAE"`
	InternalRef       *string  `json:"REFINTERNE"`
	ImporterName      *string  `json:"EXPIMPNOM"`
	SupplierName      *string  `json:"CLIFOUNOM"`
	OrderNumber       *string  `json:"ORDRE"`
	TruckID           *string  `json:"TPFRTIDENT"`
}

// ClosureRecord is one row of the external closure dataset (cv_cloture).
type ClosureRecord struct {
	FileNumber  *string   `json:"DOSSIER"`
	InternalRef *string   `json:"REFINTERNE"`
	SyncedAt    time.Time `json:"-"`
}
