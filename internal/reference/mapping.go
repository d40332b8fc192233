package reference

import (
	"strings"

	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

// Outcome is the caller-side reading of a match result.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSingle
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSingle:
		return "single"
	default:
		return "ambiguous"
	}
}

// Resolve classifies a result; the record is set only for OutcomeSingle.
func Resolve(res MatchResult) (Outcome, *entity.ReferenceRecord) {
	switch len(res.Candidates) {
	case 0:
		return OutcomeNone, nil
	case 1:
		rec := res.Candidates[0]
		return OutcomeSingle, &rec
	default:
		return OutcomeAmbiguous, nil
	}
}

// ToSessionPatch maps one declaration onto the session fields it owns.
// Nulls become zero values, so applying a record always overwrites all of
// them.
func ToSessionPatch(rec entity.ReferenceRecord) entity.SessionPatch {
	num := func(v *float64) *float64 {
		out := 0.0
		if v != nil {
			out = *v
		}
		return &out
	}
	str := func(v *string) *string {
		out := ""
		if v != nil {
			out = *v
		}
		return &out
	}
	date := ""
	if rec.DeclarationTime != nil {
		date, _, _ = strings.Cut(*rec.DeclarationTime, "T")
	}
	matched := true
	return entity.SessionPatch{
		FeeEU:             num(rec.FeeEU),
		FeeIntl:           num(rec.FeeIntl),
		DeclaredWeight:    num(rec.NetWeight),
		DeclaredUnitPrice: num(rec.DeclaredUnitValue),
		DeclarationDate:   &date,
		FileNumber:        str(rec.InternalRef),
		Supplier:          str(rec.SupplierName),
		DeclarationNumber: str(rec.OrderNumber),
		ReferenceMatched:  &matched,
	}
}
