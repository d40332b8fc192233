package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

func TestResolve(t *testing.T) {
	out, r := Resolve(MatchResult{})
	assert.Equal(t, OutcomeNone, out)
	assert.Nil(t, r)

	one := rec("AB", "2025-03-14", "DUPONT", "R1")
	out, r = Resolve(MatchResult{Candidates: []entity.ReferenceRecord{one}, Count: 1})
	assert.Equal(t, OutcomeSingle, out)
	require.NotNil(t, r)
	assert.Equal(t, "R1", *r.InternalRef)

	out, r = Resolve(MatchResult{Candidates: []entity.ReferenceRecord{one, one}, Count: 2})
	assert.Equal(t, OutcomeAmbiguous, out)
	assert.Nil(t, r)
	assert.Equal(t, "ambiguous", out.String())
}

func TestToSessionPatch(t *testing.T) {
	p := ToSessionPatch(entity.ReferenceRecord{
		FeeEU:             ptr(158.0),
		FeeIntl:           ptr(42.5),
		NetWeight:         ptr(8000.0),
		DeclaredUnitValue: ptr(1.35),
		DeclarationTime:   ptr("2025-03-13T09:15:00"),
		InternalRef:       ptr("D-2025-0042"),
		SupplierName:      ptr("FRUITS SA"),
		OrderNumber:       ptr("25FR0001"),
	})

	var s entity.Session
	p.Apply(&s)
	assert.Equal(t, 158.0, s.FeeEU)
	assert.Equal(t, 42.5, s.FeeIntl)
	assert.Equal(t, 8000.0, s.DeclaredWeight)
	assert.Equal(t, 1.35, s.DeclaredUnitPrice)
	assert.Equal(t, "2025-03-13", s.DeclarationDate)
	assert.Equal(t, "D-2025-0042", s.FileNumber)
	assert.Equal(t, "FRUITS SA", s.Supplier)
	assert.Equal(t, "25FR0001", s.DeclarationNumber)
	assert.True(t, s.ReferenceMatched)
	assert.Nil(t, p.Status)
	assert.Nil(t, p.Client)
}

func TestToSessionPatch_NullsOverwrite(t *testing.T) {
	s := entity.Session{FeeEU: 10, Supplier: "OLD", DeclarationDate: "2024-01-01"}
	ToSessionPatch(entity.ReferenceRecord{}).Apply(&s)
	assert.Zero(t, s.FeeEU)
	assert.Empty(t, s.Supplier)
	assert.Empty(t, s.DeclarationDate)
	assert.True(t, s.ReferenceMatched)
}
