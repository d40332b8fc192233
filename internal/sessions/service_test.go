package sessions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/calc"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/documents"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
	"github.com/joseph-ayodele/cdv-tracker/internal/queue"
	"github.com/joseph-ayodele/cdv-tracker/internal/reference"
	"github.com/joseph-ayodele/cdv-tracker/internal/repository"
)

func ptr[T any](v T) *T { return &v }

type pathDocs struct{}

func (pathDocs) ResolvePath(path string) (documents.Document, error) {
	if path == "" {
		return documents.Document{}, documents.ErrDocumentNotFound
	}
	return documents.Document{ID: "doc:" + path, Path: path}, nil
}

type stubMatcher struct {
	res reference.MatchResult
	err error
}

func (s stubMatcher) Match(context.Context, string, string, string) (reference.MatchResult, error) {
	return s.res, s.err
}

type fixture struct {
	svc      *Service
	repo     repository.SessionRepository
	docsRepo repository.DocumentRepository
	queue    *queue.Store
}

func newFixture(t *testing.T, m Matcher) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := repository.Open(context.Background(), repository.Config{Driver: repository.DriverSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))

	f := &fixture{
		repo:     repository.NewSessionRepository(db, nil),
		docsRepo: repository.NewDocumentRepository(db, nil),
		queue:    queue.NewStore(),
	}
	f.svc = NewService(f.repo, f.docsRepo, m, pathDocs{}, f.queue, nil)
	return f
}

func (f *fixture) create(t *testing.T) *entity.Session {
	t.Helper()
	s, err := f.svc.Create(context.Background(), CreateRequest{
		Product: "TOMATE", Client: "DUPONT", PDFCdvPath: "/in/cdv.pdf", PDFFicheLotPath: "/in/fiche.pdf",
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) setStatus(t *testing.T, id uuid.UUID, st constants.SessionStatus) {
	t.Helper()
	require.NoError(t, f.repo.Update(context.Background(), id, entity.StatusPatch(st)))
}

func TestService_CreateValidates(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), CreateRequest{Product: " ", Client: "DUPONT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "product")
	assert.Contains(t, err.Error(), "pdf_cdv_path")

	s := f.create(t)
	assert.Equal(t, constants.SessionDraft, s.Status)
	assert.True(t, Eligible(s))
}

func TestEligible(t *testing.T) {
	assert.False(t, Eligible(nil))
	assert.False(t, Eligible(&entity.Session{Status: constants.SessionDraft, PDFCdvPath: "a"}))
	assert.False(t, Eligible(&entity.Session{Status: constants.SessionNeedsCorrection, PDFCdvPath: "a", PDFFicheLotPath: "b"}))
	assert.True(t, Eligible(&entity.Session{Status: constants.SessionDraft, PDFCdvPath: "a", PDFFicheLotPath: "b"}))
}

func TestService_EnqueueEligible(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.create(t)
	b := f.create(t)
	require.NoError(t, f.repo.Update(ctx, b.ID, entity.SessionPatch{PDFFicheLotPath: ptr("")}))
	c := f.create(t)
	f.setStatus(t, c.ID, constants.SessionOCRRunning)

	report, err := f.svc.EnqueueEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, report.Queued)
	assert.Contains(t, report.Skipped, b.ID)
	assert.NotContains(t, report.Skipped, c.ID)

	item, ok := f.queue.Item(a.ID)
	require.True(t, ok)
	assert.Equal(t, "doc:/in/cdv.pdf", item.CdvDocID)
	assert.Equal(t, "DUPONT", item.Client)

	report, err = f.svc.EnqueueEligible(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Queued)
	assert.Equal(t, "this session is already in the queue", report.Skipped[a.ID])
}

func TestService_Enqueue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	draft := f.create(t)
	require.NoError(t, f.svc.Enqueue(ctx, draft.ID))
	_, ok := f.queue.Item(draft.ID)
	assert.True(t, ok)

	validated := f.create(t)
	f.setStatus(t, validated.ID, constants.SessionValidated)
	err := f.svc.Enqueue(ctx, validated.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	missing := f.create(t)
	require.NoError(t, f.repo.Update(ctx, missing.ID, entity.SessionPatch{PDFCdvPath: ptr("")}))
	assert.ErrorIs(t, f.svc.Enqueue(ctx, missing.ID), ErrMissingDocuments)

	assert.ErrorIs(t, f.svc.Enqueue(ctx, uuid.New()), common.ErrNotFound)
}

func TestService_SaveAndCalculate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.create(t)
	f.setStatus(t, s.ID, constants.SessionNeedsCorrection)

	err := f.svc.Save(ctx, s.ID, entity.SessionPatch{
		FeeTransit:        ptr(150.0),
		FeeCommission:     ptr(200.0),
		DeclaredWeight:    ptr(1000.0),
		DeclaredUnitPrice: ptr(1.0),
	}, []entity.LineItem{
		{Client: "DUPONT", Product: "TOMATE", Packages: 10, GrossWeight: 420, NetWeight: 400, UnitPrice: 2, Order: 9},
		{Client: "DUPONT", Product: "TOMATE", Packages: 5, GrossWeight: 210, NetWeight: 200, UnitPrice: 1.5, Order: 3},
	})
	require.NoError(t, err)

	d, err := f.svc.Details(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, d.Lines, 2)
	assert.Equal(t, 1, d.Lines[0].Order)
	assert.Equal(t, 2.0, d.Lines[0].UnitPrice)

	res, err := f.svc.Calculate(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1100.0, res.TotalSales)
	assert.Equal(t, 350.0, res.TotalFees)
	assert.Equal(t, 2.0, res.RetainedPrice)
	assert.Equal(t, 1650.0, res.NetValue)
	assert.Equal(t, -650.0, res.ValueGap)
	decision, amount := res.Decision()
	assert.Equal(t, calc.DecisionReport, decision)
	assert.Equal(t, 650.0, amount)
}

func TestService_SaveRejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.create(t)

	err := f.svc.Save(ctx, s.ID, entity.SessionPatch{FeeEU: ptr(-1.0), ArrivalDate: ptr("14/03/2025")}, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	err = f.svc.Save(ctx, s.ID, entity.SessionPatch{}, []entity.LineItem{{NetWeight: -5}})
	assert.ErrorIs(t, err, common.ErrValidation)

	err = f.svc.Save(ctx, s.ID, entity.StatusPatch(constants.SessionValidated), nil)
	assert.ErrorIs(t, err, ErrStatusLocked)

	f.setStatus(t, s.ID, constants.SessionOCRRunning)
	err = f.svc.Save(ctx, s.ID, entity.SessionPatch{Truck: ptr("X")}, nil)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestService_ValidateLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.create(t)

	_, err := f.svc.Validate(ctx, s.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	f.setStatus(t, s.ID, constants.SessionNeedsCorrection)
	require.True(t, f.svc.beginSave(s.ID))
	_, err = f.svc.Validate(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSaveInProgress)
	f.svc.endSave(s.ID)

	got, err := f.svc.Validate(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionValidated, got.Status)

	got, err = f.svc.MarkGenerated(ctx, s.ID, []entity.GeneratedDocument{{Kind: constants.GeneratedCalculation, FilePath: "/out/calc.xlsx"}})
	require.NoError(t, err)
	assert.Equal(t, constants.SessionGenerated, got.Status)

	_, err = f.svc.MarkGenerated(ctx, s.ID, []entity.GeneratedDocument{{Kind: constants.GeneratedCalculation, FilePath: "/out/calc2.xlsx"}})
	require.NoError(t, err)
	docs, err := f.docsRepo.ListGenerated(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestService_MarkGeneratedRequiresValidated(t *testing.T) {
	f := newFixture(t, nil)
	s := f.create(t)
	f.setStatus(t, s.ID, constants.SessionNeedsCorrection)
	_, err := f.svc.MarkGenerated(context.Background(), s.ID, nil)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestService_RequestRerun(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.create(t)

	err := f.svc.RequestRerun(ctx, s.ID, entity.SessionPatch{}, nil)
	assert.ErrorIs(t, err, common.ErrConflict)

	f.setStatus(t, s.ID, constants.SessionValidated)
	require.NoError(t, f.svc.RequestRerun(ctx, s.ID, entity.SessionPatch{Truck: ptr("AB-123-CD")}, nil))

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionDraft, got.Status)
	assert.Equal(t, "AB-123-CD", got.Truck)
	item, ok := f.queue.Item(s.ID)
	require.True(t, ok)
	assert.Equal(t, constants.QueuePending, item.Status)
}

func TestService_Enrich(t *testing.T) {
	ctx := context.Background()
	rec := entity.ReferenceRecord{InternalRef: ptr("D-1"), SupplierName: ptr("FRUITS SA"), FeeEU: ptr(158.0)}

	t.Run("single match is applied", func(t *testing.T) {
		f := newFixture(t, stubMatcher{res: reference.MatchResult{Count: 1, Candidates: []entity.ReferenceRecord{rec}}})
		s := f.create(t)
		res, err := f.svc.Enrich(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, reference.OutcomeSingle, res.Outcome)
		assert.Equal(t, "D-1", res.Session.FileNumber)

		stored, err := f.svc.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, stored.ReferenceMatched)
		assert.Equal(t, 158.0, stored.FeeEU)
		assert.Equal(t, "FRUITS SA", stored.Supplier)
	})

	t.Run("several matches are returned", func(t *testing.T) {
		f := newFixture(t, stubMatcher{res: reference.MatchResult{Count: 2, Candidates: []entity.ReferenceRecord{rec, rec}}})
		s := f.create(t)
		res, err := f.svc.Enrich(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, reference.OutcomeAmbiguous, res.Outcome)
		assert.Len(t, res.Candidates, 2)

		stored, _ := f.svc.Get(ctx, s.ID)
		assert.False(t, stored.ReferenceMatched)

		applied, err := f.svc.ApplyReference(ctx, s.ID, res.Candidates[1])
		require.NoError(t, err)
		assert.True(t, applied.ReferenceMatched)
	})

	t.Run("no match", func(t *testing.T) {
		f := newFixture(t, stubMatcher{})
		s := f.create(t)
		_, err := f.svc.Enrich(ctx, s.ID)
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("matcher error", func(t *testing.T) {
		f := newFixture(t, stubMatcher{err: reference.ErrMatchParamsMissing})
		s := f.create(t)
		_, err := f.svc.Enrich(ctx, s.ID)
		assert.True(t, errors.Is(err, common.ErrInvalidInput))
	})
}
