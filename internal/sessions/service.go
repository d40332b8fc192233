// Package sessions implements the session workflow around the OCR queue:
// creation, editor saves, validation, reruns, reference enrichment and
// document generation.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/calc"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/documents"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
	"github.com/joseph-ayodele/cdv-tracker/internal/queue"
	"github.com/joseph-ayodele/cdv-tracker/internal/reference"
)

var (
	ErrNoMatch          = common.NewAppError("REFERENCE_NO_MATCH", "no reference declaration matches this session", common.ErrNotFound)
	ErrSaveInProgress   = common.NewAppError("SESSION_SAVE_IN_PROGRESS", "the session is being saved", common.ErrConflict)
	ErrStatusLocked     = common.NewAppError("SESSION_STATUS_LOCKED", "status changes go through validate, rerun or generate", common.ErrInvalidInput)
	ErrMissingDocuments = common.NewAppError("SESSION_MISSING_DOCUMENTS", "both the CDV and the lot sheet PDF are required", common.ErrInvalidInput)
)

// Store is the record store as used by the workflow.
type Store interface {
	Create(ctx context.Context, s *entity.Session) (*entity.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	List(ctx context.Context) ([]*entity.Session, error)
	ListByStatus(ctx context.Context, statuses ...constants.SessionStatus) ([]*entity.Session, error)
	Update(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) error
	SaveLineItems(ctx context.Context, sessionID uuid.UUID, items []entity.LineItem) error
	GetLineItems(ctx context.Context, sessionID uuid.UUID) ([]entity.LineItem, error)
}

// GeneratedStore records generated output documents.
type GeneratedStore interface {
	SaveGenerated(ctx context.Context, doc *entity.GeneratedDocument) (*entity.GeneratedDocument, error)
}

// Matcher looks up reference declarations.
type Matcher interface {
	Match(ctx context.Context, truckID, arrivalDate, client string) (reference.MatchResult, error)
}

// DocumentResolver registers a session PDF and returns its document id.
type DocumentResolver interface {
	ResolvePath(path string) (documents.Document, error)
}

// Service handles session business logic.
type Service struct {
	store     Store
	generated GeneratedStore
	matcher   Matcher
	docs      DocumentResolver
	queue     *queue.Store
	logger    *slog.Logger

	mu     sync.Mutex
	saving map[uuid.UUID]bool
}

// NewService creates a new session service. matcher, docs and q may be nil
// when the caller does not enrich or queue.
func NewService(store Store, generated GeneratedStore, matcher Matcher, docs DocumentResolver, q *queue.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		generated: generated,
		matcher:   matcher,
		docs:      docs,
		queue:     q,
		logger:    logger,
		saving:    make(map[uuid.UUID]bool),
	}
}

// CreateRequest represents session creation parameters.
type CreateRequest struct {
	Product         string
	LotNumber       string
	Client          string
	PDFCdvPath      string
	PDFFicheLotPath string
}

// Create stores a new draft session for a pair of PDFs.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*entity.Session, error) {
	req.Product = strings.TrimSpace(req.Product)
	req.Client = strings.TrimSpace(req.Client)
	v := common.NewValidator().
		Field("product", req.Product, common.Required, common.MaxLength(200)).
		Field("client", req.Client, common.Required, common.MaxLength(200)).
		Field("pdf_cdv_path", req.PDFCdvPath, common.Required).
		Field("pdf_fiche_lot_path", req.PDFFicheLotPath, common.Required)
	if err := v.Error(); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, &entity.Session{
		Status:          constants.SessionDraft,
		Product:         req.Product,
		LotNumber:       strings.TrimSpace(req.LotNumber),
		Client:          req.Client,
		PDFCdvPath:      req.PDFCdvPath,
		PDFFicheLotPath: req.PDFFicheLotPath,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created successfully", "session_id", created.ID, "product", created.Product, "client", created.Client)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	return s.store.Get(ctx, id)
}

// List returns all sessions, or those in the given statuses.
func (s *Service) List(ctx context.Context, statuses ...constants.SessionStatus) ([]*entity.Session, error) {
	if len(statuses) == 0 {
		return s.store.List(ctx)
	}
	return s.store.ListByStatus(ctx, statuses...)
}

// Details is a session with its line items.
type Details struct {
	Session *entity.Session   `json:"session"`
	Lines   []entity.LineItem `json:"lines"`
}

func (s *Service) Details(ctx context.Context, id uuid.UUID) (*Details, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.GetLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Details{Session: sess, Lines: lines}, nil
}

// Eligible reports whether a session may be added to a queue run: a draft
// with both source documents assigned.
func Eligible(sess *entity.Session) bool {
	return sess != nil && sess.Status == constants.SessionDraft && sess.HasDocuments()
}

// EnqueueReport lists what EnqueueEligible did per session.
type EnqueueReport struct {
	Queued  []uuid.UUID          `json:"queued"`
	Skipped map[uuid.UUID]string `json:"skipped,omitempty"`
}

// EnqueueEligible queues every eligible draft session.
func (s *Service) EnqueueEligible(ctx context.Context) (EnqueueReport, error) {
	report := EnqueueReport{Skipped: map[uuid.UUID]string{}}
	drafts, err := s.store.ListByStatus(ctx, constants.SessionDraft)
	if err != nil {
		return report, err
	}
	for _, sess := range drafts {
		if !Eligible(sess) {
			report.Skipped[sess.ID] = ErrMissingDocuments.Message
			continue
		}
		if err := s.enqueue(sess); err != nil {
			report.Skipped[sess.ID] = common.UserMessage(err, err.Error())
			continue
		}
		report.Queued = append(report.Queued, sess.ID)
	}
	s.logger.Info("sessions.enqueue_eligible", "queued", len(report.Queued), "skipped", len(report.Skipped))
	return report, nil
}

// Enqueue queues one session. It must be an eligible draft.
func (s *Service) Enqueue(ctx context.Context, id uuid.UUID) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !sess.HasDocuments() {
		return ErrMissingDocuments
	}
	if sess.Status != constants.SessionDraft {
		return common.NewAppError("SESSION_NOT_DRAFT", fmt.Sprintf("session is %s, only draft sessions can be queued", sess.Status), common.ErrConflict)
	}
	return s.enqueue(sess)
}

func (s *Service) enqueue(sess *entity.Session) error {
	if s.queue == nil || s.docs == nil {
		return common.NewAppError("QUEUE_NOT_CONFIGURED", "the OCR queue is not available", common.ErrConfig)
	}
	cdv, err := s.docs.ResolvePath(sess.PDFCdvPath)
	if err != nil {
		return err
	}
	fiche, err := s.docs.ResolvePath(sess.PDFFicheLotPath)
	if err != nil {
		return err
	}
	return s.queue.Enqueue(queue.Item{
		SessionID:  sess.ID,
		Product:    sess.Product,
		Client:     sess.Client,
		CdvDocID:   cdv.ID,
		FicheDocID: fiche.ID,
	})
}

func validatePatch(p entity.SessionPatch) error {
	v := common.NewValidator().
		Field("arrival_date", p.ArrivalDate, common.DateYMD).
		Field("declaration_date", p.DeclarationDate, common.DateYMD).
		Field("fee_transit", p.FeeTransit, common.NonNegative).
		Field("fee_commission", p.FeeCommission, common.NonNegative).
		Field("fee_other", p.FeeOther, common.NonNegative).
		Field("fee_eu", p.FeeEU, common.NonNegative).
		Field("fee_intl", p.FeeIntl, common.NonNegative).
		Field("declared_weight", p.DeclaredWeight, common.NonNegative).
		Field("declared_unit_price", p.DeclaredUnitPrice, common.NonNegative)
	return v.Error()
}

func validateLines(lines []entity.LineItem) error {
	v := common.NewValidator()
	for i, l := range lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		v.Field(prefix+"packages", l.Packages, common.NonNegative).
			Field(prefix+"gross_weight", l.GrossWeight, common.NonNegative).
			Field(prefix+"net_weight", l.NetWeight, common.NonNegative).
			Field(prefix+"unit_price", l.UnitPrice, common.NonNegative)
	}
	return v.Error()
}

// Save persists editor changes. lines replaces the line items when non-nil;
// their order follows the slice.
func (s *Service) Save(ctx context.Context, id uuid.UUID, patch entity.SessionPatch, lines []entity.LineItem) error {
	if patch.Status != nil {
		return ErrStatusLocked
	}
	if err := validatePatch(patch); err != nil {
		return err
	}
	if err := validateLines(lines); err != nil {
		return err
	}

	if !s.beginSave(id) {
		return ErrSaveInProgress
	}
	defer s.endSave(id)

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == constants.SessionOCRRunning || sess.Status.Terminal() {
		return common.NewAppError("SESSION_NOT_EDITABLE", fmt.Sprintf("a %s session cannot be edited", sess.Status), common.ErrConflict)
	}

	if !patch.Empty() {
		if err := s.store.Update(ctx, id, patch); err != nil {
			return err
		}
	}
	if lines != nil {
		ordered := make([]entity.LineItem, len(lines))
		for i, l := range lines {
			l.SessionID = id
			l.Order = i + 1
			ordered[i] = l
		}
		if err := s.store.SaveLineItems(ctx, id, ordered); err != nil {
			return err
		}
	}
	s.logger.Info("session saved", "session_id", id, "lines", len(lines))
	return nil
}

func (s *Service) beginSave(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving[id] {
		return false
	}
	s.saving[id] = true
	return true
}

func (s *Service) endSave(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saving, id)
}

// Saving reports whether a save of id is in flight.
func (s *Service) Saving(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving[id]
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to constants.SessionStatus) (*entity.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !constants.CanTransition(sess.Status, to) {
		return nil, common.NewAppError("SESSION_INVALID_TRANSITION",
			fmt.Sprintf("cannot move a session from %s to %s", sess.Status, to), common.ErrConflict)
	}
	if err := s.store.Update(ctx, id, entity.StatusPatch(to)); err != nil {
		return nil, err
	}
	s.logger.Info("session status changed", "session_id", id, "from", sess.Status, "to", to)
	sess.Status = to
	return sess, nil
}

// Validate marks a reviewed session as validated.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	if s.Saving(id) {
		return nil, ErrSaveInProgress
	}
	return s.transition(ctx, id, constants.SessionValidated)
}

// RequestRerun persists pending edits, resets the session to draft and
// queues it for OCR again.
func (s *Service) RequestRerun(ctx context.Context, id uuid.UUID, patch entity.SessionPatch, lines []entity.LineItem) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	switch sess.Status {
	case constants.SessionNeedsCorrection, constants.SessionValidated, constants.SessionGenerated:
	default:
		return common.NewAppError("SESSION_RERUN_NOT_ALLOWED",
			fmt.Sprintf("OCR cannot be rerun on a %s session", sess.Status), common.ErrConflict)
	}
	if !sess.HasDocuments() {
		return ErrMissingDocuments
	}

	if err := s.Save(ctx, id, patch, lines); err != nil {
		return err
	}
	reset, err := s.transition(ctx, id, constants.SessionDraft)
	if err != nil {
		return err
	}
	patch.Apply(reset)
	return s.enqueue(reset)
}

// EnrichResult is the outcome of an interactive reference match. Session
// is set when a single declaration was applied; Candidates when the user
// has to choose.
type EnrichResult struct {
	Outcome    reference.Outcome        `json:"-"`
	Session    *entity.Session          `json:"session,omitempty"`
	Candidates []entity.ReferenceRecord `json:"candidates,omitempty"`
}

// Enrich matches the session against the reference cache.
func (s *Service) Enrich(ctx context.Context, id uuid.UUID) (*EnrichResult, error) {
	if s.matcher == nil {
		return nil, common.NewAppError("REFERENCE_NOT_CONFIGURED", "reference matching is not available", common.ErrConfig)
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.matcher.Match(ctx, sess.Truck, sess.ArrivalDate, sess.Client)
	if err != nil {
		return nil, err
	}

	outcome, rec := reference.Resolve(res)
	s.logger.Info("session enrich", "session_id", id, "outcome", outcome.String(), "candidates", res.Count)
	switch outcome {
	case reference.OutcomeNone:
		return nil, ErrNoMatch
	case reference.OutcomeSingle:
		updated, err := s.ApplyReference(ctx, id, *rec)
		if err != nil {
			return nil, err
		}
		return &EnrichResult{Outcome: outcome, Session: updated}, nil
	default:
		return &EnrichResult{Outcome: outcome, Candidates: res.Candidates}, nil
	}
}

// ApplyReference copies one chosen declaration onto the session.
func (s *Service) ApplyReference(ctx context.Context, id uuid.UUID, rec entity.ReferenceRecord) (*entity.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, common.NewAppError("SESSION_NOT_EDITABLE", "a closed session cannot be edited", common.ErrConflict)
	}
	patch := reference.ToSessionPatch(rec)
	if err := s.store.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	patch.Apply(sess)
	return sess, nil
}

// MarkGenerated records the generated documents and moves a validated
// session to generated. A generated session only gets the new records.
func (s *Service) MarkGenerated(ctx context.Context, id uuid.UUID, docs []entity.GeneratedDocument) (*entity.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != constants.SessionValidated && sess.Status != constants.SessionGenerated {
		return nil, common.NewAppError("SESSION_NOT_VALIDATED", "documents can only be generated for a validated session", common.ErrConflict)
	}
	if s.generated != nil {
		now := time.Now().UTC()
		for i := range docs {
			d := docs[i]
			d.SessionID = id
			if d.GeneratedAt.IsZero() {
				d.GeneratedAt = now
			}
			if _, err := s.generated.SaveGenerated(ctx, &d); err != nil {
				return nil, err
			}
		}
	}
	if sess.Status == constants.SessionGenerated {
		return sess, nil
	}
	return s.transition(ctx, id, constants.SessionGenerated)
}

// Calculate runs the calculation engine on the stored session.
func (s *Service) Calculate(ctx context.Context, id uuid.UUID) (calc.Result, error) {
	d, err := s.Details(ctx, id)
	if err != nil {
		return calc.Result{}, err
	}
	return calc.Calculate(calc.InputFromSession(d.Session), d.Lines), nil
}
