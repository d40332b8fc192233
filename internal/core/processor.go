package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/documents"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
	"github.com/joseph-ayodele/cdv-tracker/internal/ocr"
	"github.com/joseph-ayodele/cdv-tracker/internal/queue"
	"github.com/joseph-ayodele/cdv-tracker/internal/reference"
)

const (
	DefaultItemDelay = 500 * time.Millisecond
	DefaultMaxPause  = 5 * time.Minute
)

var (
	ErrAlreadyProcessing = queue.ErrAlreadyProcessing
	ErrDocumentsNotFound = common.NewAppError("QUEUE_DOCS_NOT_FOUND", "PDF documents not found for this session", common.ErrNotFound)
	ErrCancelled         = common.NewAppError("QUEUE_CANCELLED", "processing was cancelled before this session started", common.ErrConflict)

	// ErrQueuedForNextDrain is returned by ProcessSession while another drain
	// runs: the session stays queued and is processed by the next drain.
	ErrQueuedForNextDrain = common.NewAppError("QUEUE_BUSY", "another OCR run is in progress; the session stays queued for the next run", common.ErrConflict)
)

// SessionStore is the part of the record store the processor writes to.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	Update(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) error
	SaveLineItems(ctx context.Context, sessionID uuid.UUID, items []entity.LineItem) error
}

// DocumentSource resolves and loads the imported PDFs.
type DocumentSource interface {
	Resolve(id string) (documents.Document, bool)
	ResolvePath(path string) (documents.Document, error)
	Read(id string) ([]byte, error)
}

// OCRSender runs one OCR round trip for a session, retries included.
type OCRSender interface {
	Send(ctx context.Context, req ocr.SubmitRequest, progress ocr.ProgressFunc) (*ocr.Result, error)
}

// ReferenceMatcher looks up declarations for a truck, arrival date and client.
type ReferenceMatcher interface {
	Match(ctx context.Context, truckID, arrivalDate, client string) (reference.MatchResult, error)
}

type Config struct {
	ItemDelay time.Duration
	MaxPause  time.Duration
}

// Processor drains the OCR queue one session at a time: OCR, then
// persistence, then best-effort reference enrichment.
type Processor struct {
	logger   *slog.Logger
	queue    *queue.Store
	sessions SessionStore
	docs     DocumentSource
	sender   OCRSender
	matcher  ReferenceMatcher

	itemDelay time.Duration
	maxPause  time.Duration
}

func NewProcessor(
	logger *slog.Logger,
	q *queue.Store,
	sessions SessionStore,
	docs DocumentSource,
	sender OCRSender,
	matcher ReferenceMatcher,
	cfg Config,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ItemDelay < 0 {
		cfg.ItemDelay = 0
	}
	if cfg.MaxPause <= 0 {
		cfg.MaxPause = DefaultMaxPause
	}
	return &Processor{
		logger:    logger,
		queue:     q,
		sessions:  sessions,
		docs:      docs,
		sender:    sender,
		matcher:   matcher,
		itemDelay: cfg.ItemDelay,
		maxPause:  cfg.MaxPause,
	}
}

// ProcessQueue drains the items that are pending when it starts, in
// insertion order. Items enqueued meanwhile wait for the next call. Item
// failures are recorded on the item and never returned; only a second
// concurrent drain or a done ctx produce an error.
func (p *Processor) ProcessQueue(ctx context.Context) error {
	if err := p.queue.StartProcessing(); err != nil {
		return err
	}
	defer p.queue.StopProcessing()

	items := p.queue.PendingItems()
	start := time.Now()
	p.logger.Info("queue.drain.start", "items", len(items))

	processed, dropped := 0, 0
	for i, item := range items {
		if p.queue.CancelRequested() || ctx.Err() != nil {
			break
		}
		if stop := p.queue.WaitWhilePaused(ctx, p.maxPause); stop {
			break
		}
		// The host may have removed or replaced the item since the drain
		// started.
		if !p.queue.Claim(item) {
			p.logger.Info("queue.item.dropped", "session_id", item.SessionID)
			dropped++
			continue
		}

		p.processItem(ctx, item)
		p.queue.IncrementProcessed()
		processed++

		if p.queue.CancelRequested() || i == len(items)-1 {
			continue
		}
		if err := common.Sleep(ctx, p.itemDelay); err != nil {
			break
		}
	}

	p.logger.Info("queue.drain.done",
		"processed", processed,
		"dropped", dropped,
		"skipped", len(items)-processed-dropped,
		"cancelled", p.queue.CancelRequested(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ctx.Err()
}

// ProcessSession queues one session from its stored PDF paths and drains
// the queue, so an editor rerun never overlaps another OCR call. When a drain
// is already running it returns ErrQueuedForNextDrain and leaves the item
// queued.
func (p *Processor) ProcessSession(ctx context.Context, id uuid.UUID) error {
	s, err := p.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.HasDocuments() {
		return ErrDocumentsNotFound
	}
	cdv, err := p.docs.ResolvePath(s.PDFCdvPath)
	if err != nil {
		return err
	}
	fiche, err := p.docs.ResolvePath(s.PDFFicheLotPath)
	if err != nil {
		return err
	}
	if err := p.queue.Enqueue(queue.Item{
		SessionID:  s.ID,
		Product:    s.Product,
		Client:     s.Client,
		CdvDocID:   cdv.ID,
		FicheDocID: fiche.ID,
	}); err != nil {
		return err
	}
	if err := p.ProcessQueue(ctx); err != nil {
		if errors.Is(err, ErrAlreadyProcessing) {
			return ErrQueuedForNextDrain
		}
		return err
	}

	item, ok := p.queue.Item(id)
	switch {
	case !ok:
		return queue.ErrItemNotFound
	case item.Status == constants.QueueError:
		return common.NewAppError("OCR_FAILED", item.Error, nil)
	case item.Status == constants.QueuePending:
		return ErrCancelled
	}
	return nil
}

func (p *Processor) processItem(ctx context.Context, item queue.Item) {
	ctx = common.WithSessionID(ctx, item.SessionID.String())
	logger := p.logger.With("session_id", item.SessionID)
	start := time.Now()
	started := false

	defer func() {
		if r := recover(); r != nil {
			logger.Error("queue.item.panic", "panic", r, "stack", string(debug.Stack()))
			p.fail(ctx, logger, item, fmt.Errorf("unexpected error: %v", r), started)
		}
	}()

	logger.Info("queue.item.start", "product", item.Product, "client", item.Client)
	if err := p.runItem(ctx, logger, item, &started); err != nil {
		p.fail(ctx, logger, item, err, started)
		return
	}
	p.setItem(logger, item.SessionID, constants.QueueDone, "", "Done")
	logger.Info("queue.item.done", "elapsed_ms", time.Since(start).Milliseconds())
}

// runItem is the single-item pipeline. started is set once the session has
// been moved to ocr_running and must be rolled back on failure.
func (p *Processor) runItem(ctx context.Context, logger *slog.Logger, item queue.Item, started *bool) error {
	cdvDoc, okCdv := p.docs.Resolve(item.CdvDocID)
	ficheDoc, okFiche := p.docs.Resolve(item.FicheDocID)
	if !okCdv || !okFiche {
		return ErrDocumentsNotFound
	}

	s, err := p.sessions.Get(ctx, item.SessionID)
	if err != nil {
		return err
	}
	if !constants.CanTransition(s.Status, constants.SessionOCRRunning) {
		return common.NewAppError("QUEUE_SESSION_STATUS",
			fmt.Sprintf("session cannot be processed while %s", s.Status), common.ErrConflict)
	}
	if err := p.sessions.Update(ctx, item.SessionID, entity.StatusPatch(constants.SessionOCRRunning)); err != nil {
		return err
	}
	*started = true

	p.setItem(logger, item.SessionID, constants.QueueOCRCdv, "", "Reading documents...")
	cdvPDF, err := p.docs.Read(cdvDoc.ID)
	if err != nil {
		return err
	}
	fichePDF, err := p.docs.Read(ficheDoc.ID)
	if err != nil {
		return err
	}

	ocrStart := time.Now()
	res, err := p.sender.Send(ctx, ocr.SubmitRequest{
		SessionID: item.SessionID.String(),
		Product:   item.Product,
		Client:    item.Client,
		CdvPDF:    cdvPDF,
		FichePDF:  fichePDF,
	}, func(step string) {
		elapsed := time.Since(ocrStart).Round(time.Second)
		p.setItem(logger, item.SessionID, constants.QueueOCRFiche, "", fmt.Sprintf("%s (%s)", step, elapsed))
	})
	if err != nil {
		return err
	}

	if err := p.persist(ctx, item.SessionID, res); err != nil {
		return err
	}

	p.setItem(logger, item.SessionID, constants.QueueOCRFiche, "", "Reference enrichment...")
	// Enrichment is best-effort: its failure never fails the item.
	if err := p.enrich(ctx, logger, item, res.Cdv); err != nil {
		logger.Warn("queue.item.enrich_failed", "error", err)
	}
	return nil
}

// persist stores the CDV header, the line items and the raw payloads, then
// moves the session to needs_correction.
func (p *Processor) persist(ctx context.Context, sessionID uuid.UUID, res *ocr.Result) error {
	rawCdv, err := json.Marshal(res.Cdv)
	if err != nil {
		return err
	}
	rawFiche, err := json.Marshal(res.Fiche)
	if err != nil {
		return err
	}
	cdv := res.Cdv
	rawCdvStr := string(rawCdv)
	if err := p.sessions.Update(ctx, sessionID, entity.SessionPatch{
		Truck:         &cdv.Truck,
		ArrivalDate:   &cdv.ArrivalDate,
		FeeTransit:    &cdv.FeeTransit,
		FeeCommission: &cdv.FeeCommission,
		FeeOther:      &cdv.FeeOther,
		OCRRawCdv:     &rawCdvStr,
	}); err != nil {
		return err
	}

	lines := make([]entity.LineItem, len(res.Fiche.Lines))
	for i, l := range res.Fiche.Lines {
		lines[i] = entity.LineItem{
			SessionID:   sessionID,
			Client:      l.Client,
			Product:     l.Product,
			Packages:    l.Packages,
			GrossWeight: l.GrossWeight,
			NetWeight:   l.NetWeight,
			UnitPrice:   l.UnitPrice,
			Order:       i + 1,
		}
	}
	if err := p.sessions.SaveLineItems(ctx, sessionID, lines); err != nil {
		return err
	}

	status := constants.SessionNeedsCorrection
	rawFicheStr := string(rawFiche)
	return p.sessions.Update(ctx, sessionID, entity.SessionPatch{Status: &status, OCRRawFiche: &rawFicheStr})
}

// enrich applies the reference declaration when exactly one matches. No
// match or several matches leave the session for manual enrichment.
func (p *Processor) enrich(ctx context.Context, logger *slog.Logger, item queue.Item, cdv ocr.CdvExtraction) error {
	if p.matcher == nil || cdv.Truck == "" || cdv.ArrivalDate == "" || item.Client == "" {
		return nil
	}
	res, err := p.matcher.Match(ctx, cdv.Truck, cdv.ArrivalDate, item.Client)
	if err != nil {
		return err
	}
	outcome, rec := reference.Resolve(res)
	logger.Info("queue.item.enrich", "outcome", outcome.String(), "candidates", res.Count)
	if outcome != reference.OutcomeSingle {
		return nil
	}
	return p.sessions.Update(ctx, item.SessionID, reference.ToSessionPatch(*rec))
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, item queue.Item, err error, rollback bool) {
	msg := common.UserMessage(err, "Unknown OCR error")
	logger.Error("queue.item.failed", "error", err, "kind", ocr.KindOf(err), "rollback", rollback)
	p.setItem(logger, item.SessionID, constants.QueueError, msg, "")
	if !rollback {
		return
	}
	// The drain may have been cancelled; the rollback must still land.
	rctx := context.WithoutCancel(ctx)
	if rerr := p.sessions.Update(rctx, item.SessionID, entity.StatusPatch(constants.SessionDraft)); rerr != nil {
		logger.Error("queue.item.rollback_failed", "error", rerr)
	}
}

func (p *Processor) setItem(logger *slog.Logger, sessionID uuid.UUID, status constants.QueueItemStatus, errMsg, step string) {
	if err := p.queue.UpdateItem(sessionID, status, errMsg, step); err != nil {
		// The host may have cleared the queue mid-item.
		logger.Debug("queue.item.update_skipped", "status", status, "error", err)
	}
}
