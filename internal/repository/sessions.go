package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

var sessionColumns = []string{
	"id", "status", "product", "lot_number", "truck", "arrival_date",
	"fee_transit", "fee_commission", "fee_other", "fee_eu", "fee_intl",
	"declared_weight", "declared_unit_price", "declaration_date", "file_number",
	"client", "supplier", "declaration_number", "pdf_cdv_path", "pdf_fiche_lot_path",
	"ocr_raw_cdv", "ocr_raw_fiche", "reference_matched", "created_at", "updated_at",
}

var lineItemColumns = []string{
	"id", "session_id", "client", "product", "packages",
	"gross_weight", "net_weight", "unit_price", "position",
}

// ErrSessionNotFound is returned when no session has the requested id.
var ErrSessionNotFound = common.NewAppError("SESSION_NOT_FOUND", "session not found", common.ErrNotFound)

type SessionRepository interface {
	Create(ctx context.Context, s *entity.Session) (*entity.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	List(ctx context.Context) ([]*entity.Session, error)
	ListByStatus(ctx context.Context, statuses ...constants.SessionStatus) ([]*entity.Session, error)
	Update(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) error
	Delete(ctx context.Context, id uuid.UUID) error
	SaveLineItems(ctx context.Context, sessionID uuid.UUID, items []entity.LineItem) error
	GetLineItems(ctx context.Context, sessionID uuid.UUID) ([]entity.LineItem, error)
	AutoClose(ctx context.Context) (int64, error)
}

type sessionRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewSessionRepository(db *DB, logger *slog.Logger) SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionRepository{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (r *sessionRepository) Create(ctx context.Context, s *entity.Session) (*entity.Session, error) {
	out := *s
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.Status == "" {
		out.Status = constants.SessionDraft
	}
	now := r.now()
	out.CreatedAt, out.UpdatedAt = now, now

	q, args := r.db.builder().Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			out.ID, string(out.Status), out.Product, out.LotNumber, out.Truck, out.ArrivalDate,
			out.FeeTransit, out.FeeCommission, out.FeeOther, out.FeeEU, out.FeeIntl,
			out.DeclaredWeight, out.DeclaredUnitPrice, out.DeclarationDate, out.FileNumber,
			out.Client, out.Supplier, out.DeclarationNumber, out.PDFCdvPath, out.PDFFicheLotPath,
			out.OCRRawCdv, out.OCRRawFiche, out.ReferenceMatched, out.CreatedAt, out.UpdatedAt,
		).Query()
	if _, err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to create session", "session_id", out.ID, "error", err)
		return nil, common.DatabaseError("DB_SESSION_CREATE_FAILED", "could not create session", err)
	}
	return &out, nil
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	b := r.db.builder()
	q, args := b.Select(sessionColumns...).
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var found *entity.Session
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		s, err := scanSession(rows)
		found = s
		return err
	})
	if err != nil {
		r.logger.Error("failed to get session", "session_id", id, "error", err)
		return nil, common.DatabaseError("DB_SESSION_GET_FAILED", "could not load session", err)
	}
	if found == nil {
		return nil, ErrSessionNotFound
	}
	return found, nil
}

func (r *sessionRepository) List(ctx context.Context) ([]*entity.Session, error) {
	return r.ListByStatus(ctx)
}

// ListByStatus returns sessions newest first, optionally filtered by status.
func (r *sessionRepository) ListByStatus(ctx context.Context, statuses ...constants.SessionStatus) ([]*entity.Session, error) {
	b := r.db.builder()
	sel := b.Select(sessionColumns...).From(b.Table(sessionsTable))
	if len(statuses) > 0 {
		vals := make([]any, len(statuses))
		for i, s := range statuses {
			vals[i] = string(s)
		}
		sel = sel.Where(entsql.In("status", vals...))
	}
	q, args := sel.OrderBy(entsql.Desc("created_at")).Query()

	var out []*entity.Session
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		s, err := scanSession(rows)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list sessions", "error", err)
		return nil, common.DatabaseError("DB_SESSION_LIST_FAILED", "could not list sessions", err)
	}
	return out, nil
}

func (r *sessionRepository) Update(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) error {
	u := r.db.builder().Update(sessionsTable)
	setStr := func(col string, v *string) {
		if v != nil {
			u.Set(col, *v)
		}
	}
	setNum := func(col string, v *float64) {
		if v != nil {
			u.Set(col, *v)
		}
	}
	if patch.Status != nil {
		u.Set("status", string(*patch.Status))
	}
	setStr("product", patch.Product)
	setStr("lot_number", patch.LotNumber)
	setStr("truck", patch.Truck)
	setStr("arrival_date", patch.ArrivalDate)
	setNum("fee_transit", patch.FeeTransit)
	setNum("fee_commission", patch.FeeCommission)
	setNum("fee_other", patch.FeeOther)
	setNum("fee_eu", patch.FeeEU)
	setNum("fee_intl", patch.FeeIntl)
	setNum("declared_weight", patch.DeclaredWeight)
	setNum("declared_unit_price", patch.DeclaredUnitPrice)
	setStr("declaration_date", patch.DeclarationDate)
	setStr("file_number", patch.FileNumber)
	setStr("client", patch.Client)
	setStr("supplier", patch.Supplier)
	setStr("declaration_number", patch.DeclarationNumber)
	setStr("pdf_cdv_path", patch.PDFCdvPath)
	setStr("pdf_fiche_lot_path", patch.PDFFicheLotPath)
	setStr("ocr_raw_cdv", patch.OCRRawCdv)
	setStr("ocr_raw_fiche", patch.OCRRawFiche)
	if patch.ReferenceMatched != nil {
		u.Set("reference_matched", *patch.ReferenceMatched)
	}
	u.Set("updated_at", r.now())

	q, args := u.Where(entsql.EQ("id", id)).Query()
	n, err := exec(ctx, r.db.drv, q, args)
	if err != nil {
		r.logger.Error("failed to update session", "session_id", id, "error", err)
		return common.DatabaseError("DB_SESSION_UPDATE_FAILED", "could not update session", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	b := r.db.builder()
	err := r.db.withTx(ctx, func(tx execer) error {
		q, args := b.Delete(lineItemsTable).Where(entsql.EQ("session_id", id)).Query()
		if _, err := exec(ctx, tx, q, args); err != nil {
			return err
		}
		q, args = b.Delete(generatedTable).Where(entsql.EQ("session_id", id)).Query()
		if _, err := exec(ctx, tx, q, args); err != nil {
			return err
		}
		q, args = b.Delete(sessionsTable).Where(entsql.EQ("id", id)).Query()
		_, err := exec(ctx, tx, q, args)
		return err
	})
	if err != nil {
		r.logger.Error("failed to delete session", "session_id", id, "error", err)
		return common.DatabaseError("DB_SESSION_DELETE_FAILED", "could not delete session", err)
	}
	return nil
}

// SaveLineItems replaces every line of the session. Lines get fresh ids and
// their position from the slice order.
func (r *sessionRepository) SaveLineItems(ctx context.Context, sessionID uuid.UUID, items []entity.LineItem) error {
	b := r.db.builder()
	err := r.db.withTx(ctx, func(tx execer) error {
		q, args := b.Delete(lineItemsTable).Where(entsql.EQ("session_id", sessionID)).Query()
		if _, err := exec(ctx, tx, q, args); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		ins := b.Insert(lineItemsTable).Columns(lineItemColumns...)
		for i, it := range items {
			ins.Values(uuid.New(), sessionID, it.Client, it.Product, it.Packages,
				it.GrossWeight, it.NetWeight, it.UnitPrice, i+1)
		}
		q, args = ins.Query()
		_, err := exec(ctx, tx, q, args)
		return err
	})
	if err != nil {
		r.logger.Error("failed to save line items", "session_id", sessionID, "count", len(items), "error", err)
		return common.DatabaseError("DB_LINES_SAVE_FAILED", "could not save sale lines", err)
	}
	r.logger.Debug("line items saved", "session_id", sessionID, "count", len(items))
	return nil
}

func (r *sessionRepository) GetLineItems(ctx context.Context, sessionID uuid.UUID) ([]entity.LineItem, error) {
	b := r.db.builder()
	q, args := b.Select(lineItemColumns...).
		From(b.Table(lineItemsTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("position").
		Query()

	out := []entity.LineItem{}
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var li entity.LineItem
		if err := rows.Scan(&li.ID, &li.SessionID, &li.Client, &li.Product, &li.Packages,
			&li.GrossWeight, &li.NetWeight, &li.UnitPrice, &li.Order); err != nil {
			return err
		}
		out = append(out, li)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to get line items", "session_id", sessionID, "error", err)
		return nil, common.DatabaseError("DB_LINES_GET_FAILED", "could not load sale lines", err)
	}
	return out, nil
}

// AutoClose moves generated sessions whose file number appears in the
// closure dataset to closed, and returns how many moved.
func (r *sessionRepository) AutoClose(ctx context.Context) (int64, error) {
	b := r.db.builder()
	closed := b.Select("internal_ref").
		From(b.Table(closuresTable)).
		Where(entsql.And(entsql.NotNull("internal_ref"), entsql.NEQ("internal_ref", "")))

	q, args := b.Update(sessionsTable).
		Set("status", string(constants.SessionClosed)).
		Set("updated_at", r.now()).
		Where(entsql.And(
			entsql.EQ("status", string(constants.SessionGenerated)),
			entsql.In("file_number", closed),
		)).
		Query()
	n, err := exec(ctx, r.db.drv, q, args)
	if err != nil {
		r.logger.Error("failed to auto-close sessions", "error", err)
		return 0, common.DatabaseError("DB_AUTO_CLOSE_FAILED", "could not auto-close sessions", err)
	}
	if n > 0 {
		r.logger.Info("sessions auto-closed", "count", n)
	}
	return n, nil
}

func scanSession(rows *entsql.Rows) (*entity.Session, error) {
	var (
		s      entity.Session
		status string
	)
	err := rows.Scan(
		&s.ID, &status, &s.Product, &s.LotNumber, &s.Truck, &s.ArrivalDate,
		&s.FeeTransit, &s.FeeCommission, &s.FeeOther, &s.FeeEU, &s.FeeIntl,
		&s.DeclaredWeight, &s.DeclaredUnitPrice, &s.DeclarationDate, &s.FileNumber,
		&s.Client, &s.Supplier, &s.DeclarationNumber, &s.PDFCdvPath, &s.PDFFicheLotPath,
		&s.OCRRawCdv, &s.OCRRawFiche, &s.ReferenceMatched, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = constants.SessionStatus(status)
	return &s, nil
}
