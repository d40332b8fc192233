package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

// insertBatchSize bounds the bind parameters of one multi-row INSERT.
const insertBatchSize = 500

var referenceColumns = []string{
	"fee_eu", "fee_intl", "net_weight", "declared_unit_value", "declaration_time",
	"internal_ref", "importer_name", "supplier_name", "order_number", "truck_id",
}

// ReferenceRepository is the local cache of the external declaration and
// closure datasets.
type ReferenceRepository interface {
	ClearRecords(ctx context.Context) error
	InsertRecords(ctx context.Context, recs []entity.ReferenceRecord) error
	// Match returns records whose truck id contains truck, whose declaration
	// time is in [from, until) and whose importer equals client.
	Match(ctx context.Context, truck, from, until, client string) ([]entity.ReferenceRecord, error)
	Count(ctx context.Context) (int, error)
	DistinctClients(ctx context.Context) ([]string, error)
	// ListUnmatched returns records no matched session points at, newest first.
	ListUnmatched(ctx context.Context) ([]entity.ReferenceRecord, error)
	ClearClosures(ctx context.Context) error
	InsertClosures(ctx context.Context, recs []entity.ClosureRecord) error
	ListClosures(ctx context.Context) ([]entity.ClosureRecord, error)
}

type referenceRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewReferenceRepository(db *DB, logger *slog.Logger) ReferenceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &referenceRepository{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (r *referenceRepository) ClearRecords(ctx context.Context) error {
	q, args := r.db.builder().Delete(referencesTable).Query()
	if _, err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to clear reference records", "error", err)
		return common.DatabaseError("DB_REFERENCE_CLEAR_FAILED", "could not clear the reference cache", err)
	}
	return nil
}

func (r *referenceRepository) InsertRecords(ctx context.Context, recs []entity.ReferenceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	b := r.db.builder()
	syncedAt := r.now()
	cols := append(append([]string{}, referenceColumns...), "synced_at")

	err := r.db.withTx(ctx, func(tx execer) error {
		for start := 0; start < len(recs); start += insertBatchSize {
			end := min(start+insertBatchSize, len(recs))
			ins := b.Insert(referencesTable).Columns(cols...)
			for _, rec := range recs[start:end] {
				ins.Values(
					nullFloat(rec.FeeEU), nullFloat(rec.FeeIntl), nullFloat(rec.NetWeight),
					nullFloat(rec.DeclaredUnitValue), nullString(rec.DeclarationTime),
					nullString(rec.InternalRef), nullString(rec.ImporterName),
					nullString(rec.SupplierName), nullString(rec.OrderNumber),
					nullString(rec.TruckID), syncedAt,
				)
			}
			q, args := ins.Query()
			if _, err := exec(ctx, tx, q, args); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to insert reference records", "count", len(recs), "error", err)
		return common.DatabaseError("DB_REFERENCE_INSERT_FAILED", "could not store reference records", err)
	}
	return nil
}

func (r *referenceRepository) Match(ctx context.Context, truck, from, until, client string) ([]entity.ReferenceRecord, error) {
	b := r.db.builder()
	q, args := b.Select(referenceColumns...).
		From(b.Table(referencesTable)).
		Where(entsql.And(
			entsql.Contains("truck_id", truck),
			entsql.GTE("declaration_time", from),
			entsql.LT("declaration_time", until),
			entsql.EQ("importer_name", client),
		)).
		OrderBy("declaration_time", "id").
		Query()

	out, err := r.selectRecords(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to match reference records", "truck", truck, "client", client, "error", err)
		return nil, common.DatabaseError("DB_REFERENCE_MATCH_FAILED", "could not search the reference cache", err)
	}
	return out, nil
}

func (r *referenceRepository) Count(ctx context.Context) (int, error) {
	b := r.db.builder()
	q, args := b.Select(entsql.Count("*")).From(b.Table(referencesTable)).Query()
	var n int
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		return rows.Scan(&n)
	})
	if err != nil {
		return 0, common.DatabaseError("DB_REFERENCE_COUNT_FAILED", "could not count reference records", err)
	}
	return n, nil
}

func (r *referenceRepository) DistinctClients(ctx context.Context) ([]string, error) {
	b := r.db.builder()
	q, args := b.Select("importer_name").
		Distinct().
		From(b.Table(referencesTable)).
		Where(entsql.And(entsql.NotNull("importer_name"), entsql.NEQ("importer_name", ""))).
		OrderBy("importer_name").
		Query()

	var out []string
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, common.DatabaseError("DB_REFERENCE_CLIENTS_FAILED", "could not list reference clients", err)
	}
	return out, nil
}

func (r *referenceRepository) ListUnmatched(ctx context.Context) ([]entity.ReferenceRecord, error) {
	b := r.db.builder()
	matched := b.Select("file_number").
		From(b.Table(sessionsTable)).
		Where(entsql.And(entsql.EQ("reference_matched", true), entsql.NEQ("file_number", "")))

	q, args := b.Select(referenceColumns...).
		From(b.Table(referencesTable)).
		Where(entsql.Or(
			entsql.IsNull("internal_ref"),
			entsql.EQ("internal_ref", ""),
			entsql.NotIn("internal_ref", matched),
		)).
		OrderBy(entsql.Desc("declaration_time")).
		Query()

	out, err := r.selectRecords(ctx, q, args)
	if err != nil {
		return nil, common.DatabaseError("DB_REFERENCE_UNMATCHED_FAILED", "could not list unprocessed declarations", err)
	}
	return out, nil
}

func (r *referenceRepository) selectRecords(ctx context.Context, q string, args []any) ([]entity.ReferenceRecord, error) {
	out := []entity.ReferenceRecord{}
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			feeEU, feeIntl, weight, value                entsql.NullFloat64
			bae, ref, importer, supplier, order, truckID entsql.NullString
		)
		if err := rows.Scan(&feeEU, &feeIntl, &weight, &value, &bae, &ref, &importer, &supplier, &order, &truckID); err != nil {
			return err
		}
		out = append(out, entity.ReferenceRecord{
			FeeEU:             floatPtr(feeEU),
			FeeIntl:           floatPtr(feeIntl),
			NetWeight:         floatPtr(weight),
			DeclaredUnitValue: floatPtr(value),
			DeclarationTime:   stringPtr(bae),
			InternalRef:       stringPtr(ref),
			ImporterName:      stringPtr(importer),
			SupplierName:      stringPtr(supplier),
			OrderNumber:       stringPtr(order),
			TruckID:           stringPtr(truckID),
		})
		return nil
	})
	return out, err
}

func (r *referenceRepository) ClearClosures(ctx context.Context) error {
	q, args := r.db.builder().Delete(closuresTable).Query()
	if _, err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to clear closure records", "error", err)
		return common.DatabaseError("DB_CLOSURE_CLEAR_FAILED", "could not clear the closure cache", err)
	}
	return nil
}

func (r *referenceRepository) InsertClosures(ctx context.Context, recs []entity.ClosureRecord) error {
	if len(recs) == 0 {
		return nil
	}
	b := r.db.builder()
	syncedAt := r.now()
	err := r.db.withTx(ctx, func(tx execer) error {
		for start := 0; start < len(recs); start += insertBatchSize {
			end := min(start+insertBatchSize, len(recs))
			ins := b.Insert(closuresTable).Columns("file_number", "internal_ref", "synced_at")
			for _, rec := range recs[start:end] {
				ins.Values(nullString(rec.FileNumber), nullString(rec.InternalRef), syncedAt)
			}
			q, args := ins.Query()
			if _, err := exec(ctx, tx, q, args); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to insert closure records", "count", len(recs), "error", err)
		return common.DatabaseError("DB_CLOSURE_INSERT_FAILED", "could not store closure records", err)
	}
	return nil
}

func (r *referenceRepository) ListClosures(ctx context.Context) ([]entity.ClosureRecord, error) {
	b := r.db.builder()
	q, args := b.Select("file_number", "internal_ref", "synced_at").
		From(b.Table(closuresTable)).
		OrderBy(entsql.Desc("synced_at"), "id").
		Query()

	out := []entity.ClosureRecord{}
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			file, ref entsql.NullString
			rec       entity.ClosureRecord
		)
		if err := rows.Scan(&file, &ref, &rec.SyncedAt); err != nil {
			return err
		}
		rec.FileNumber, rec.InternalRef = stringPtr(file), stringPtr(ref)
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, common.DatabaseError("DB_CLOSURE_LIST_FAILED", "could not list closure records", err)
	}
	return out, nil
}

func nullFloat(v *float64) entsql.NullFloat64 {
	if v == nil {
		return entsql.NullFloat64{}
	}
	return entsql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) entsql.NullString {
	if v == nil {
		return entsql.NullString{}
	}
	return entsql.NullString{String: *v, Valid: true}
}

func floatPtr(v entsql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtr(v entsql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
