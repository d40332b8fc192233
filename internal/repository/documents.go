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

type DocumentRepository interface {
	SaveGenerated(ctx context.Context, doc *entity.GeneratedDocument) (*entity.GeneratedDocument, error)
	ListGenerated(ctx context.Context, sessionID uuid.UUID) ([]entity.GeneratedDocument, error)
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{db: db, logger: logger}
}

func (r *documentRepository) SaveGenerated(ctx context.Context, doc *entity.GeneratedDocument) (*entity.GeneratedDocument, error) {
	out := *doc
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.GeneratedAt.IsZero() {
		out.GeneratedAt = time.Now().UTC()
	}
	q, args := r.db.builder().Insert(generatedTable).
		Columns("id", "session_id", "kind", "file_path", "generated_at").
		Values(out.ID, out.SessionID, string(out.Kind), out.FilePath, out.GeneratedAt).
		Query()
	if _, err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to save generated document", "session_id", out.SessionID, "kind", out.Kind, "error", err)
		return nil, common.DatabaseError("DB_DOCUMENT_SAVE_FAILED", "could not record generated document", err)
	}
	return &out, nil
}

// ListGenerated returns the session's documents, newest first.
func (r *documentRepository) ListGenerated(ctx context.Context, sessionID uuid.UUID) ([]entity.GeneratedDocument, error) {
	b := r.db.builder()
	q, args := b.Select("id", "session_id", "kind", "file_path", "generated_at").
		From(b.Table(generatedTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Desc("generated_at")).
		Query()

	out := []entity.GeneratedDocument{}
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			d    entity.GeneratedDocument
			kind string
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &kind, &d.FilePath, &d.GeneratedAt); err != nil {
			return err
		}
		d.Kind = constants.GeneratedKind(kind)
		out = append(out, d)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list generated documents", "session_id", sessionID, "error", err)
		return nil, common.DatabaseError("DB_DOCUMENT_LIST_FAILED", "could not list generated documents", err)
	}
	return out, nil
}
