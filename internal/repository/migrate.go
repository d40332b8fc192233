package repository

import (
	"context"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

const (
	sessionsTable   = "cdv_sessions"
	lineItemsTable  = "line_items"
	generatedTable  = "generated_documents"
	referencesTable = "reference_records"
	closuresTable   = "closure_records"
)

var (
	// SessionsColumns holds the columns for the "cdv_sessions" table.
	SessionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "status", Type: field.TypeString, Default: "draft"},
		{Name: "product", Type: field.TypeString, Default: ""},
		{Name: "lot_number", Type: field.TypeString, Default: ""},
		{Name: "truck", Type: field.TypeString, Default: ""},
		{Name: "arrival_date", Type: field.TypeString, Default: ""},
		{Name: "fee_transit", Type: field.TypeFloat64, Default: 0},
		{Name: "fee_commission", Type: field.TypeFloat64, Default: 0},
		{Name: "fee_other", Type: field.TypeFloat64, Default: 0},
		{Name: "fee_eu", Type: field.TypeFloat64, Default: 0},
		{Name: "fee_intl", Type: field.TypeFloat64, Default: 0},
		{Name: "declared_weight", Type: field.TypeFloat64, Default: 0},
		{Name: "declared_unit_price", Type: field.TypeFloat64, Default: 0},
		{Name: "declaration_date", Type: field.TypeString, Default: ""},
		{Name: "file_number", Type: field.TypeString, Default: ""},
		{Name: "client", Type: field.TypeString, Default: ""},
		{Name: "supplier", Type: field.TypeString, Default: ""},
		{Name: "declaration_number", Type: field.TypeString, Default: ""},
		{Name: "pdf_cdv_path", Type: field.TypeString, Default: ""},
		{Name: "pdf_fiche_lot_path", Type: field.TypeString, Default: ""},
		{Name: "ocr_raw_cdv", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "ocr_raw_fiche", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "reference_matched", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// SessionsTable holds the schema information for the "cdv_sessions" table.
	SessionsTable = &schema.Table{
		Name:       sessionsTable,
		Columns:    SessionsColumns,
		PrimaryKey: []*schema.Column{SessionsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "cdvsession_status", Columns: []*schema.Column{SessionsColumns[1]}},
			{Name: "cdvsession_reference_matched", Columns: []*schema.Column{SessionsColumns[22]}},
		},
	}

	// LineItemsColumns holds the columns for the "line_items" table.
	LineItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "client", Type: field.TypeString, Default: ""},
		{Name: "product", Type: field.TypeString, Default: ""},
		{Name: "packages", Type: field.TypeInt, Default: 0},
		{Name: "gross_weight", Type: field.TypeFloat64, Default: 0},
		{Name: "net_weight", Type: field.TypeFloat64, Default: 0},
		{Name: "unit_price", Type: field.TypeFloat64, Default: 0},
		{Name: "position", Type: field.TypeInt, Default: 0},
		{Name: "session_id", Type: field.TypeUUID},
	}
	// LineItemsTable holds the schema information for the "line_items" table.
	LineItemsTable = &schema.Table{
		Name:       lineItemsTable,
		Columns:    LineItemsColumns,
		PrimaryKey: []*schema.Column{LineItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "line_items_cdv_sessions_line_items",
				Columns:    []*schema.Column{LineItemsColumns[8]},
				RefColumns: []*schema.Column{SessionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "lineitem_session_id_position", Columns: []*schema.Column{LineItemsColumns[8], LineItemsColumns[7]}},
		},
	}

	// GeneratedDocumentsColumns holds the columns for the "generated_documents" table.
	GeneratedDocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "kind", Type: field.TypeString},
		{Name: "file_path", Type: field.TypeString, Default: ""},
		{Name: "generated_at", Type: field.TypeTime},
		{Name: "session_id", Type: field.TypeUUID},
	}
	// GeneratedDocumentsTable holds the schema information for the "generated_documents" table.
	GeneratedDocumentsTable = &schema.Table{
		Name:       generatedTable,
		Columns:    GeneratedDocumentsColumns,
		PrimaryKey: []*schema.Column{GeneratedDocumentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "generated_documents_cdv_sessions_documents",
				Columns:    []*schema.Column{GeneratedDocumentsColumns[4]},
				RefColumns: []*schema.Column{SessionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	// ReferenceRecordsColumns holds the columns for the "reference_records" table.
	ReferenceRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "fee_eu", Type: field.TypeFloat64, Nullable: true},
		{Name: "fee_intl", Type: field.TypeFloat64, Nullable: true},
		{Name: "net_weight", Type: field.TypeFloat64, Nullable: true},
		{Name: "declared_unit_value", Type: field.TypeFloat64, Nullable: true},
		{Name: "declaration_time", Type: field.TypeString, Nullable: true},
		{Name: "internal_ref", Type: field.TypeString, Nullable: true},
		{Name: "importer_name", Type: field.TypeString, Nullable: true},
		{Name: "supplier_name", Type: field.TypeString, Nullable: true},
		{Name: "order_number", Type: field.TypeString, Nullable: true},
		{Name: "truck_id", Type: field.TypeString, Nullable: true},
		{Name: "synced_at", Type: field.TypeTime},
	}
	// ReferenceRecordsTable holds the schema information for the "reference_records" table.
	ReferenceRecordsTable = &schema.Table{
		Name:       referencesTable,
		Columns:    ReferenceRecordsColumns,
		PrimaryKey: []*schema.Column{ReferenceRecordsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "referencerecord_importer_name_declaration_time", Columns: []*schema.Column{ReferenceRecordsColumns[7], ReferenceRecordsColumns[5]}},
		},
	}

	// ClosureRecordsColumns holds the columns for the "closure_records" table.
	ClosureRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "file_number", Type: field.TypeString, Nullable: true},
		{Name: "internal_ref", Type: field.TypeString, Nullable: true},
		{Name: "synced_at", Type: field.TypeTime},
	}
	// ClosureRecordsTable holds the schema information for the "closure_records" table.
	ClosureRecordsTable = &schema.Table{
		Name:       closuresTable,
		Columns:    ClosureRecordsColumns,
		PrimaryKey: []*schema.Column{ClosureRecordsColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		SessionsTable,
		LineItemsTable,
		GeneratedDocumentsTable,
		ReferenceRecordsTable,
		ClosureRecordsTable,
	}
)

func init() {
	LineItemsTable.ForeignKeys[0].RefTable = SessionsTable
	GeneratedDocumentsTable.ForeignKeys[0].RefTable = SessionsTable
}

// Migrate creates or upgrades the schema.
func (db *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(db.drv, schema.WithForeignKeys(true))
	if err != nil {
		return common.DatabaseError("DB_MIGRATE_FAILED", "could not prepare schema migration", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		db.logger.Error("schema migration failed", "error", err)
		return common.DatabaseError("DB_MIGRATE_FAILED", "could not migrate schema", err)
	}
	db.logger.Info("schema migrated", "dialect", db.Dialect(), "tables", len(Tables))
	return nil
}
