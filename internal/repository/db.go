package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ConfigFrom converts the application database settings.
func ConfigFrom(c common.DatabaseConfig) Config {
	return Config{
		Driver:           c.Driver,
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// DB is the record store handle: an ent SQL driver over either an embedded
// SQLite file or a pgx pool.
type DB struct {
	drv    *entsql.Driver
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the configured database.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case DriverSQLite, "":
		return openSQLite(cfg, logger)
	case DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, common.NewAppError("DB_DRIVER_UNSUPPORTED", fmt.Sprintf("unsupported database driver %q", cfg.Driver), common.ErrConfig)
	}
}

func openSQLite(cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("opening sqlite database", "dsn", cfg.DSN)
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		return nil, common.DatabaseError("DB_OPEN_FAILED", "could not open database", err)
	}
	// SQLite allows a single writer; one connection also keeps in-memory
	// databases alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	return &DB{drv: entsql.OpenDB(dialect.SQLite, db), logger: logger}, nil
}

// openPostgres creates a pgx pool and wraps it for ent.
func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", cfg.Driver)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, common.DatabaseError("DB_DSN_INVALID", "invalid database DSN", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "cdv-tracker"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.DatabaseError("DB_CONNECT_FAILED", "could not connect to database", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, db), pool: pool, logger: logger}, nil
}

// Dialect returns the ent dialect name of the connection.
func (db *DB) Dialect() string {
	return db.drv.Dialect()
}

func (db *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(db.drv.Dialect())
}

// Close closes the database connections gracefully
func (db *DB) Close() {
	db.logger.Info("closing database connections")
	if err := db.drv.Close(); err != nil {
		db.logger.Error("failed to close database driver", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	db.logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	db.logger.Debug("pinging database")
	if err := db.drv.DB().PingContext(ctx); err != nil {
		return common.DatabaseError("DB_PING_FAILED", "database is unreachable", err)
	}
	db.logger.Debug("database ping successful")
	return nil
}

// execer is satisfied by both the driver and a transaction.
type execer interface {
	Exec(ctx context.Context, query string, args, v any) error
}

func exec(ctx context.Context, ex execer, query string, args []any) (int64, error) {
	var res entsql.Result
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// query runs a SELECT and calls scan for each row.
func (db *DB) query(ctx context.Context, query string, args []any, scan func(*entsql.Rows) error) error {
	rows := &entsql.Rows{}
	if err := db.drv.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// withTx runs fn in a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx execer) error) error {
	tx, err := db.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}
