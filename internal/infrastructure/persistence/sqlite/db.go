package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/pkg/database"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

type contextKey string

const txKey contextKey = "tx"

// DB wraps the database and implements port.TransactionManager. Repositories
// pick up a transaction started by WithTransaction from the context.
type DB struct {
	*database.DB
	logger *zap.Logger
}

// Open connects to the database and applies the embedded schema migrations
func Open(ctx context.Context, cfg database.Config, logger *zap.Logger) (*DB, error) {
	conn, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(conn, logger).Run(ctx, migrations, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{DB: conn, logger: logger}, nil
}

// WithTransaction runs fn inside a transaction, reusing one already present
// in ctx
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if extractTx(ctx) != nil {
		return fn(ctx)
	}

	return db.DB.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(context.WithValue(ctx, txKey, tx))
	})
}

// Executor returns the transaction in ctx, or the database itself
func (db *DB) Executor(ctx context.Context) Executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db.DB.DB
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

var _ port.TransactionManager = (*DB)(nil)
