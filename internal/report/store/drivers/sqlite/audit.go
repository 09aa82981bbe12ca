// Package sqlite records render attempts in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/sqlite/migrations"
)

type AuditLog struct {
	db    *sql.DB
	table string
}

var _ store.AuditLog = (*AuditLog)(nil)

// Open opens the database at dsn. Use DSN to build one from a file path.
func Open(dsn, table string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// concurrent render goroutines.
	db.SetMaxOpenConns(1)
	return New(db, table), nil
}

// New wraps an existing handle.
func New(db *sql.DB, table string) *AuditLog {
	if table == "" {
		table = store.DefaultAuditTable
	}
	return &AuditLog{db: db, table: table}
}

// DSN returns a modernc DSN for path with a busy timeout and WAL enabled.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// ApplyMigrations creates the default audit table. It is a no-op for
// custom table names, which are expected to exist already.
func (a *AuditLog) ApplyMigrations() error {
	if a.table != store.DefaultAuditTable {
		return nil
	}

	driver, err := sqlite.WithInstance(a.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (a *AuditLog) Record(ctx context.Context, rec domain.AuditRecord) error {
	query, args, err := store.AuditInsert(a.table, sq.Question, rec)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: insert audit record: %w", err)
	}
	return nil
}

func (a *AuditLog) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }
func (a *AuditLog) Close() error                   { return a.db.Close() }
