// Package postgres records render attempts in a Postgres table through the
// pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/postgres/migrations"
)

type AuditLog struct {
	db    *sql.DB
	table string
}

var _ store.AuditLog = (*AuditLog)(nil)

func Open(dsn, table string) (*AuditLog, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return New(db, table), nil
}

func New(db *sql.DB, table string) *AuditLog {
	if table == "" {
		table = store.DefaultAuditTable
	}
	return &AuditLog{db: db, table: table}
}

// ApplyMigrations creates the default audit table. Custom table names are
// left to the operator.
func (a *AuditLog) ApplyMigrations() error {
	if a.table != store.DefaultAuditTable {
		return nil
	}

	driver, err := migratepgx.WithInstance(a.db, &migratepgx.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (a *AuditLog) Record(ctx context.Context, rec domain.AuditRecord) error {
	query, args, err := store.AuditInsert(a.table, sq.Dollar, rec)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: insert audit record: %w", err)
	}
	return nil
}

func (a *AuditLog) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }
func (a *AuditLog) Close() error                   { return a.db.Close() }
