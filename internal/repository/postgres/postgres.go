package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db    *sql.DB
	repos *repository.Repositories
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		repos: newRepositories(db),
	}
}

func newRepositories(q DBTX) *repository.Repositories {
	return &repository.Repositories{
		Users:         NewUserRepository(q),
		Books:         NewBookRepository(q),
		Copies:        NewCopyRepository(q),
		Loans:         NewLoanRepository(q),
		Reservations:  NewReservationRepository(q),
		Fines:         NewFineRepository(q),
		Notifications: NewNotificationRepository(q),
		Audit:         NewAuditRepository(q),
	}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// WithinTx runs fn in a single transaction. Row locks taken through the
// repositories (FOR UPDATE, advisory locks) are held until commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
