package postgres

import (
	"context"
	"database/sql"
	"time"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

// borrowerLockNamespace is the first key of the two-key advisory lock taken per borrower.
const borrowerLockNamespace = 7301

const loanColumns = `id, user_id, copy_id, borrowed_at, due_at, returned_at, status`

type loanRepository struct {
	db DBTX
}

func NewLoanRepository(db DBTX) repository.LoanRepository {
	return &loanRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	l := &domain.Loan{}
	if err := row.Scan(&l.ID, &l.UserID, &l.CopyID, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt, &l.Status); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	logger.EnterMethod("loanRepository.Create", "userID", l.UserID, "copyID", l.CopyID)

	query := `INSERT INTO loans (user_id, copy_id, borrowed_at, due_at, returned_at, status) 
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, l.UserID, l.CopyID, l.BorrowedAt, l.DueAt, l.ReturnedAt, l.Status).Scan(&l.ID)
	if err != nil {
		logger.ExitMethodWithError("loanRepository.Create", err, "copyID", l.CopyID)
		return err
	}

	logger.ExitMethod("loanRepository.Create", "loanID", l.ID)
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "loan", id)
	}
	return l, nil
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "loan", id)
	}
	return l, nil
}

func (r *loanRepository) Update(ctx context.Context, l *domain.Loan) error {
	logger.DatabaseCall("UPDATE", "loans", "loanID", l.ID, "status", l.Status)
	query := `UPDATE loans SET due_at = $1, returned_at = $2, status = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, l.DueAt, l.ReturnedAt, l.Status, l.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "loanID", l.ID)
		return err
	}
	return requireAffected(result, "loan", l.ID)
}

func (r *loanRepository) Delete(ctx context.Context, id int32) error {
	logger.DatabaseCall("DELETE", "loans", "loanID", id)
	result, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err, "loanID", id)
		return err
	}
	return requireAffected(result, "loan", id)
}

func (r *loanRepository) LockBorrower(ctx context.Context, userID int32) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, borrowerLockNamespace, userID)
	return err
}

func (r *loanRepository) CountOpenByUser(ctx context.Context, userID int32) (int, error) {
	var count int
	query := `SELECT count(*) FROM loans WHERE user_id = $1 AND status IN ('BORROWED', 'OVERDUE')`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func (r *loanRepository) ListByUser(ctx context.Context, userID int32) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1 ORDER BY borrowed_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func (r *loanRepository) ListByStatusDueBefore(ctx context.Context, status domain.LoanStatus, before time.Time) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 AND due_at < $2 ORDER BY due_at`
	rows, err := r.db.QueryContext(ctx, query, status, before)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func (r *loanRepository) ListOverdueWithoutFine(ctx context.Context) ([]domain.Loan, error) {
	query := `SELECT l.id, l.user_id, l.copy_id, l.borrowed_at, l.due_at, l.returned_at, l.status
	          FROM loans l
	          LEFT JOIN fines f ON f.loan_id = l.id
	          WHERE l.status = 'OVERDUE' AND f.id IS NULL
	          ORDER BY l.due_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func collectLoans(rows *sql.Rows) ([]domain.Loan, error) {
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return loans, nil
}
