package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

const fineColumns = `id, loan_id, amount, paid, created_at, paid_at`

type fineRepository struct {
	db DBTX
}

func NewFineRepository(db DBTX) repository.FineRepository {
	return &fineRepository{db: db}
}

func scanFine(row rowScanner) (*domain.Fine, error) {
	f := &domain.Fine{}
	if err := row.Scan(&f.ID, &f.LoanID, &f.Amount, &f.Paid, &f.CreatedAt, &f.PaidAt); err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts at most one fine per loan. ON CONFLICT returns no row when
// the loan is already fined.
func (r *fineRepository) Create(ctx context.Context, f *domain.Fine) error {
	logger.EnterMethod("fineRepository.Create", "loanID", f.LoanID, "amount", f.Amount.StringFixed(2))

	query := `INSERT INTO fines (loan_id, amount, paid, created_at, paid_at) 
	          VALUES ($1, $2, $3, $4, $5) 
	          ON CONFLICT (loan_id) DO NOTHING RETURNING id`
	err := r.db.QueryRowContext(ctx, query, f.LoanID, f.Amount, f.Paid, f.CreatedAt, f.PaidAt).Scan(&f.ID)
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		err = fmt.Errorf("loan %d already fined: %w", f.LoanID, domain.ErrConflict)
	}
	if err != nil {
		logger.ExitMethodWithError("fineRepository.Create", err, "loanID", f.LoanID)
		return err
	}

	logger.ExitMethod("fineRepository.Create", "fineID", f.ID)
	return nil
}

func (r *fineRepository) GetByID(ctx context.Context, id int32) (*domain.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE id = $1`
	f, err := scanFine(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "fine", id)
	}
	return f, nil
}

func (r *fineRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE id = $1 FOR UPDATE`
	f, err := scanFine(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "fine", id)
	}
	return f, nil
}

func (r *fineRepository) GetByLoanID(ctx context.Context, loanID int32) (*domain.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE loan_id = $1`
	f, err := scanFine(r.db.QueryRowContext(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fine for loan %d: %w", loanID, domain.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (r *fineRepository) Update(ctx context.Context, f *domain.Fine) error {
	logger.DatabaseCall("UPDATE", "fines", "fineID", f.ID, "paid", f.Paid)
	result, err := r.db.ExecContext(ctx, `UPDATE fines SET paid = $1, paid_at = $2 WHERE id = $3`, f.Paid, f.PaidAt, f.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "fineID", f.ID)
		return err
	}
	return requireAffected(result, "fine", f.ID)
}

func (r *fineRepository) DeleteByLoanID(ctx context.Context, loanID int32) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fines WHERE loan_id = $1`, loanID)
	return err
}

func (r *fineRepository) ListUnpaid(ctx context.Context) ([]domain.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE paid = FALSE ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fines []domain.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		fines = append(fines, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fines, nil
}
