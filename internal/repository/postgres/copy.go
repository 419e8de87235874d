package postgres

import (
	"context"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

type copyRepository struct {
	db DBTX
}

func NewCopyRepository(db DBTX) repository.CopyRepository {
	return &copyRepository{db: db}
}

func (r *copyRepository) GetByID(ctx context.Context, id int32) (*domain.Copy, error) {
	c := &domain.Copy{}
	query := `SELECT id, book_id, COALESCE(copy_code, ''), available FROM book_copies WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.BookID, &c.Code, &c.Available)
	if err != nil {
		return nil, notFoundOr(err, "copy", id)
	}
	return c, nil
}

func (r *copyRepository) SetAvailable(ctx context.Context, id int32, available bool) error {
	logger.DatabaseCall("UPDATE", "book_copies", "copyID", id, "available", available)
	result, err := r.db.ExecContext(ctx, `UPDATE book_copies SET available = $1 WHERE id = $2`, available, id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "copyID", id)
		return err
	}
	return requireAffected(result, "copy", id)
}

// CompareAndSetAvailable is the borrow gate: the WHERE clause makes the
// check and the flip one statement, so concurrent callers cannot both win.
func (r *copyRepository) CompareAndSetAvailable(ctx context.Context, id int32, expected, next bool) (bool, error) {
	logger.DatabaseCall("UPDATE", "book_copies", "copyID", id, "expected", expected, "next", next)
	query := `UPDATE book_copies SET available = $1 WHERE id = $2 AND available = $3`
	result, err := r.db.ExecContext(ctx, query, next, id, expected)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "copyID", id)
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	logger.DatabaseResult("UPDATE", rows, nil, "copyID", id)
	return rows == 1, nil
}
