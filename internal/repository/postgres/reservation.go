package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

const reservationColumns = `id, user_id, book_id, reserved_at, expires_at, status`

type reservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	if err := row.Scan(&res.ID, &res.UserID, &res.BookID, &res.ReservedAt, &res.ExpiresAt, &res.Status); err != nil {
		return nil, err
	}
	return res, nil
}

// Create relies on the partial unique index over active reservations; a
// duplicate (user, book) pair surfaces as domain.ErrConflict.
func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	logger.EnterMethod("reservationRepository.Create", "userID", res.UserID, "bookID", res.BookID)

	query := `INSERT INTO reservations (user_id, book_id, reserved_at, expires_at, status) 
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, res.UserID, res.BookID, res.ReservedAt, res.ExpiresAt, res.Status).Scan(&res.ID)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("active reservation exists for user %d and book %d: %w", res.UserID, res.BookID, domain.ErrConflict)
		}
		logger.ExitMethodWithError("reservationRepository.Create", err, "userID", res.UserID)
		return err
	}

	logger.ExitMethod("reservationRepository.Create", "reservationID", res.ID)
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int32) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return res, nil
}

func (r *reservationRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return res, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	logger.DatabaseCall("UPDATE", "reservations", "reservationID", res.ID, "status", res.Status)
	query := `UPDATE reservations SET expires_at = $1, status = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, res.ExpiresAt, res.Status, res.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "reservationID", res.ID)
		return err
	}
	return requireAffected(result, "reservation", res.ID)
}

func (r *reservationRepository) ExistsActive(ctx context.Context, userID, bookID int32) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM reservations WHERE user_id = $1 AND book_id = $2 AND status IN ('PENDING', 'APPROVED'))`
	err := r.db.QueryRowContext(ctx, query, userID, bookID).Scan(&exists)
	return exists, err
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID int32) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 ORDER BY reserved_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *reservationRepository) ListPendingExpiredBefore(ctx context.Context, before time.Time) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations 
	          WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at < $1 
	          ORDER BY expires_at`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
