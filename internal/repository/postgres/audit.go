package postgres

import (
	"context"
	"time"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

type auditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) repository.AuditRepository {
	return &auditRepository{db: db}
}

// Create stores an entry; a zero UserID is stored as NULL (system actions).
func (r *auditRepository) Create(ctx context.Context, e *domain.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var userID *int32
	if e.UserID != 0 {
		userID = &e.UserID
	}
	query := `INSERT INTO audit_logs (user_id, action, created_at) VALUES ($1, $2, $3) RETURNING id`
	return r.db.QueryRowContext(ctx, query, userID, e.Action, e.CreatedAt).Scan(&e.ID)
}

func (r *auditRepository) ListByUser(ctx context.Context, userID int32) ([]domain.AuditEntry, error) {
	query := `SELECT id, user_id, action, created_at FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
