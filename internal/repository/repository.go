package repository

import (
	"context"
	"time"

	"library-lending-core/internal/domain"
)

// Lookups that miss return an error wrapping domain.ErrNotFound.

type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
}

type BookRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Book, error)
}

type CopyRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Copy, error)
	SetAvailable(ctx context.Context, id int32, available bool) error
	// CompareAndSetAvailable flips the flag only if it currently equals expected.
	// It reports whether the swap happened.
	CompareAndSetAvailable(ctx context.Context, id int32, expected, next bool) (bool, error)
}

type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error
	GetByID(ctx context.Context, id int32) (*domain.Loan, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Loan, error)
	Update(ctx context.Context, loan *domain.Loan) error
	Delete(ctx context.Context, id int32) error
	// LockBorrower serializes loan creation for one borrower within a transaction.
	LockBorrower(ctx context.Context, userID int32) error
	CountOpenByUser(ctx context.Context, userID int32) (int, error)
	ListByUser(ctx context.Context, userID int32) ([]domain.Loan, error)
	ListByStatusDueBefore(ctx context.Context, status domain.LoanStatus, before time.Time) ([]domain.Loan, error)
	ListOverdueWithoutFine(ctx context.Context) ([]domain.Loan, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, res *domain.Reservation) error
	GetByID(ctx context.Context, id int32) (*domain.Reservation, error)
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Reservation, error)
	Update(ctx context.Context, res *domain.Reservation) error
	ExistsActive(ctx context.Context, userID, bookID int32) (bool, error)
	ListByUser(ctx context.Context, userID int32) ([]domain.Reservation, error)
	ListPendingExpiredBefore(ctx context.Context, before time.Time) ([]domain.Reservation, error)
}

type FineRepository interface {
	// Create fails with domain.ErrConflict when the loan already has a fine.
	Create(ctx context.Context, fine *domain.Fine) error
	GetByID(ctx context.Context, id int32) (*domain.Fine, error)
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Fine, error)
	GetByLoanID(ctx context.Context, loanID int32) (*domain.Fine, error)
	Update(ctx context.Context, fine *domain.Fine) error
	DeleteByLoanID(ctx context.Context, loanID int32) error
	ListUnpaid(ctx context.Context) ([]domain.Fine, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	ListByUser(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, error)
}

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	ListByUser(ctx context.Context, userID int32) ([]domain.AuditEntry, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Users         UserRepository
	Books         BookRepository
	Copies        CopyRepository
	Loans         LoanRepository
	Reservations  ReservationRepository
	Fines         FineRepository
	Notifications NotificationRepository
	Audit         AuditRepository
}

// TxFunc runs against repositories bound to a single transaction.
// Returning an error rolls back every write made through repos.
type TxFunc func(ctx context.Context, repos *Repositories) error

type Store interface {
	// Repos returns repositories outside any transaction, for reads.
	Repos() *Repositories
	WithinTx(ctx context.Context, fn TxFunc) error
}
