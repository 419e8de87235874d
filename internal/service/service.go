package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

type LoanService interface {
	Borrow(ctx context.Context, actor domain.Actor, copyID, borrowerID int32, loanDays int) (*domain.Loan, error)
	ReturnLoan(ctx context.Context, actor domain.Actor, loanID int32) (*domain.Loan, error)
	MarkUnreturned(ctx context.Context, actor domain.Actor, loanID int32) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, actor domain.Actor, loanID int32) error
	ListBorrowerLoans(ctx context.Context, borrowerID int32) ([]domain.Loan, error)
}

type ReservationService interface {
	Reserve(ctx context.Context, actor domain.Actor, bookID, borrowerID int32) (*domain.Reservation, error)
	Approve(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Reservation, error)
	Cancel(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Reservation, error)
	ListUserReservations(ctx context.Context, userID int32) ([]domain.Reservation, error)
}

type FineService interface {
	// SettleIfOverdue returns nil, nil when the loan does not warrant a new fine.
	SettleIfOverdue(ctx context.Context, loanID int32) (*domain.Fine, error)
	Pay(ctx context.Context, actor domain.Actor, fineID int32) (*domain.Fine, error)
	ListUnpaidFines(ctx context.Context) ([]domain.Fine, error)
}

// SweepService holds the periodic passes run by the scheduler.
type SweepService interface {
	SweepOverdueLoans(ctx context.Context) (SweepResult, error)
	SweepExpiredReservations(ctx context.Context) (SweepResult, error)
	SendDueReminders(ctx context.Context) (SweepResult, error)
}

// SweepResult counts the outcome of one sweep. Failed records are skipped.
type SweepResult struct {
	Scanned   int
	Processed int
	Failed    int
}

// Policy carries the lending rules shared by the services.
type Policy struct {
	MaxOpenLoans    int
	DefaultLoanDays int
	DailyFineRate   decimal.Decimal
	// ReservationHold sets Reservation.ExpiresAt when positive.
	ReservationHold time.Duration
	ReminderWindow  time.Duration
	// Now is the clock; nil means time.Now in UTC.
	Now func() time.Time
}

func DefaultPolicy() Policy {
	return Policy{
		MaxOpenLoans:    5,
		DefaultLoanDays: 14,
		DailyFineRate:   decimal.RequireFromString("0.50"),
		ReminderWindow:  24 * time.Hour,
	}
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p Policy) loanDays(requested int) int {
	if requested <= 0 {
		return p.DefaultLoanDays
	}
	return requested
}

// Engine bundles the lending services over one store.
type Engine struct {
	Loans        LoanService
	Reservations ReservationService
	Fines        FineService
	Sweeps       SweepService
	Inbox        NotificationService
}

func NewEngine(store repository.Store, notifier NotificationSink, auditor AuditSink, policy Policy) *Engine {
	return &Engine{
		Loans:        NewLoanService(store, notifier, auditor, policy),
		Reservations: NewReservationService(store, notifier, auditor, policy),
		Fines:        NewFineService(store, notifier, auditor, policy),
		Sweeps:       NewSweepService(store, notifier, auditor, policy),
		Inbox:        NewNotificationService(store.Repos().Notifications, store.Repos().Audit),
	}
}
