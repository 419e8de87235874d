package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
	"library-lending-core/internal/utils"
)

type fineService struct {
	store  repository.Store
	sinks  sinks
	policy Policy
}

func NewFineService(store repository.Store, notifier NotificationSink, auditor AuditSink, policy Policy) FineService {
	return &fineService{
		store:  store,
		sinks:  sinks{notifier: notifier, auditor: auditor},
		policy: policy,
	}
}

func (s *fineService) SettleIfOverdue(ctx context.Context, loanID int32) (*domain.Fine, error) {
	logger.EnterMethod("fineService.SettleIfOverdue", "loanID", loanID)

	now := s.policy.now()
	var fine *domain.Fine
	var borrowerID int32
	var title string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		loan, err := repos.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		borrowerID = loan.UserID
		fine, err = settleFine(ctx, repos, loan, now, s.policy.DailyFineRate)
		if err == nil && fine != nil {
			title = copyTitle(ctx, repos, loan.CopyID)
		}
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("fineService.SettleIfOverdue", err, "loanID", loanID)
		return nil, err
	}

	if fine != nil {
		notifyFine(ctx, s.sinks, borrowerID, title, fine)
	}

	logger.ExitMethod("fineService.SettleIfOverdue", "loanID", loanID, "fined", fine != nil)
	return fine, nil
}

func (s *fineService) Pay(ctx context.Context, actor domain.Actor, fineID int32) (*domain.Fine, error) {
	logger.EnterMethod("fineService.Pay", "fineID", fineID, "actor", actor.UserID)

	now := s.policy.now()
	var fine *domain.Fine
	var borrowerID int32
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		fine, err = repos.Fines.GetByIDForUpdate(ctx, fineID)
		if err != nil {
			return err
		}
		if fine.Paid {
			return fmt.Errorf("fine %d is already paid: %w", fineID, domain.ErrConflict)
		}

		loan, err := repos.Loans.GetByID(ctx, fine.LoanID)
		if err != nil {
			return err
		}
		borrowerID = loan.UserID

		fine.Paid = true
		fine.PaidAt = &now
		return repos.Fines.Update(ctx, fine)
	})
	if err != nil {
		logger.ExitMethodWithError("fineService.Pay", err, "fineID", fineID)
		return nil, err
	}

	s.sinks.audit(ctx, borrowerID, "pay fine=%d loan=%d amount=%s actor=%d",
		fine.ID, fine.LoanID, fine.Amount.StringFixed(2), actor.UserID)

	logger.ExitMethod("fineService.Pay", "fineID", fineID)
	return fine, nil
}

func (s *fineService) ListUnpaidFines(ctx context.Context) ([]domain.Fine, error) {
	return s.store.Repos().Fines.ListUnpaid(ctx)
}

// settleFine creates the loan's fine inside the caller's transaction. It returns
// nil, nil when the loan is not OVERDUE, is less than a whole day late, or
// already has a fine.
func settleFine(ctx context.Context, repos *repository.Repositories, loan *domain.Loan, now time.Time, rate decimal.Decimal) (*domain.Fine, error) {
	if loan.Status != domain.LoanStatusOverdue {
		return nil, nil
	}
	days := utils.OverdueDays(loan.DueAt, now)
	if days < 1 {
		return nil, nil
	}

	_, err := repos.Fines.GetByLoanID(ctx, loan.ID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	fine := &domain.Fine{
		LoanID:    loan.ID,
		Amount:    utils.FineAmount(rate, days),
		CreatedAt: now,
	}
	if err := repos.Fines.Create(ctx, fine); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, nil
		}
		return nil, err
	}
	return fine, nil
}

func notifyFine(ctx context.Context, s sinks, borrowerID int32, title string, fine *domain.Fine) {
	s.notify(ctx, borrowerID,
		fmt.Sprintf("You have an overdue fine of $%s for '%s'.", fine.Amount.StringFixed(2), title),
		map[string]string{
			"type":    "FINE_ISSUED",
			"fine_id": idAttr(fine.ID),
			"loan_id": idAttr(fine.LoanID),
			"amount":  fine.Amount.StringFixed(2),
		})
}
