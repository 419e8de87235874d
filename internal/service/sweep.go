package service

import (
	"context"
	"fmt"
	"time"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

type sweepService struct {
	store  repository.Store
	sinks  sinks
	policy Policy
}

func NewSweepService(store repository.Store, notifier NotificationSink, auditor AuditSink, policy Policy) SweepService {
	return &sweepService{
		store:  store,
		sinks:  sinks{notifier: notifier, auditor: auditor},
		policy: policy,
	}
}

// SweepOverdueLoans moves past-due BORROWED loans to OVERDUE and fines them,
// one transaction per loan. It then retries settlement for OVERDUE loans that
// were swept before a whole day had elapsed. Safe to rerun.
func (s *sweepService) SweepOverdueLoans(ctx context.Context) (SweepResult, error) {
	logger.EnterMethod("sweepService.SweepOverdueLoans")

	var result SweepResult
	now := s.policy.now()
	repos := s.store.Repos()

	due, err := repos.Loans.ListByStatusDueBefore(ctx, domain.LoanStatusBorrowed, now)
	if err != nil {
		logger.ExitMethodWithError("sweepService.SweepOverdueLoans", err)
		return result, fmt.Errorf("failed to list past-due loans: %w", err)
	}
	for _, l := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++
		changed, err := s.markOverdue(ctx, l.ID, now)
		if err != nil {
			result.Failed++
			logger.ErrorContext(ctx, "Failed to mark loan overdue", "loanID", l.ID, "error", err)
			continue
		}
		if changed {
			result.Processed++
		}
	}

	unfined, err := repos.Loans.ListOverdueWithoutFine(ctx)
	if err != nil {
		logger.ExitMethodWithError("sweepService.SweepOverdueLoans", err)
		return result, fmt.Errorf("failed to list unfined overdue loans: %w", err)
	}
	for _, l := range unfined {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if fine, err := s.settle(ctx, l.ID, now); err != nil {
			result.Failed++
			logger.ErrorContext(ctx, "Failed to settle overdue fine", "loanID", l.ID, "error", err)
		} else if fine != nil {
			result.Processed++
		}
	}

	logger.ExitMethod("sweepService.SweepOverdueLoans", "scanned", result.Scanned, "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

// markOverdue re-checks the loan under lock since a return may have landed
// between the scan and this transaction.
func (s *sweepService) markOverdue(ctx context.Context, loanID int32, now time.Time) (bool, error) {
	var changed bool
	var fine *domain.Fine
	var borrowerID int32
	var title string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		loan, err := repos.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanStatusBorrowed || !loan.IsPastDue(now) {
			return nil
		}

		loan.Status = domain.LoanStatusOverdue
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		changed = true
		borrowerID = loan.UserID

		fine, err = settleFine(ctx, repos, loan, now, s.policy.DailyFineRate)
		if err == nil && fine != nil {
			title = copyTitle(ctx, repos, loan.CopyID)
		}
		return err
	})
	if err != nil {
		return false, err
	}

	if changed {
		logger.InfoContext(ctx, "Loan marked overdue", "loanID", loanID, "fined", fine != nil)
	}
	if fine != nil {
		notifyFine(ctx, s.sinks, borrowerID, title, fine)
	}
	return changed, nil
}

func (s *sweepService) settle(ctx context.Context, loanID int32, now time.Time) (*domain.Fine, error) {
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
		return nil, err
	}
	if fine != nil {
		notifyFine(ctx, s.sinks, borrowerID, title, fine)
	}
	return fine, nil
}

// SweepExpiredReservations expires PENDING reservations whose hold has lapsed.
func (s *sweepService) SweepExpiredReservations(ctx context.Context) (SweepResult, error) {
	logger.EnterMethod("sweepService.SweepExpiredReservations")

	var result SweepResult
	now := s.policy.now()

	expired, err := s.store.Repos().Reservations.ListPendingExpiredBefore(ctx, now)
	if err != nil {
		logger.ExitMethodWithError("sweepService.SweepExpiredReservations", err)
		return result, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	for _, r := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		var changed bool
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			res, err := repos.Reservations.GetByIDForUpdate(ctx, r.ID)
			if err != nil {
				return err
			}
			if res.Status != domain.ReservationStatusPending || res.ExpiresAt == nil || !res.ExpiresAt.Before(now) {
				return nil
			}
			res.Status = domain.ReservationStatusExpired
			changed = true
			return repos.Reservations.Update(ctx, res)
		})
		if err != nil {
			result.Failed++
			logger.ErrorContext(ctx, "Failed to expire reservation", "reservationID", r.ID, "error", err)
			continue
		}
		if changed {
			result.Processed++
		}
	}

	logger.ExitMethod("sweepService.SweepExpiredReservations", "scanned", result.Scanned, "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

// SendDueReminders notifies borrowers whose loans fall due within the reminder window.
func (s *sweepService) SendDueReminders(ctx context.Context) (SweepResult, error) {
	logger.EnterMethod("sweepService.SendDueReminders")

	var result SweepResult
	now := s.policy.now()

	loans, err := s.store.Repos().Loans.ListByStatusDueBefore(ctx, domain.LoanStatusBorrowed, now.Add(s.policy.ReminderWindow))
	if err != nil {
		logger.ExitMethodWithError("sweepService.SendDueReminders", err)
		return result, fmt.Errorf("failed to list loans due soon: %w", err)
	}

	for _, l := range loans {
		if l.IsPastDue(now) {
			continue
		}
		result.Scanned++
		if s.sinks.notifier == nil {
			continue
		}
		err := s.sinks.notifier.Notify(ctx, l.UserID,
			fmt.Sprintf("Your loan is due on %s.", l.DueAt.Format("2006-01-02 15:04 MST")),
			map[string]string{"type": "LOAN_DUE_SOON", "loan_id": idAttr(l.ID)})
		if err != nil {
			result.Failed++
			logger.WarnContext(ctx, "Failed to send due reminder", "loanID", l.ID, "error", err)
			continue
		}
		result.Processed++
	}

	logger.ExitMethod("sweepService.SendDueReminders", "scanned", result.Scanned, "processed", result.Processed, "failed", result.Failed)
	return result, nil
}
