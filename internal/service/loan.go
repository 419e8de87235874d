package service

import (
	"context"
	"fmt"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
	"library-lending-core/internal/utils"
)

type loanService struct {
	store  repository.Store
	sinks  sinks
	policy Policy
}

func NewLoanService(store repository.Store, notifier NotificationSink, auditor AuditSink, policy Policy) LoanService {
	return &loanService{
		store:  store,
		sinks:  sinks{notifier: notifier, auditor: auditor},
		policy: policy,
	}
}

// Borrow checks, in order: copy exists, borrower exists, copy available, open-loan limit.
func (s *loanService) Borrow(ctx context.Context, actor domain.Actor, copyID, borrowerID int32, loanDays int) (*domain.Loan, error) {
	logger.EnterMethod("loanService.Borrow", "copyID", copyID, "borrowerID", borrowerID, "actor", actor.UserID)

	now := s.policy.now()
	days := s.policy.loanDays(loanDays)

	var loan *domain.Loan
	var title string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		cp, err := repos.Copies.GetByID(ctx, copyID)
		if err != nil {
			return err
		}
		if _, err := repos.Users.GetByID(ctx, borrowerID); err != nil {
			return err
		}
		if !cp.Available {
			return fmt.Errorf("copy %d is not available: %w", copyID, domain.ErrConflict)
		}

		if err := repos.Loans.LockBorrower(ctx, borrowerID); err != nil {
			return err
		}
		open, err := repos.Loans.CountOpenByUser(ctx, borrowerID)
		if err != nil {
			return err
		}
		if open >= s.policy.MaxOpenLoans {
			return fmt.Errorf("borrower %d has %d open loans: %w", borrowerID, open, domain.ErrLimitExceeded)
		}

		// Another transaction may have taken the copy since the read above.
		swapped, err := repos.Copies.CompareAndSetAvailable(ctx, copyID, true, false)
		if err != nil {
			return err
		}
		if !swapped {
			return fmt.Errorf("copy %d is not available: %w", copyID, domain.ErrConflict)
		}

		loan = &domain.Loan{
			UserID:     borrowerID,
			CopyID:     copyID,
			BorrowedAt: now,
			DueAt:      utils.DueDate(now, days),
			Status:     domain.LoanStatusBorrowed,
		}
		title = bookTitle(ctx, repos, cp.BookID)
		return repos.Loans.Create(ctx, loan)
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.Borrow", err, "copyID", copyID, "borrowerID", borrowerID)
		return nil, err
	}

	s.sinks.notify(ctx, borrowerID,
		fmt.Sprintf("You borrowed '%s'. Due date: %s.", title, loan.DueAt.Format("2006-01-02")),
		map[string]string{"type": "LOAN_BORROWED", "loan_id": idAttr(loan.ID)})
	s.sinks.audit(ctx, borrowerID, "borrow loan=%d copy=%d actor=%d", loan.ID, copyID, actor.UserID)

	logger.ExitMethod("loanService.Borrow", "loanID", loan.ID)
	return loan, nil
}

// ReturnLoan always ends in RETURNED, late or not. Anyone may return on a borrower's behalf.
func (s *loanService) ReturnLoan(ctx context.Context, actor domain.Actor, loanID int32) (*domain.Loan, error) {
	logger.EnterMethod("loanService.ReturnLoan", "loanID", loanID, "actor", actor.UserID)

	now := s.policy.now()
	var loan *domain.Loan
	var title string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		loan, err = repos.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !loan.Status.CanTransitionTo(domain.LoanStatusReturned) {
			return fmt.Errorf("loan %d is %s: %w", loanID, loan.Status, domain.ErrConflict)
		}

		loan.ReturnedAt = &now
		loan.Status = domain.LoanStatusReturned
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		title = copyTitle(ctx, repos, loan.CopyID)
		return repos.Copies.SetAvailable(ctx, loan.CopyID, true)
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.ReturnLoan", err, "loanID", loanID)
		return nil, err
	}

	s.sinks.notify(ctx, loan.UserID, fmt.Sprintf("You returned '%s'.", title),
		map[string]string{"type": "LOAN_RETURNED", "loan_id": idAttr(loan.ID)})
	s.sinks.audit(ctx, actor.UserID, "return loan=%d borrower=%d", loan.ID, loan.UserID)

	logger.ExitMethod("loanService.ReturnLoan", "loanID", loanID)
	return loan, nil
}

// MarkUnreturned reopens a returned loan, e.g. after a return was recorded by mistake.
func (s *loanService) MarkUnreturned(ctx context.Context, actor domain.Actor, loanID int32) (*domain.Loan, error) {
	logger.EnterMethod("loanService.MarkUnreturned", "loanID", loanID, "actor", actor.UserID)

	if !actor.IsStaff() {
		err := fmt.Errorf("user %d may not reopen loans: %w", actor.UserID, domain.ErrForbidden)
		logger.ExitMethodWithError("loanService.MarkUnreturned", err)
		return nil, err
	}

	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		loan, err = repos.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.ReturnedAt == nil || !loan.Status.CanTransitionTo(domain.LoanStatusBorrowed) {
			return fmt.Errorf("loan %d is %s: %w", loanID, loan.Status, domain.ErrConflict)
		}

		cp, err := repos.Copies.GetByID(ctx, loan.CopyID)
		if err != nil {
			return err
		}
		if !cp.Available {
			logger.WarnContext(ctx, "Reopening loan whose copy is already lent", "loanID", loanID, "copyID", cp.ID)
		}

		loan.ReturnedAt = nil
		loan.Status = domain.LoanStatusBorrowed
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		return repos.Copies.SetAvailable(ctx, loan.CopyID, false)
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.MarkUnreturned", err, "loanID", loanID)
		return nil, err
	}

	s.sinks.audit(ctx, actor.UserID, "unreturn loan=%d borrower=%d", loan.ID, loan.UserID)

	logger.ExitMethod("loanService.MarkUnreturned", "loanID", loanID)
	return loan, nil
}

// DeleteLoan removes a returned loan and its fine. The copy is left untouched.
func (s *loanService) DeleteLoan(ctx context.Context, actor domain.Actor, loanID int32) error {
	logger.EnterMethod("loanService.DeleteLoan", "loanID", loanID, "actor", actor.UserID)

	if !actor.IsStaff() {
		err := fmt.Errorf("user %d may not delete loans: %w", actor.UserID, domain.ErrForbidden)
		logger.ExitMethodWithError("loanService.DeleteLoan", err)
		return err
	}

	var borrowerID int32
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		loan, err := repos.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.ReturnedAt == nil {
			return fmt.Errorf("loan %d has not been returned: %w", loanID, domain.ErrConflict)
		}
		borrowerID = loan.UserID

		if err := repos.Fines.DeleteByLoanID(ctx, loanID); err != nil {
			return err
		}
		return repos.Loans.Delete(ctx, loanID)
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.DeleteLoan", err, "loanID", loanID)
		return err
	}

	s.sinks.audit(ctx, actor.UserID, "delete loan=%d borrower=%d", loanID, borrowerID)

	logger.ExitMethod("loanService.DeleteLoan", "loanID", loanID)
	return nil
}

func (s *loanService) ListBorrowerLoans(ctx context.Context, borrowerID int32) ([]domain.Loan, error) {
	if _, err := s.store.Repos().Users.GetByID(ctx, borrowerID); err != nil {
		return nil, err
	}
	return s.store.Repos().Loans.ListByUser(ctx, borrowerID)
}
