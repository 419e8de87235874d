package service_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/service"
)

func TestLoanService_Borrow(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)

		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusBorrowed, loan.Status)
		assert.Equal(t, t0, loan.BorrowedAt)
		assert.Equal(t, t0.Add(14*24*time.Hour), loan.DueAt)
		assert.Nil(t, loan.ReturnedAt)
		assert.False(t, f.copyAvailable(t, f.copy.ID))

		f.notifier.AssertCalled(t, "Notify", mock.Anything, f.member.ID, "You borrowed 'Dune'. Due date: 2024-03-15.", hasType("LOAN_BORROWED"))
		f.auditor.AssertCalled(t, "Record", mock.Anything, f.member.ID, mock.Anything)
	})

	t.Run("Custom loan days", func(t *testing.T) {
		f := newFixture(t)

		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(7*24*time.Hour), loan.DueAt)
	})

	t.Run("Copy not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.loans.Borrow(f.ctx, f.memberActor(), 999, f.member.ID, 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Borrower not found before availability", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)

		_, err = f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, 999, 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Copy unavailable", func(t *testing.T) {
		f := newFixture(t)
		other := f.store.AddUser("Bo", "bo@example.com")
		_, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)

		_, err = f.loans.Borrow(f.ctx, domain.NewMember(other.ID), f.copy.ID, other.ID, 0)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.False(t, errors.Is(err, domain.ErrLimitExceeded))

		loans, err := f.loans.ListBorrowerLoans(f.ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, loans)
	})

	t.Run("Limit exceeded", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 5; i++ {
			c := f.store.AddCopy(f.book.ID, fmt.Sprintf("DUNE-X%d", i))
			_, err := f.loans.Borrow(f.ctx, f.memberActor(), c.ID, f.member.ID, 0)
			require.NoError(t, err)
		}

		_, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		assert.ErrorIs(t, err, domain.ErrLimitExceeded)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.True(t, f.copyAvailable(t, f.copy.ID))

		loans, err := f.loans.ListBorrowerLoans(f.ctx, f.member.ID)
		require.NoError(t, err)
		assert.Len(t, loans, 5)
	})

	t.Run("Unavailable copy reported before limit", func(t *testing.T) {
		f := newFixture(t)
		other := f.store.AddUser("Bo", "bo@example.com")
		_, err := f.loans.Borrow(f.ctx, domain.NewMember(other.ID), f.copy.ID, other.ID, 0)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			c := f.store.AddCopy(f.book.ID, fmt.Sprintf("DUNE-X%d", i))
			_, err := f.loans.Borrow(f.ctx, f.memberActor(), c.ID, f.member.ID, 0)
			require.NoError(t, err)
		}

		_, err = f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.False(t, errors.Is(err, domain.ErrLimitExceeded))
	})

	t.Run("Returned loans free the limit", func(t *testing.T) {
		f := newFixture(t)
		var first *domain.Loan
		for i := 0; i < 5; i++ {
			c := f.store.AddCopy(f.book.ID, fmt.Sprintf("DUNE-X%d", i))
			l, err := f.loans.Borrow(f.ctx, f.memberActor(), c.ID, f.member.ID, 0)
			require.NoError(t, err)
			if first == nil {
				first = l
			}
		}
		_, err := f.loans.ReturnLoan(f.ctx, f.memberActor(), first.ID)
		require.NoError(t, err)

		_, err = f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		assert.NoError(t, err)
	})

	t.Run("Sink failure does not fail the borrow", func(t *testing.T) {
		f := newFixture(t)
		notifier := new(MockNotifier)
		notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
		svc := service.NewLoanService(f.store, notifier, nil, f.policy)

		loan, err := svc.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusBorrowed, f.loan(t, loan.ID).Status)
		notifier.AssertExpectations(t)
	})
}

func TestLoanService_Borrow_Concurrent(t *testing.T) {
	f := newFixture(t)

	const n = 10
	borrowers := make([]domain.User, n)
	for i := range borrowers {
		borrowers[i] = f.store.AddUser(fmt.Sprintf("user-%d", i), fmt.Sprintf("u%d@example.com", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := borrowers[i]
			_, errs[i] = f.loans.Borrow(f.ctx, domain.NewMember(b.ID), f.copy.ID, b.ID, 0)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.False(t, f.copyAvailable(t, f.copy.ID))
}

func TestLoanService_ReturnLoan(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)

		returned, err := f.loans.ReturnLoan(f.ctx, f.librarian, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusReturned, returned.Status)
		require.NotNil(t, returned.ReturnedAt)
		assert.Equal(t, t0.Add(time.Hour), *returned.ReturnedAt)
		assert.True(t, f.copyAvailable(t, f.copy.ID))

		f.notifier.AssertCalled(t, "Notify", mock.Anything, f.member.ID, "You returned 'Dune'.", hasType("LOAN_RETURNED"))
		f.auditor.AssertCalled(t, "Record", mock.Anything, f.librarian.UserID, mock.Anything)
	})

	t.Run("Late return is still RETURNED", func(t *testing.T) {
		f := newFixture(t)
		loan := f.overdueLoan(t, 48*time.Hour)
		require.Equal(t, domain.LoanStatusOverdue, loan.Status)

		returned, err := f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusReturned, returned.Status)
		assert.True(t, f.copyAvailable(t, f.copy.ID))
	})

	t.Run("Already returned", func(t *testing.T) {
		f := newFixture(t)
		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)
		_, err = f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)

		_, err = f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.loans.ReturnLoan(f.ctx, f.memberActor(), 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestLoanService_MarkUnreturned(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *domain.Loan) {
		f := newFixture(t)
		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)
		return f, loan
	}

	t.Run("Forbidden for members", func(t *testing.T) {
		f, loan := setup(t)
		_, err := f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)

		_, err = f.loans.MarkUnreturned(f.ctx, f.memberActor(), loan.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, domain.LoanStatusReturned, f.loan(t, loan.ID).Status)
	})

	t.Run("Requires a returned loan", func(t *testing.T) {
		f, loan := setup(t)
		_, err := f.loans.MarkUnreturned(f.ctx, f.librarian, loan.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Success", func(t *testing.T) {
		f, loan := setup(t)
		_, err := f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)

		reopened, err := f.loans.MarkUnreturned(f.ctx, f.librarian, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusBorrowed, reopened.Status)
		assert.Nil(t, reopened.ReturnedAt)
		assert.False(t, f.copyAvailable(t, f.copy.ID))
	})

	t.Run("Copy already lent again", func(t *testing.T) {
		f, loan := setup(t)
		_, err := f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)
		other := f.store.AddUser("Bo", "bo@example.com")
		_, err = f.loans.Borrow(f.ctx, domain.NewMember(other.ID), f.copy.ID, other.ID, 0)
		require.NoError(t, err)

		reopened, err := f.loans.MarkUnreturned(f.ctx, f.librarian, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusBorrowed, reopened.Status)
		assert.False(t, f.copyAvailable(t, f.copy.ID))
	})
}

func TestLoanService_DeleteLoan(t *testing.T) {
	t.Run("Forbidden for members", func(t *testing.T) {
		f := newFixture(t)
		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)
		_, err = f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)

		err = f.loans.DeleteLoan(f.ctx, f.memberActor(), loan.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Open loan", func(t *testing.T) {
		f := newFixture(t)
		loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 0)
		require.NoError(t, err)

		err = f.loans.DeleteLoan(f.ctx, f.librarian, loan.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.LoanStatusBorrowed, f.loan(t, loan.ID).Status)
	})

	t.Run("Deletes loan and fine without touching the copy", func(t *testing.T) {
		f := newFixture(t)
		loan := f.overdueLoan(t, 72*time.Hour)
		_, err := f.store.Repos().Fines.GetByLoanID(f.ctx, loan.ID)
		require.NoError(t, err)
		_, err = f.loans.ReturnLoan(f.ctx, f.memberActor(), loan.ID)
		require.NoError(t, err)

		err = f.loans.DeleteLoan(f.ctx, f.librarian, loan.ID)
		require.NoError(t, err)

		_, err = f.store.Repos().Loans.GetByID(f.ctx, loan.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = f.store.Repos().Fines.GetByLoanID(f.ctx, loan.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.True(t, f.copyAvailable(t, f.copy.ID))
	})

	t.Run("Not found", func(t *testing.T) {
		f := newFixture(t)
		err := f.loans.DeleteLoan(f.ctx, f.librarian, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
