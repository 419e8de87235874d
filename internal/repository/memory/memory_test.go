package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	book := store.AddBook("Dune", "Frank Herbert")
	cp := store.AddCopy(book.ID, "DUNE-1")
	user := store.AddUser("Ada", "ada@example.com")

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		swapped, err := repos.Copies.CompareAndSetAvailable(ctx, cp.ID, true, false)
		require.NoError(t, err)
		require.True(t, swapped)
		require.NoError(t, repos.Loans.Create(ctx, &domain.Loan{UserID: user.ID, CopyID: cp.ID, Status: domain.LoanStatusBorrowed}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Repos().Copies.GetByID(ctx, cp.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)

	count, err := store.Repos().Loans.CountOpenByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStore_WithinTxRollsBackOnPanic(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	book := store.AddBook("Dune", "Frank Herbert")
	cp := store.AddCopy(book.ID, "DUNE-1")

	assert.Panics(t, func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			require.NoError(t, repos.Copies.SetAvailable(ctx, cp.ID, false))
			panic("boom")
		})
	})

	got, err := store.Repos().Copies.GetByID(ctx, cp.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)

	// The store lock is released after the panic.
	err = store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		return repos.Copies.SetAvailable(ctx, cp.ID, false)
	})
	require.NoError(t, err)
}

func TestStore_WithinTxCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCopyRepo_CompareAndSetAvailable(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	cp := store.AddCopy(store.AddBook("Emma", "Jane Austen").ID, "EMMA-1")
	copies := store.Repos().Copies

	swapped, err := copies.CompareAndSetAvailable(ctx, cp.ID, true, false)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = copies.CompareAndSetAvailable(ctx, cp.ID, true, false)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = copies.CompareAndSetAvailable(ctx, 999, true, false)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestFineRepo_OneFinePerLoan(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	fines := store.Repos().Fines

	require.NoError(t, fines.Create(ctx, &domain.Fine{LoanID: 42}))
	err := fines.Create(ctx, &domain.Fine{LoanID: 42})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = fines.GetByLoanID(ctx, 43)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoanRepo_Listings(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	late := store.PutLoan(domain.Loan{UserID: 1, CopyID: 10, DueAt: now.Add(-time.Hour), Status: domain.LoanStatusBorrowed})
	store.PutLoan(domain.Loan{UserID: 1, CopyID: 11, DueAt: now.Add(time.Hour), Status: domain.LoanStatusBorrowed})
	fined := store.PutLoan(domain.Loan{UserID: 2, CopyID: 12, DueAt: now.Add(-72 * time.Hour), Status: domain.LoanStatusOverdue})
	unfined := store.PutLoan(domain.Loan{UserID: 2, CopyID: 13, DueAt: now.Add(-2 * time.Hour), Status: domain.LoanStatusOverdue})
	require.NoError(t, store.Repos().Fines.Create(ctx, &domain.Fine{LoanID: fined.ID}))

	due, err := store.Repos().Loans.ListByStatusDueBefore(ctx, domain.LoanStatusBorrowed, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, late.ID, due[0].ID)

	missing, err := store.Repos().Loans.ListOverdueWithoutFine(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, unfined.ID, missing[0].ID)

	open, err := store.Repos().Loans.CountOpenByUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, open)
}

func TestReservationRepo_ActiveUniqueness(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	reservations := store.Repos().Reservations

	first := &domain.Reservation{UserID: 1, BookID: 2, Status: domain.ReservationStatusPending}
	require.NoError(t, reservations.Create(ctx, first))

	err := reservations.Create(ctx, &domain.Reservation{UserID: 1, BookID: 2, Status: domain.ReservationStatusPending})
	assert.ErrorIs(t, err, domain.ErrConflict)

	first.Status = domain.ReservationStatusCancelled
	require.NoError(t, reservations.Update(ctx, first))
	assert.NoError(t, reservations.Create(ctx, &domain.Reservation{UserID: 1, BookID: 2, Status: domain.ReservationStatusPending}))
}

func TestNotificationRepo_ListByUserPaging(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	user := store.AddUser("Ada", "ada@example.com")
	repos := store.Repos()
	for i := 0; i < 3; i++ {
		require.NoError(t, repos.Notifications.Create(ctx, &domain.Notification{UserID: user.ID, Message: "hi"}))
	}

	t.Run("Negative offset starts at the beginning", func(t *testing.T) {
		notes, err := repos.Notifications.ListByUser(ctx, user.ID, 2, -65536)
		require.NoError(t, err)
		assert.Len(t, notes, 2)
	})

	t.Run("Offset past the end", func(t *testing.T) {
		notes, err := repos.Notifications.ListByUser(ctx, user.ID, 2, 10)
		require.NoError(t, err)
		assert.Empty(t, notes)
	})
}
