package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository/memory"
	"library-lending-core/internal/service"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ctx          context.Context
	store        *memory.Store
	notifier     *MockNotifier
	auditor      *MockAuditor
	clock        *testClock
	policy       service.Policy
	loans        service.LoanService
	reservations service.ReservationService
	fines        service.FineService
	sweeps       service.SweepService

	member    domain.User
	librarian domain.Actor
	book      domain.Book
	copy      domain.Copy
}

func newFixture(t *testing.T, tweak ...func(*service.Policy)) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		store:    memory.NewStore(),
		notifier: new(MockNotifier),
		auditor:  new(MockAuditor),
		clock:    &testClock{now: t0},
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.auditor.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.policy = service.DefaultPolicy()
	f.policy.Now = f.clock.Now
	for _, fn := range tweak {
		fn(&f.policy)
	}

	engine := service.NewEngine(f.store, f.notifier, f.auditor, f.policy)
	f.loans = engine.Loans
	f.reservations = engine.Reservations
	f.fines = engine.Fines
	f.sweeps = engine.Sweeps

	f.member = f.store.AddUser("Ada", "ada@example.com")
	staff := f.store.AddUser("Lin", "lin@example.com")
	f.librarian = domain.NewLibrarian(staff.ID)
	f.book = f.store.AddBook("Dune", "Frank Herbert")
	f.copy = f.store.AddCopy(f.book.ID, "DUNE-1")
	return f
}

func (f *fixture) memberActor() domain.Actor {
	return domain.NewMember(f.member.ID)
}

func (f *fixture) loan(t *testing.T, id int32) *domain.Loan {
	t.Helper()
	l, err := f.store.Repos().Loans.GetByID(f.ctx, id)
	require.NoError(t, err)
	return l
}

func (f *fixture) copyAvailable(t *testing.T, id int32) bool {
	t.Helper()
	c, err := f.store.Repos().Copies.GetByID(f.ctx, id)
	require.NoError(t, err)
	return c.Available
}

// overdueLoan borrows f.copy for one day, moves the clock lateness past the
// due date and runs the overdue sweep.
func (f *fixture) overdueLoan(t *testing.T, lateness time.Duration) *domain.Loan {
	t.Helper()
	loan, err := f.loans.Borrow(f.ctx, f.memberActor(), f.copy.ID, f.member.ID, 1)
	require.NoError(t, err)
	f.clock.Advance(24*time.Hour + lateness)
	_, err = f.sweeps.SweepOverdueLoans(f.ctx)
	require.NoError(t, err)
	return f.loan(t, loan.ID)
}
