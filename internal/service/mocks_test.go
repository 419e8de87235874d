package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID int32, message string, attrs map[string]string) error {
	args := m.Called(ctx, userID, message, attrs)
	return args.Error(0)
}

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Record(ctx context.Context, userID int32, action string) error {
	args := m.Called(ctx, userID, action)
	return args.Error(0)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func hasType(kind string) any {
	return mock.MatchedBy(func(attrs map[string]string) bool {
		return attrs["type"] == kind
	})
}

func fmtID(id int32) string {
	return strconv.Itoa(int(id))
}

var errInjected = errors.New("injected failure")

// faultyStore fails writes for one loan or reservation inside transactions.
type faultyStore struct {
	repository.Store
	loanID        int32
	reservationID int32
}

func (s *faultyStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		wrapped := *repos
		wrapped.Fines = faultyFines{FineRepository: repos.Fines, loanID: s.loanID}
		wrapped.Reservations = faultyReservations{ReservationRepository: repos.Reservations, id: s.reservationID}
		return fn(ctx, &wrapped)
	})
}

type faultyFines struct {
	repository.FineRepository
	loanID int32
}

func (f faultyFines) Create(ctx context.Context, fine *domain.Fine) error {
	if fine.LoanID == f.loanID {
		return errInjected
	}
	return f.FineRepository.Create(ctx, fine)
}

type faultyReservations struct {
	repository.ReservationRepository
	id int32
}

func (r faultyReservations) Update(ctx context.Context, res *domain.Reservation) error {
	if res.ID == r.id {
		return errInjected
	}
	return r.ReservationRepository.Update(ctx, res)
}
