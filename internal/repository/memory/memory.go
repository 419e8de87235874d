// Package memory is an in-process Store for local runs and tests.
// WithinTx holds a store-wide lock for the whole transaction and restores a
// snapshot on error or panic, so transactions are serializable.
package memory

import (
	"context"
	"fmt"
	"sync"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

type state struct {
	users         map[int32]domain.User
	books         map[int32]domain.Book
	copies        map[int32]domain.Copy
	loans         map[int32]domain.Loan
	reservations  map[int32]domain.Reservation
	fines         map[int32]domain.Fine
	notifications []domain.Notification
	audit         []domain.AuditEntry
	nextID        int32
}

func newState() *state {
	return &state{
		users:        make(map[int32]domain.User),
		books:        make(map[int32]domain.Book),
		copies:       make(map[int32]domain.Copy),
		loans:        make(map[int32]domain.Loan),
		reservations: make(map[int32]domain.Reservation),
		fines:        make(map[int32]domain.Fine),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[int32]domain.User, len(s.users)),
		books:         make(map[int32]domain.Book, len(s.books)),
		copies:        make(map[int32]domain.Copy, len(s.copies)),
		loans:         make(map[int32]domain.Loan, len(s.loans)),
		reservations:  make(map[int32]domain.Reservation, len(s.reservations)),
		fines:         make(map[int32]domain.Fine, len(s.fines)),
		notifications: append([]domain.Notification(nil), s.notifications...),
		audit:         append([]domain.AuditEntry(nil), s.audit...),
		nextID:        s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.copies {
		c.copies[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.fines {
		c.fines[k] = v
	}
	return c
}

func (s *state) newID() int32 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu    sync.Mutex
	state *state
	repos *repository.Repositories
}

func NewStore() *Store {
	s := &Store{state: newState()}
	s.repos = s.bind(false)
	return s
}

func (s *Store) bind(inTx bool) *repository.Repositories {
	b := base{store: s, inTx: inTx}
	return &repository.Repositories{
		Users:         &userRepo{b},
		Books:         &bookRepo{b},
		Copies:        &copyRepo{b},
		Loans:         &loanRepo{b},
		Reservations:  &reservationRepo{b},
		Fines:         &fineRepo{b},
		Notifications: &notificationRepo{b},
		Audit:         &auditRepo{b},
	}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Restore on error and on panic; the panic keeps propagating.
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
	}()

	if err := fn(ctx, s.bind(true)); err != nil {
		return err
	}
	committed = true
	return nil
}

// AddUser seeds a user and returns it with its assigned ID.
func (s *Store) AddUser(name, email string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{ID: s.state.newID(), Name: name, Email: email}
	s.state.users[u.ID] = u
	return u
}

func (s *Store) AddBook(title, author string) domain.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := domain.Book{ID: s.state.newID(), Title: title, Author: author}
	s.state.books[b.ID] = b
	return b
}

// AddCopy seeds an available copy of bookID.
func (s *Store) AddCopy(bookID int32, code string) domain.Copy {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Copy{ID: s.state.newID(), BookID: bookID, Code: code, Available: true}
	s.state.copies[c.ID] = c
	return c
}

// PutLoan stores a loan as-is, assigning an ID when it has none.
func (s *Store) PutLoan(l domain.Loan) domain.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.state.newID()
	}
	s.state.loans[l.ID] = l
	return l
}

func (s *Store) PutReservation(r domain.Reservation) domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.state.newID()
	}
	s.state.reservations[r.ID] = r
	return r
}

type base struct {
	store *Store
	inTx  bool
}

// lock takes the store lock unless the caller already holds it through WithinTx.
func (b base) lock() func() {
	if b.inTx {
		return func() {}
	}
	b.store.mu.Lock()
	return b.store.mu.Unlock
}

func (b base) st() *state {
	return b.store.state
}

func notFound(entity string, id int32) error {
	return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
}
