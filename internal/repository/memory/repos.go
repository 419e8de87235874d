package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"library-lending-core/internal/domain"
)

type userRepo struct{ base }

func (r *userRepo) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	defer r.lock()()
	u, ok := r.st().users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

type bookRepo struct{ base }

func (r *bookRepo) GetByID(ctx context.Context, id int32) (*domain.Book, error) {
	defer r.lock()()
	b, ok := r.st().books[id]
	if !ok {
		return nil, notFound("book", id)
	}
	return &b, nil
}

type copyRepo struct{ base }

func (r *copyRepo) GetByID(ctx context.Context, id int32) (*domain.Copy, error) {
	defer r.lock()()
	c, ok := r.st().copies[id]
	if !ok {
		return nil, notFound("copy", id)
	}
	return &c, nil
}

func (r *copyRepo) SetAvailable(ctx context.Context, id int32, available bool) error {
	defer r.lock()()
	c, ok := r.st().copies[id]
	if !ok {
		return notFound("copy", id)
	}
	c.Available = available
	r.st().copies[id] = c
	return nil
}

func (r *copyRepo) CompareAndSetAvailable(ctx context.Context, id int32, expected, next bool) (bool, error) {
	defer r.lock()()
	c, ok := r.st().copies[id]
	if !ok || c.Available != expected {
		return false, nil
	}
	c.Available = next
	r.st().copies[id] = c
	return true, nil
}

type loanRepo struct{ base }

func (r *loanRepo) Create(ctx context.Context, l *domain.Loan) error {
	defer r.lock()()
	l.ID = r.st().newID()
	r.st().loans[l.ID] = *l
	return nil
}

func (r *loanRepo) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	defer r.lock()()
	l, ok := r.st().loans[id]
	if !ok {
		return nil, notFound("loan", id)
	}
	return &l, nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepo) Update(ctx context.Context, l *domain.Loan) error {
	defer r.lock()()
	if _, ok := r.st().loans[l.ID]; !ok {
		return notFound("loan", l.ID)
	}
	r.st().loans[l.ID] = *l
	return nil
}

func (r *loanRepo) Delete(ctx context.Context, id int32) error {
	defer r.lock()()
	if _, ok := r.st().loans[id]; !ok {
		return notFound("loan", id)
	}
	delete(r.st().loans, id)
	return nil
}

// LockBorrower is a no-op: WithinTx already serializes everything.
func (r *loanRepo) LockBorrower(ctx context.Context, userID int32) error {
	return nil
}

func (r *loanRepo) CountOpenByUser(ctx context.Context, userID int32) (int, error) {
	defer r.lock()()
	count := 0
	for _, l := range r.st().loans {
		if l.UserID == userID && l.Status.IsOpen() {
			count++
		}
	}
	return count, nil
}

func (r *loanRepo) ListByUser(ctx context.Context, userID int32) ([]domain.Loan, error) {
	return r.filter(func(l domain.Loan) bool { return l.UserID == userID }), nil
}

func (r *loanRepo) ListByStatusDueBefore(ctx context.Context, status domain.LoanStatus, before time.Time) ([]domain.Loan, error) {
	return r.filter(func(l domain.Loan) bool { return l.Status == status && l.DueAt.Before(before) }), nil
}

func (r *loanRepo) ListOverdueWithoutFine(ctx context.Context) ([]domain.Loan, error) {
	fined := make(map[int32]bool)
	func() {
		defer r.lock()()
		for _, f := range r.st().fines {
			fined[f.LoanID] = true
		}
	}()
	return r.filter(func(l domain.Loan) bool { return l.Status == domain.LoanStatusOverdue && !fined[l.ID] }), nil
}

func (r *loanRepo) filter(keep func(domain.Loan) bool) []domain.Loan {
	defer r.lock()()
	var out []domain.Loan
	for _, l := range r.st().loans {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type reservationRepo struct{ base }

func (r *reservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	defer r.lock()()
	for _, existing := range r.st().reservations {
		if existing.UserID == res.UserID && existing.BookID == res.BookID && existing.Status.IsActive() {
			return fmt.Errorf("active reservation exists for user %d and book %d: %w", res.UserID, res.BookID, domain.ErrConflict)
		}
	}
	res.ID = r.st().newID()
	r.st().reservations[res.ID] = *res
	return nil
}

func (r *reservationRepo) GetByID(ctx context.Context, id int32) (*domain.Reservation, error) {
	defer r.lock()()
	res, ok := r.st().reservations[id]
	if !ok {
		return nil, notFound("reservation", id)
	}
	return &res, nil
}

func (r *reservationRepo) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r *reservationRepo) Update(ctx context.Context, res *domain.Reservation) error {
	defer r.lock()()
	if _, ok := r.st().reservations[res.ID]; !ok {
		return notFound("reservation", res.ID)
	}
	r.st().reservations[res.ID] = *res
	return nil
}

func (r *reservationRepo) ExistsActive(ctx context.Context, userID, bookID int32) (bool, error) {
	defer r.lock()()
	for _, res := range r.st().reservations {
		if res.UserID == userID && res.BookID == bookID && res.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *reservationRepo) ListByUser(ctx context.Context, userID int32) ([]domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool { return res.UserID == userID }), nil
}

func (r *reservationRepo) ListPendingExpiredBefore(ctx context.Context, before time.Time) ([]domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool {
		return res.Status == domain.ReservationStatusPending && res.ExpiresAt != nil && res.ExpiresAt.Before(before)
	}), nil
}

func (r *reservationRepo) filter(keep func(domain.Reservation) bool) []domain.Reservation {
	defer r.lock()()
	var out []domain.Reservation
	for _, res := range r.st().reservations {
		if keep(res) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fineRepo struct{ base }

func (r *fineRepo) Create(ctx context.Context, f *domain.Fine) error {
	defer r.lock()()
	for _, existing := range r.st().fines {
		if existing.LoanID == f.LoanID {
			return fmt.Errorf("loan %d already fined: %w", f.LoanID, domain.ErrConflict)
		}
	}
	f.ID = r.st().newID()
	r.st().fines[f.ID] = *f
	return nil
}

func (r *fineRepo) GetByID(ctx context.Context, id int32) (*domain.Fine, error) {
	defer r.lock()()
	f, ok := r.st().fines[id]
	if !ok {
		return nil, notFound("fine", id)
	}
	return &f, nil
}

func (r *fineRepo) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Fine, error) {
	return r.GetByID(ctx, id)
}

func (r *fineRepo) GetByLoanID(ctx context.Context, loanID int32) (*domain.Fine, error) {
	defer r.lock()()
	for _, f := range r.st().fines {
		if f.LoanID == loanID {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("fine for loan %d: %w", loanID, domain.ErrNotFound)
}

func (r *fineRepo) Update(ctx context.Context, f *domain.Fine) error {
	defer r.lock()()
	if _, ok := r.st().fines[f.ID]; !ok {
		return notFound("fine", f.ID)
	}
	r.st().fines[f.ID] = *f
	return nil
}

func (r *fineRepo) DeleteByLoanID(ctx context.Context, loanID int32) error {
	defer r.lock()()
	for id, f := range r.st().fines {
		if f.LoanID == loanID {
			delete(r.st().fines, id)
		}
	}
	return nil
}

func (r *fineRepo) ListUnpaid(ctx context.Context) ([]domain.Fine, error) {
	defer r.lock()()
	var out []domain.Fine
	for _, f := range r.st().fines {
		if !f.Paid {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type notificationRepo struct{ base }

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	defer r.lock()()
	n.ID = r.st().newID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.st().notifications = append(r.st().notifications, *n)
	return nil
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, error) {
	defer r.lock()()
	var matched []domain.Notification
	notes := r.st().notifications
	for i := len(notes) - 1; i >= 0; i-- {
		if notes[i].UserID == userID {
			matched = append(matched, notes[i])
		}
	}
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && int(limit) < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

type auditRepo struct{ base }

func (r *auditRepo) Create(ctx context.Context, e *domain.AuditEntry) error {
	defer r.lock()()
	e.ID = r.st().newID()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.st().audit = append(r.st().audit, *e)
	return nil
}

func (r *auditRepo) ListByUser(ctx context.Context, userID int32) ([]domain.AuditEntry, error) {
	defer r.lock()()
	var out []domain.AuditEntry
	entries := r.st().audit
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].UserID == userID {
			out = append(out, entries[i])
		}
	}
	return out, nil
}
