package service

import (
	"context"
	"fmt"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

type reservationService struct {
	store  repository.Store
	sinks  sinks
	policy Policy
}

func NewReservationService(store repository.Store, notifier NotificationSink, auditor AuditSink, policy Policy) ReservationService {
	return &reservationService{
		store:  store,
		sinks:  sinks{notifier: notifier, auditor: auditor},
		policy: policy,
	}
}

func (s *reservationService) Reserve(ctx context.Context, actor domain.Actor, bookID, borrowerID int32) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.Reserve", "bookID", bookID, "borrowerID", borrowerID, "actor", actor.UserID)

	now := s.policy.now()
	var res *domain.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if _, err := repos.Books.GetByID(ctx, bookID); err != nil {
			return err
		}
		if _, err := repos.Users.GetByID(ctx, borrowerID); err != nil {
			return err
		}

		exists, err := repos.Reservations.ExistsActive(ctx, borrowerID, bookID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("user %d already holds a reservation for book %d: %w", borrowerID, bookID, domain.ErrConflict)
		}

		res = &domain.Reservation{
			UserID:     borrowerID,
			BookID:     bookID,
			ReservedAt: now,
			Status:     domain.ReservationStatusPending,
		}
		if s.policy.ReservationHold > 0 {
			expires := now.Add(s.policy.ReservationHold)
			res.ExpiresAt = &expires
		}
		// The active-reservation unique index backs up the check above.
		return repos.Reservations.Create(ctx, res)
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.Reserve", err, "bookID", bookID, "borrowerID", borrowerID)
		return nil, err
	}

	s.sinks.audit(ctx, borrowerID, "reserve reservation=%d book=%d actor=%d", res.ID, bookID, actor.UserID)

	logger.ExitMethod("reservationService.Reserve", "reservationID", res.ID)
	return res, nil
}

func (s *reservationService) Approve(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.Approve", "reservationID", reservationID, "actor", actor.UserID)

	if !actor.IsStaff() {
		err := fmt.Errorf("user %d may not approve reservations: %w", actor.UserID, domain.ErrForbidden)
		logger.ExitMethodWithError("reservationService.Approve", err)
		return nil, err
	}

	var title string
	res, err := s.transition(ctx, reservationID, domain.ReservationStatusApproved, func(ctx context.Context, repos *repository.Repositories, r *domain.Reservation) error {
		title = bookTitle(ctx, repos, r.BookID)
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.Approve", err, "reservationID", reservationID)
		return nil, err
	}

	s.sinks.notify(ctx, res.UserID, fmt.Sprintf("Your reservation for '%s' has been approved.", title),
		map[string]string{"type": "RESERVATION_APPROVED", "reservation_id": idAttr(res.ID)})
	s.sinks.audit(ctx, actor.UserID, "approve reservation=%d requester=%d", res.ID, res.UserID)

	logger.ExitMethod("reservationService.Approve", "reservationID", reservationID)
	return res, nil
}

// Cancel is allowed only for the reservation's owner.
func (s *reservationService) Cancel(ctx context.Context, actor domain.Actor, reservationID int32) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.Cancel", "reservationID", reservationID, "actor", actor.UserID)

	res, err := s.transition(ctx, reservationID, domain.ReservationStatusCancelled, func(_ context.Context, _ *repository.Repositories, r *domain.Reservation) error {
		if r.UserID != actor.UserID {
			return fmt.Errorf("user %d does not own reservation %d: %w", actor.UserID, r.ID, domain.ErrForbidden)
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.Cancel", err, "reservationID", reservationID)
		return nil, err
	}

	s.sinks.audit(ctx, actor.UserID, "cancel reservation=%d", res.ID)

	logger.ExitMethod("reservationService.Cancel", "reservationID", reservationID)
	return res, nil
}

func (s *reservationService) ListUserReservations(ctx context.Context, userID int32) ([]domain.Reservation, error) {
	if _, err := s.store.Repos().Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Repos().Reservations.ListByUser(ctx, userID)
}

// transition locks the reservation, runs check, then moves it to next if the
// state machine allows it.
func (s *reservationService) transition(ctx context.Context, id int32, next domain.ReservationStatus, check func(context.Context, *repository.Repositories, *domain.Reservation) error) (*domain.Reservation, error) {
	var res *domain.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		res, err = repos.Reservations.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(ctx, repos, res); err != nil {
				return err
			}
		}
		if !res.Status.CanTransitionTo(next) {
			return fmt.Errorf("reservation %d is %s: %w", id, res.Status, domain.ErrConflict)
		}
		res.Status = next
		return repos.Reservations.Update(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
