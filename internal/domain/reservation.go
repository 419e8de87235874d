package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusApproved  ReservationStatus = "APPROVED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:   {ReservationStatusApproved, ReservationStatusCancelled, ReservationStatusExpired},
	ReservationStatusApproved:  nil,
	ReservationStatusCancelled: nil,
	ReservationStatusExpired:   nil,
}

// CanTransitionTo reports whether the reservation may move from s to next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive reports whether the reservation still blocks a new one for the same user and book.
func (s ReservationStatus) IsActive() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusApproved:
		return true
	case ReservationStatusCancelled, ReservationStatusExpired:
		return false
	default:
		return false
	}
}

func (s ReservationStatus) Valid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

type Reservation struct {
	ID         int32             `json:"id"`
	UserID     int32             `json:"user_id"`
	BookID     int32             `json:"book_id"`
	ReservedAt time.Time         `json:"reserved_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	Status     ReservationStatus `json:"status"`
}
