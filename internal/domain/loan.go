package domain

import "time"

type LoanStatus string

const (
	LoanStatusBorrowed LoanStatus = "BORROWED"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
	LoanStatusReturned LoanStatus = "RETURNED"
)

// loanTransitions lists every status change a loan may go through.
// RETURNED -> BORROWED is the administrative reopen.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusBorrowed: {LoanStatusOverdue, LoanStatusReturned},
	LoanStatusOverdue:  {LoanStatusReturned},
	LoanStatusReturned: {LoanStatusBorrowed},
}

// CanTransitionTo reports whether the loan may move from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether a loan in this status still holds its copy.
func (s LoanStatus) IsOpen() bool {
	switch s {
	case LoanStatusBorrowed, LoanStatusOverdue:
		return true
	case LoanStatusReturned:
		return false
	default:
		return false
	}
}

func (s LoanStatus) Valid() bool {
	_, ok := loanTransitions[s]
	return ok
}

type Loan struct {
	ID         int32      `json:"id"`
	UserID     int32      `json:"user_id"`
	CopyID     int32      `json:"copy_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     LoanStatus `json:"status"`
}

// IsPastDue reports whether the due time lies strictly before now.
func (l *Loan) IsPastDue(now time.Time) bool {
	return l.DueAt.Before(now)
}
