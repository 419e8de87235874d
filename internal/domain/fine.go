package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine is a one-time penalty snapshot for an overdue loan.
// Amount is computed once at creation and never re-accrued.
type Fine struct {
	ID        int32           `json:"id"`
	LoanID    int32           `json:"loan_id"`
	Amount    decimal.Decimal `json:"amount"`
	Paid      bool            `json:"paid"`
	CreatedAt time.Time       `json:"created_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}
