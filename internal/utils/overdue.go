package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// OverdueDays returns the whole days elapsed since dueAt, rounded down.
// It is zero when now is not after dueAt.
func OverdueDays(dueAt, now time.Time) int64 {
	if !now.After(dueAt) {
		return 0
	}
	return int64(now.Sub(dueAt) / day)
}

// FineAmount computes rate × days, rounded to cents.
func FineAmount(dailyRate decimal.Decimal, days int64) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(days)).Round(2)
}

// DueDate returns the due time for a loan starting at start and lasting loanDays.
func DueDate(start time.Time, loanDays int) time.Time {
	return start.Add(time.Duration(loanDays) * day)
}
