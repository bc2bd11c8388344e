package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
)

// Day is the unit penalties and loan lengths are measured in.
const Day = 24 * time.Hour

// DateLayout is the calendar-date form accepted for return due dates.
const DateLayout = "2006-01-02"

// DefaultPenaltyPerDay is the late fee applied when no rate is configured.
var DefaultPenaltyPerDay = decimal.RequireFromString("0.50")

// BorrowTransaction is the per-user ledger head. It is created on the user's
// first borrow and never deleted; BorrowedCount always equals the number of
// the user's active loans.
type BorrowTransaction struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	BorrowedCount int       `json:"borrowed_count"`
}

// Loan is one borrowing of one book (a BorrowedBook record).
// A loan is active until ReturnedAt is set; after that it is terminal.
type Loan struct {
	BorrowedAt    time.Time       `json:"borrowed_at"`
	ReturnDue     time.Time       `json:"return_due"`
	ReturnedAt    *time.Time      `json:"returned_at,omitempty"`
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	BookID        string          `json:"book_id"`
	UserID        string          `json:"user_id"`
	PenaltyPerDay decimal.Decimal `json:"penalty_per_day"`
}

// IsActive reports whether the book is still out.
func (l *Loan) IsActive() bool {
	return l.ReturnedAt == nil
}

// IsOverdue reports whether the loan is active and past its due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.IsActive() && now.After(l.ReturnDue)
}

// DaysLate returns the whole days between the due date and the return time
// (or now, while active). Partial days are dropped; early returns give zero.
func (l *Loan) DaysLate(now time.Time) int64 {
	end := now
	if l.ReturnedAt != nil {
		end = *l.ReturnedAt
	}
	late := end.Sub(l.ReturnDue)
	if late <= 0 {
		return 0
	}
	return int64(late / Day)
}

// Penalty is DaysLate multiplied by the loan's rate, rounded to cents.
func (l *Loan) Penalty(now time.Time) decimal.Decimal {
	days := l.DaysLate(now)
	if days == 0 {
		return decimal.Zero
	}
	return l.PenaltyPerDay.Mul(decimal.NewFromInt(days)).Round(2)
}

// MarkReturned closes the loan. Returning twice is a conflict.
func (l *Loan) MarkReturned(at time.Time) error {
	if l.ReturnedAt != nil {
		return domainerrors.Conflictf("book %s was already returned", l.BookID)
	}
	at = at.UTC()
	l.ReturnedAt = &at
	return nil
}

// LoanReminder is an active loan joined with what a reminder needs to say.
type LoanReminder struct {
	Loan
	BookTitle string
	UserEmail string
	UserName  string
}

// ParseReturnDue reads a due date given either as a calendar date
// ("2026-03-14", midnight in loc) or as an RFC 3339 timestamp.
func ParseReturnDue(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domainerrors.Validation("return_due is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(DateLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, domainerrors.Validationf("return_due %q is not a valid date (expected YYYY-MM-DD)", raw)
}

// ValidateReturnDue checks now < due <= now+maxDays.
func ValidateReturnDue(due, now time.Time, maxDays int) error {
	if !due.After(now) {
		return domainerrors.Validation("return_due must be in the future")
	}
	if due.After(now.Add(time.Duration(maxDays) * Day)) {
		return domainerrors.Validationf("return_due cannot be more than %d days from now", maxDays)
	}
	return nil
}

// CalendarDaysBetween counts calendar-date boundaries from one instant to
// another as seen in loc. Times on the same date give zero.
func CalendarDaysBetween(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / Day)
}
