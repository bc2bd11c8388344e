package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/id"
	"github.com/JoeAtEgypt/library-management/internal/sse"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

// Notifier enqueues a user notification. It must not block or fail the caller.
type Notifier interface {
	Send(ctx context.Context, subject, body string, recipients []string)
}

// Publisher broadcasts an event to the live subscribers of a topic.
type Publisher interface {
	Publish(topic string, event sse.Event)
}

// BorrowingStore is the persistence the borrowing engine needs.
type BorrowingStore interface {
	store.Ledger
	GetBook(ctx context.Context, id string) (*domain.Book, error)
}

// BorrowingConfig holds the lending policy.
type BorrowingConfig struct {
	MaxActiveLoans int
	MaxLoanDays    int
	PenaltyPerDay  decimal.Decimal
	// Location interprets calendar due dates and reminder day counts.
	Location *time.Location
}

// DefaultBorrowingConfig returns the standard policy: 3 books, 30 days, 0.50 per day late.
func DefaultBorrowingConfig() BorrowingConfig {
	return BorrowingConfig{
		MaxActiveLoans: 3,
		MaxLoanDays:    30,
		PenaltyPerDay:  domain.DefaultPenaltyPerDay,
		Location:       time.UTC,
	}
}

// LoanView is a loan with its derived state evaluated at a point in time.
type LoanView struct {
	*domain.Loan
	IsOverdue bool            `json:"is_overdue"`
	Penalty   decimal.Decimal `json:"penalty"`
}

// BorrowingService is the borrow/return engine.
//
// Every state change runs inside one ledger transaction. Notifications and
// availability events are emitted only after that transaction commits.
type BorrowingService struct {
	store     BorrowingStore
	notifier  Notifier
	publisher Publisher
	cfg       BorrowingConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewBorrowingService creates a borrowing engine. Zero config fields take the defaults.
func NewBorrowingService(s BorrowingStore, notifier Notifier, publisher Publisher, cfg BorrowingConfig, logger *slog.Logger) *BorrowingService {
	def := DefaultBorrowingConfig()
	if cfg.MaxActiveLoans <= 0 {
		cfg.MaxActiveLoans = def.MaxActiveLoans
	}
	if cfg.MaxLoanDays <= 0 {
		cfg.MaxLoanDays = def.MaxLoanDays
	}
	if cfg.PenaltyPerDay.IsZero() {
		cfg.PenaltyPerDay = def.PenaltyPerDay
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &BorrowingService{
		store:     s,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// BorrowBook lends bookID to user until returnDue.
func (s *BorrowingService) BorrowBook(ctx context.Context, user *domain.User, bookID, returnDue string) error {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domainerrors.Validation("no book ID provided")
	}
	if strings.TrimSpace(returnDue) == "" {
		return domainerrors.Validation("no return due date provided")
	}

	due, err := domain.ParseReturnDue(returnDue, s.cfg.Location)
	if err != nil {
		return err
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return mapStoreError(err, "book %s not found", bookID)
	}

	now := s.now()
	loan := &domain.Loan{
		ID:            id.MustGenerate(id.PrefixLoan),
		BookID:        book.ID,
		UserID:        user.ID,
		BorrowedAt:    now.UTC(),
		ReturnDue:     due.UTC(),
		PenaltyPerDay: s.cfg.PenaltyPerDay,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		txn, created, err := tx.EnsureTransaction(ctx, &domain.BorrowTransaction{
			ID:        id.MustGenerate(id.PrefixTransaction),
			UserID:    user.ID,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		})
		if err != nil {
			return fmt.Errorf("lock borrow transaction: %w", err)
		}
		if created {
			s.logger.Debug("borrow transaction created", "user_id", user.ID, "transaction_id", txn.ID)
		}

		if txn.BorrowedCount+1 > s.cfg.MaxActiveLoans {
			return domainerrors.LimitExceeded(limitMessage(s.cfg.MaxActiveLoans))
		}
		txn.BorrowedCount++
		txn.UpdatedAt = now.UTC()

		if err := domain.ValidateReturnDue(due, now, s.cfg.MaxLoanDays); err != nil {
			return err
		}

		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("save borrow transaction: %w", err)
		}

		loan.TransactionID = txn.ID
		if err := tx.InsertLoan(ctx, loan); err != nil {
			if errors.Is(err, store.ErrActiveLoanExists) {
				return domainerrors.Conflictf("book %s is already borrowed by you and not yet returned", book.ID)
			}
			return fmt.Errorf("create loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("book borrowed",
		"user_id", user.ID,
		"book_id", book.ID,
		"loan_id", loan.ID,
		"return_due", loan.ReturnDue)

	s.notifier.Send(ctx,
		"Book Borrowed",
		fmt.Sprintf("You have successfully borrowed the book with ID %s and Name %s.", book.ID, book.Title),
		[]string{user.Email})

	return nil
}

// ReturnBook closes the user's active loan of bookID and returns the late penalty.
func (s *BorrowingService) ReturnBook(ctx context.Context, user *domain.User, bookID string) (decimal.Decimal, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return decimal.Zero, domainerrors.Validation("no book ID provided")
	}

	now := s.now()
	var returned *domain.Loan

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		txn, err := tx.LockTransaction(ctx, user.ID)
		if err != nil {
			return mapStoreError(err, "no active loan of book %s", bookID)
		}

		loan, err := tx.GetActiveLoan(ctx, txn.ID, bookID)
		if err != nil {
			return mapStoreError(err, "no active loan of book %s", bookID)
		}

		if err := loan.MarkReturned(now); err != nil {
			return err
		}

		if txn.BorrowedCount > 0 {
			txn.BorrowedCount--
		} else {
			s.logger.Warn("borrowed count already zero on return, leaving at zero",
				"user_id", user.ID,
				"transaction_id", txn.ID,
				"loan_id", loan.ID)
		}
		txn.UpdatedAt = now.UTC()

		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("save borrow transaction: %w", err)
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return fmt.Errorf("save loan: %w", err)
		}

		active, err := tx.CountActiveLoans(ctx, txn.ID)
		if err != nil {
			return fmt.Errorf("count active loans: %w", err)
		}
		if active != txn.BorrowedCount {
			s.logger.Warn("borrowed count drifted from active loans",
				"user_id", user.ID,
				"transaction_id", txn.ID,
				"borrowed_count", txn.BorrowedCount,
				"active_loans", active)
		}

		returned = loan
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	penalty := returned.Penalty(now)

	s.logger.Info("book returned",
		"user_id", user.ID,
		"book_id", bookID,
		"loan_id", returned.ID,
		"penalty", penalty.StringFixed(2))

	title := bookID
	if book, err := s.store.GetBook(ctx, bookID); err != nil {
		s.logger.Warn("failed to load returned book for notifications", "book_id", bookID, "error", err)
	} else {
		title = book.Title
	}

	s.publisher.Publish(sse.TopicBookAvailability, sse.NewBookAvailableEvent(bookID, title))

	body := fmt.Sprintf("You have successfully returned the book with ID %s and Name %s.", bookID, title)
	if penalty.IsPositive() {
		body += fmt.Sprintf(" A late return penalty of %s applies.", penalty.StringFixed(2))
	}
	s.notifier.Send(ctx, "Book Returned", body, []string{user.Email})

	return penalty, nil
}

// RunReminderSweep enqueues one reminder per active loan due within
// [now, now+windowDays]. Repeated runs resend reminders for the same loans.
// It returns the number of reminders enqueued.
func (s *BorrowingService) RunReminderSweep(ctx context.Context, now time.Time, windowDays int) (int, error) {
	if windowDays <= 0 {
		return 0, domainerrors.Validation("reminder window must be at least one day")
	}

	end := now.Add(time.Duration(windowDays) * domain.Day)
	due, err := s.store.ListActiveLoansDueBetween(ctx, now, end)
	if err != nil {
		return 0, fmt.Errorf("scan due loans: %w", err)
	}

	sent := 0
	for _, item := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		daysLeft := domain.CalendarDaysBetween(now, item.ReturnDue, s.cfg.Location)
		subject, body := reminderMessage(item, daysLeft, s.cfg.Location)
		s.notifier.Send(ctx, subject, body, []string{item.UserEmail})
		sent++
	}

	s.logger.Info("reminder sweep complete",
		"window_days", windowDays,
		"due_loans", len(due),
		"reminders", sent)
	return sent, nil
}

// MaxActiveLoans is the per-user cap on simultaneous loans.
func (s *BorrowingService) MaxActiveLoans() int {
	return s.cfg.MaxActiveLoans
}

// ListLoans returns the user's loans, newest first, with overdue state and
// accrued penalty evaluated now.
func (s *BorrowingService) ListLoans(ctx context.Context, userID string, activeOnly bool) ([]LoanView, error) {
	loans, err := s.store.ListLoansByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	now := s.now()
	out := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, LoanView{
			Loan:      l,
			IsOverdue: l.IsOverdue(now),
			Penalty:   l.Penalty(now),
		})
	}
	return out, nil
}

// Summary returns the user's borrow transaction. Users who never borrowed
// get an unsaved transaction with a zero count.
func (s *BorrowingService) Summary(ctx context.Context, userID string) (*domain.BorrowTransaction, error) {
	txn, err := s.store.GetTransaction(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &domain.BorrowTransaction{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get borrow transaction: %w", err)
	}
	return txn, nil
}

func limitMessage(limit int) string {
	return fmt.Sprintf("cannot borrow more than %d books at a time; return one to borrow a %s", limit, ordinal(limit+1))
}

var ordinalWords = [...]string{"", "first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"}

// ordinal spells n as "fourth" up to ten and as "21st" beyond.
func ordinal(n int) string {
	if n > 0 && n < len(ordinalWords) {
		return ordinalWords[n]
	}
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

func reminderMessage(item *domain.LoanReminder, daysLeft int, loc *time.Location) (subject, body string) {
	subject = fmt.Sprintf("Reminder: Return your books in %d day(s)", daysLeft)
	body = fmt.Sprintf("Hello %s,\n\n"+
		"This is a friendly reminder that the following book is due to be returned in %d day(s): %s\n\n"+
		"Return Date: %s\n\n"+
		"Please return them on time to avoid penalties.\n\n"+
		"Regards,\n"+
		"Library Management Team",
		item.UserName, daysLeft, item.BookTitle, item.ReturnDue.In(loc).Format(domain.DateLayout))
	return subject, body
}

// mapStoreError turns store.ErrNotFound into a NotFound domain error and
// wraps everything else.
func mapStoreError(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFoundf(format, args...)
	}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("ledger lookup: %w", err)
}
