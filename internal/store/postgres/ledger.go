package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

const transactionColumns = `id, user_id, borrowed_count, created_at, updated_at`

const loanColumns = `l.id, l.transaction_id, t.user_id, l.book_id, l.borrowed_at, l.return_due, l.returned_at, l.penalty_per_day::text`

const loanFrom = ` FROM borrowed_books l JOIN borrow_transactions t ON t.id = l.transaction_id`

func scanTransaction(row pgx.Row) (*domain.BorrowTransaction, error) {
	var txn domain.BorrowTransaction
	if err := row.Scan(&txn.ID, &txn.UserID, &txn.BorrowedCount, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanLoan(row pgx.Row, extra ...any) (*domain.Loan, error) {
	var (
		loan domain.Loan
		rate string
	)
	dest := append([]any{
		&loan.ID,
		&loan.TransactionID,
		&loan.UserID,
		&loan.BookID,
		&loan.BorrowedAt,
		&loan.ReturnDue,
		&loan.ReturnedAt,
		&rate,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if loan.PenaltyPerDay, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse penalty rate %q: %w", rate, err)
	}
	loan.BorrowedAt = loan.BorrowedAt.UTC()
	loan.ReturnDue = loan.ReturnDue.UTC()
	if loan.ReturnedAt != nil {
		at := loan.ReturnedAt.UTC()
		loan.ReturnedAt = &at
	}
	return &loan, nil
}

// WithinTx runs fn in a READ COMMITTED transaction. Isolation between borrow
// units comes from the FOR UPDATE lock taken by EnsureTransaction and
// LockTransaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &ledgerTx{q: tx})
	})
}

// GetTransaction returns the user's BorrowTransaction or store.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, userID string) (*domain.BorrowTransaction, error) {
	return getTransaction(ctx, s.pool, userID, false)
}

// ListLoansByUser returns the user's loans, newest first.
func (s *Store) ListLoansByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + loanFrom + ` WHERE t.user_id = $1`
	if activeOnly {
		query += ` AND l.returned_at IS NULL`
	}
	query += ` ORDER BY l.borrowed_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// ListActiveLoansDueBetween returns active loans due in [from, to], soonest first.
func (s *Store) ListActiveLoansDueBetween(ctx context.Context, from, to time.Time) ([]*domain.LoanReminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+loanColumns+`, b.title, u.email, u.username, u.first_name, u.last_name`+loanFrom+`
		JOIN books b ON b.id = l.book_id
		JOIN users u ON u.id = t.user_id
		WHERE l.returned_at IS NULL AND l.return_due BETWEEN $1 AND $2
		ORDER BY l.return_due ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due loans: %w", err)
	}
	defer rows.Close()

	var out []*domain.LoanReminder
	for rows.Next() {
		var (
			title string
			user  domain.User
		)
		loan, err := scanLoan(rows, &title, &user.Email, &user.Username, &user.FirstName, &user.LastName)
		if err != nil {
			return nil, fmt.Errorf("scan due loan: %w", err)
		}
		out = append(out, &domain.LoanReminder{
			Loan:      *loan,
			BookTitle: title,
			UserEmail: user.Email,
			UserName:  user.DisplayName(),
		})
	}
	return out, rows.Err()
}

func getTransaction(ctx context.Context, q querier, userID string, forUpdate bool) (*domain.BorrowTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM borrow_transactions WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	txn, err := scanTransaction(q.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get borrow transaction: %w", err)
	}
	return txn, nil
}

type ledgerTx struct {
	q querier
}

// EnsureTransaction relies on ON CONFLICT waiting for a concurrent inserter
// to commit, so the following FOR UPDATE always finds the row.
func (t *ledgerTx) EnsureTransaction(ctx context.Context, c *domain.BorrowTransaction) (*domain.BorrowTransaction, bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO borrow_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		c.ID, c.UserID, c.BorrowedCount, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return nil, false, store.ErrNotFound
		}
		return nil, false, fmt.Errorf("insert borrow transaction: %w", err)
	}

	txn, err := getTransaction(ctx, t.q, c.UserID, true)
	if err != nil {
		return nil, false, err
	}
	return txn, tag.RowsAffected() == 1, nil
}

func (t *ledgerTx) LockTransaction(ctx context.Context, userID string) (*domain.BorrowTransaction, error) {
	return getTransaction(ctx, t.q, userID, true)
}

func (t *ledgerTx) UpdateTransaction(ctx context.Context, txn *domain.BorrowTransaction) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE borrow_transactions SET borrowed_count = $1, updated_at = $2 WHERE id = $3`,
		txn.BorrowedCount, txn.UpdatedAt.UTC(), txn.ID)
	if err != nil {
		return fmt.Errorf("update borrow transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) GetActiveLoan(ctx context.Context, transactionID, bookID string) (*domain.Loan, error) {
	loan, err := scanLoan(t.q.QueryRow(ctx, `SELECT `+loanColumns+loanFrom+`
		WHERE l.transaction_id = $1 AND l.book_id = $2 AND l.returned_at IS NULL`,
		transactionID, bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active loan: %w", err)
	}
	return loan, nil
}

func (t *ledgerTx) InsertLoan(ctx context.Context, loan *domain.Loan) error {
	var returnedAt *time.Time
	if loan.ReturnedAt != nil {
		at := loan.ReturnedAt.UTC()
		returnedAt = &at
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO borrowed_books (
			id, transaction_id, book_id, borrowed_at, return_due, returned_at, penalty_per_day
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)`,
		loan.ID,
		loan.TransactionID,
		loan.BookID,
		loan.BorrowedAt.UTC(),
		loan.ReturnDue.UTC(),
		returnedAt,
		loan.PenaltyPerDay.StringFixed(2),
	)
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case pgUniqueViolation:
		return store.ErrActiveLoanExists
	case pgForeignKeyViolation:
		return store.ErrNotFound
	default:
		return fmt.Errorf("insert loan: %w", err)
	}
}

func (t *ledgerTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	var returnedAt *time.Time
	if loan.ReturnedAt != nil {
		at := loan.ReturnedAt.UTC()
		returnedAt = &at
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE borrowed_books SET return_due = $1, returned_at = $2 WHERE id = $3`,
		loan.ReturnDue.UTC(), returnedAt, loan.ID)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return store.ErrActiveLoanExists
		}
		return fmt.Errorf("update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) CountActiveLoans(ctx context.Context, transactionID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM borrowed_books WHERE transaction_id = $1 AND returned_at IS NULL`,
		transactionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active loans: %w", err)
	}
	return n, nil
}
