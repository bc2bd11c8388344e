package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

// querier is the subset of *sql.DB and *sql.Tx the ledger queries use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const transactionColumns = `id, user_id, borrowed_count, created_at, updated_at`

// loanColumns selects from borrowed_books l joined with borrow_transactions t.
// Must match the scan order in scanLoan.
const loanColumns = `l.id, l.transaction_id, t.user_id, l.book_id, l.borrowed_at, l.return_due, l.returned_at, l.penalty_per_day`

const loanFrom = ` FROM borrowed_books l JOIN borrow_transactions t ON t.id = l.transaction_id`

func scanTransaction(row scanner) (*domain.BorrowTransaction, error) {
	var (
		txn                  domain.BorrowTransaction
		createdAt, updatedAt string
	)
	if err := row.Scan(&txn.ID, &txn.UserID, &txn.BorrowedCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if txn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if txn.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanLoan(row scanner, extra ...any) (*domain.Loan, error) {
	var (
		loan                  domain.Loan
		borrowedAt, returnDue string
		returnedAt            sql.NullString
		rate                  string
	)
	dest := append([]any{
		&loan.ID,
		&loan.TransactionID,
		&loan.UserID,
		&loan.BookID,
		&borrowedAt,
		&returnDue,
		&returnedAt,
		&rate,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if loan.BorrowedAt, err = parseTime(borrowedAt); err != nil {
		return nil, err
	}
	if loan.ReturnDue, err = parseTime(returnDue); err != nil {
		return nil, err
	}
	if loan.ReturnedAt, err = parseNullableTime(returnedAt); err != nil {
		return nil, err
	}
	if loan.PenaltyPerDay, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse penalty rate %q: %w", rate, err)
	}
	return &loan, nil
}

// WithinTx runs fn inside a BEGIN IMMEDIATE transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(ctx, &ledgerTx{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTransaction returns the user's BorrowTransaction or store.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, userID string) (*domain.BorrowTransaction, error) {
	return getTransaction(ctx, s.db, userID)
}

// ListLoansByUser returns the user's loans, newest first.
func (s *Store) ListLoansByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + loanFrom + ` WHERE t.user_id = ?`
	if activeOnly {
		query += ` AND l.returned_at IS NULL`
	}
	query += ` ORDER BY l.borrowed_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+loanColumns+`, b.title, u.email, u.username, u.first_name, u.last_name`+loanFrom+`
		JOIN books b ON b.id = l.book_id
		JOIN users u ON u.id = t.user_id
		WHERE l.returned_at IS NULL AND l.return_due >= ? AND l.return_due <= ?
		ORDER BY l.return_due ASC`,
		formatTime(from), formatTime(to))
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

func getTransaction(ctx context.Context, q querier, userID string) (*domain.BorrowTransaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM borrow_transactions WHERE user_id = ?`, userID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get borrow transaction: %w", err)
	}
	return txn, nil
}

// ledgerTx implements store.LedgerTx on an open *sql.Tx. The IMMEDIATE
// lock taken at BEGIN already excludes other writers, so reads need no
// row-level locking.
type ledgerTx struct {
	q querier
}

func (t *ledgerTx) EnsureTransaction(ctx context.Context, c *domain.BorrowTransaction) (*domain.BorrowTransaction, bool, error) {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO borrow_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		c.ID, c.UserID, c.BorrowedCount, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, fmt.Errorf("insert borrow transaction: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	txn, err := getTransaction(ctx, t.q, c.UserID)
	if err != nil {
		return nil, false, err
	}
	return txn, inserted == 1, nil
}

func (t *ledgerTx) LockTransaction(ctx context.Context, userID string) (*domain.BorrowTransaction, error) {
	return getTransaction(ctx, t.q, userID)
}

func (t *ledgerTx) UpdateTransaction(ctx context.Context, txn *domain.BorrowTransaction) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE borrow_transactions SET borrowed_count = ?, updated_at = ? WHERE id = ?`,
		txn.BorrowedCount, formatTime(txn.UpdatedAt), txn.ID)
	if err != nil {
		return fmt.Errorf("update borrow transaction: %w", err)
	}
	return expectOneRow(res)
}

func (t *ledgerTx) GetActiveLoan(ctx context.Context, transactionID, bookID string) (*domain.Loan, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+loanColumns+loanFrom+`
		WHERE l.transaction_id = ? AND l.book_id = ? AND l.returned_at IS NULL`,
		transactionID, bookID)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active loan: %w", err)
	}
	return loan, nil
}

func (t *ledgerTx) InsertLoan(ctx context.Context, loan *domain.Loan) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO borrowed_books (
			id, transaction_id, book_id, borrowed_at, return_due, returned_at, penalty_per_day
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		loan.ID,
		loan.TransactionID,
		loan.BookID,
		formatTime(loan.BorrowedAt),
		formatTime(loan.ReturnDue),
		nullTimeString(loan.ReturnedAt),
		loan.PenaltyPerDay.StringFixed(2),
	)
	switch {
	case isUniqueViolation(err):
		return store.ErrActiveLoanExists
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	case err != nil:
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE borrowed_books SET return_due = ?, returned_at = ? WHERE id = ?`,
		formatTime(loan.ReturnDue), nullTimeString(loan.ReturnedAt), loan.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrActiveLoanExists
		}
		return fmt.Errorf("update loan: %w", err)
	}
	return expectOneRow(res)
}

func (t *ledgerTx) CountActiveLoans(ctx context.Context, transactionID string) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrowed_books WHERE transaction_id = ? AND returned_at IS NULL`,
		transactionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active loans: %w", err)
	}
	return n, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
