// Package store defines the persistence contracts for the library backend.
// Implementations live in store/sqlite and store/postgres.
package store

import (
	"context"
	"time"

	"github.com/JoeAtEgypt/library-management/internal/domain"
)

// Store is everything the services need from persistence.
type Store interface {
	Ledger
	Catalog
	Users

	Ping(ctx context.Context) error
	Close() error
}

// Ledger holds BorrowTransactions and loans.
//
// All writes go through WithinTx. Implementations serialize transactions of the
// same user so that a check made inside fn still holds when fn returns.
type Ledger interface {
	// WithinTx runs fn in one atomic unit. fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	GetTransaction(ctx context.Context, userID string) (*domain.BorrowTransaction, error)
	ListLoansByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Loan, error)
	// ListActiveLoansDueBetween returns active loans with from <= return_due <= to.
	ListActiveLoansDueBetween(ctx context.Context, from, to time.Time) ([]*domain.LoanReminder, error)
}

// LedgerTx is the view of the ledger inside a WithinTx callback.
type LedgerTx interface {
	// EnsureTransaction inserts candidate unless the user already has a
	// transaction, then returns the stored row locked for this unit.
	// created reports whether candidate was inserted.
	EnsureTransaction(ctx context.Context, candidate *domain.BorrowTransaction) (txn *domain.BorrowTransaction, created bool, err error)
	// LockTransaction returns the user's transaction locked for this unit, or ErrNotFound.
	LockTransaction(ctx context.Context, userID string) (*domain.BorrowTransaction, error)
	UpdateTransaction(ctx context.Context, txn *domain.BorrowTransaction) error

	// GetActiveLoan returns the loan of bookID with no return timestamp, or ErrNotFound.
	GetActiveLoan(ctx context.Context, transactionID, bookID string) (*domain.Loan, error)
	// InsertLoan returns ErrActiveLoanExists when the pair already has an active loan.
	InsertLoan(ctx context.Context, loan *domain.Loan) error
	UpdateLoan(ctx context.Context, loan *domain.Loan) error
	CountActiveLoans(ctx context.Context, transactionID string) (int, error)
}

// BookFilter narrows ListBooks. Name filters are case-insensitive exact matches.
type BookFilter struct {
	IDs      []string
	Library  string
	Author   string
	Category string
	Limit    int
	Offset   int
}

// AuthorFilter narrows ListAuthors to authors with books in a category or library.
type AuthorFilter struct {
	BookCategory string
	Library      string
}

// LibraryFilter narrows ListLibraries to libraries holding matching books.
type LibraryFilter struct {
	BookCategory string
	Author       string
}

// Catalog is the read-mostly reference data.
type Catalog interface {
	CreateLibrary(ctx context.Context, lib *domain.Library) error
	CreateAuthor(ctx context.Context, author *domain.Author) error
	CreateCategory(ctx context.Context, category *domain.Category) error
	CreateBook(ctx context.Context, book *domain.Book) error

	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]*domain.BookListing, error)
	ListAuthors(ctx context.Context, filter AuthorFilter) ([]*domain.AuthorListing, error)
	ListLibraries(ctx context.Context, filter LibraryFilter) ([]*domain.Library, error)
}

// Users is the member directory.
type Users interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}
