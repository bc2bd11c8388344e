package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

// bookListingColumns must match the scan order in scanBookListing.
const bookListingColumns = `b.id, b.title, b.description, b.author_id, b.category_id, b.library_id, b.created_at,
	a.name, c.name, l.name`

const bookListingFrom = ` FROM books b
	JOIN authors a ON a.id = b.author_id
	JOIN categories c ON c.id = b.category_id
	JOIN libraries l ON l.id = b.library_id`

func scanBookListing(row scanner) (*domain.BookListing, error) {
	var (
		bl        domain.BookListing
		createdAt string
	)
	err := row.Scan(
		&bl.ID,
		&bl.Title,
		&bl.Description,
		&bl.AuthorID,
		&bl.CategoryID,
		&bl.LibraryID,
		&createdAt,
		&bl.AuthorName,
		&bl.CategoryName,
		&bl.LibraryName,
	)
	if err != nil {
		return nil, err
	}
	if bl.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &bl, nil
}

// where collects AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) iexact(column, value string) {
	if value == "" {
		return
	}
	w.conds = append(w.conds, "lower("+column+") = lower(?)")
	w.args = append(w.args, value)
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	w.conds = append(w.conds, column+" IN (?"+strings.Repeat(", ?", len(values)-1)+")")
	for _, v := range values {
		w.args = append(w.args, v)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// CreateLibrary inserts a library. Returns store.ErrAlreadyExists on duplicate ID.
func (s *Store) CreateLibrary(ctx context.Context, lib *domain.Library) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO libraries (id, name, address, created_at) VALUES (?, ?, ?, ?)`,
		lib.ID, lib.Name, lib.Address, formatTime(lib.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// CreateAuthor inserts an author.
func (s *Store) CreateAuthor(ctx context.Context, author *domain.Author) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authors (id, name, bio, created_at) VALUES (?, ?, ?, ?)`,
		author.ID, author.Name, author.Bio, formatTime(author.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// CreateCategory inserts a category. Names are unique ignoring case.
func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES (?, ?)`, category.ID, category.Name)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// CreateBook inserts a book. Unknown author, category or library give store.ErrNotFound.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, description, author_id, category_id, library_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Description, book.AuthorID, book.CategoryID, book.LibraryID,
		formatTime(book.CreatedAt))
	switch {
	case isUniqueViolation(err):
		return store.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	}
	return err
}

// GetBook retrieves a book by ID. Returns store.ErrNotFound if absent.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	bl, err := scanBookListing(s.db.QueryRowContext(ctx,
		`SELECT `+bookListingColumns+bookListingFrom+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &bl.Book, nil
}

// ListBooks returns books matching filter ordered by title.
func (s *Store) ListBooks(ctx context.Context, filter store.BookFilter) ([]*domain.BookListing, error) {
	var w where
	w.in("b.id", filter.IDs)
	w.iexact("l.name", filter.Library)
	w.iexact("a.name", filter.Author)
	w.iexact("c.name", filter.Category)

	query := `SELECT ` + bookListingColumns + bookListingFrom + w.String() + ` ORDER BY b.title ASC, b.id ASC`
	args := w.args
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.BookListing
	for rows.Next() {
		bl, err := scanBookListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, bl)
	}
	return books, rows.Err()
}

// ListAuthors returns authors with their number of matching books.
// With a filter set, authors without a matching book are left out.
func (s *Store) ListAuthors(ctx context.Context, filter store.AuthorFilter) ([]*domain.AuthorListing, error) {
	var w where
	w.iexact("c.name", filter.BookCategory)
	w.iexact("l.name", filter.Library)

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.bio, a.created_at, COUNT(b.id)
		FROM authors a
		LEFT JOIN books b ON b.author_id = a.id
		LEFT JOIN categories c ON c.id = b.category_id
		LEFT JOIN libraries l ON l.id = b.library_id`+w.String()+`
		GROUP BY a.id, a.name, a.bio, a.created_at
		ORDER BY a.name ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	var authors []*domain.AuthorListing
	for rows.Next() {
		var (
			al        domain.AuthorListing
			createdAt string
		)
		if err := rows.Scan(&al.ID, &al.Name, &al.Bio, &createdAt, &al.BookCount); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		if al.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		authors = append(authors, &al)
	}
	return authors, rows.Err()
}

// ListLibraries returns libraries holding at least one matching book, or all
// libraries when the filter is empty.
func (s *Store) ListLibraries(ctx context.Context, filter store.LibraryFilter) ([]*domain.Library, error) {
	var w where
	w.iexact("c.name", filter.BookCategory)
	w.iexact("a.name", filter.Author)

	query := `SELECT l.id, l.name, l.address, l.created_at FROM libraries l`
	if len(w.conds) > 0 {
		query = `SELECT DISTINCT l.id, l.name, l.address, l.created_at FROM libraries l
			JOIN books b ON b.library_id = l.id
			JOIN categories c ON c.id = b.category_id
			JOIN authors a ON a.id = b.author_id` + w.String()
	}
	query += ` ORDER BY l.name ASC`

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []*domain.Library
	for rows.Next() {
		var (
			lib       domain.Library
			createdAt string
		)
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.Address, &createdAt); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		if lib.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		libs = append(libs, &lib)
	}
	return libs, rows.Err()
}
