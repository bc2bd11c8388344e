package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

// scanBookListing reads the columns selected by bookListingSelect.
func scanBookListing(row pgx.Row) (*domain.BookListing, error) {
	var bl domain.BookListing
	err := row.Scan(
		&bl.ID,
		&bl.Title,
		&bl.Description,
		&bl.AuthorID,
		&bl.CategoryID,
		&bl.LibraryID,
		&bl.CreatedAt,
		&bl.AuthorName,
		&bl.CategoryName,
		&bl.LibraryName,
	)
	if err != nil {
		return nil, err
	}
	bl.CreatedAt = bl.CreatedAt.UTC()
	return &bl, nil
}

func insertErr(err error, what string) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case pgUniqueViolation:
		return store.ErrAlreadyExists
	case pgForeignKeyViolation:
		return store.ErrNotFound
	default:
		return fmt.Errorf("insert %s: %w", what, err)
	}
}

// CreateLibrary inserts a library.
func (s *Store) CreateLibrary(ctx context.Context, lib *domain.Library) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO libraries (id, name, address, created_at) VALUES ($1, $2, $3, $4)`,
		lib.ID, lib.Name, lib.Address, lib.CreatedAt.UTC())
	return insertErr(err, "library")
}

// CreateAuthor inserts an author.
func (s *Store) CreateAuthor(ctx context.Context, author *domain.Author) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO authors (id, name, bio, created_at) VALUES ($1, $2, $3, $4)`,
		author.ID, author.Name, author.Bio, author.CreatedAt.UTC())
	return insertErr(err, "author")
}

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (id, name) VALUES ($1, $2)`, category.ID, category.Name)
	return insertErr(err, "category")
}

// CreateBook inserts a book.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO books (id, title, description, author_id, category_id, library_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		book.ID, book.Title, book.Description, book.AuthorID, book.CategoryID, book.LibraryID,
		book.CreatedAt.UTC())
	return insertErr(err, "book")
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	query, args, err := getBookQuery(id)
	if err != nil {
		return nil, err
	}
	bl, err := scanBookListing(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &bl.Book, nil
}

// ListBooks returns books matching filter ordered by title.
func (s *Store) ListBooks(ctx context.Context, filter store.BookFilter) ([]*domain.BookListing, error) {
	query, args, err := listBooksQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *Store) ListAuthors(ctx context.Context, filter store.AuthorFilter) ([]*domain.AuthorListing, error) {
	query, args, err := listAuthorsQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	var authors []*domain.AuthorListing
	for rows.Next() {
		var al domain.AuthorListing
		if err := rows.Scan(&al.ID, &al.Name, &al.Bio, &al.CreatedAt, &al.BookCount); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		al.CreatedAt = al.CreatedAt.UTC()
		authors = append(authors, &al)
	}
	return authors, rows.Err()
}

// ListLibraries returns libraries holding at least one matching book.
func (s *Store) ListLibraries(ctx context.Context, filter store.LibraryFilter) ([]*domain.Library, error) {
	query, args, err := listLibrariesQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []*domain.Library
	for rows.Next() {
		var lib domain.Library
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.Address, &lib.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		lib.CreatedAt = lib.CreatedAt.UTC()
		libs = append(libs, &lib)
	}
	return libs, rows.Err()
}
