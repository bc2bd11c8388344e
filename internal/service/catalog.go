package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/search"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

// CatalogService serves the read-only catalog and keeps the search index
// in step with it.
type CatalogService struct {
	store  store.Catalog
	index  *search.BookIndex
	logger *slog.Logger
}

// NewCatalogService creates a catalog service. index may be nil, in which
// case search is unavailable.
func NewCatalogService(s store.Catalog, index *search.BookIndex, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:  s,
		index:  index,
		logger: logger,
	}
}

// ListBooks returns books annotated with author, category and library names.
func (s *CatalogService) ListBooks(ctx context.Context, filter store.BookFilter) ([]*domain.BookListing, error) {
	filter.Library = strings.TrimSpace(filter.Library)
	filter.Author = strings.TrimSpace(filter.Author)
	filter.Category = strings.TrimSpace(filter.Category)
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, domainerrors.Validation("limit and offset must not be negative")
	}
	books, err := s.store.ListBooks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// GetBook returns a single annotated book.
func (s *CatalogService) GetBook(ctx context.Context, id string) (*domain.BookListing, error) {
	books, err := s.store.ListBooks(ctx, store.BookFilter{IDs: []string{id}, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if len(books) == 0 {
		return nil, domainerrors.NotFoundf("book %s not found", id)
	}
	return books[0], nil
}

// ListAuthors returns authors with their book counts.
func (s *CatalogService) ListAuthors(ctx context.Context, filter store.AuthorFilter) ([]*domain.AuthorListing, error) {
	filter.BookCategory = strings.TrimSpace(filter.BookCategory)
	filter.Library = strings.TrimSpace(filter.Library)
	authors, err := s.store.ListAuthors(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return authors, nil
}

// ListLibraries returns libraries, optionally only those holding matching books.
func (s *CatalogService) ListLibraries(ctx context.Context, filter store.LibraryFilter) ([]*domain.Library, error) {
	filter.BookCategory = strings.TrimSpace(filter.BookCategory)
	filter.Author = strings.TrimSpace(filter.Author)
	libs, err := s.store.ListLibraries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	return libs, nil
}

// SearchBooks runs a full-text query over the catalog.
func (s *CatalogService) SearchBooks(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	if s.index == nil {
		return nil, domainerrors.Internal("search index is not available")
	}
	if params.Limit > 100 {
		params.Limit = 100
	}
	return s.index.Search(ctx, params)
}

// AddBook stores a new book and indexes it. Indexing failures are logged;
// the book is still created.
func (s *CatalogService) AddBook(ctx context.Context, book *domain.Book) error {
	if strings.TrimSpace(book.Title) == "" {
		return domainerrors.Validation("title is required")
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return domainerrors.Conflictf("book %s already exists", book.ID)
		case errors.Is(err, store.ErrNotFound):
			return domainerrors.Validation("author, category or library does not exist")
		}
		return fmt.Errorf("create book: %w", err)
	}

	if s.index == nil {
		return nil
	}
	listing, err := s.GetBook(ctx, book.ID)
	if err != nil {
		s.logger.Warn("failed to load book for indexing", "book_id", book.ID, "error", err)
		return nil
	}
	if err := s.index.IndexDocument(search.BookToDocument(listing)); err != nil {
		s.logger.Warn("failed to index book", "book_id", book.ID, "error", err)
	}
	return nil
}

// Reindex rebuilds the search index from the store and returns the number
// of books indexed.
func (s *CatalogService) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, domainerrors.Internal("search index is not available")
	}
	if err := s.index.Rebuild(); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}

	const pageSize = 500
	total := 0
	for offset := 0; ; offset += pageSize {
		books, err := s.store.ListBooks(ctx, store.BookFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return total, fmt.Errorf("list books: %w", err)
		}
		if len(books) == 0 {
			break
		}

		docs := make([]*search.BookDocument, 0, len(books))
		for _, b := range books {
			docs = append(docs, search.BookToDocument(b))
		}
		if err := s.index.IndexDocuments(docs); err != nil {
			return total, fmt.Errorf("index books: %w", err)
		}
		total += len(docs)

		if len(books) < pageSize {
			break
		}
	}

	s.logger.Info("search index rebuilt", "books", total)
	return total, nil
}

// IndexedBooks reports how many books the search index holds.
func (s *CatalogService) IndexedBooks() (uint64, error) {
	if s.index == nil {
		return 0, domainerrors.Internal("search index is not available")
	}
	return s.index.DocumentCount()
}
