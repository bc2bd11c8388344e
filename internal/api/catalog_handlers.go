package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JoeAtEgypt/library-management/internal/domain"
	"github.com/JoeAtEgypt/library-management/internal/search"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Returns books filtered by library, author, or category name (case-insensitive exact match)",
		Tags:        []string{"Catalog"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/search",
		Summary:     "Search books",
		Description: "Full-text search over titles, authors, and descriptions",
		Tags:        []string{"Catalog"},
	}, s.handleSearchBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Description: "Returns a book by ID",
		Tags:        []string{"Catalog"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "listAuthors",
		Method:      http.MethodGet,
		Path:        "/api/v1/authors",
		Summary:     "List authors",
		Description: "Returns authors with the number of matching books",
		Tags:        []string{"Catalog"},
	}, s.handleListAuthors)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLibraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/libraries",
		Summary:     "List libraries",
		Description: "Returns libraries holding books of a category or author",
		Tags:        []string{"Catalog"},
	}, s.handleListLibraries)
}

// === DTOs ===

// ListBooksInput contains parameters for listing books.
type ListBooksInput struct {
	Library  string `query:"library" doc:"Library name"`
	Author   string `query:"author" doc:"Author name"`
	Category string `query:"category" doc:"Category name"`
	Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"100" doc:"Page size"`
	Offset   int    `query:"offset" minimum:"0" doc:"Rows to skip"`
}

// BookResponse contains book data in API responses.
type BookResponse struct {
	ID          string    `json:"id" doc:"Book ID"`
	Title       string    `json:"title" doc:"Title"`
	Description string    `json:"description,omitempty" doc:"Description"`
	AuthorID    string    `json:"author_id" doc:"Author ID"`
	Author      string    `json:"author" doc:"Author name"`
	CategoryID  string    `json:"category_id" doc:"Category ID"`
	Category    string    `json:"category" doc:"Category name"`
	LibraryID   string    `json:"library_id" doc:"Library ID"`
	Library     string    `json:"library" doc:"Library name"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
}

// ListBooksResponse contains a page of books.
type ListBooksResponse struct {
	Books []BookResponse `json:"books" doc:"Books"`
}

// ListBooksOutput wraps the list books response for Huma.
type ListBooksOutput struct {
	Body ListBooksResponse
}

// GetBookInput contains parameters for getting a book.
type GetBookInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// BookOutput wraps a single book for Huma.
type BookOutput struct {
	Body BookResponse
}

// SearchBooksInput contains parameters for book search.
type SearchBooksInput struct {
	Query    string `query:"q" maxLength:"200" doc:"Search text"`
	Library  string `query:"library" doc:"Library name filter"`
	Author   string `query:"author" doc:"Author name filter"`
	Category string `query:"category" doc:"Category name filter"`
	Sort     string `query:"sort" enum:"relevance,title,recent" default:"relevance" doc:"Sort order"`
	Facets   bool   `query:"facets" doc:"Include category and library facets"`
	Limit    int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Page size"`
	Offset   int    `query:"offset" minimum:"0" doc:"Rows to skip"`
}

// SearchBooksOutput wraps search results for Huma.
type SearchBooksOutput struct {
	Body *search.SearchResult
}

// ListAuthorsInput contains parameters for listing authors.
type ListAuthorsInput struct {
	BookCategory string `query:"book_category" doc:"Only authors with books in this category"`
	Library      string `query:"library" doc:"Only authors with books in this library"`
}

// AuthorResponse contains author data in API responses.
type AuthorResponse struct {
	ID        string `json:"id" doc:"Author ID"`
	Name      string `json:"name" doc:"Author name"`
	Bio       string `json:"bio,omitempty" doc:"Biography"`
	BookCount int    `json:"book_count" doc:"Number of matching books"`
}

// ListAuthorsOutput wraps the author list for Huma.
type ListAuthorsOutput struct {
	Body struct {
		Authors []AuthorResponse `json:"authors" doc:"Authors"`
	}
}

// ListLibrariesInput contains parameters for listing libraries.
type ListLibrariesInput struct {
	BookCategory string `query:"book_category" doc:"Only libraries holding books in this category"`
	Author       string `query:"author" doc:"Only libraries holding books by this author"`
}

// LibraryResponse contains library data in API responses.
type LibraryResponse struct {
	ID      string `json:"id" doc:"Library ID"`
	Name    string `json:"name" doc:"Library name"`
	Address string `json:"address,omitempty" doc:"Street address"`
}

// ListLibrariesOutput wraps the library list for Huma.
type ListLibrariesOutput struct {
	Body struct {
		Libraries []LibraryResponse `json:"libraries" doc:"Libraries"`
	}
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*ListBooksOutput, error) {
	books, err := s.services.Catalog.ListBooks(ctx, store.BookFilter{
		Library:  input.Library,
		Author:   input.Author,
		Category: input.Category,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return nil, err
	}

	resp := make([]BookResponse, len(books))
	for i, b := range books {
		resp[i] = toBookResponse(b)
	}
	return &ListBooksOutput{Body: ListBooksResponse{Books: resp}}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *GetBookInput) (*BookOutput, error) {
	book, err := s.services.Catalog.GetBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleSearchBooks(ctx context.Context, input *SearchBooksInput) (*SearchBooksOutput, error) {
	result, err := s.services.Catalog.SearchBooks(ctx, search.SearchParams{
		Query:         input.Query,
		Library:       input.Library,
		Author:        input.Author,
		Category:      input.Category,
		Limit:         input.Limit,
		Offset:        input.Offset,
		SortBy:        input.Sort,
		IncludeFacets: input.Facets,
	})
	if err != nil {
		return nil, err
	}
	return &SearchBooksOutput{Body: result}, nil
}

func (s *Server) handleListAuthors(ctx context.Context, input *ListAuthorsInput) (*ListAuthorsOutput, error) {
	authors, err := s.services.Catalog.ListAuthors(ctx, store.AuthorFilter{
		BookCategory: input.BookCategory,
		Library:      input.Library,
	})
	if err != nil {
		return nil, err
	}

	out := &ListAuthorsOutput{}
	out.Body.Authors = make([]AuthorResponse, len(authors))
	for i, a := range authors {
		out.Body.Authors[i] = AuthorResponse{ID: a.ID, Name: a.Name, Bio: a.Bio, BookCount: a.BookCount}
	}
	return out, nil
}

func (s *Server) handleListLibraries(ctx context.Context, input *ListLibrariesInput) (*ListLibrariesOutput, error) {
	libraries, err := s.services.Catalog.ListLibraries(ctx, store.LibraryFilter{
		BookCategory: input.BookCategory,
		Author:       input.Author,
	})
	if err != nil {
		return nil, err
	}

	out := &ListLibrariesOutput{}
	out.Body.Libraries = make([]LibraryResponse, len(libraries))
	for i, l := range libraries {
		out.Body.Libraries[i] = LibraryResponse{ID: l.ID, Name: l.Name, Address: l.Address}
	}
	return out, nil
}

func toBookResponse(b *domain.BookListing) BookResponse {
	return BookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		AuthorID:    b.AuthorID,
		Author:      b.AuthorName,
		CategoryID:  b.CategoryID,
		Category:    b.CategoryName,
		LibraryID:   b.LibraryID,
		Library:     b.LibraryName,
		CreatedAt:   b.CreatedAt,
	}
}
