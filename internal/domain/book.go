package domain

import "time"

// Book is a single borrowable title. The catalog tracks one copy per book, so
// availability is decided per book id.
type Book struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AuthorID    string    `json:"author_id"`
	CategoryID  string    `json:"category_id"`
	LibraryID   string    `json:"library_id"`
}

// BookListing is a book joined with the names of its author, category and library.
type BookListing struct {
	Book
	AuthorName   string `json:"author_name"`
	CategoryName string `json:"category_name"`
	LibraryName  string `json:"library_name"`
}
