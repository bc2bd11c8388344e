package domain

import "time"

// Library is a physical branch that holds books.
type Library struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
}

// Author wrote one or more books in the catalog.
type Author struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
}

// AuthorListing is an author annotated with the number of matching books.
type AuthorListing struct {
	Author
	BookCount int `json:"book_count"`
}

// Category groups books by subject.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
