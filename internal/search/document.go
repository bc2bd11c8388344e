// Package search provides full-text search over the book catalog using Bleve.
package search

import (
	"strings"

	"github.com/JoeAtEgypt/library-management/internal/domain"
)

// BookDocument is the indexed form of a catalog book. Author, category and
// library names are denormalized so one query can match all of them.
type BookDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Category    string `json:"category,omitempty"`
	Library     string `json:"library,omitempty"`
	CreatedAt   int64  `json:"created_at"` // Unix millis
}

// ToMap converts the document to the field names used by the mapping,
// adding the lowercased keyword copies used for filtering.
func (d *BookDocument) ToMap() map[string]any {
	return map[string]any{
		"id":           d.ID,
		"title":        d.Title,
		"description":  d.Description,
		"author":       d.Author,
		"category":     d.Category,
		"library":      d.Library,
		"author_key":   normalizeKey(d.Author),
		"category_key": normalizeKey(d.Category),
		"library_key":  normalizeKey(d.Library),
		"created_at":   d.CreatedAt,
	}
}

// BookToDocument converts a catalog listing to a search document.
func BookToDocument(b *domain.BookListing) *BookDocument {
	return &BookDocument{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Author:      b.AuthorName,
		Category:    b.CategoryName,
		Library:     b.LibraryName,
		CreatedAt:   b.CreatedAt.UnixMilli(),
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
