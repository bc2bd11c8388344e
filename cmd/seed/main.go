// Package main seeds a data directory with a small catalog and member list.
//
// It reads the same configuration as the server, so point it at the same
// database before starting the server:
//
//	DATA_PATH=~/library go run ./cmd/seed
//	DB_DRIVER=postgres DATABASE_URL=postgres://... go run ./cmd/seed
//
// Seeding is idempotent: rows that already exist are skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/di"
	"github.com/JoeAtEgypt/library-management/internal/di/providers"
	"github.com/JoeAtEgypt/library-management/internal/domain"
	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/service"
	"github.com/JoeAtEgypt/library-management/internal/store"
)

var (
	libraries = []domain.Library{
		{ID: "lib-central", Name: "Central Library", Address: "1 Main Street"},
		{ID: "lib-riverside", Name: "Riverside Branch", Address: "42 River Road"},
	}
	authors = []domain.Author{
		{ID: "author-herbert", Name: "Frank Herbert", Bio: "American science fiction author."},
		{ID: "author-le-guin", Name: "Ursula K. Le Guin", Bio: "American author of speculative fiction."},
		{ID: "author-christie", Name: "Agatha Christie", Bio: "English writer of detective novels."},
		{ID: "author-tolkien", Name: "J. R. R. Tolkien"},
	}
	categories = []domain.Category{
		{ID: "cat-scifi", Name: "Science Fiction"},
		{ID: "cat-mystery", Name: "Mystery"},
		{ID: "cat-fantasy", Name: "Fantasy"},
	}
	books = []domain.Book{
		{ID: "book-dune", Title: "Dune", Description: "Desert planet politics and giant sandworms.", AuthorID: "author-herbert", CategoryID: "cat-scifi", LibraryID: "lib-central"},
		{ID: "book-dune-messiah", Title: "Dune Messiah", AuthorID: "author-herbert", CategoryID: "cat-scifi", LibraryID: "lib-riverside"},
		{ID: "book-left-hand", Title: "The Left Hand of Darkness", AuthorID: "author-le-guin", CategoryID: "cat-scifi", LibraryID: "lib-central"},
		{ID: "book-earthsea", Title: "A Wizard of Earthsea", AuthorID: "author-le-guin", CategoryID: "cat-fantasy", LibraryID: "lib-riverside"},
		{ID: "book-orient-express", Title: "Murder on the Orient Express", AuthorID: "author-christie", CategoryID: "cat-mystery", LibraryID: "lib-central"},
		{ID: "book-hobbit", Title: "The Hobbit", Description: "There and back again.", AuthorID: "author-tolkien", CategoryID: "cat-fantasy", LibraryID: "lib-central"},
	}
	users = []domain.User{
		{ID: "user-ada", Email: "ada@example.com", Username: "ada", FirstName: "Ada", LastName: "Lovelace"},
		{ID: "user-grace", Email: "grace@example.com", Username: "grace", FirstName: "Grace", LastName: "Hopper"},
		{ID: "user-admin", Email: "admin@example.com", Username: "admin", IsAdmin: true},
	}
)

func main() {
	injector := di.NewContainer()
	defer injector.Shutdown()

	log := do.MustInvoke[*logger.Logger](injector)
	st := do.MustInvoke[*providers.StoreHandle](injector)
	catalog := do.MustInvoke[*service.CatalogService](injector)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := seed(ctx, st.Store, catalog); err != nil {
		log.Error("Seeding failed", "error", err)
		os.Exit(1)
	}

	count, err := catalog.Reindex(ctx)
	if err != nil {
		log.Error("Reindex failed", "error", err)
		os.Exit(1)
	}
	log.Info("Seeding complete", "books_indexed", count, "users", len(users))
}

func seed(ctx context.Context, st store.Store, catalog *service.CatalogService) error {
	now := time.Now().UTC()

	for _, l := range libraries {
		l.CreatedAt = now
		if err := skipExisting(st.CreateLibrary(ctx, &l)); err != nil {
			return fmt.Errorf("library %s: %w", l.ID, err)
		}
	}
	for _, a := range authors {
		a.CreatedAt = now
		if err := skipExisting(st.CreateAuthor(ctx, &a)); err != nil {
			return fmt.Errorf("author %s: %w", a.ID, err)
		}
	}
	for _, c := range categories {
		if err := skipExisting(st.CreateCategory(ctx, &c)); err != nil {
			return fmt.Errorf("category %s: %w", c.ID, err)
		}
	}
	for _, b := range books {
		b.CreatedAt = now
		if err := skipExisting(catalog.AddBook(ctx, &b)); err != nil {
			return fmt.Errorf("book %s: %w", b.ID, err)
		}
	}
	for _, u := range users {
		u.CreatedAt = now
		if err := skipExisting(st.CreateUser(ctx, &u)); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	return nil
}

func skipExisting(err error) error {
	if errors.Is(err, store.ErrAlreadyExists) || errors.Is(err, domainerrors.ErrConflict) {
		return nil
	}
	return err
}
