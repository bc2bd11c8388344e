package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeAtEgypt/library-management/internal/store"
)

func TestListBooksQuery_NoFilter(t *testing.T) {
	query, args, err := listBooksQuery(store.BookFilter{})
	require.NoError(t, err)

	assert.Empty(t, args)
	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "LIMIT")
	assert.Contains(t, query, `ORDER BY "b"."title" ASC, "b"."id" ASC`)
}

func TestListBooksQuery_FiltersAreCaseInsensitiveAndBound(t *testing.T) {
	query, args, err := listBooksQuery(store.BookFilter{
		Library:  "Central",
		Category: "Science Fiction",
		Limit:    10,
		Offset:   20,
	})
	require.NoError(t, err)

	assert.Contains(t, query, `LOWER("l"."name") = LOWER($1)`)
	assert.Contains(t, query, `LOWER("c"."name") = LOWER($2)`)
	assert.NotContains(t, query, `"a"."name") = LOWER(`, "empty author filter must be skipped")
	assert.Contains(t, query, "LIMIT $3 OFFSET $4")
	assert.NotContains(t, query, "Central", "values are bound, never inlined")
	require.Len(t, args, 4)
	assert.Equal(t, []any{"Central", "Science Fiction"}, args[:2])
	assert.EqualValues(t, 10, args[2])
	assert.EqualValues(t, 20, args[3])
}

func TestListBooksQuery_IDs(t *testing.T) {
	query, args, err := listBooksQuery(store.BookFilter{IDs: []string{"book-dune", "book-emma"}})
	require.NoError(t, err)

	assert.Contains(t, query, `"b"."id" IN ($1, $2)`)
	assert.Equal(t, []any{"book-dune", "book-emma"}, args)
}

func TestGetBookQuery(t *testing.T) {
	query, args, err := getBookQuery("book-dune")
	require.NoError(t, err)

	for _, join := range []string{`"authors" AS "a"`, `"categories" AS "c"`, `"libraries" AS "l"`} {
		assert.Contains(t, query, join)
	}
	assert.Contains(t, query, `"b"."id" = $1`)
	assert.Equal(t, []any{"book-dune"}, args)
}

func TestListAuthorsQuery(t *testing.T) {
	query, args, err := listAuthorsQuery(store.AuthorFilter{Library: "north branch"})
	require.NoError(t, err)

	assert.Contains(t, query, `COUNT("b"."id")`)
	assert.Contains(t, query, "LEFT JOIN")
	assert.Contains(t, query, "GROUP BY")
	assert.Equal(t, []any{"north branch"}, args)
}

func TestListLibrariesQuery(t *testing.T) {
	t.Run("unfiltered lists every library", func(t *testing.T) {
		query, args, err := listLibrariesQuery(store.LibraryFilter{})
		require.NoError(t, err)

		assert.NotContains(t, query, "JOIN")
		assert.NotContains(t, query, "DISTINCT")
		assert.Empty(t, args)
	})

	t.Run("filtered joins books and deduplicates", func(t *testing.T) {
		query, args, err := listLibrariesQuery(store.LibraryFilter{Author: "Frank Herbert"})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(query, "SELECT DISTINCT"), query)
		assert.Contains(t, query, `"books" AS "b"`)
		assert.Equal(t, []any{"Frank Herbert"}, args)
	})
}
