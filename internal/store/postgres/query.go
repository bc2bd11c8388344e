package postgres

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/JoeAtEgypt/library-management/internal/store"
)

const dialectPostgres = "postgres"

var pg = goqu.Dialect(dialectPostgres)

// iexact matches column against value ignoring case.
func iexact(column, value string) exp.Expression {
	return goqu.Func("LOWER", goqu.I(column)).Eq(goqu.Func("LOWER", value))
}

// conditions returns the AND-ed filter expressions, skipping empty values.
func conditions(pairs ...[2]string) []exp.Expression {
	var conds []exp.Expression
	for _, p := range pairs {
		if p[1] != "" {
			conds = append(conds, iexact(p[0], p[1]))
		}
	}
	return conds
}

// bookListingSelect joins a book with its author, category and library names.
// The column order matches scanBookListing.
func bookListingSelect() *goqu.SelectDataset {
	return pg.From(goqu.T("books").As("b")).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		Join(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id")))).
		Join(goqu.T("libraries").As("l"), goqu.On(goqu.I("l.id").Eq(goqu.I("b.library_id")))).
		Select(
			"b.id", "b.title", "b.description", "b.author_id", "b.category_id", "b.library_id", "b.created_at",
			"a.name", "c.name", "l.name",
		)
}

func getBookQuery(id string) (string, []any, error) {
	return toSQL(bookListingSelect().Where(goqu.I("b.id").Eq(id)), "get book")
}

func listBooksQuery(filter store.BookFilter) (string, []any, error) {
	conds := conditions(
		[2]string{"l.name", filter.Library},
		[2]string{"a.name", filter.Author},
		[2]string{"c.name", filter.Category},
	)
	if len(filter.IDs) > 0 {
		conds = append(conds, goqu.I("b.id").In(filter.IDs))
	}

	ds := bookListingSelect().Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc())
	if len(conds) > 0 {
		ds = ds.Where(conds...)
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit)).Offset(uint(max(filter.Offset, 0)))
	}
	return toSQL(ds, "list books")
}

func listAuthorsQuery(filter store.AuthorFilter) (string, []any, error) {
	ds := pg.From(goqu.T("authors").As("a")).
		LeftJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.author_id").Eq(goqu.I("a.id")))).
		LeftJoin(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id")))).
		LeftJoin(goqu.T("libraries").As("l"), goqu.On(goqu.I("l.id").Eq(goqu.I("b.library_id")))).
		Select("a.id", "a.name", "a.bio", "a.created_at", goqu.COUNT("b.id")).
		GroupBy("a.id", "a.name", "a.bio", "a.created_at").
		Order(goqu.I("a.name").Asc())

	if conds := conditions(
		[2]string{"c.name", filter.BookCategory},
		[2]string{"l.name", filter.Library},
	); len(conds) > 0 {
		ds = ds.Where(conds...)
	}
	return toSQL(ds, "list authors")
}

func listLibrariesQuery(filter store.LibraryFilter) (string, []any, error) {
	ds := pg.From(goqu.T("libraries").As("l")).
		Select("l.id", "l.name", "l.address", "l.created_at").
		Order(goqu.I("l.name").Asc())

	conds := conditions(
		[2]string{"c.name", filter.BookCategory},
		[2]string{"a.name", filter.Author},
	)
	if len(conds) > 0 {
		ds = ds.Distinct().
			Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.library_id").Eq(goqu.I("l.id")))).
			Join(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id")))).
			Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
			Where(conds...)
	}
	return toSQL(ds, "list libraries")
}

// toSQL renders ds with numbered placeholders for pgx.
func toSQL(ds *goqu.SelectDataset, what string) (string, []any, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build %s query: %w", what, err)
	}
	return query, args, nil
}
