package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a book search.
type SearchParams struct {
	Query string

	// Case-insensitive exact filters on denormalized names.
	Library  string
	Author   string
	Category string

	Limit  int
	Offset int

	// SortBy is "relevance" (default), "title" or "recent".
	SortBy string

	IncludeFacets bool
}

// SearchResult is one page of matches.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Facets SearchFacets `json:"facets,omitzero"`
}

// SearchHit is a single matching book.
type SearchHit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Title      string            `json:"title"`
	Author     string            `json:"author,omitempty"`
	Category   string            `json:"category,omitempty"`
	Library    string            `json:"library,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// SearchFacets contains facet counts.
type SearchFacets struct {
	Categories []FacetCount `json:"categories,omitempty"`
	Libraries  []FacetCount `json:"libraries,omitempty"`
}

// FacetCount is a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a query against the index.
func (s *BookIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = 20
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params.SortBy)

	if params.IncludeFacets {
		req.AddFacet("category_key", bleve.NewFacetRequest("category_key", 20))
		req.AddFacet("library_key", bleve.NewFacetRequest("library_key", 20))
	}

	if params.Query != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("title")
		req.Highlight.AddField("author")
	}

	req.Fields = []string{"title", "author", "category", "library"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}

	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		h.Title, _ = hit.Fields["title"].(string)
		h.Author, _ = hit.Fields["author"].(string)
		h.Category, _ = hit.Fields["category"].(string)
		h.Library, _ = hit.Fields["library"].(string)

		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string, len(hit.Fragments))
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, h)
	}

	if params.IncludeFacets {
		result.Facets = SearchFacets{
			Categories: facetCounts(res, "category_key"),
			Libraries:  facetCounts(res, "library_key"),
		}
	}

	return result, nil
}

// buildSearchQuery ANDs the text query with any exact filters.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if q := strings.TrimSpace(params.Query); q != "" {
		title := bleve.NewMatchQuery(q)
		title.SetField("title")
		title.SetBoost(3.0)

		author := bleve.NewMatchQuery(q)
		author.SetField("author")
		author.SetBoost(1.5)

		desc := bleve.NewMatchQuery(q)
		desc.SetField("description")
		desc.SetBoost(0.5)

		// Typo tolerance on titles.
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("title")
		fuzzy.SetBoost(0.8)

		text := []query.Query{title, author, desc, fuzzy}
		if len(q) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(q))
			prefix.SetField("title")
			prefix.SetBoost(0.5)
			text = append(text, prefix)
		}
		queries = append(queries, bleve.NewDisjunctionQuery(text...))
	}

	for field, value := range map[string]string{
		"library_key":  params.Library,
		"author_key":   params.Author,
		"category_key": params.Category,
	} {
		if v := normalizeKey(value); v != "" {
			tq := bleve.NewTermQuery(v)
			tq.SetField(field)
			queries = append(queries, tq)
		}
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

func addSorting(req *bleve.SearchRequest, sortBy string) {
	switch sortBy {
	case "title":
		req.SortBy([]string{"title", "_id"})
	case "recent":
		req.SortBy([]string{"-created_at", "_id"})
	default:
		req.SortBy([]string{"-_score", "_id"})
	}
}

func facetCounts(res *bleve.SearchResult, field string) []FacetCount {
	facet, ok := res.Facets[field]
	if !ok || facet.Terms == nil {
		return nil
	}
	var out []FacetCount
	for _, term := range facet.Terms.Terms() {
		out = append(out, FacetCount{Value: term.Term, Count: term.Count})
	}
	return out
}
