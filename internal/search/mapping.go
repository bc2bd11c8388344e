package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for book documents.
//
// Title, description, author and category are English-analyzed for
// full-text matching. The *_key fields hold lowercased names under the
// keyword analyzer so filters behave as case-insensitive exact matches.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textField := func(store, vectors bool) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = en.AnalyzerName
		f.Store = store
		f.IncludeTermVectors = vectors
		return f
	}
	keywordField := func(store bool) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = store
		return f
	}

	// Title is the primary target and is highlighted.
	docMapping.AddFieldMappingsAt("title", textField(true, true))
	// Description is searchable but too large to store.
	docMapping.AddFieldMappingsAt("description", textField(false, false))
	docMapping.AddFieldMappingsAt("author", textField(true, true))
	docMapping.AddFieldMappingsAt("category", textField(true, false))
	docMapping.AddFieldMappingsAt("library", textField(true, false))

	docMapping.AddFieldMappingsAt("id", keywordField(false))
	docMapping.AddFieldMappingsAt("author_key", keywordField(false))
	docMapping.AddFieldMappingsAt("category_key", keywordField(false))
	docMapping.AddFieldMappingsAt("library_key", keywordField(false))

	createdAt := bleve.NewNumericFieldMapping()
	createdAt.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdAt)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
