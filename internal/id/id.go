// Package id generates prefixed, URL-safe identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the entities this service creates.
const (
	PrefixLibrary     = "lib"
	PrefixAuthor      = "author"
	PrefixCategory    = "cat"
	PrefixBook        = "book"
	PrefixUser        = "user"
	PrefixTransaction = "btx"
	PrefixLoan        = "loan"
	PrefixMessage     = "msg"
)

// Generate returns prefix-<nanoid>, e.g. "loan-V1StGXR8_Z5jdHi6B-myT".
// The random part is the default 21 character NanoID.
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}
