// Package fetch resolves document references against the remote document store.
package fetch

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound reports that the document store has no document for a reference.
var ErrNotFound = eris.New("fetch: not found")

// NotFoundError names the missing document. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	DocumentID string
}

func (e *NotFoundError) Error() string {
	return "No file found for DocumentId " + e.DocumentID
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Credentials authenticate one request against the document store.
type Credentials struct {
	SessionID   string
	InstanceURL string
}

// File is a fetched document.
type File struct {
	ID   string
	Name string
	// Format is the declared format tag, lower case without a leading dot.
	Format string
	Data   []byte
}

// Fetcher retrieves a document by its opaque identifier.
type Fetcher interface {
	Fetch(ctx context.Context, documentID string, creds Credentials) (*File, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, documentID string, creds Credentials) (*File, error)

func (f FetcherFunc) Fetch(ctx context.Context, documentID string, creds Credentials) (*File, error) {
	return f(ctx, documentID, creds)
}

// FormatTag derives the format tag from a declared extension, falling back
// to the extension of the file name.
func FormatTag(extension, name string) string {
	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), "."))
	if tag == "" {
		tag = strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), "."))
	}
	return tag
}
