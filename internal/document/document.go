// Package document defines the canonical page-oriented artifact every
// converter produces and the extractor consumes.
package document

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
)

// Page is one page of a canonical document.
type Page interface {
	// Text returns the page's embedded text layer, or "" when it has none.
	Text(ctx context.Context) (string, error)
	// Render rasterizes the page at the given resolution.
	Render(ctx context.Context, dpi float64) (image.Image, error)
}

// Document is a single, page-oriented canonical artifact.
type Document struct {
	Format string
	Pages  []Page

	mu      sync.Mutex
	closers []io.Closer
}

// New creates a document of the given source format.
func New(format string, pages ...Page) *Document {
	return &Document{Format: format, Pages: pages}
}

// Add appends pages.
func (d *Document) Add(pages ...Page) {
	d.Pages = append(d.Pages, pages...)
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return len(d.Pages)
}

// OnClose registers a resource released by Close.
func (d *Document) OnClose(c io.Closer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closers = append(d.closers, c)
}

// Close releases every registered resource, most recent first.
func (d *Document) Close() error {
	d.mu.Lock()
	closers := d.closers
	d.closers = nil
	d.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }
