// Package convert turns raw bytes of a declared format into a canonical
// page-oriented document.
package convert

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/document"
)

// ErrUnsupportedFormat is matched by errors returned for unregistered format tags.
var ErrUnsupportedFormat = eris.New("convert: unsupported format")

// UnsupportedFormatError reports a format tag with no registered converter.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return "Unsupported file type: " + e.Format
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// Converter produces a canonical document from raw bytes of one format.
// The caller owns the returned document and must Close it.
type Converter interface {
	Convert(ctx context.Context, data []byte) (*document.Document, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, data []byte) (*document.Document, error)

func (f ConverterFunc) Convert(ctx context.Context, data []byte) (*document.Document, error) {
	return f(ctx, data)
}

// Registry maps normalized format tags to converters.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[string]Converter)}
}

// NormalizeFormat lower-cases a tag and strips a leading dot.
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// Register binds a converter to one or more format tags, replacing any
// previous binding.
func (r *Registry) Register(c Converter, formats ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range formats {
		r.converters[NormalizeFormat(f)] = c
	}
}

// Lookup returns the converter for format.
func (r *Registry) Lookup(format string) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.converters[NormalizeFormat(format)]
	return c, ok
}

// Formats lists registered tags in sorted order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.converters))
	for f := range r.converters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Convert dispatches data to the converter registered for format.
func (r *Registry) Convert(ctx context.Context, data []byte, format string) (*document.Document, error) {
	tag := NormalizeFormat(format)
	c, ok := r.Lookup(tag)
	if !ok {
		return nil, &UnsupportedFormatError{Format: tag}
	}

	doc, err := c.Convert(ctx, data)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: %s", tag)
	}
	if doc.Format == "" {
		doc.Format = tag
	}
	return doc, nil
}
