package convert

import "github.com/sells-group/docparse/internal/document"

// Options configures the built-in converters.
type Options struct {
	Layout document.Layout
	PDF    PDFOptions
}

// NewDefault returns a registry with every built-in converter registered.
func NewDefault(opts Options) *Registry {
	if opts.Layout == (document.Layout{}) {
		opts.Layout = document.DefaultLayout()
	}

	r := NewRegistry()
	r.Register(NewPDF(opts.PDF), "pdf")
	r.Register(Image{}, ImageFormats...)
	r.Register(DOCX{Layout: opts.Layout}, "docx")
	r.Register(Spreadsheet{Layout: opts.Layout}, "xlsx")
	r.Register(PPTX{Layout: opts.Layout}, "pptx")
	return r
}
