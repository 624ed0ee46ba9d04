package convert

import (
	"bytes"
	"context"
	"image"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/document"
)

// PageTexter reads the embedded text of one page (1-based) of a PDF on disk.
// ocr.PdfToText satisfies it.
type PageTexter interface {
	PageText(ctx context.Context, pdfPath string, page int) (string, error)
}

// PDFOptions configures PDF validation and the text layer source.
type PDFOptions struct {
	// TextLayer reads page text instead of MuPDF when set.
	TextLayer PageTexter
	// Strict validates against the PDF specification instead of relaxed rules.
	Strict bool
}

// PDF is already canonical: it is validated and opened, never re-rendered.
type PDF struct {
	opts PDFOptions
}

// NewPDF creates a PDF converter.
func NewPDF(opts PDFOptions) *PDF {
	return &PDF{opts: opts}
}

func (c *PDF) Convert(ctx context.Context, data []byte) (*document.Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if c.opts.Strict {
		conf.ValidationMode = model.ValidationStrict
	}
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, eris.Wrap(err, "pdf: validate")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: open")
	}
	src := &fitzDoc{doc: fd}

	n := fd.NumPage()
	if n == 0 {
		src.Close()
		return nil, eris.New("pdf: document has no pages")
	}

	doc := document.New("pdf")
	doc.OnClose(src)

	var path string
	if c.opts.TextLayer != nil {
		path, err = writeTemp(data)
		if err != nil {
			doc.Close()
			return nil, err
		}
		doc.OnClose(document.CloserFunc(func() error { return os.Remove(path) }))
	}

	for i := 0; i < n; i++ {
		doc.Add(&pdfPage{src: src, index: i, textLayer: c.opts.TextLayer, path: path})
	}
	return doc, nil
}

func writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "docparse-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "pdf: create temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", eris.Wrap(err, "pdf: write temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", eris.Wrap(err, "pdf: close temp file")
	}
	return f.Name(), nil
}

// fitzDoc serializes access to a MuPDF document, which is not goroutine safe.
type fitzDoc struct {
	mu     sync.Mutex
	doc    *fitz.Document
	closed bool
}

func (d *fitzDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

type pdfPage struct {
	src       *fitzDoc
	index     int
	textLayer PageTexter
	path      string
}

func (p *pdfPage) Text(ctx context.Context) (string, error) {
	if p.textLayer != nil {
		text, err := p.textLayer.PageText(ctx, p.path, p.index+1)
		return text, eris.Wrapf(err, "pdf: text layer page %d", p.index+1)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.src.mu.Lock()
	defer p.src.mu.Unlock()
	if p.src.closed {
		return "", eris.New("pdf: document closed")
	}
	text, err := p.src.doc.Text(p.index)
	return text, eris.Wrapf(err, "pdf: text page %d", p.index+1)
}

func (p *pdfPage) Render(ctx context.Context, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.src.mu.Lock()
	defer p.src.mu.Unlock()
	if p.src.closed {
		return nil, eris.New("pdf: document closed")
	}
	img, err := p.src.doc.ImageDPI(p.index, dpi)
	if err != nil {
		return nil, eris.Wrapf(err, "pdf: render page %d", p.index+1)
	}
	return img, nil
}
