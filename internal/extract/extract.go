// Package extract turns a canonical document into text, reading each page's
// embedded text first and falling back to OCR when the document has none.
package extract

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/docparse/internal/document"
	"github.com/sells-group/docparse/internal/ocr"
)

// DefaultDPI is the rasterization resolution for OCR.
const DefaultDPI = 300

// Extraction is the outcome of extracting one document.
type Extraction struct {
	Text       string
	Pages      int
	Characters int
	// OCR reports whether the fallback produced Text.
	OCR bool
}

// Extractor reads text from canonical documents.
type Extractor struct {
	recognizer ocr.Recognizer
	dpi        float64
}

// New creates an Extractor. A nil recognizer disables the OCR fallback and
// a non-positive dpi selects DefaultDPI.
func New(recognizer ocr.Recognizer, dpi float64) *Extractor {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Extractor{recognizer: recognizer, dpi: dpi}
}

// Extract reads doc. Pages always reports doc's page count and Characters is
// the rune count of the returned text.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document) (*Extraction, error) {
	if doc == nil {
		return nil, eris.New("extract: nil document")
	}

	var direct strings.Builder
	for i, page := range doc.Pages {
		text, err := page.Text(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: text page %d", i+1)
		}
		direct.WriteString(text)
	}

	res := &Extraction{Pages: doc.NumPages(), Text: direct.String()}
	if strings.TrimSpace(res.Text) == "" && doc.NumPages() > 0 {
		text, err := e.recognize(ctx, doc)
		if err != nil {
			return nil, err
		}
		res.Text = text
		res.OCR = true
	}

	res.Text = norm.NFC.String(res.Text)
	res.Characters = utf8.RuneCountInString(res.Text)
	return res, nil
}

func (e *Extractor) recognize(ctx context.Context, doc *document.Document) (string, error) {
	if e.recognizer == nil {
		return "", eris.New("extract: document has no text layer and OCR is not configured")
	}

	start := time.Now()
	texts := make([]string, 0, doc.NumPages())
	for i, page := range doc.Pages {
		img, err := page.Render(ctx, e.dpi)
		if err != nil {
			return "", eris.Wrapf(err, "extract: render page %d", i+1)
		}
		text, err := e.recognizer.Recognize(ctx, img)
		if err != nil {
			return "", eris.Wrapf(err, "extract: ocr page %d", i+1)
		}
		texts = append(texts, text)
	}

	zap.L().Debug("extract: ocr fallback complete",
		zap.String("format", doc.Format),
		zap.Int("pages", doc.NumPages()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return strings.Join(texts, " "), nil
}
