package convert

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/document"
)

// DOCX flattens the body paragraphs of a word-processing document into one page.
type DOCX struct {
	Layout document.Layout
}

func (c DOCX) Convert(ctx context.Context, data []byte) (*document.Document, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, eris.Wrap(err, "docx")
	}
	part, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, eris.Wrap(err, "docx")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paras, err := paragraphs(part)
	if err != nil {
		return nil, eris.Wrap(err, "docx")
	}

	// Paragraphs are joined by newlines; the page keeps the resulting lines.
	lines := strings.Split(strings.Join(paras, "\n"), "\n")
	return document.New("docx", document.NewTextPage(c.Layout, lines...)), nil
}
