package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"

	"github.com/rotisserie/eris"
)

// PdfToText reads the text layer of PDF pages using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText reader. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// PageText runs pdftotext -layout on one 1-based page and returns stdout.
func (p *PdfToText) PageText(ctx context.Context, pdfPath string, page int) (string, error) {
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-f", n, "-l", n, pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s page %d: %s", pdfPath, page, stderr.String())
	}

	// pdftotext terminates each page with a form feed.
	return string(bytes.TrimRight(stdout.Bytes(), "\f")), nil
}
