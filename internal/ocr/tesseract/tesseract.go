// Package tesseract provides the local OCR engine. Importing it registers
// the "tesseract" provider with package ocr.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/config"
	"github.com/sells-group/docparse/internal/ocr"
)

func init() {
	ocr.Register("tesseract", func(cfg config.OCRConfig) (ocr.Recognizer, error) {
		return New(cfg.Language, cfg.DPI), nil
	})
}

// Recognizer runs Tesseract through gosseract. A fresh client is created per
// call, so one Recognizer can serve concurrent runs.
type Recognizer struct {
	clientFactory func() *gosseract.Client
	languages     []string
	dpi           float64
}

// New creates a Recognizer. An empty language selects "eng".
func New(language string, dpi float64) *Recognizer {
	langs := strings.FieldsFunc(language, func(r rune) bool { return r == '+' || r == ',' })
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Recognizer{clientFactory: gosseract.NewClient, languages: langs, dpi: dpi}
}

// Recognize performs OCR on img.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", eris.Wrap(err, "tesseract: encode image")
	}

	c := r.clientFactory()
	defer c.Close() //nolint:errcheck

	if err := c.SetLanguage(r.languages...); err != nil {
		return "", eris.Wrap(err, "tesseract: set languages")
	}
	if r.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(int(r.dpi))); err != nil {
			return "", eris.Wrap(err, "tesseract: set dpi")
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", eris.Wrap(err, "tesseract: set image")
	}

	text, err := c.Text()
	if err != nil {
		return "", eris.Wrap(err, "tesseract: recognize text")
	}
	return strings.TrimSpace(text), nil
}
