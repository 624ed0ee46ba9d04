// Package ocr recognizes text in rendered page images and reads the text
// layer of PDFs with external tools.
package ocr

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/config"
)

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// Factory builds a Recognizer from configuration.
type Factory func(cfg config.OCRConfig) (Recognizer, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]Factory{}
)

// Register makes a provider available to NewRecognizer. Providers that need
// cgo live in their own packages and register from init.
func Register(name string, f Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = f
}

// Providers lists registered provider names.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRecognizer creates the Recognizer named by cfg.Provider.
// An empty provider selects tesseract.
func NewRecognizer(cfg config.OCRConfig) (Recognizer, error) {
	name := cfg.Provider
	if name == "" {
		name = "tesseract"
	}

	providersMu.RLock()
	f, ok := providers[name]
	providersMu.RUnlock()
	if !ok {
		return nil, eris.Errorf("ocr: unknown provider %q", name)
	}
	return f(cfg)
}

func init() {
	Register("mistral", func(cfg config.OCRConfig) (Recognizer, error) {
		if cfg.MistralAPIKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralAPIKey, cfg.MistralModel), nil
	})
}
