package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docparse/internal/config"
)

func testImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	img.SetGray(1, 1, color.Gray{Y: 200})
	return img
}

func TestNewRecognizer_MistralMissingKey(t *testing.T) {
	_, err := NewRecognizer(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral provider requires mistral_api_key")
}

func TestNewRecognizer_MistralWithKey(t *testing.T) {
	r, err := NewRecognizer(config.OCRConfig{Provider: "mistral", MistralAPIKey: "test-key"})
	require.NoError(t, err)
	assert.IsType(t, &MistralOCR{}, r)
}

func TestNewRecognizer_UnknownProvider(t *testing.T) {
	_, err := NewRecognizer(config.OCRConfig{Provider: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestRegister_Custom(t *testing.T) {
	Register("static", func(config.OCRConfig) (Recognizer, error) {
		return RecognizerFunc(func(context.Context, image.Image) (string, error) {
			return "static text", nil
		}), nil
	})
	t.Cleanup(func() {
		providersMu.Lock()
		delete(providers, "static")
		providersMu.Unlock()
	})

	assert.Contains(t, Providers(), "static")
	r, err := NewRecognizer(config.OCRConfig{Provider: "static"})
	require.NoError(t, err)
	text, err := r.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "static text", text)
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_MissingBinary(t *testing.T) {
	p := NewPdfToText(filepath.Join(t.TempDir(), "no-such-pdftotext"))
	_, err := p.PageText(context.Background(), "doc.pdf", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed for doc.pdf page 1")
}

func TestPdfToText_PageArgs(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	// Stand-in binary that echoes its arguments followed by a form feed.
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-pdftotext")
	script := "#!/bin/sh\nprintf '%s ' \"$@\"\nprintf '\\f'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))

	out, err := NewPdfToText(bin).PageText(context.Background(), "/tmp/in.pdf", 3)
	require.NoError(t, err)
	assert.Equal(t, "-layout -f 3 -l 3 /tmp/in.pdf - ", out)
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
}

func TestMistralOCR_CustomModel(t *testing.T) {
	m := NewMistralOCR("key", "custom-model")
	assert.Equal(t, "custom-model", m.model)
}

func TestMistralOCR_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "image_url", req.Document.Type)

		const prefix = "data:image/png;base64,"
		require.True(t, strings.HasPrefix(req.Document.ImageURL, prefix))
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.Document.ImageURL, prefix))
		require.NoError(t, err)
		img, err := png.Decode(strings.NewReader(string(raw)))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())

		resp := mistralOCRResponse{
			Pages: []mistralOCRPage{
				{Index: 0, Markdown: "First block"},
				{Index: 1, Markdown: "Second block"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "test-model")
	m.endpoint = srv.URL

	text, err := m.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "First block\n\nSecond block", text)
}

func TestMistralOCR_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	_, err := m.Recognize(context.Background(), testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral API returned 429")
}

func TestMistralOCR_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json")) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	_, err := m.Recognize(context.Background(), testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal mistral response")
}

func TestMistralOCR_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"pages":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Recognize(ctx, testImage())
	require.Error(t, err)
}
