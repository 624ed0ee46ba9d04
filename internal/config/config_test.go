package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "docparse.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "tesseract", cfg.OCR.Provider)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.InDelta(t, 300, cfg.OCR.DPI, 0.001)
	assert.Equal(t, "mistral-ocr-latest", cfg.OCR.MistralModel)
	assert.Equal(t, "fitz", cfg.PDF.TextLayer)
	assert.Equal(t, "pdftotext", cfg.PDF.PdfToTextPath)
	assert.False(t, cfg.PDF.StrictValidation)
	assert.InDelta(t, 595.27, cfg.Layout.PageWidth, 0.001)
	assert.InDelta(t, 841.89, cfg.Layout.PageHeight, 0.001)
	assert.InDelta(t, 50, cfg.Layout.Margin, 0.001)
	assert.InDelta(t, 20, cfg.Layout.LineHeight, 0.001)
	assert.Equal(t, 60, cfg.Pipeline.FetchTimeoutSecs)
	assert.Equal(t, 120, cfg.Pipeline.ConvertTimeoutSecs)
	assert.Equal(t, 300, cfg.Pipeline.ExtractTimeoutSecs)
	assert.True(t, cfg.Salesforce.ValidateAuth)
	assert.Equal(t, 0, cfg.Salesforce.RetryAttempts)
	assert.Equal(t, 500, cfg.Salesforce.RetryBackoffMS)
	assert.Empty(t, cfg.Cache.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Cache.TTL())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/docparse
log:
  level: debug
  format: console
server:
  port: 9090
ocr:
  provider: mistral
  mistral_api_key: mk-test
pipeline:
  fetch_timeout_secs: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/docparse", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mistral", cfg.OCR.Provider)
	assert.Equal(t, "mk-test", cfg.OCR.MistralAPIKey)
	assert.Equal(t, 5, cfg.Pipeline.FetchTimeoutSecs)
	// Defaults still apply for unset values
	assert.Equal(t, 120, cfg.Pipeline.ConvertTimeoutSecs)
	assert.InDelta(t, 300, cfg.OCR.DPI, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DOCPARSE_STORE_DRIVER", "sqlite")
	t.Setenv("DOCPARSE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DOCPARSE_SERVER_PORT", "3000")
	t.Setenv("DOCPARSE_PIPELINE_EXTRACT_TIMEOUT_SECS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 0, cfg.Pipeline.ExtractTimeoutSecs)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "docparse.db"
	cfg.OCR.Provider = "tesseract"
	cfg.OCR.DPI = 300
	cfg.PDF.TextLayer = "fitz"
	cfg.Layout = LayoutConfig{PageWidth: 595.27, PageHeight: 841.89, Margin: 50, LineHeight: 20}
	cfg.Batch.MaxConcurrent = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesWithDefaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "process", "batch", "runs"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_StoreProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported store driver "mysql"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_MistralRequiresKey(t *testing.T) {
	cfg := validDefaults()
	cfg.OCR.Provider = "mistral"

	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr.mistral_api_key is required")

	cfg.OCR.MistralAPIKey = "mk"
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidate_UnknownProviders(t *testing.T) {
	cfg := validDefaults()
	cfg.OCR.Provider = "abbyy"
	cfg.PDF.TextLayer = "poppler"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown ocr provider "abbyy"`)
	assert.Contains(t, err.Error(), `unknown pdf text layer "poppler"`)
}

func TestValidate_Layout(t *testing.T) {
	cfg := validDefaults()
	cfg.Layout.LineHeight = 0
	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout dimensions must be > 0")

	cfg = validDefaults()
	cfg.Layout.Margin = 420
	err = cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leaves no room for a line")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters when serving.
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidate_BatchConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrent = 0
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrent must be between 1 and 64")

	cfg.Batch.MaxConcurrent = 65
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.MaxConcurrent = 64
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.ConvertTimeoutSecs = -1

	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.convert_timeout_secs must be >= 0")
}

func TestValidate_RetryAttemptsBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Salesforce.RetryAttempts = -1

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.retry_attempts must be between 0 and 10")

	cfg.Salesforce.RetryAttempts = 0
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestStageTimeouts(t *testing.T) {
	p := PipelineConfig{FetchTimeoutSecs: 1, ConvertTimeoutSecs: 2, ExtractTimeoutSecs: 0}
	fetch, convert, extract := p.StageTimeouts()
	assert.Equal(t, time.Second, fetch)
	assert.Equal(t, 2*time.Second, convert)
	assert.Zero(t, extract)
}
