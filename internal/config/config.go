package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	Layout     LayoutConfig     `yaml:"layout" mapstructure:"layout"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the optional Redis cache for completed run lookups.
// An empty RedisAddr disables the cache.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	TTLSecs   int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// SalesforceConfig holds settings for the session-authenticated document fetch.
type SalesforceConfig struct {
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	ValidateAuth bool    `yaml:"validate_auth" mapstructure:"validate_auth"`
	// RetryAttempts is the number of retries after a transient network failure.
	// Zero disables retrying.
	RetryAttempts  int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// OCRConfig configures the image-to-text fallback.
type OCRConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	Language      string  `yaml:"language" mapstructure:"language"`
	DPI           float64 `yaml:"dpi" mapstructure:"dpi"`
	MistralAPIKey string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string  `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// PDFConfig configures PDF validation and the embedded text layer source.
type PDFConfig struct {
	TextLayer        string `yaml:"text_layer" mapstructure:"text_layer"`
	PdfToTextPath    string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	StrictValidation bool   `yaml:"strict_validation" mapstructure:"strict_validation"`
}

// LayoutConfig holds the page geometry (in points) used when flattening
// non-PDF documents into pages.
type LayoutConfig struct {
	PageWidth  float64 `yaml:"page_width" mapstructure:"page_width"`
	PageHeight float64 `yaml:"page_height" mapstructure:"page_height"`
	Margin     float64 `yaml:"margin" mapstructure:"margin"`
	LineHeight float64 `yaml:"line_height" mapstructure:"line_height"`
}

// PipelineConfig holds per-stage timeouts. Zero disables the timeout.
type PipelineConfig struct {
	FetchTimeoutSecs   int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	ConvertTimeoutSecs int `yaml:"convert_timeout_secs" mapstructure:"convert_timeout_secs"`
	ExtractTimeoutSecs int `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOCPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docparse.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl_secs", 3600)
	v.SetDefault("salesforce.rate_limit", 0)
	v.SetDefault("salesforce.validate_auth", true)
	v.SetDefault("salesforce.retry_attempts", 0)
	v.SetDefault("salesforce.retry_backoff_ms", 500)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("pdf.text_layer", "fitz")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("pdf.strict_validation", false)
	v.SetDefault("layout.page_width", 595.27)
	v.SetDefault("layout.page_height", 841.89)
	v.SetDefault("layout.margin", 50)
	v.SetDefault("layout.line_height", 20)
	v.SetDefault("pipeline.fetch_timeout_secs", 60)
	v.SetDefault("pipeline.convert_timeout_secs", 120)
	v.SetDefault("pipeline.extract_timeout_secs", 300)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration can serve the given mode
// ("serve", "process", "batch" or "runs"). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("unsupported store driver %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required (DOCPARSE_STORE_DATABASE_URL)")
	}

	switch mode {
	case "runs":
	case "serve", "process", "batch":
		errs = append(errs, c.validateProcessing()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "batch" && (c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 64) {
			errs = append(errs, "batch.max_concurrent must be between 1 and 64")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProcessing() []string {
	var errs []string

	switch c.OCR.Provider {
	case "tesseract", "":
	case "mistral":
		if c.OCR.MistralAPIKey == "" {
			errs = append(errs, "ocr.mistral_api_key is required for the mistral provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown ocr provider %q", c.OCR.Provider))
	}
	if c.Salesforce.RetryAttempts < 0 || c.Salesforce.RetryAttempts > 10 {
		errs = append(errs, "salesforce.retry_attempts must be between 0 and 10")
	}

	if c.OCR.DPI <= 0 {
		errs = append(errs, "ocr.dpi must be > 0")
	}

	switch c.PDF.TextLayer {
	case "fitz", "pdftotext", "":
	default:
		errs = append(errs, fmt.Sprintf("unknown pdf text layer %q", c.PDF.TextLayer))
	}

	l := c.Layout
	switch {
	case l.PageWidth <= 0 || l.PageHeight <= 0 || l.LineHeight <= 0 || l.Margin < 0:
		errs = append(errs, "layout dimensions must be > 0")
	case l.PageHeight-2*l.Margin < l.LineHeight:
		errs = append(errs, "layout page height leaves no room for a line")
	}

	timeouts := []struct {
		name string
		secs int
	}{
		{"fetch", c.Pipeline.FetchTimeoutSecs},
		{"convert", c.Pipeline.ConvertTimeoutSecs},
		{"extract", c.Pipeline.ExtractTimeoutSecs},
	}
	for _, to := range timeouts {
		if to.secs < 0 {
			errs = append(errs, fmt.Sprintf("pipeline.%s_timeout_secs must be >= 0", to.name))
		}
	}
	return errs
}

// StageTimeouts returns the configured per-stage timeouts.
func (p PipelineConfig) StageTimeouts() (fetch, convert, extract time.Duration) {
	return time.Duration(p.FetchTimeoutSecs) * time.Second,
		time.Duration(p.ConvertTimeoutSecs) * time.Second,
		time.Duration(p.ExtractTimeoutSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
