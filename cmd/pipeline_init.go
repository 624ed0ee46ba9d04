package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docparse/internal/cache"
	"github.com/sells-group/docparse/internal/convert"
	"github.com/sells-group/docparse/internal/db"
	"github.com/sells-group/docparse/internal/document"
	"github.com/sells-group/docparse/internal/extract"
	"github.com/sells-group/docparse/internal/fetch"
	"github.com/sells-group/docparse/internal/ocr"
	_ "github.com/sells-group/docparse/internal/ocr/tesseract" // registers the tesseract provider
	"github.com/sells-group/docparse/internal/pipeline"
	"github.com/sells-group/docparse/internal/store"
)

// cacheKeyPrefix namespaces run entries in a shared Redis.
const cacheKeyPrefix = "docparse:"

// pipelineEnv holds the store and the pipeline needed by the serve, process
// and batch commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured run store, wrapped with the Redis lookup
// cache when one is configured.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "docparse.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if cfg.Cache.RedisAddr == "" {
		return st, nil
	}
	rc, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cacheKeyPrefix)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("run lookup cache enabled", zap.String("redis_addr", cfg.Cache.RedisAddr))
	return store.NewCached(st, rc, cfg.Cache.TTL()), nil
}

// openStore opens and migrates the run store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initConverter builds the converter registry from the layout and PDF settings.
func initConverter() *convert.Registry {
	opts := convert.Options{
		Layout: document.Layout{
			Width:      cfg.Layout.PageWidth,
			Height:     cfg.Layout.PageHeight,
			Margin:     cfg.Layout.Margin,
			LineHeight: cfg.Layout.LineHeight,
		},
		PDF: convert.PDFOptions{Strict: cfg.PDF.StrictValidation},
	}
	if cfg.PDF.TextLayer == "pdftotext" {
		opts.PDF.TextLayer = ocr.NewPdfToText(cfg.PDF.PdfToTextPath)
	}
	return convert.NewDefault(opts)
}

// initPipeline validates the config for mode, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	recognizer, err := ocr.NewRecognizer(cfg.OCR)
	if err != nil {
		return nil, eris.Wrap(err, "init ocr")
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	fetchTimeout, convertTimeout, extractTimeout := cfg.Pipeline.StageTimeouts()
	p := pipeline.New(st,
		fetch.NewSalesforce(cfg.Salesforce),
		initConverter(),
		extract.New(recognizer, cfg.OCR.DPI),
		pipeline.Options{
			FetchTimeout:   fetchTimeout,
			ConvertTimeout: convertTimeout,
			ExtractTimeout: extractTimeout,
		},
	)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("ocr_provider", cfg.OCR.Provider),
		zap.String("pdf_text_layer", cfg.PDF.TextLayer),
	)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}
