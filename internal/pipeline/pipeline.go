// Package pipeline drives one document through validation, fetch, conversion
// and extraction, recording every stage and a single terminal outcome.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docparse/internal/document"
	"github.com/sells-group/docparse/internal/extract"
	"github.com/sells-group/docparse/internal/failure"
	"github.com/sells-group/docparse/internal/fetch"
	"github.com/sells-group/docparse/internal/model"
	"github.com/sells-group/docparse/internal/store"
	"github.com/sells-group/docparse/internal/tracker"
)

// Converter produces a canonical document from raw bytes of a declared format.
// *convert.Registry satisfies it.
type Converter interface {
	Convert(ctx context.Context, data []byte, format string) (*document.Document, error)
}

// Extractor reads text from a canonical document. *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, doc *document.Document) (*extract.Extraction, error)
}

// Request identifies a document and the credentials to fetch it with.
type Request struct {
	DocumentID  string `json:"documentId"`
	SessionID   string `json:"sessionId"`
	InstanceURL string `json:"instanceURL"`
}

// Result is the terminal outcome of one run. RunID is always set.
type Result struct {
	RunID         string          `json:"transactionId"`
	Status        model.RunStatus `json:"status"`
	NumPages      int             `json:"numPages"`
	NumCharacters int             `json:"numCharacters"`
	DurationMS    int64           `json:"durationMs"`
	Text          string          `json:"parsedText"`
	OCR           bool            `json:"ocr"`
}

// Options holds per-stage timeouts. Zero disables a timeout.
type Options struct {
	FetchTimeout   time.Duration
	ConvertTimeout time.Duration
	ExtractTimeout time.Duration
}

// Pipeline orchestrates runs. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	store     store.Store
	tracker   *tracker.Tracker
	fetcher   fetch.Fetcher
	converter Converter
	extractor Extractor
	opts      Options
	now       func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(st store.Store, f fetch.Fetcher, c Converter, e Extractor, opts Options) *Pipeline {
	return &Pipeline{
		store:     st,
		tracker:   tracker.New(st),
		fetcher:   f,
		converter: c,
		extractor: e,
		opts:      opts,
		now:       time.Now,
	}
}

// Process runs one document end to end. On failure it returns the Result
// (with the run identifier) and a *failure.Error describing the cause. A nil
// Result means the run could not be recorded at all.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	// Audit writes must land even when the caller goes away.
	wctx := context.WithoutCancel(ctx)

	run, err := p.store.CreateRun(wctx, start)
	if err != nil {
		return nil, failure.New(failure.KindUnhandled, "", eris.Wrap(err, "pipeline: create run"))
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("document_id", req.DocumentID))
	log.Info("pipeline: run started")

	res := &Result{RunID: run.ID}
	ex, runErr := p.execute(ctx, run.ID, req)

	end := p.now()
	res.DurationMS = end.Sub(start).Milliseconds()
	outcome := model.RunOutcome{EndTime: end, DurationMS: res.DurationMS}

	var fe *failure.Error
	if runErr != nil {
		var ok bool
		if fe, ok = failure.As(runErr); !ok {
			fe = failure.New(failure.KindUnhandled, model.StageError, runErr)
			p.recordError(wctx, run.ID, runErr)
		}
		outcome.Status = model.RunStatusFailure
		res.Status = model.RunStatusFailure
	} else {
		outcome.Status = model.RunStatusSuccess
		outcome.NumPages = &ex.Pages
		outcome.NumCharacters = &ex.Characters
		outcome.ParsedText = ex.Text

		res.Status = model.RunStatusSuccess
		res.NumPages = ex.Pages
		res.NumCharacters = ex.Characters
		res.Text = ex.Text
		res.OCR = ex.OCR
	}

	if err := p.store.FinishRun(wctx, run.ID, outcome); err != nil {
		log.Error("pipeline: finish run", zap.Error(err))
		if fe == nil {
			fe = failure.New(failure.KindUnhandled, "", eris.Wrap(err, "pipeline: finish run"))
		}
	}

	if fe != nil {
		log.Error("pipeline: run failed",
			zap.String("kind", string(fe.Kind)),
			zap.String("stage", string(fe.Stage)),
			zap.Int64("duration_ms", res.DurationMS),
			zap.Error(fe.Err),
		)
		return res, fe
	}

	log.Info("pipeline: run complete",
		zap.Int("pages", res.NumPages),
		zap.Int("characters", res.NumCharacters),
		zap.Bool("ocr", res.OCR),
		zap.Int64("duration_ms", res.DurationMS),
	)
	return res, nil
}

// execute runs the stages in order and stops at the first failure. Errors it
// returns are either tagged by the failing stage or unhandled.
func (p *Pipeline) execute(ctx context.Context, runID string, req Request) (ex *extract.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ex, err = nil, eris.Errorf("pipeline: panic: %v", r)
		}
	}()

	_, err = runStage(ctx, p, runID, model.StageValidation, 0, constKind(failure.KindValidation),
		func(context.Context) (struct{}, string, error) {
			return struct{}{}, "", validate(req)
		}, nil)
	if err != nil {
		return nil, err
	}

	file, err := runStage(ctx, p, runID, model.StageFetch, p.opts.FetchTimeout, fetchKind,
		func(sctx context.Context) (*fetch.File, string, error) {
			f, err := p.fetcher.Fetch(sctx, req.DocumentID, fetch.Credentials{
				SessionID:   req.SessionID,
				InstanceURL: req.InstanceURL,
			})
			if err != nil {
				return nil, "", err
			}
			if f == nil {
				return nil, "", eris.New("pipeline: fetcher returned no file")
			}
			return f, fmt.Sprintf("Fetched %s (%d bytes, format %q).", f.ID, len(f.Data), f.Format), nil
		}, nil)
	if err != nil {
		return nil, err
	}

	release := func(d *document.Document) { closeDocument(runID, d) }
	doc, err := runStage(ctx, p, runID, model.StageConversion, p.opts.ConvertTimeout, convertKind,
		func(sctx context.Context) (*document.Document, string, error) {
			d, err := p.converter.Convert(sctx, file.Data, file.Format)
			if err != nil {
				return nil, "", err
			}
			return d, fmt.Sprintf("Converted %s to %d pages.", file.Format, d.NumPages()), nil
		}, release)
	if err != nil {
		return nil, err
	}

	// Whoever claims the document first closes it: the extraction goroutine
	// when it starts, otherwise execute on the way out.
	var claimed atomic.Bool
	defer func() {
		if claimed.CompareAndSwap(false, true) {
			release(doc)
		}
	}()

	return runStage(ctx, p, runID, model.StageExtraction, p.opts.ExtractTimeout, constKind(failure.KindExtraction),
		func(sctx context.Context) (*extract.Extraction, string, error) {
			if !claimed.CompareAndSwap(false, true) {
				return nil, "", eris.New("pipeline: document released before extraction")
			}
			defer release(doc)

			e, err := p.extractor.Extract(sctx, doc)
			if err != nil {
				return nil, "", err
			}
			return e, extractionMessage(e), nil
		}, nil)
}

func closeDocument(runID string, d *document.Document) {
	if d == nil {
		return
	}
	if err := d.Close(); err != nil {
		zap.L().Warn("pipeline: close document", zap.String("run_id", runID), zap.Error(err))
	}
}

func extractionMessage(e *extract.Extraction) string {
	msg := fmt.Sprintf("Extracted %d characters from %d pages.", e.Characters, e.Pages)
	if e.OCR {
		msg += " (OCR)"
	}
	return msg
}

// recordError captures an unhandled failure in a dedicated Error Handling stage.
func (p *Pipeline) recordError(ctx context.Context, runID string, cause error) {
	h, err := p.tracker.Begin(ctx, runID, model.StageError)
	if err != nil {
		zap.L().Error("pipeline: record error stage", zap.String("run_id", runID), zap.Error(err))
		return
	}
	if err := p.tracker.Fail(ctx, h, cause.Error()); err != nil {
		zap.L().Error("pipeline: record error stage", zap.String("run_id", runID), zap.Error(err))
	}
}
