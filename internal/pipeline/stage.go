package pipeline

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/convert"
	"github.com/sells-group/docparse/internal/failure"
	"github.com/sells-group/docparse/internal/fetch"
	"github.com/sells-group/docparse/internal/model"
)

// stageFunc does one stage's work and returns its result and completion message.
type stageFunc[T any] func(ctx context.Context) (T, string, error)

// classifier maps a stage error to its kind.
type classifier func(error) failure.Kind

func constKind(k failure.Kind) classifier {
	return func(error) failure.Kind { return k }
}

func fetchKind(err error) failure.Kind {
	if errors.Is(err, fetch.ErrNotFound) {
		return failure.KindNotFound
	}
	return failure.KindFetch
}

func convertKind(err error) failure.Kind {
	if errors.Is(err, convert.ErrUnsupportedFormat) {
		return failure.KindUnsupportedFormat
	}
	return failure.KindConversion
}

// unhandledError marks a stage error that the stage did not anticipate.
type unhandledError struct {
	err error
}

func (e *unhandledError) Error() string { return e.err.Error() }
func (e *unhandledError) Unwrap() error { return e.err }

// runStage tracks one named stage around fn. The stage always reaches a
// terminal status before runStage returns, and it never outlives its timeout:
// fn runs on its own goroutine, so a collaborator that ignores ctx is
// abandoned at the deadline. A result that arrives after the stage gave up is
// handed to release, when set. Anticipated failures come back as
// *failure.Error; panics and caller cancellation come back untagged.
func runStage[T any](ctx context.Context, p *Pipeline, runID string, name model.StageName, timeout time.Duration, kind classifier, fn stageFunc[T], release func(T)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, eris.Wrapf(err, "pipeline: cancelled before %s", name)
	}

	wctx := context.WithoutCancel(ctx)
	h, err := p.tracker.Begin(wctx, runID, name)
	if err != nil {
		return zero, eris.Wrapf(err, "pipeline: begin %s", name)
	}

	sctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	val, msg, err := invoke(sctx, fn, release)
	if err == nil {
		if cerr := p.tracker.Complete(wctx, h, msg); cerr != nil {
			if release != nil {
				release(val)
			}
			return zero, eris.Wrapf(cerr, "pipeline: complete %s", name)
		}
		return val, nil
	}

	var result error
	var uh *unhandledError
	switch {
	case errors.As(err, &uh):
		result = uh.err
	case ctx.Err() != nil:
		// The caller gave up; that is not this stage's fault.
		result = eris.Wrapf(ctx.Err(), "pipeline: %s cancelled", name)
		err = result
	case timeout > 0 && errors.Is(sctx.Err(), context.DeadlineExceeded):
		err = eris.Errorf("%s timed out after %s", name, timeout)
		result = failure.New(kind(err), name, err)
	default:
		result = failure.New(kind(err), name, err)
	}

	if ferr := p.tracker.Fail(wctx, h, err.Error()); ferr != nil {
		return zero, eris.Wrapf(ferr, "pipeline: fail %s", name)
	}
	return zero, result
}

type stageOutcome[T any] struct {
	val T
	msg string
	err error
}

// invoke runs fn on its own goroutine and waits for it or for ctx, whichever
// ends first. A panic in fn becomes an unhandled error. A success that lands
// after ctx ended is discarded and reported as ctx's error.
func invoke[T any](ctx context.Context, fn stageFunc[T], release func(T)) (T, string, error) {
	var zero T
	done := make(chan stageOutcome[T], 1)
	go func() {
		var o stageOutcome[T]
		defer func() {
			if r := recover(); r != nil {
				o = stageOutcome[T]{err: &unhandledError{err: eris.Errorf("panic: %v", r)}}
			}
			done <- o
		}()
		o.val, o.msg, o.err = fn(ctx)
	}()

	select {
	case o := <-done:
		if o.err == nil && ctx.Err() != nil {
			if release != nil {
				release(o.val)
			}
			return zero, "", ctx.Err()
		}
		return o.val, o.msg, o.err
	case <-ctx.Done():
		if release != nil {
			go func() {
				if o := <-done; o.err == nil {
					release(o.val)
				}
			}()
		}
		return zero, "", ctx.Err()
	}
}

// validate checks that every request field is present and that the instance
// URL is an absolute http(s) URL.
func validate(req Request) error {
	if strings.TrimSpace(req.SessionID) == "" ||
		strings.TrimSpace(req.DocumentID) == "" ||
		strings.TrimSpace(req.InstanceURL) == "" {
		return eris.New("Missing sessionId, documentId, or instanceURL")
	}

	u, err := url.Parse(req.InstanceURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return eris.Errorf("Malformed instanceURL: %s", req.InstanceURL)
	}
	return nil
}
