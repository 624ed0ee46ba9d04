package fetch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docparse/internal/config"
	"github.com/sells-group/docparse/internal/resilience"
	"github.com/sells-group/docparse/pkg/salesforce"
)

// Dialer opens a Salesforce client for one set of credentials.
type Dialer func(ctx context.Context, creds Credentials) (salesforce.Client, error)

// Salesforce fetches ContentVersion files using the caller's session.
type Salesforce struct {
	dial  Dialer
	retry resilience.Policy
}

// Option configures a Salesforce fetcher.
type Option func(*Salesforce)

// WithRetry retries transient lookup and download failures.
func WithRetry(p resilience.Policy) Option {
	return func(s *Salesforce) { s.retry = p }
}

// NewSalesforce creates a Salesforce fetcher that opens a session client per request.
func NewSalesforce(cfg config.SalesforceConfig) *Salesforce {
	return NewSalesforceWithDialer(func(_ context.Context, creds Credentials) (salesforce.Client, error) {
		return salesforce.NewSessionClient(creds.InstanceURL, creds.SessionID, salesforce.SessionOptions{
			ValidateAuth: cfg.ValidateAuth,
			RateLimit:    cfg.RateLimit,
		})
	}, WithRetry(resilience.FromConfig(cfg.RetryAttempts, cfg.RetryBackoffMS)))
}

// NewSalesforceWithDialer creates a Salesforce fetcher with a custom dialer.
// Without WithRetry every call is attempted once.
func NewSalesforceWithDialer(dial Dialer, opts ...Option) *Salesforce {
	s := &Salesforce{dial: dial, retry: resilience.NoRetry()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Salesforce) Fetch(ctx context.Context, documentID string, creds Credentials) (*File, error) {
	start := time.Now()

	client, err := s.dial(ctx, creds)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: connect to salesforce")
	}

	cv, err := resilience.Do(ctx, s.retry, "salesforce.find_content_version",
		func(ctx context.Context) (*salesforce.ContentVersion, error) {
			return salesforce.FindContentVersion(ctx, client, documentID)
		})
	if err != nil {
		return nil, eris.Wrap(err, "fetch: look up document")
	}
	if cv == nil {
		return nil, &NotFoundError{DocumentID: documentID}
	}

	data, err := resilience.Do(ctx, s.retry, "salesforce.download_version_data",
		func(ctx context.Context) ([]byte, error) {
			return salesforce.DownloadVersionData(ctx, client, cv.ID)
		})
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: download document %s", documentID)
	}

	f := &File{
		ID:     cv.ID,
		Name:   cv.Title,
		Format: FormatTag(cv.FileExtension, cv.Title),
		Data:   data,
	}
	zap.L().Debug("fetch: document downloaded",
		zap.String("document_id", documentID),
		zap.String("format", f.Format),
		zap.Int("bytes", len(data)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return f, nil
}
