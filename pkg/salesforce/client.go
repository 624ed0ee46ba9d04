// Package salesforce provides session-authenticated REST API access to Salesforce.
package salesforce

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce API operations used to fetch documents.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	// Download returns the body of a GET against a REST resource path
	// relative to the versioned data endpoint, e.g. "/sobjects/...".
	Download(ctx context.Context, uri string) ([]byte, error)
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: The underlying go-salesforce/v3 library does not accept context.Context,
// so all methods discard the ctx parameter for the SF call itself. However, the
// ctx is used for rate limiter waiting, so callers can still cancel that wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a new Salesforce Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionOptions configures NewSessionClient.
type SessionOptions struct {
	// ValidateAuth checks the session with a request at connect time.
	ValidateAuth bool
	// RoundTripper overrides the HTTP transport.
	RoundTripper http.RoundTripper
	RateLimit    float64
}

// NewSessionClient connects to instanceURL with an existing session token.
func NewSessionClient(instanceURL, sessionID string, opts SessionOptions) (Client, error) {
	sfOpts := []salesforce.Option{salesforce.WithValidateAuthentication(opts.ValidateAuth)}
	if opts.RoundTripper != nil {
		sfOpts = append(sfOpts, salesforce.WithRoundTripper(opts.RoundTripper))
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:      strings.TrimRight(instanceURL, "/"),
		AccessToken: sessionID,
	}, sfOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "sf: init session")
	}
	return NewClient(sf, WithRateLimit(opts.RateLimit)), nil
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (c *sfClient) Download(ctx context.Context, uri string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: rate limit")
	}
	resp, err := c.sf.DoRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: download %s", uri)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: read %s", uri)
	}
	return data, nil
}
