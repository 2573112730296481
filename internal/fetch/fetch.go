// Package fetch retrieves the raw upstream range document. It is a thin
// transport collaborator: the refresh scheduler treats every failure here
// identically, so this package only reports fetch_failure envelopes.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/prefixd/prefixd/errs"
)

// Func is the upstream fetch collaborator invoked by the refresh scheduler.
type Func func(ctx context.Context) ([]byte, error)

// maxDocumentBytes caps the upstream response size. The published AWS
// document is around 1.5 MiB; 64 MiB leaves generous headroom.
const maxDocumentBytes int64 = 64 << 20

// HTTPFetcher GETs the upstream document with bounded retries per call.
type HTTPFetcher struct {
	url         string
	client      *http.Client
	maxAttempts int
}

// NewHTTPFetcher builds a fetcher for the given URL. Timeout bounds each
// individual request; attempts bounds the retries within one Fetch call.
func NewHTTPFetcher(url string, timeout time.Duration, attempts int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &HTTPFetcher{
		url:         url,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: attempts,
	}
}

// Fetch returns the raw document bytes. Transport errors and non-200
// statuses are retried with exponential backoff until the attempt budget
// or the context runs out.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		body, err := f.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt == f.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(backoffCfg.NextBackOff()):
			continue
		}
		break
	}
	return nil, errs.New("fetch", errs.CodeFetchFailure,
		errs.WithMessage("upstream fetch failed: "+f.url), errs.WithCause(lastErr))
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
