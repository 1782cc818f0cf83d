package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrImageTooLarge means the payload exceeded the configured limit.
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

const maxAttempts = 3

// ImageSource downloads raw image bytes from a location.
type ImageSource interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// HTTPFetcherOptions tunes the HTTP image fetcher.
type HTTPFetcherOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// DefaultHTTPFetcherOptions returns the production settings.
func DefaultHTTPFetcherOptions() HTTPFetcherOptions {
	return HTTPFetcherOptions{
		Timeout:  30 * time.Second,
		MaxBytes: 20 << 20,
		Backoff:  time.Second,
	}
}

// HTTPImageFetcher downloads schedule photos over HTTP(S)
type HTTPImageFetcher struct {
	client  *http.Client
	opts    HTTPFetcherOptions
	agent   string
	accepts string
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts HTTPFetcherOptions) *HTTPImageFetcher {
	def := DefaultHTTPFetcherOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}

	transport := &http.Transport{
		// A single photo per request; keep the pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		opts:    opts,
		agent:   "Fleet-Schedule-Extractor/1.0",
		accepts: "image/jpeg, image/png, image/bmp, image/tiff, */*",
	}
}

// Fetch downloads the image at imageURL. 5xx responses and network errors are
// retried; 4xx responses are not.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", h.accepts)
	req.Header.Set("User-Agent", h.agent)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		data, retry, err := h.attempt(req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry || attempt == maxAttempts-1 {
			break
		}
		if err := h.sleep(ctx, time.Duration(attempt+1)*h.opts.Backoff); err != nil {
			lastErr = err
			break
		}
	}
	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", maxAttempts, lastErr)
}

func (h *HTTPImageFetcher) attempt(req *http.Request) ([]byte, bool, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, req.Context().Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if resp.ContentLength > h.opts.MaxBytes {
		return nil, false, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, resp.ContentLength)
	}
	data, err := readLimited(resp.Body, h.opts.MaxBytes)
	if err != nil {
		return nil, !errors.Is(err, ErrImageTooLarge), err
	}
	return data, false, nil
}

func (h *HTTPImageFetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readLimited reads all of r, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, limit)
	}
	return data, nil
}
