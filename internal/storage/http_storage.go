package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

// HTTPFetcherOptions tunes the HTTP image fetcher
type HTTPFetcherOptions struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	MaxBytes      int64
	TempDir       string
	InsecureTLS   bool
}

// HTTPImageFetcher downloads images over HTTP(S) into temp files
type HTTPImageFetcher struct {
	client  *http.Client
	options HTTPFetcherOptions
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(options HTTPFetcherOptions) *HTTPImageFetcher {
	if options.RetryAttempts < 1 {
		options.RetryAttempts = 1
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Connection pooling tuned for many small downloads from a few CDNs
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 16 * 1024,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: options.InsecureTLS,
		},
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   options.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		options: options,
	}
}

// Fetch downloads imageURL into a temp file. 4xx responses fail at once;
// 5xx responses and transport errors are retried with linear backoff.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) (*LocalImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid URL format", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "SKU-Image-Audit/1.0")

	var lastErr error
	for attempt := 0; attempt < h.options.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, time.Duration(attempt)*h.options.RetryBackoff); err != nil {
				return nil, downloadError(imageURL, err)
			}
		}

		local, retry, err := h.try(req, imageURL)
		if err == nil {
			return local, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}

	return nil, downloadError(imageURL, lastErr)
}

// try performs one attempt and reports whether a failure is worth retrying
func (h *HTTPImageFetcher) try(req *http.Request, imageURL string) (*LocalImage, bool, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, err
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

	if h.options.MaxBytes > 0 && resp.ContentLength > h.options.MaxBytes {
		return nil, false, fmt.Errorf("image exceeds %d bytes", h.options.MaxBytes)
	}

	local, err := saveToTemp(imageURL, h.options.TempDir, resp.Body, h.options.MaxBytes)
	if err != nil {
		return nil, false, err
	}
	return local, false, nil
}

func downloadError(imageURL string, cause error) error {
	message := fmt.Sprintf("failed to download image from %s", imageURL)
	if errors.Is(cause, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(message, cause)
	}
	return apperrors.NewNetworkError(message, cause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
