package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

// RouterFetcher picks a fetcher by scheme and host: s3:// goes to S3, Azure
// blob hosts to Azure, everything else over http(s) to HTTP. Nil backends
// are treated as not configured.
type RouterFetcher struct {
	HTTP  ImageFetcher
	Azure ImageFetcher
	S3    ImageFetcher
}

func (r *RouterFetcher) Fetch(ctx context.Context, ref string) (*LocalImage, error) {
	fetcher, err := r.route(ref)
	if err != nil {
		return nil, err
	}
	return fetcher.Fetch(ctx, ref)
}

func (r *RouterFetcher) route(ref string) (ImageFetcher, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid URL format", err)
	}

	var fetcher ImageFetcher
	switch strings.ToLower(parsed.Scheme) {
	case "s3":
		fetcher = r.S3
	case "https", "http":
		fetcher = r.HTTP
		if r.Azure != nil && IsAzureBlobHost(parsed.Hostname()) {
			fetcher = r.Azure
		}
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported image URL scheme %q", parsed.Scheme), nil)
	}

	if fetcher == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("no fetcher configured for %s", ref), nil)
	}
	return fetcher, nil
}
