package repository

import (
	"context"
	"strings"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/storage"
)

// FetcherImageRepository implements ImageRepository on top of an ImageFetcher
type FetcherImageRepository struct {
	fetcher   storage.ImageFetcher
	validator URLValidator
}

// NewImageRepository creates a repository. validator may be nil, in which
// case only empty references are rejected.
func NewImageRepository(fetcher storage.ImageFetcher, validator URLValidator) *FetcherImageRepository {
	return &FetcherImageRepository{
		fetcher:   fetcher,
		validator: validator,
	}
}

// FetchImage retrieves an image into a local file
func (r *FetcherImageRepository) FetchImage(ctx context.Context, imageURL string) (*storage.LocalImage, error) {
	if err := r.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}
	if r.fetcher == nil {
		return nil, apperrors.NewInternalError("cannot fetch image", ErrRepositoryUnavailable)
	}
	return r.fetcher.Fetch(ctx, imageURL)
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *FetcherImageRepository) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("invalid image URL", ErrNoImageURL)
	}
	if r.validator == nil {
		return nil
	}
	if err := r.validator.ValidateImageURL(imageURL); err != nil {
		return apperrors.NewValidationError("invalid image URL", err)
	}
	return nil
}
