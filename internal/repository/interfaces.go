package repository

import (
	"context"

	"github.com/anime-shed/sku-image-audit/internal/storage"
)

// ImageRepository defines the interface for image data access operations
type ImageRepository interface {
	// FetchImage validates imageURL and downloads it to a local file the caller must release
	FetchImage(ctx context.Context, imageURL string) (*storage.LocalImage, error)

	// ValidateImageURL validates if the provided URL is acceptable
	ValidateImageURL(imageURL string) error
}

// URLValidator checks a reference before it is fetched
type URLValidator interface {
	ValidateImageURL(imageURL string) error
}
