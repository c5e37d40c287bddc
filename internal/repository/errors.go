package repository

import "errors"

var (
	// ErrRepositoryUnavailable indicates the repository has no fetcher behind it
	ErrRepositoryUnavailable = errors.New("image repository unavailable")

	// ErrNoImageURL indicates an empty image reference
	ErrNoImageURL = errors.New("image URL is empty")
)
