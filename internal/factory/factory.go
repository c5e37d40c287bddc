package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anime-shed/sku-image-audit/internal/catalog"
	"github.com/anime-shed/sku-image-audit/internal/config"
	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/extractor"
	"github.com/anime-shed/sku-image-audit/internal/logger"
	"github.com/anime-shed/sku-image-audit/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// HTTPStorage for plain HTTP(S) image URLs
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage URLs
	AzureStorage StorageType = "azure"
	// S3Storage for s3:// references
	S3Storage StorageType = "s3"
	// RoutedStorage dispatches to the others by URL
	RoutedStorage StorageType = "routed"
)

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
}

// ExtractorFactory creates metadata extractors
type ExtractorFactory interface {
	CreateExtractor(kind string) (extractor.Extractor, error)
}

// CatalogFactory creates catalog resolvers
type CatalogFactory interface {
	// CreateResolver returns the resolver and a cleanup for anything it holds open
	CreateResolver(ctx context.Context) (catalog.Resolver, func(), error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	fetch := f.cfg.Fetch

	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(storage.HTTPFetcherOptions{
			Timeout:       fetch.Timeout,
			RetryAttempts: fetch.RetryAttempts,
			RetryBackoff:  fetch.RetryBackoff,
			MaxBytes:      fetch.MaxImageBytes,
			TempDir:       fetch.TempDir,
			InsecureTLS:   fetch.InsecureTLS,
		}), nil
	case AzureStorage:
		return storage.NewAzureBlobFetcher(f.cfg.Azure.AccountName, f.cfg.Azure.AccountKey, fetch.TempDir, fetch.MaxImageBytes)
	case S3Storage:
		return storage.NewS3Fetcher(f.cfg.S3.Region, fetch.TempDir, fetch.MaxImageBytes), nil
	case RoutedStorage:
		router := &storage.RouterFetcher{}
		var err error
		if router.HTTP, err = f.CreateStorage(HTTPStorage); err != nil {
			return nil, err
		}
		if router.Azure, err = f.CreateStorage(AzureStorage); err != nil {
			return nil, err
		}
		if router.S3, err = f.CreateStorage(S3Storage); err != nil {
			return nil, err
		}
		return router, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// extractorFactory implements ExtractorFactory
type extractorFactory struct {
	cfg *config.Config
}

// NewExtractorFactory creates a new extractor factory
func NewExtractorFactory(cfg *config.Config) ExtractorFactory {
	return &extractorFactory{cfg: cfg}
}

// CreateExtractor creates an extractor based on the specified kind
func (f *extractorFactory) CreateExtractor(kind string) (extractor.Extractor, error) {
	switch kind {
	case config.ExtractorProcess:
		ex := f.cfg.Extractor
		return extractor.NewProcessExtractor(ex.Command, ex.Args, ex.Timeout), nil
	case config.ExtractorBuiltin:
		return extractor.BuiltinExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported extractor kind: %s", kind)
	}
}

// catalogFactory implements CatalogFactory
type catalogFactory struct {
	cfg *config.Config
}

// NewCatalogFactory creates a new catalog factory
func NewCatalogFactory(cfg *config.Config) CatalogFactory {
	return &catalogFactory{cfg: cfg}
}

// CreateResolver builds the configured provider, wrapped in the Redis cache
// when a Redis address is set. An unreachable Redis only logs a warning.
func (f *catalogFactory) CreateResolver(ctx context.Context) (catalog.Resolver, func(), error) {
	cat := f.cfg.Catalog

	var resolver catalog.Resolver
	switch cat.Provider {
	case config.CatalogStatic:
		resolver = catalog.NewStaticResolver(catalog.DemoCatalog())
	case config.CatalogFile:
		fileResolver, err := catalog.LoadFileResolver(cat.File)
		if err != nil {
			return nil, nil, err
		}
		resolver = fileResolver
	case config.CatalogBigCommerce:
		resolver = catalog.NewBigCommerceResolver(catalog.BigCommerceOptions{
			BaseURL:         cat.BaseURL,
			StoreHash:       cat.StoreHash,
			AccessToken:     cat.AccessToken,
			Timeout:         f.cfg.Fetch.Timeout,
			MaxConnsPerHost: f.cfg.Concurrency.MaxConcurrency,
		})
	default:
		return nil, nil, apperrors.NewSetupError(fmt.Sprintf("unsupported catalog provider: %s", cat.Provider), nil)
	}

	cache := f.cfg.Cache
	if cache.RedisAddr == "" {
		return resolver, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cache.RedisAddr,
		Password: cache.RedisPassword,
		DB:       cache.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).WithField("redis_addr", cache.RedisAddr).Warn("Catalog cache unreachable, lookups will bypass it until it recovers")
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close catalog cache client")
		}
	}
	return catalog.NewCachedResolver(resolver, client, cache.TTL), cleanup, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory   StorageFactory
	ExtractorFactory ExtractorFactory
	CatalogFactory   CatalogFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:   NewStorageFactory(cfg),
		ExtractorFactory: NewExtractorFactory(cfg),
		CatalogFactory:   NewCatalogFactory(cfg),
	}
}
