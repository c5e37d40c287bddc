package container

import (
	"context"
	"net/http"

	"github.com/anime-shed/sku-image-audit/internal/catalog"
	"github.com/anime-shed/sku-image-audit/internal/config"
	"github.com/anime-shed/sku-image-audit/internal/extractor"
	"github.com/anime-shed/sku-image-audit/internal/factory"
	"github.com/anime-shed/sku-image-audit/internal/logger"
	"github.com/anime-shed/sku-image-audit/internal/observer"
	"github.com/anime-shed/sku-image-audit/internal/pipeline"
	"github.com/anime-shed/sku-image-audit/internal/repository"
	"github.com/anime-shed/sku-image-audit/internal/service"
	"github.com/anime-shed/sku-image-audit/internal/storage"
	"github.com/anime-shed/sku-image-audit/internal/transport"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	imageFetcher    storage.ImageFetcher
	imageRepository repository.ImageRepository
	extractor       extractor.Extractor
	resolver        catalog.Resolver
	events          *observer.EventPublisher
	metrics         *observer.MetricsObserver
	auditService    *service.AuditService
	handler         http.Handler
	cleanup         func()
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	components := factory.NewComponentFactory(cfg)

	// Build dependency graph
	imageFetcher, err := components.StorageFactory.CreateStorage(factory.RoutedStorage)
	if err != nil {
		return nil, err
	}
	metadataExtractor, err := components.ExtractorFactory.CreateExtractor(cfg.Extractor.Kind)
	if err != nil {
		return nil, err
	}
	resolver, cleanup, err := components.CatalogFactory.CreateResolver(ctx)
	if err != nil {
		return nil, err
	}

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	imageRepository := repository.NewImageRepository(imageFetcher, validation.NewURLValidator())
	orchestrator := pipeline.NewOrchestrator(resolver, imageRepository, metadataExtractor, events)
	auditService := service.NewAuditService(orchestrator, cfg.Validation, cfg.Concurrency.MaxConcurrency)
	handler := transport.NewHandler(auditService, metrics, cfg)

	return &Container{
		config:          cfg,
		imageFetcher:    imageFetcher,
		imageRepository: imageRepository,
		extractor:       metadataExtractor,
		resolver:        resolver,
		events:          events,
		metrics:         metrics,
		auditService:    auditService,
		handler:         handler,
		cleanup:         cleanup,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Service returns the audit service
func (c *Container) Service() *service.AuditService {
	return c.auditService
}

// Metrics returns the batch metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases connections held by the components
func (c *Container) Close() {
	if c.cleanup != nil {
		c.cleanup()
	}
}
