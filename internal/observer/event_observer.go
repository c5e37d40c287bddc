package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent represents something that happened during an audit run
type AuditEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RunID          string                 `json:"run_id,omitempty"`
	Sku            string                 `json:"sku,omitempty"`
	ImageURL       string                 `json:"image_url,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of audit event
type EventType string

const (
	// BatchStarted when a run begins
	BatchStarted EventType = "batch_started"
	// BatchCompleted when all SKUs are processed
	BatchCompleted EventType = "batch_completed"
	// SkuResolved when the catalog returned the SKU's image list (possibly empty)
	SkuResolved EventType = "sku_resolved"
	// SkuResolveFailed when the catalog lookup failed
	SkuResolveFailed EventType = "sku_resolve_failed"
	// ImageValidated when an image was fetched, read and validated
	ImageValidated EventType = "image_validated"
	// ImageFailed when an image could not be fetched or read
	ImageFailed EventType = "image_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AuditEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AuditEvent)
}

// LoggingObserver logs audit events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) *LoggingObserver {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles audit events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AuditEvent) {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"duration_ms": event.ProcessingTime.Milliseconds(),
	}
	if event.RunID != "" {
		fields["run_id"] = event.RunID
	}
	if event.Sku != "" {
		fields["sku"] = event.Sku
	}
	if event.ImageURL != "" {
		fields["image_url"] = event.ImageURL
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case BatchStarted:
		entry.Info("Audit batch started")
	case BatchCompleted:
		entry.Info("Audit batch completed")
	case SkuResolved:
		entry.Debug("SKU resolved")
	case SkuResolveFailed:
		entry.Error("Catalog lookup failed")
	case ImageValidated:
		entry.Debug("Image validated")
	case ImageFailed:
		entry.Warn("Image could not be processed")
	default:
		entry.Info("Audit event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from audit events
type MetricsObserver struct {
	mu                  sync.RWMutex
	batches             int64
	skusResolved        int64
	skuResolveFailures  int64
	imagesValidated     int64
	imagesFlagged       int64
	imageFailures       int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles audit events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event AuditEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case BatchStarted:
		o.batches++
	case SkuResolved:
		o.skusResolved++
	case SkuResolveFailed:
		o.skuResolveFailures++
	case ImageValidated:
		o.imagesValidated++
		if !event.Success {
			o.imagesFlagged++
		}
		o.totalProcessingTime += event.ProcessingTime
	case ImageFailed:
		o.imageFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.imagesValidated > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.imagesValidated)
	}

	return map[string]interface{}{
		"batches":              o.batches,
		"skus_resolved":        o.skusResolved,
		"sku_resolve_failures": o.skuResolveFailures,
		"images_validated":     o.imagesValidated,
		"images_flagged":       o.imagesFlagged,
		"image_failures":       o.imageFailures,
		"avg_processing_ms":    avgProcessingTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order on
// the caller's goroutine, so counters are settled when the run returns. A
// panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event AuditEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the run
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
