package observer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event AuditEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string                       { return "panicking" }

func TestEventPublisher_MetricsAreSettledSynchronously(t *testing.T) {
	publisher := NewEventPublisher()
	metrics := NewMetricsObserver()
	publisher.Subscribe(panickingObserver{})
	publisher.Subscribe(metrics)

	ctx := context.Background()
	publisher.NotifyObservers(ctx, AuditEvent{EventType: BatchStarted})
	publisher.NotifyObservers(ctx, AuditEvent{EventType: SkuResolved, Sku: "SKU001"})
	publisher.NotifyObservers(ctx, AuditEvent{EventType: SkuResolveFailed, Sku: "SKU009"})
	publisher.NotifyObservers(ctx, AuditEvent{EventType: ImageValidated, Success: true, ProcessingTime: 10 * time.Millisecond})
	publisher.NotifyObservers(ctx, AuditEvent{EventType: ImageValidated, Success: false, ProcessingTime: 30 * time.Millisecond})
	publisher.NotifyObservers(ctx, AuditEvent{EventType: ImageFailed})

	got := metrics.GetMetrics()
	assert.Equal(t, int64(1), got["batches"])
	assert.Equal(t, int64(1), got["skus_resolved"])
	assert.Equal(t, int64(1), got["sku_resolve_failures"])
	assert.Equal(t, int64(2), got["images_validated"])
	assert.Equal(t, int64(1), got["images_flagged"])
	assert.Equal(t, int64(1), got["image_failures"])
	assert.Equal(t, int64(20), got["avg_processing_ms"])
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher()
	metrics := NewMetricsObserver()
	publisher.Subscribe(metrics)
	publisher.Unsubscribe(metrics)

	publisher.NotifyObservers(context.Background(), AuditEvent{EventType: BatchStarted})
	assert.Equal(t, int64(0), metrics.GetMetrics()["batches"])
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(log).OnEvent(context.Background(), AuditEvent{
		EventType:    SkuResolveFailed,
		RunID:        "run-1",
		Sku:          "SKU009",
		ErrorMessage: "catalog API rate limited",
	})

	out := buf.String()
	assert.Contains(t, out, `"msg":"Catalog lookup failed"`)
	assert.Contains(t, out, `"sku":"SKU009"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"error":"catalog API rate limited"`)
	assert.Contains(t, out, `"level":"error"`)
}
