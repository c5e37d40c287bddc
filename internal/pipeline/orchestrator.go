// Package pipeline runs an audit batch: it resolves every SKU, validates each
// image under a shared concurrency gate and returns the sorted report rows
// together with their per-SKU summaries.
package pipeline

import (
	"context"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/anime-shed/sku-image-audit/internal/catalog"
	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/extractor"
	"github.com/anime-shed/sku-image-audit/internal/logger"
	"github.com/anime-shed/sku-image-audit/internal/observer"
	"github.com/anime-shed/sku-image-audit/internal/report"
	"github.com/anime-shed/sku-image-audit/internal/repository"
	"github.com/anime-shed/sku-image-audit/pkg/models"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

// ResolutionFailedPrefix starts the note of a SKU whose catalog lookup failed
const ResolutionFailedPrefix = "catalog lookup failed: "

// Result is the outcome of a batch
type Result struct {
	Rows      []models.ReportRow
	Summaries []models.SkuSummaryRow
}

// Orchestrator runs audit batches
type Orchestrator struct {
	resolver  catalog.Resolver
	images    repository.ImageRepository
	extractor extractor.Extractor
	events    observer.Subject
}

// NewOrchestrator creates an orchestrator. events may be nil.
func NewOrchestrator(resolver catalog.Resolver, images repository.ImageRepository, extractor extractor.Extractor, events observer.Subject) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		images:    images,
		extractor: extractor,
		events:    events,
	}
}

type runIDKey struct{}

// WithRunID tags ctx with the run id carried by batch events
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// imageOutcome is what one image task produced: a verdict or an error
type imageOutcome struct {
	metadata models.ImageMetadata
	verdict  models.Verdict
	err      error
}

// Run audits skus. At most maxConcurrency images are between fetch and
// validation at any moment (maxConcurrency <= 0 means one per CPU); catalog
// lookups are not gated. Per-image and per-SKU failures become FLAG rows.
// Only cancellation of ctx fails the run.
func (o *Orchestrator) Run(ctx context.Context, skus []string, thresholds models.Thresholds, maxConcurrency int) (*Result, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}

	start := time.Now()
	o.notify(ctx, observer.AuditEvent{
		EventType: observer.BatchStarted,
		Metadata:  map[string]interface{}{"sku_count": len(skus), "max_concurrency": maxConcurrency},
	})

	validator := validation.NewQualityValidatorWithThresholds(thresholds)
	gate := semaphore.NewWeighted(int64(maxConcurrency))

	// The collector is the only writer of rows; it is read after done closes.
	rowsCh := make(chan models.ReportRow)
	done := make(chan struct{})
	var rows []models.ReportRow
	go func() {
		defer close(done)
		for row := range rowsCh {
			rows = append(rows, row)
		}
	}()
	emit := func(row models.ReportRow) { rowsCh <- row }

	group, groupCtx := errgroup.WithContext(ctx)
	for _, sku := range skus {
		group.Go(func() error {
			return o.auditSku(groupCtx, gate, validator, sku, emit)
		})
	}

	err := group.Wait()
	close(rowsCh)
	<-done

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		logger.WithError(err).WithField("run_id", runIDFrom(ctx)).Warn("Audit batch aborted")
		return nil, err
	}

	report.SortRows(rows)
	result := &Result{Rows: rows, Summaries: report.BuildSummaries(rows)}

	tally := report.CountTally(rows)
	o.notify(ctx, observer.AuditEvent{
		EventType:      observer.BatchCompleted,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"rows": tally.Rows, "ok": tally.OK, "flagged": tally.Flagged},
	})
	return result, nil
}

func (o *Orchestrator) auditSku(ctx context.Context, gate *semaphore.Weighted, validator *validation.QualityValidator, sku string, emit func(models.ReportRow)) error {
	urls, err := o.resolver.ResolveImages(ctx, sku)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		message := apperrors.Describe(err)
		o.notify(ctx, observer.AuditEvent{EventType: observer.SkuResolveFailed, Sku: sku, ErrorMessage: message})
		emit(report.FromError(sku, "", ResolutionFailedPrefix+message))
		return nil
	}

	urls = dropBlankRefs(sku, urls)
	o.notify(ctx, observer.AuditEvent{
		EventType: observer.SkuResolved,
		Sku:       sku,
		Success:   true,
		Metadata:  map[string]interface{}{"image_count": len(urls)},
	})

	if len(urls) == 0 {
		emit(report.NoImages(sku))
		return nil
	}

	images, imagesCtx := errgroup.WithContext(ctx)
	for _, imageURL := range urls {
		images.Go(func() error {
			return o.auditImage(imagesCtx, gate, validator, sku, imageURL, emit)
		})
	}
	return images.Wait()
}

// dropBlankRefs removes empty references. A blank ref would produce a FLAG row
// with no ImageUrl, which the SKU summary cannot count as an image.
func dropBlankRefs(sku string, urls []string) []string {
	kept := urls[:0:0]
	for _, ref := range urls {
		if strings.TrimSpace(ref) == "" {
			logger.WithField("sku", sku).Warn("Skipping blank image reference from catalog")
			continue
		}
		kept = append(kept, ref)
	}
	return kept
}

func (o *Orchestrator) auditImage(ctx context.Context, gate *semaphore.Weighted, validator *validation.QualityValidator, sku, imageURL string, emit func(models.ReportRow)) error {
	if err := gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer gate.Release(1)

	start := time.Now()
	outcome := o.inspect(ctx, validator, imageURL)
	if err := ctx.Err(); err != nil {
		return err
	}

	event := observer.AuditEvent{Sku: sku, ImageURL: imageURL, ProcessingTime: time.Since(start)}
	if outcome.err != nil {
		message := apperrors.Describe(outcome.err)
		event.EventType = observer.ImageFailed
		event.ErrorMessage = message
		o.notify(ctx, event)
		emit(report.FromError(sku, imageURL, message))
		return nil
	}

	event.EventType = observer.ImageValidated
	event.Success = outcome.verdict.Status == models.StatusOK
	o.notify(ctx, event)
	emit(report.FromValidation(sku, imageURL, outcome.metadata, outcome.verdict))
	return nil
}

// inspect fetches, reads and validates one image. The local copy is released
// on every path.
func (o *Orchestrator) inspect(ctx context.Context, validator *validation.QualityValidator, imageURL string) imageOutcome {
	local, err := o.images.FetchImage(ctx, imageURL)
	if err != nil {
		return imageOutcome{err: err}
	}
	defer func() {
		if err := local.Release(); err != nil {
			logger.WithError(err).WithField("image_url", imageURL).Warn("Failed to release downloaded image")
		}
	}()

	metadata, err := o.extractor.Extract(ctx, local.Path)
	if err != nil {
		return imageOutcome{err: err}
	}
	return imageOutcome{metadata: metadata, verdict: validator.Validate(metadata)}
}

func (o *Orchestrator) notify(ctx context.Context, event observer.AuditEvent) {
	if o.events == nil {
		return
	}
	event.RunID = runIDFrom(ctx)
	o.events.NotifyObservers(ctx, event)
}
