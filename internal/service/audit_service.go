package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/logger"
	"github.com/anime-shed/sku-image-audit/internal/pipeline"
	"github.com/anime-shed/sku-image-audit/internal/report"
	"github.com/anime-shed/sku-image-audit/pkg/models"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

// BatchRunner runs one audit batch
type BatchRunner interface {
	Run(ctx context.Context, skus []string, thresholds models.Thresholds, maxConcurrency int) (*pipeline.Result, error)
}

// AuditService runs audits with the configured defaults and persists CSV artifacts
type AuditService struct {
	runner         BatchRunner
	thresholds     models.Thresholds
	maxConcurrency int
}

// FileResult describes a file-to-file audit
type FileResult struct {
	Report      *models.AuditReport
	ReportPath  string
	SummaryPath string
}

// NewAuditService creates a new audit service
func NewAuditService(runner BatchRunner, thresholds models.Thresholds, maxConcurrency int) *AuditService {
	return &AuditService{
		runner:         runner,
		thresholds:     thresholds,
		maxConcurrency: maxConcurrency,
	}
}

// Thresholds returns the default thresholds
func (s *AuditService) Thresholds() models.Thresholds {
	return s.thresholds
}

// MaxConcurrency returns the default concurrency cap
func (s *AuditService) MaxConcurrency() int {
	return s.maxConcurrency
}

// Audit runs a batch over skus and returns the complete report
func (s *AuditService) Audit(ctx context.Context, skus []string, thresholds models.Thresholds, maxConcurrency int) (*models.AuditReport, error) {
	if err := validateThresholds(thresholds); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	started := time.Now()
	log := logger.WithField("run_id", runID)
	log.WithField("sku_count", len(skus)).Info("Starting audit")

	result, err := s.runner.Run(pipeline.WithRunID(ctx, runID), skus, thresholds, maxConcurrency)
	if err != nil {
		return nil, err
	}

	audit := &models.AuditReport{
		RunID:      runID,
		StartedAt:  started.UTC(),
		Duration:   time.Since(started),
		Thresholds: thresholds,
		Rows:       result.Rows,
		Summaries:  result.Summaries,
		Tally:      report.CountTally(result.Rows),
	}
	log.WithField("duration_ms", audit.Duration.Milliseconds()).
		WithField("ok", audit.Tally.OK).
		WithField("flagged", audit.Tally.Flagged).
		Info("Audit finished")
	return audit, nil
}

// AuditFile reads SKUs from inputPath, audits them with the default settings
// and writes the image report to outputPath and the SKU summary next to it.
// Setup problems are reported before any SKU is processed.
func (s *AuditService) AuditFile(ctx context.Context, inputPath, outputPath string) (*FileResult, error) {
	skus, err := report.ReadSkusFile(inputPath)
	if err != nil {
		return nil, err
	}
	if err := PrepareOutputDir(outputPath); err != nil {
		return nil, err
	}

	audit, err := s.Audit(ctx, skus, s.thresholds, s.maxConcurrency)
	if err != nil {
		return nil, err
	}

	summaryPath := report.SummaryPath(outputPath)
	if err := report.WriteFiles(
		report.Artifact{Path: outputPath, Write: func(w io.Writer) error {
			return report.WriteReport(w, audit.Rows)
		}},
		report.Artifact{Path: summaryPath, Write: func(w io.Writer) error {
			return report.WriteSummary(w, audit.Summaries)
		}},
	); err != nil {
		return nil, err
	}

	return &FileResult{Report: audit, ReportPath: outputPath, SummaryPath: summaryPath}, nil
}

// PrepareOutputDir creates the directory of outputPath and checks it is writable
func PrepareOutputDir(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewSetupError(fmt.Sprintf("cannot create output directory %s", dir), err)
	}

	check, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return apperrors.NewSetupError(fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	check.Close()
	os.Remove(check.Name())
	return nil
}

func validateThresholds(t models.Thresholds) error {
	if err := validation.CheckThresholds(t); err != nil {
		return apperrors.NewValidationError("invalid thresholds", err)
	}
	return nil
}
