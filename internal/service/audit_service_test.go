package service

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/pipeline"
	"github.com/anime-shed/sku-image-audit/internal/report"
	"github.com/anime-shed/sku-image-audit/pkg/models"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

type stubRunner struct {
	calls      int
	skus       []string
	thresholds models.Thresholds
	maxConc    int
	err        error
}

func (s *stubRunner) Run(ctx context.Context, skus []string, thresholds models.Thresholds, maxConcurrency int) (*pipeline.Result, error) {
	s.calls++
	s.skus = skus
	s.thresholds = thresholds
	s.maxConc = maxConcurrency
	if s.err != nil {
		return nil, s.err
	}

	rows := []models.ReportRow{
		report.NoImages("SKU003"),
		{
			Sku: "SKU001", ImageURL: "https://cdn/a.jpg",
			Width: models.IntPtr(800), Height: models.IntPtr(600), Dpi: models.FloatPtr(72),
			DimensionResult: models.ResultPass, DpiResult: models.ResultPass, Status: models.StatusOK,
		},
	}
	report.SortRows(rows)
	return &pipeline.Result{Rows: rows, Summaries: report.BuildSummaries(rows)}, nil
}

func writeInput(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "input-skus.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAuditFile_WritesBothReports(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "SKU,Name\nSKU001,Widget\n,Blank\nSKU003,Gadget\n")
	output := filepath.Join(dir, "output", "output-report.csv")

	runner := &stubRunner{}
	svc := NewAuditService(runner, validation.DefaultQualityThresholds(), 4)

	result, err := svc.AuditFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, []string{"SKU001", "SKU003"}, runner.skus)
	assert.Equal(t, 4, runner.maxConc)
	assert.Equal(t, validation.DefaultQualityThresholds(), runner.thresholds)

	assert.NotEmpty(t, result.Report.RunID)
	assert.Equal(t, models.Tally{Rows: 2, OK: 1, Flagged: 1}, result.Report.Tally)
	assert.Equal(t, filepath.Join(dir, "output", "output-report-skus.csv"), result.SummaryPath)

	reportCSV, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t,
		"Sku,ImageUrl,Width,Height,Dpi,DimensionResult,DpiResult,Status,Notes\n"+
			"SKU001,https://cdn/a.jpg,800,600,72,PASS,PASS,OK,\n"+
			"SKU003,,,,,N/A,N/A,FLAG,No images found\n",
		string(reportCSV))

	summaryCSV, err := os.ReadFile(result.SummaryPath)
	require.NoError(t, err)
	assert.Equal(t,
		"Sku,ImageCount,OkCount,FlagCount,Status,Notes\n"+
			"SKU003,0,0,0,FLAG,No images found\n"+
			"SKU001,1,1,0,OK,\n",
		string(summaryCSV))
}

func TestAuditFile_SetupFailures(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "SKU\nSKU001\n")

	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	tests := []struct {
		name   string
		input  string
		output string
	}{
		{"missing input", filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out", "report.csv")},
		{"input without SKU column", writeInput(t, t.TempDir(), "Name\nWidget\n"), filepath.Join(dir, "out", "report.csv")},
		{"output directory blocked by a file", input, filepath.Join(blocker, "report.csv")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{}
			svc := NewAuditService(runner, validation.DefaultQualityThresholds(), 2)

			_, err := svc.AuditFile(context.Background(), tt.input, tt.output)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeSetup))
			assert.Zero(t, runner.calls, "no SKU is processed after a setup failure")

			_, statErr := os.Stat(tt.output)
			assert.Error(t, statErr, "no report is written")
		})
	}
}

func TestAuditFile_CancelledRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "SKU\nSKU001\n")
	output := filepath.Join(dir, "out", "report.csv")

	svc := NewAuditService(&stubRunner{err: context.Canceled}, validation.DefaultQualityThresholds(), 2)

	_, err := svc.AuditFile(context.Background(), input, output)
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(report.SummaryPath(output))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAudit_RejectsInvalidThresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds models.Thresholds
	}{
		{"negative width", models.Thresholds{MinWidthPx: -1}},
		{"NaN dpi", models.Thresholds{MinDpi: math.NaN()}},
		{"infinite dpi", models.Thresholds{MinDpi: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{}
			svc := NewAuditService(runner, validation.DefaultQualityThresholds(), 2)

			_, err := svc.Audit(context.Background(), []string{"SKU001"}, tt.thresholds, 2)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
			assert.Zero(t, runner.calls)
		})
	}
}
