package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/pkg/models"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

// SkuColumn is the input column holding SKUs
const SkuColumn = "SKU"

var (
	ReportHeader  = []string{"Sku", "ImageUrl", "Width", "Height", "Dpi", "DimensionResult", "DpiResult", "Status", "Notes"}
	SummaryHeader = []string{"Sku", "ImageCount", "OkCount", "FlagCount", "Status", "Notes"}
)

// ReadSkus reads the SKU column of a CSV with a header row. Blank values are skipped.
func ReadSkus(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.NewSetupError("input file is empty", nil)
	}
	if err != nil {
		return nil, apperrors.NewSetupError("cannot read input header", err)
	}

	column := -1
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(name), SkuColumn) {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, apperrors.NewSetupError(fmt.Sprintf("input has no %s column", SkuColumn), nil)
	}

	var skus []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewSetupError("cannot read input row", err)
		}
		if column >= len(record) {
			continue
		}
		if sku := strings.TrimSpace(record[column]); sku != "" {
			skus = append(skus, sku)
		}
	}
	return skus, nil
}

// ReadSkusFile reads SKUs from the CSV file at path
func ReadSkusFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewSetupError(fmt.Sprintf("cannot open input file %s", path), err)
	}
	defer file.Close()

	return ReadSkus(file)
}

// WriteReport writes the per-image report in the given order
func WriteReport(w io.Writer, rows []models.ReportRow) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, ReportHeader)
	for _, row := range rows {
		records = append(records, []string{
			row.Sku,
			row.ImageURL,
			formatInt(row.Width),
			formatInt(row.Height),
			formatFloat(row.Dpi),
			string(row.DimensionResult),
			string(row.DpiResult),
			string(row.Status),
			row.Notes,
		})
	}
	return writeAll(w, records)
}

// WriteSummary writes the per-SKU summary in the given order
func WriteSummary(w io.Writer, summaries []models.SkuSummaryRow) error {
	records := make([][]string, 0, len(summaries)+1)
	records = append(records, SummaryHeader)
	for _, summary := range summaries {
		records = append(records, []string{
			summary.Sku,
			strconv.Itoa(summary.ImageCount),
			strconv.Itoa(summary.OkCount),
			strconv.Itoa(summary.FlagCount),
			string(summary.Status),
			summary.Notes,
		})
	}
	return writeAll(w, records)
}

// SummaryPath derives the summary file path from the report path:
// output/output-report.csv -> output/output-report-skus.csv
func SummaryPath(reportPath string) string {
	ext := filepath.Ext(reportPath)
	if ext == "" {
		ext = ".csv"
	}
	base := strings.TrimSuffix(filepath.Base(reportPath), filepath.Ext(reportPath))
	return filepath.Join(filepath.Dir(reportPath), base+"-skus"+ext)
}

// Artifact is one output file and the function producing its content
type Artifact struct {
	Path  string
	Write func(io.Writer) error
}

// WriteFile writes a CSV artifact through write, replacing path only once
// the content is complete.
func WriteFile(path string, write func(io.Writer) error) error {
	return WriteFiles(Artifact{Path: path, Write: write})
}

// WriteFiles stages every artifact in a temp file next to its target and
// renames them into place only after all of them were written, so a failed
// write leaves every target untouched.
func WriteFiles(artifacts ...Artifact) error {
	staged := make([]string, 0, len(artifacts))
	defer func() {
		for _, name := range staged {
			os.Remove(name)
		}
	}()

	for _, artifact := range artifacts {
		name, err := stage(artifact)
		if err != nil {
			return err
		}
		staged = append(staged, name)
	}

	for i, artifact := range artifacts {
		if err := os.Rename(staged[i], artifact.Path); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("cannot write %s", artifact.Path), err)
		}
	}
	return nil
}

func stage(artifact Artifact) (string, error) {
	path := artifact.Path
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return "", apperrors.NewSetupError(fmt.Sprintf("cannot write %s", path), err)
	}

	if err := artifact.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", apperrors.NewInternalError(fmt.Sprintf("cannot write %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", apperrors.NewInternalError(fmt.Sprintf("cannot write %s", path), err)
	}
	return tmp.Name(), nil
}

func writeAll(w io.Writer, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return validation.FormatFloat(*v)
}
