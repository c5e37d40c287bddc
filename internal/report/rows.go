// Package report builds audit rows, rolls them up per SKU and reads/writes
// the flat CSV artifacts of a run.
package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/anime-shed/sku-image-audit/pkg/models"
)

// NoImagesNote marks a SKU whose catalog entry has no images
const NoImagesNote = "No images found"

// FromValidation maps a validated image to its report row
func FromValidation(sku, imageURL string, metadata models.ImageMetadata, verdict models.Verdict) models.ReportRow {
	return models.ReportRow{
		Sku:             sku,
		ImageURL:        imageURL,
		Width:           metadata.Width,
		Height:          metadata.Height,
		Dpi:             metadata.Density,
		DimensionResult: verdict.DimensionResult,
		DpiResult:       verdict.DpiResult,
		Status:          verdict.Status,
		Notes:           verdict.Notes,
	}
}

// FromError records an image (or SKU, with an empty imageURL) that could not be processed
func FromError(sku, imageURL, message string) models.ReportRow {
	return models.ReportRow{
		Sku:             sku,
		ImageURL:        imageURL,
		DimensionResult: models.ResultError,
		DpiResult:       models.ResultError,
		Status:          models.StatusFlag,
		Notes:           message,
	}
}

// NoImages is the sentinel row for a SKU that resolved to zero images
func NoImages(sku string) models.ReportRow {
	return models.ReportRow{
		Sku:             sku,
		ImageURL:        "",
		DimensionResult: models.ResultNotApplicable,
		DpiResult:       models.ResultNotApplicable,
		Status:          models.StatusFlag,
		Notes:           NoImagesNote,
	}
}

// SortRows puts rows in canonical report order: SKU (case-insensitive, raw
// spelling breaks ties), FLAG before OK, then image URL.
func SortRows(rows []models.ReportRow) {
	slices.SortStableFunc(rows, func(a, b models.ReportRow) int {
		return cmp.Or(
			compareSku(a.Sku, b.Sku),
			cmp.Compare(statusRank(a.Status), statusRank(b.Status)),
			cmp.Compare(a.ImageURL, b.ImageURL),
		)
	})
}

// CountTally counts rows by status
func CountTally(rows []models.ReportRow) models.Tally {
	tally := models.Tally{Rows: len(rows)}
	for _, row := range rows {
		if row.Status == models.StatusFlag {
			tally.Flagged++
		} else {
			tally.OK++
		}
	}
	return tally
}

func compareSku(a, b string) int {
	return cmp.Or(cmp.Compare(skuKey(a), skuKey(b)), cmp.Compare(a, b))
}

func skuKey(sku string) string {
	return strings.ToLower(sku)
}

func statusRank(status models.Status) int {
	if status == models.StatusFlag {
		return 0
	}
	return 1
}
