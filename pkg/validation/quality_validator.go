package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/anime-shed/sku-image-audit/pkg/models"
)

// DefaultQualityThresholds returns the default catalog image thresholds
func DefaultQualityThresholds() models.Thresholds {
	return models.Thresholds{
		MinWidthPx:       500,
		MinHeightPx:      500,
		MinDpi:           72.0,
		FailIfDpiMissing: false,
	}
}

// QualityValidator handles image quality validation logic
type QualityValidator struct {
	thresholds models.Thresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds models.Thresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// Thresholds returns the thresholds the validator applies
func (qv *QualityValidator) Thresholds() models.Thresholds {
	return qv.thresholds
}

// Validate checks metadata against the validator's thresholds
func (qv *QualityValidator) Validate(metadata models.ImageMetadata) models.Verdict {
	return Validate(metadata, qv.thresholds)
}

// Validate derives a Verdict from metadata and thresholds. It has no state and
// never fails: any metadata, including entirely empty metadata, yields a verdict.
func Validate(metadata models.ImageMetadata, thresholds models.Thresholds) models.Verdict {
	verdict := models.Verdict{
		DimensionResult: models.ResultPass,
		DpiResult:       models.ResultPass,
		Status:          models.StatusOK,
	}
	var notes []string

	// 1. Dimensions. An unknown width or height cannot meet a minimum.
	if !meetsMinimum(metadata.Width, thresholds.MinWidthPx) || !meetsMinimum(metadata.Height, thresholds.MinHeightPx) {
		verdict.DimensionResult = models.ResultFail
		notes = append(notes, fmt.Sprintf("Dimensions %sx%s below minimum %dx%d",
			formatDimension(metadata.Width), formatDimension(metadata.Height),
			thresholds.MinWidthPx, thresholds.MinHeightPx))
	}

	// 2. Density
	switch {
	case metadata.Density != nil && *metadata.Density < thresholds.MinDpi:
		verdict.DpiResult = models.ResultFail
		notes = append(notes, fmt.Sprintf("DPI %s below minimum %s",
			FormatFloat(*metadata.Density), FormatFloat(thresholds.MinDpi)))
	case metadata.Density != nil:
		verdict.DpiResult = models.ResultPass
	case thresholds.FailIfDpiMissing:
		verdict.DpiResult = models.ResultFail
		notes = append(notes, "DPI information missing")
	default:
		verdict.DpiResult = models.ResultNotApplicable
		notes = append(notes, "DPI information not available")
	}

	if verdict.DimensionResult == models.ResultFail || verdict.DpiResult == models.ResultFail {
		verdict.Status = models.StatusFlag
	}
	verdict.Notes = strings.Join(notes, "; ")

	return verdict
}

// CheckThresholds rejects thresholds no image can be judged against:
// negative minimums and a DPI minimum that is NaN or infinite. A NaN minimum
// would let every density pass, since no comparison with NaN is true.
func CheckThresholds(t models.Thresholds) error {
	if t.MinWidthPx < 0 || t.MinHeightPx < 0 || t.MinDpi < 0 {
		return errors.New("thresholds must not be negative")
	}
	if math.IsNaN(t.MinDpi) || math.IsInf(t.MinDpi, 0) {
		return fmt.Errorf("minimum DPI must be a finite number (got %v)", t.MinDpi)
	}
	return nil
}

// FormatFloat renders a number in its shortest form ("72", "72.5")
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func meetsMinimum(value *int, minimum int) bool {
	return value != nil && *value >= minimum
}

func formatDimension(value *int) string {
	if value == nil {
		return "?"
	}
	return strconv.Itoa(*value)
}
