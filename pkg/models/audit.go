package models

import "time"

// CheckResult is the outcome of a single quality check on an image
type CheckResult string

const (
	ResultPass          CheckResult = "PASS"
	ResultFail          CheckResult = "FAIL"
	ResultNotApplicable CheckResult = "N/A"
	ResultError         CheckResult = "ERROR"
)

// Status is the overall audit status of a row or a SKU
type Status string

const (
	StatusOK   Status = "OK"
	StatusFlag Status = "FLAG"
)

// Thresholds defines the minimum quality rules every image is validated against.
// Supplied once per run and never mutated.
type Thresholds struct {
	MinWidthPx       int     `json:"min_width_px" yaml:"min_width_px"`
	MinHeightPx      int     `json:"min_height_px" yaml:"min_height_px"`
	MinDpi           float64 `json:"min_dpi" yaml:"min_dpi"`
	FailIfDpiMissing bool    `json:"fail_if_dpi_missing" yaml:"fail_if_dpi_missing"`
}

// ImageMetadata contains what the metadata extractor could determine about an image.
// Width, Height and Density are nil when they could not be determined.
type ImageMetadata struct {
	Width   *int     `json:"width,omitempty"`
	Height  *int     `json:"height,omitempty"`
	Density *float64 `json:"density,omitempty"`
	Format  string   `json:"format"`
}

// Verdict is the result of validating one image's metadata against Thresholds
type Verdict struct {
	DimensionResult CheckResult `json:"dimension_result"`
	DpiResult       CheckResult `json:"dpi_result"`
	Status          Status      `json:"status"`
	Notes           string      `json:"notes"`
}

// ReportRow is one audit record: a validated image, a failed image, or the
// sentinel row of a SKU without images (empty ImageURL).
type ReportRow struct {
	Sku             string      `json:"sku"`
	ImageURL        string      `json:"image_url"`
	Width           *int        `json:"width,omitempty"`
	Height          *int        `json:"height,omitempty"`
	Dpi             *float64    `json:"dpi,omitempty"`
	DimensionResult CheckResult `json:"dimension_result"`
	DpiResult       CheckResult `json:"dpi_result"`
	Status          Status      `json:"status"`
	Notes           string      `json:"notes"`
}

// SkuSummaryRow is the rollup of every ReportRow sharing a SKU
type SkuSummaryRow struct {
	Sku        string `json:"sku"`
	ImageCount int    `json:"image_count"`
	OkCount    int    `json:"ok_count"`
	FlagCount  int    `json:"flag_count"`
	Status     Status `json:"status"`
	Notes      string `json:"notes"`
}

// Tally counts report rows by status
type Tally struct {
	Rows    int `json:"rows"`
	OK      int `json:"ok"`
	Flagged int `json:"flagged"`
}

// AuditReport is the complete outcome of one batch run
type AuditReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration_ns"`
	Thresholds Thresholds      `json:"thresholds"`
	Rows       []ReportRow     `json:"rows"`
	Summaries  []SkuSummaryRow `json:"summaries"`
	Tally      Tally           `json:"tally"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// FloatPtr returns a pointer to v
func FloatPtr(v float64) *float64 {
	return &v
}
