package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/anime-shed/sku-image-audit/pkg/models"
)

func testThresholds() models.Thresholds {
	return models.Thresholds{
		MinWidthPx:       500,
		MinHeightPx:      500,
		MinDpi:           72.0,
		FailIfDpiMissing: false,
	}
}

func metadata(width, height int, density float64) models.ImageMetadata {
	return models.ImageMetadata{
		Width:   models.IntPtr(width),
		Height:  models.IntPtr(height),
		Density: models.FloatPtr(density),
		Format:  "jpeg",
	}
}

func TestNewQualityValidator(t *testing.T) {
	validator := NewQualityValidator()
	if validator == nil {
		t.Fatal("Expected non-nil quality validator")
	}

	expected := DefaultQualityThresholds()
	if validator.Thresholds() != expected {
		t.Errorf("Expected default thresholds %+v, got %+v", expected, validator.Thresholds())
	}
	if expected.MinWidthPx != 500 || expected.MinHeightPx != 500 || expected.MinDpi != 72.0 || expected.FailIfDpiMissing {
		t.Errorf("Unexpected default thresholds: %+v", expected)
	}
}

func TestNewQualityValidatorWithThresholds(t *testing.T) {
	custom := models.Thresholds{MinWidthPx: 1000, MinHeightPx: 800, MinDpi: 300, FailIfDpiMissing: true}

	validator := NewQualityValidatorWithThresholds(custom)
	if validator.Thresholds() != custom {
		t.Errorf("Expected custom thresholds %+v, got %+v", custom, validator.Thresholds())
	}
}

func TestValidate_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		metadata      models.ImageMetadata
		thresholds    models.Thresholds
		wantDimension models.CheckResult
		wantDpi       models.CheckResult
		wantStatus    models.Status
		wantNotes     string
		notesContain  string
	}{
		{
			name:          "Scenario A - passing image",
			metadata:      metadata(600, 600, 72),
			thresholds:    testThresholds(),
			wantDimension: models.ResultPass,
			wantDpi:       models.ResultPass,
			wantStatus:    models.StatusOK,
			wantNotes:     "",
		},
		{
			name:          "Scenario B - width below minimum",
			metadata:      metadata(400, 600, 72),
			thresholds:    testThresholds(),
			wantDimension: models.ResultFail,
			wantDpi:       models.ResultPass,
			wantStatus:    models.StatusFlag,
			wantNotes:     "Dimensions 400x600 below minimum 500x500",
			notesContain:  "below minimum",
		},
		{
			name:          "Height below minimum",
			metadata:      metadata(600, 400, 72),
			thresholds:    testThresholds(),
			wantDimension: models.ResultFail,
			wantDpi:       models.ResultPass,
			wantStatus:    models.StatusFlag,
			notesContain:  "below minimum",
		},
		{
			name:          "Scenario C - DPI below minimum",
			metadata:      metadata(600, 600, 60),
			thresholds:    testThresholds(),
			wantDimension: models.ResultPass,
			wantDpi:       models.ResultFail,
			wantStatus:    models.StatusFlag,
			wantNotes:     "DPI 60 below minimum 72",
			notesContain:  "DPI",
		},
		{
			name:          "Boundary values pass",
			metadata:      metadata(500, 500, 72),
			thresholds:    testThresholds(),
			wantDimension: models.ResultPass,
			wantDpi:       models.ResultPass,
			wantStatus:    models.StatusOK,
		},
		{
			name:          "Both checks fail - dimension note first",
			metadata:      metadata(200, 150, 71.5),
			thresholds:    testThresholds(),
			wantDimension: models.ResultFail,
			wantDpi:       models.ResultFail,
			wantStatus:    models.StatusFlag,
			wantNotes:     "Dimensions 200x150 below minimum 500x500; DPI 71.5 below minimum 72",
		},
		{
			name:          "Missing DPI tolerated",
			metadata:      models.ImageMetadata{Width: models.IntPtr(800), Height: models.IntPtr(600), Format: "png"},
			thresholds:    testThresholds(),
			wantDimension: models.ResultPass,
			wantDpi:       models.ResultNotApplicable,
			wantStatus:    models.StatusOK,
			wantNotes:     "DPI information not available",
		},
		{
			name:     "Missing DPI rejected",
			metadata: models.ImageMetadata{Width: models.IntPtr(800), Height: models.IntPtr(600), Format: "png"},
			thresholds: models.Thresholds{
				MinWidthPx: 500, MinHeightPx: 500, MinDpi: 72, FailIfDpiMissing: true,
			},
			wantDimension: models.ResultPass,
			wantDpi:       models.ResultFail,
			wantStatus:    models.StatusFlag,
			wantNotes:     "DPI information missing",
		},
		{
			name:          "Missing width fails dimension check",
			metadata:      models.ImageMetadata{Height: models.IntPtr(600), Density: models.FloatPtr(72), Format: "unknown"},
			thresholds:    testThresholds(),
			wantDimension: models.ResultFail,
			wantDpi:       models.ResultPass,
			wantStatus:    models.StatusFlag,
			wantNotes:     "Dimensions ?x600 below minimum 500x500",
		},
		{
			name:          "Empty metadata",
			metadata:      models.ImageMetadata{},
			thresholds:    testThresholds(),
			wantDimension: models.ResultFail,
			wantDpi:       models.ResultNotApplicable,
			wantStatus:    models.StatusFlag,
			wantNotes:     "Dimensions ?x? below minimum 500x500; DPI information not available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Validate(tt.metadata, tt.thresholds)

			if verdict.DimensionResult != tt.wantDimension {
				t.Errorf("Expected dimension result %s, got %s", tt.wantDimension, verdict.DimensionResult)
			}
			if verdict.DpiResult != tt.wantDpi {
				t.Errorf("Expected DPI result %s, got %s", tt.wantDpi, verdict.DpiResult)
			}
			if verdict.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, verdict.Status)
			}
			if tt.wantNotes != "" && verdict.Notes != tt.wantNotes {
				t.Errorf("Expected notes %q, got %q", tt.wantNotes, verdict.Notes)
			}
			if tt.notesContain != "" && !strings.Contains(verdict.Notes, tt.notesContain) {
				t.Errorf("Expected notes to contain %q, got %q", tt.notesContain, verdict.Notes)
			}
		})
	}
}

func TestValidate_DimensionProperty(t *testing.T) {
	thresholds := testThresholds()

	for width := 498; width <= 502; width++ {
		for height := 498; height <= 502; height++ {
			verdict := Validate(metadata(width, height, 300), thresholds)
			wantPass := width >= thresholds.MinWidthPx && height >= thresholds.MinHeightPx

			if wantPass && verdict.DimensionResult != models.ResultPass {
				t.Errorf("%dx%d: expected PASS, got %s", width, height, verdict.DimensionResult)
			}
			if !wantPass && verdict.DimensionResult != models.ResultFail {
				t.Errorf("%dx%d: expected FAIL, got %s", width, height, verdict.DimensionResult)
			}
		}
	}
}

func TestValidate_MissingDpiFlagsRegardlessOfDimensions(t *testing.T) {
	thresholds := testThresholds()
	thresholds.FailIfDpiMissing = true

	for _, size := range []int{100, 500, 5000} {
		verdict := Validate(models.ImageMetadata{Width: models.IntPtr(size), Height: models.IntPtr(size)}, thresholds)
		if verdict.DpiResult != models.ResultFail || verdict.Status != models.StatusFlag {
			t.Errorf("size %d: expected DPI FAIL and FLAG, got %s/%s", size, verdict.DpiResult, verdict.Status)
		}
	}
}

func TestValidate_Idempotent(t *testing.T) {
	validator := NewQualityValidatorWithThresholds(testThresholds())
	input := metadata(450, 700, 60)

	first := validator.Validate(input)
	second := validator.Validate(input)

	if first != second {
		t.Errorf("Expected identical verdicts, got %+v and %+v", first, second)
	}
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{
		72:     "72",
		72.5:   "72.5",
		299.99: "299.99",
		0:      "0",
	}
	for input, want := range cases {
		if got := FormatFloat(input); got != want {
			t.Errorf("FormatFloat(%v): expected %q, got %q", input, want, got)
		}
	}
}

func TestCheckThresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds models.Thresholds
		wantErr    bool
	}{
		{"defaults", DefaultQualityThresholds(), false},
		{"zero minimums", models.Thresholds{}, false},
		{"negative width", models.Thresholds{MinWidthPx: -1}, true},
		{"negative dpi", models.Thresholds{MinDpi: -0.5}, true},
		{"NaN dpi", models.Thresholds{MinDpi: math.NaN()}, true},
		{"infinite dpi", models.Thresholds{MinDpi: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckThresholds(tt.thresholds)
			if tt.wantErr && err == nil {
				t.Errorf("Expected an error for %+v, got nil", tt.thresholds)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error for %+v, got %v", tt.thresholds, err)
			}
		})
	}
}
