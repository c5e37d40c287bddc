package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/sku-image-audit/internal/config"
	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/internal/report"
	"github.com/anime-shed/sku-image-audit/pkg/models"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

type stubAuditor struct {
	skus           []string
	thresholds     models.Thresholds
	maxConcurrency int
	err            error
}

func (s *stubAuditor) Audit(ctx context.Context, skus []string, thresholds models.Thresholds, maxConcurrency int) (*models.AuditReport, error) {
	s.skus = skus
	s.thresholds = thresholds
	s.maxConcurrency = maxConcurrency
	if s.err != nil {
		return nil, s.err
	}

	rows := []models.ReportRow{
		report.NoImages("SKU003"),
		{
			Sku: "SKU001", ImageURL: "https://cdn/a.jpg",
			Width: models.IntPtr(800), Height: models.IntPtr(600), Dpi: models.FloatPtr(300),
			DimensionResult: models.ResultPass, DpiResult: models.ResultPass, Status: models.StatusOK,
		},
	}
	report.SortRows(rows)
	return &models.AuditReport{
		RunID:      "run-1",
		Thresholds: thresholds,
		Rows:       rows,
		Summaries:  report.BuildSummaries(rows),
		Tally:      report.CountTally(rows),
	}, nil
}

func (s *stubAuditor) Thresholds() models.Thresholds { return validation.DefaultQualityThresholds() }
func (s *stubAuditor) MaxConcurrency() int { return 4 }

type stubMetrics struct{}

func (stubMetrics) GetMetrics() map[string]interface{} {
	return map[string]interface{}{"images_validated": 3}
}

func newTestHandler(auditor Auditor) http.Handler {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.MaxRequestBodySize = 256
	return NewHandler(auditor, stubMetrics{}, cfg)
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndThresholds(t *testing.T) {
	h := newTestHandler(&stubAuditor{})

	rec := serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"available"`)

	rec = serve(h, http.MethodGet, "/thresholds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Thresholds     models.Thresholds `json:"thresholds"`
		MaxConcurrency int               `json:"max_concurrency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, validation.DefaultQualityThresholds(), body.Thresholds)
	assert.Equal(t, 4, body.MaxConcurrency)

	rec = serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"images_validated":3}`, rec.Body.String())
}

func TestAudit_JSONUsesDefaults(t *testing.T) {
	auditor := &stubAuditor{}
	h := newTestHandler(auditor)

	rec := serve(h, http.MethodPost, "/audit", `{"skus":[" SKU001 ","","SKU003"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"SKU001", "SKU003"}, auditor.skus)
	assert.Equal(t, validation.DefaultQualityThresholds(), auditor.thresholds)
	assert.Equal(t, 4, auditor.maxConcurrency)

	var audit models.AuditReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	assert.Equal(t, "run-1", audit.RunID)
	assert.Equal(t, models.Tally{Rows: 2, OK: 1, Flagged: 1}, audit.Tally)
	require.Len(t, audit.Summaries, 2)
	assert.Equal(t, "SKU003", audit.Summaries[0].Sku)
}

func TestAudit_RequestOverrides(t *testing.T) {
	auditor := &stubAuditor{}
	h := newTestHandler(auditor)

	rec := serve(h, http.MethodPost, "/audit",
		`{"skus":["SKU001"],"thresholds":{"min_width_px":1000,"min_height_px":1000,"min_dpi":300,"fail_if_dpi_missing":true},"max_concurrency":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, models.Thresholds{MinWidthPx: 1000, MinHeightPx: 1000, MinDpi: 300, FailIfDpiMissing: true}, auditor.thresholds)
	assert.Equal(t, 2, auditor.maxConcurrency)
}

func TestAudit_ConcurrencyCappedByConfig(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, 4},
		{1, 1},
		{4, 4},
		{1000000, 4},
	}

	for _, tt := range tests {
		auditor := &stubAuditor{}
		h := newTestHandler(auditor)

		body := fmt.Sprintf(`{"skus":["SKU001"],"max_concurrency":%d}`, tt.requested)
		rec := serve(h, http.MethodPost, "/audit", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tt.want, auditor.maxConcurrency, "requested %d", tt.requested)
	}
}

func TestAudit_CSVViews(t *testing.T) {
	h := newTestHandler(&stubAuditor{})

	rec := serve(h, http.MethodPost, "/audit?format=csv", `{"skus":["SKU001","SKU003"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"Sku,ImageUrl,Width,Height,Dpi,DimensionResult,DpiResult,Status,Notes\n"+
			"SKU001,https://cdn/a.jpg,800,600,300,PASS,PASS,OK,\n"+
			"SKU003,,,,,N/A,N/A,FLAG,No images found\n",
		rec.Body.String())

	rec = serve(h, http.MethodPost, "/audit?format=csv&view=summary", `{"skus":["SKU001","SKU003"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"Sku,ImageCount,OkCount,FlagCount,Status,Notes\n"+
			"SKU003,0,0,0,FLAG,No images found\n"+
			"SKU001,1,1,0,OK,\n",
		rec.Body.String())
}

func TestAudit_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		auditErr   error
		wantStatus int
	}{
		{"malformed body", "/audit", `{"skus":`, nil, http.StatusBadRequest},
		{"missing skus", "/audit", `{}`, nil, http.StatusBadRequest},
		{"only blank skus", "/audit", `{"skus":["  "]}`, nil, http.StatusBadRequest},
		{"unknown format", "/audit?format=xml", `{"skus":["SKU001"]}`, nil, http.StatusBadRequest},
		{"unknown view", "/audit?format=csv&view=pixels", `{"skus":["SKU001"]}`, nil, http.StatusBadRequest},
		{"body too large", "/audit", `{"skus":["` + strings.Repeat("A", 512) + `"]}`, nil, http.StatusRequestEntityTooLarge},
		{"invalid thresholds", "/audit", `{"skus":["SKU001"]}`, apperrors.NewValidationError("thresholds must not be negative", nil), http.StatusBadRequest},
		{"deadline", "/audit", `{"skus":["SKU001"]}`, context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubAuditor{err: tt.auditErr})

			rec := serve(h, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, http.StatusText(tt.wantStatus), body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}
