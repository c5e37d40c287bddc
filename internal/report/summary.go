package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/anime-shed/sku-image-audit/pkg/models"
)

type skuGroup struct {
	sku  string
	rows []models.ReportRow
}

// BuildSummaries folds report rows into one rollup per SKU (grouped
// case-insensitively). FLAG summaries come first, then OK, each ordered by SKU.
func BuildSummaries(rows []models.ReportRow) []models.SkuSummaryRow {
	var groups []*skuGroup
	index := make(map[string]*skuGroup)

	for _, row := range rows {
		key := skuKey(row.Sku)
		group, ok := index[key]
		if !ok {
			group = &skuGroup{sku: row.Sku}
			index[key] = group
			groups = append(groups, group)
		}
		group.rows = append(group.rows, row)
	}

	summaries := make([]models.SkuSummaryRow, 0, len(groups))
	for _, group := range groups {
		summaries = append(summaries, summarize(group))
	}

	slices.SortStableFunc(summaries, func(a, b models.SkuSummaryRow) int {
		return cmp.Or(
			cmp.Compare(statusRank(a.Status), statusRank(b.Status)),
			cmp.Compare(skuKey(a.Sku), skuKey(b.Sku)),
		)
	})
	return summaries
}

func summarize(group *skuGroup) models.SkuSummaryRow {
	var imageRows []models.ReportRow
	for _, row := range group.rows {
		if strings.TrimSpace(row.ImageURL) != "" {
			imageRows = append(imageRows, row)
		}
	}

	summary := models.SkuSummaryRow{
		Sku:        group.sku,
		ImageCount: len(imageRows),
		Status:     models.StatusOK,
	}
	for _, row := range imageRows {
		if row.Status == models.StatusFlag {
			summary.FlagCount++
		} else {
			summary.OkCount++
		}
	}

	if len(imageRows) == 0 {
		summary.Status = models.StatusFlag
		summary.Notes = NoImagesNote
		return summary
	}
	if summary.FlagCount > 0 {
		summary.Status = models.StatusFlag
	}
	summary.Notes = failureSummary(imageRows)
	return summary
}

// failureSummary groups flagged rows by their notes: "2 image(s): <note>; ..."
func failureSummary(imageRows []models.ReportRow) string {
	var failing []models.ReportRow
	for _, row := range imageRows {
		if row.Status == models.StatusFlag {
			failing = append(failing, row)
		}
	}
	if len(failing) == 0 {
		return ""
	}

	var order []string
	counts := make(map[string]int)
	for _, row := range failing {
		if strings.TrimSpace(row.Notes) == "" {
			continue
		}
		if _, seen := counts[row.Notes]; !seen {
			order = append(order, row.Notes)
		}
		counts[row.Notes]++
	}

	if len(order) == 0 {
		return fmt.Sprintf("%d image(s) flagged", len(failing))
	}

	parts := make([]string, 0, len(order))
	for _, note := range order {
		parts = append(parts, fmt.Sprintf("%d image(s): %s", counts[note], note))
	}
	return strings.Join(parts, "; ")
}
