package rating

import (
	"fmt"
	"math"
	"strings"
	"time"

	"filing_rating/pkg/models"
)

// ReportMeta carries the run identity attached to a Report.
type ReportMeta struct {
	RunID       string
	Symbol      string
	CIK         string
	AccessionID string
	Form        models.Form
	AnalyzedAt  time.Time
	Warnings    []string
}

// NewReport assembles the serialized output of one run.
func NewReport(meta ReportMeta, in Inputs, agg models.AggregateRating) *models.Report {
	return &models.Report{
		RunID:       meta.RunID,
		Symbol:      meta.Symbol,
		CIK:         meta.CIK,
		AccessionID: meta.AccessionID,
		FilingForm:  meta.Form,
		AnalyzedAt:  meta.AnalyzedAt,
		FinalResult: models.FinalResult{
			Score:          agg.FinalScore,
			Recommendation: agg.Recommendation,
			Rationale:      agg.Rationale,
		},
		FinancialRatings: models.FinancialRatings{
			YoYGrowth:    in.YoY.Result,
			ProfitMargin: in.Profit.Result,
			DebtToEquity: in.Debt.Result,
			NetIncome:    in.Income.Result,
		},
		RiskMNARating: in.Narrative,
		Components:    agg.Components,
		Warnings:      meta.Warnings,
	}
}

// RenderMarkdown formats a report for humans.
func RenderMarkdown(r *models.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s rating\n\n", r.Symbol)
	fmt.Fprintf(&sb, "**Score:** %.2f / 5  \n", r.FinalResult.Score)
	fmt.Fprintf(&sb, "**Recommendation:** %s  \n", r.FinalResult.Recommendation)
	fmt.Fprintf(&sb, "**CIK:** %s", r.CIK)
	if r.AccessionID != "" {
		fmt.Fprintf(&sb, "  \n**Filing:** %s %s", r.FilingForm, r.AccessionID)
	}
	sb.WriteString("\n\n## Financial ratios\n\n")
	sb.WriteString("| Metric | Value | Sub-rating | Detail |\n")
	sb.WriteString("|---|---|---|---|\n")

	ratios := []struct {
		name string
		r    *models.RatioResult
		c    models.Component
	}{
		{"YoY revenue growth", r.FinancialRatings.YoYGrowth, r.Components.YoY},
		{"Net profit margin", r.FinancialRatings.ProfitMargin, r.Components.Profit},
		{"Debt to equity", r.FinancialRatings.DebtToEquity, r.Components.Debt},
		{"Net income", r.FinancialRatings.NetIncome, r.Components.Income},
	}
	for _, row := range ratios {
		if row.r == nil {
			fmt.Fprintf(&sb, "| %s | n/a | %.2f (neutral) | %s |\n", row.name, row.c.Score, escapeCell(row.c.Reason))
			continue
		}
		fmt.Fprintf(&sb, "| %s | %s | %.2f | %s |\n", row.name, formatNumber(float64(row.r.RawValue)), row.r.SubRating, escapeCell(row.r.Description))
	}

	sb.WriteString("\n## Risk factors and MD&A\n\n")
	if r.RiskMNARating != nil {
		fmt.Fprintf(&sb, "Rating **%d** / 5\n\n%s\n", r.RiskMNARating.Rating, r.RiskMNARating.Rationale)
	} else {
		fmt.Fprintf(&sb, "Unavailable: %s\n", r.Components.Narrative.Reason)
	}

	sb.WriteString("\n## Rationale\n\n")
	sb.WriteString(r.FinalResult.Rationale)
	sb.WriteString("\n")

	if len(r.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	return sb.String()
}

func formatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "n/a"
	}
	return fmt.Sprintf("%.4g", v)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
