// Package calc derives the four financial ratios of a filing and maps each
// onto a 1-5 sub-rating.
package calc

import (
	"fmt"
	"math"
	"sync"

	"filing_rating/pkg/models"
)

const (
	MinRating = 1.0
	MaxRating = 5.0
)

// Metric names reported in RatioResult.MetricName.
const (
	NameYoYGrowth    = "yoy_revenue_growth"
	NameProfitMargin = "net_profit_margin"
	NameDebtToEquity = "debt_to_equity"
	NameNetIncome    = "net_income"
)

// Rating bands
const (
	GrowthHigh   = 15.0 // percent
	GrowthLow    = 5.0
	MarginHigh   = 10.0 // percent
	MarginLow    = 5.0
	LeverageLow  = 0.5
	LeverageHigh = 1.0
)

// ClampRating bounds a sub-rating to [1,5].
func ClampRating(v float64) float64 {
	if math.IsNaN(v) {
		return MinRating
	}
	return math.Max(MinRating, math.Min(MaxRating, v))
}

// =============================================================================
// YEAR-OVER-YEAR REVENUE GROWTH
// =============================================================================

// YoYRevenueGrowth compares summed revenue at the earliest and latest period
// ends of the filing. A zero prior period yields +Inf growth when current
// revenue is positive, otherwise zero.
func YoYRevenueGrowth(set models.FilingFactSet) (models.RatioResult, error) {
	sums, periods := periodSums(factsFor(set.Facts, MetricRevenue))
	if len(periods) == 0 {
		return models.RatioResult{}, &models.MissingConceptError{Metric: string(MetricRevenue)}
	}

	prevPeriod, currPeriod := periods[0], periods[len(periods)-1]
	prev, curr := sums[prevPeriod], sums[currPeriod]

	var growth float64
	switch {
	case prev != 0:
		growth = (curr - prev) / prev * 100
	case curr > 0:
		growth = math.Inf(1)
	default:
		growth = 0
	}

	return models.RatioResult{
		MetricName:  NameYoYGrowth,
		RawValue:    models.Number(growth),
		SubRating:   GrowthRating(growth),
		Description: fmt.Sprintf("Revenue growth %s from %s to %s", formatPercent(growth), prevPeriod, currPeriod),
		PeriodEnd:   currPeriod,
	}, nil
}

// GrowthRating: >15% -> 5, <5% -> 1, otherwise growth/5.
func GrowthRating(growth float64) float64 {
	switch {
	case growth > GrowthHigh:
		return MaxRating
	case growth < GrowthLow:
		return MinRating
	}
	return ClampRating(growth / 5)
}

// =============================================================================
// NET PROFIT MARGIN
// =============================================================================

// NetProfitMargin divides latest-period net income by latest-period revenue.
func NetProfitMargin(set models.FilingFactSet) (models.RatioResult, error) {
	income, _, ok := latestSum(set.Facts, MetricNetIncome)
	if !ok {
		return models.RatioResult{}, &models.MissingConceptError{Metric: string(MetricNetIncome)}
	}
	revenue, period, ok := latestSum(set.Facts, MetricRevenue)
	if !ok {
		return models.RatioResult{}, &models.MissingConceptError{Metric: string(MetricRevenue)}
	}
	if revenue == 0 {
		return models.RatioResult{}, fmt.Errorf("%s: revenue is zero: %w", NameProfitMargin, models.ErrZeroDenominator)
	}

	margin := income / revenue * 100

	return models.RatioResult{
		MetricName:  NameProfitMargin,
		RawValue:    models.Number(margin),
		SubRating:   MarginRating(margin),
		Description: fmt.Sprintf("Net profit margin %s for period ending %s", formatPercent(margin), period),
		PeriodEnd:   period,
	}, nil
}

// MarginRating: >10% -> 5, <5% -> 1, otherwise margin/5.
func MarginRating(margin float64) float64 {
	switch {
	case margin > MarginHigh:
		return MaxRating
	case margin < MarginLow:
		return MinRating
	}
	return ClampRating(margin / 5)
}

// =============================================================================
// DEBT TO EQUITY
// =============================================================================

// DebtToEquity sums the latest value of each debt family and divides by
// latest-period stockholders' equity. Missing debt families count as zero;
// missing equity is an error. Negative equity yields a negative ratio, which
// rates like any other ratio below 0.5.
func DebtToEquity(set models.FilingFactSet) (models.RatioResult, error) {
	equity, period, ok := latestSum(set.Facts, MetricEquity)
	if !ok {
		return models.RatioResult{}, &models.MissingConceptError{Metric: string(MetricEquity)}
	}
	if equity == 0 {
		return models.RatioResult{}, fmt.Errorf("%s: equity is zero: %w", NameDebtToEquity, models.ErrZeroDenominator)
	}

	var debt float64
	for _, family := range DebtFamilies {
		v, _, found := latestSum(set.Facts, family)
		if found {
			debt += v
		}
	}

	ratio := debt / equity
	desc := fmt.Sprintf("Debt to equity %.2f as of %s", ratio, period)
	if equity < 0 {
		desc = fmt.Sprintf("Debt to equity %.2f as of %s (negative stockholders' equity %.0f)", ratio, period, equity)
	}

	return models.RatioResult{
		MetricName:  NameDebtToEquity,
		RawValue:    models.Number(ratio),
		SubRating:   LeverageRating(ratio),
		Description: desc,
		PeriodEnd:   period,
	}, nil
}

// LeverageRating: <0.5 -> 5, >1 -> 1, otherwise -8x+9. Non-increasing in x.
func LeverageRating(ratio float64) float64 {
	switch {
	case ratio < LeverageLow:
		return MaxRating
	case ratio > LeverageHigh:
		return MinRating
	}
	return ClampRating(-8*ratio + 9)
}

// =============================================================================
// NET INCOME SIGN
// =============================================================================

// NetIncomeSign rates profitability by the sign of latest net income.
func NetIncomeSign(set models.FilingFactSet) (models.RatioResult, error) {
	income, period, ok := latestSum(set.Facts, MetricNetIncomeSign)
	if !ok {
		return models.RatioResult{}, &models.MissingConceptError{Metric: string(MetricNetIncomeSign)}
	}

	var rating float64
	var desc string
	switch {
	case income > 0:
		rating, desc = MaxRating, "Net income is positive"
	case income < 0:
		rating, desc = MinRating, "Net income is negative"
	default:
		rating, desc = 3, "Net income is zero"
	}

	return models.RatioResult{
		MetricName:  NameNetIncome,
		RawValue:    models.Number(income),
		SubRating:   rating,
		Description: fmt.Sprintf("%s (%.0f) for period ending %s", desc, income, period),
		PeriodEnd:   period,
	}, nil
}

// =============================================================================
// PARALLEL COMPUTATION
// =============================================================================

// Outcome is one ratio's result or the reason it is unavailable.
type Outcome struct {
	Result *models.RatioResult
	Err    error
}

// Ratios holds the four outcomes of ComputeRatios.
type Ratios struct {
	YoYGrowth    Outcome
	ProfitMargin Outcome
	DebtToEquity Outcome
	NetIncome    Outcome
}

// ComputeRatios evaluates the four ratios concurrently. The calculators are
// pure, so one failing never affects the others.
func ComputeRatios(set models.FilingFactSet) Ratios {
	var (
		out Ratios
		wg  sync.WaitGroup
	)

	run := func(dst *Outcome, fn func(models.FilingFactSet) (models.RatioResult, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := fn(set)
			if err != nil {
				dst.Err = err
				return
			}
			dst.Result = &r
		}()
	}

	run(&out.YoYGrowth, YoYRevenueGrowth)
	run(&out.ProfitMargin, NetProfitMargin)
	run(&out.DebtToEquity, DebtToEquity)
	run(&out.NetIncome, NetIncomeSign)

	wg.Wait()
	return out
}

func formatPercent(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf%"
	}
	return fmt.Sprintf("%.2f%%", v)
}
