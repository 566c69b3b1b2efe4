package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Number is a float64 that survives JSON encoding when non-finite.
// +Inf and -Inf encode as the strings "Infinity" / "-Infinity", NaN as null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Number(math.NaN())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*n = Number(math.Inf(1))
		case "-Infinity":
			*n = Number(math.Inf(-1))
		default:
			return fmt.Errorf("invalid number %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// RatioResult is one financial ratio and its 1-5 sub-rating.
type RatioResult struct {
	MetricName  string  `json:"metric_name"`
	RawValue    Number  `json:"raw_value"`
	SubRating   float64 `json:"sub_rating"`
	Description string  `json:"description"`
	PeriodEnd   string  `json:"period_end,omitempty"`
}

// NarrativeSections holds the risk factors and MD&A text of one annual filing.
type NarrativeSections struct {
	RiskText string `json:"risk_text"`
	MDAText  string `json:"mda_text"`
}

// NarrativeRating is the qualitative rating returned by a NarrativeRater.
type NarrativeRating struct {
	Rating    int    `json:"rating"`
	Rationale string `json:"rationale"`
}

// Recommendation is the final investment call.
type Recommendation string

const (
	RecommendationSell         Recommendation = "sell"
	RecommendationUnderperform Recommendation = "underperform"
	RecommendationHold         Recommendation = "hold"
	RecommendationOutperform   Recommendation = "outperform"
	RecommendationStrongBuy    Recommendation = "strong_buy"
)

// Component is one weighted input of the aggregate rating.
type Component struct {
	Score     float64 `json:"score"`
	Available bool    `json:"available"`
	Reason    string  `json:"reason,omitempty"`
}

// Components groups the five aggregate inputs.
type Components struct {
	YoY       Component `json:"yoy"`
	Profit    Component `json:"profit"`
	Debt      Component `json:"debt"`
	Income    Component `json:"income"`
	Narrative Component `json:"narrative"`
}

// AggregateRating is the terminal artifact of one analysis.
type AggregateRating struct {
	FinalScore     float64        `json:"final_score"`
	Recommendation Recommendation `json:"recommendation"`
	Components     Components     `json:"components"`
	Rationale      string         `json:"rationale"`
}

// FinalResult is the headline block of a Report.
type FinalResult struct {
	Score          float64        `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	Rationale      string         `json:"rationale"`
}

// FinancialRatings carries the four ratio results; nil means unavailable.
type FinancialRatings struct {
	YoYGrowth    *RatioResult `json:"yoy_growth"`
	ProfitMargin *RatioResult `json:"profit_margin"`
	DebtToEquity *RatioResult `json:"debt_to_equity"`
	NetIncome    *RatioResult `json:"net_income"`
}

// Report is the serialized output of one analysis run.
type Report struct {
	RunID            string           `json:"run_id"`
	Symbol           string           `json:"symbol"`
	CIK              string           `json:"cik"`
	AccessionID      string           `json:"accession_id,omitempty"`
	FilingForm       Form             `json:"filing_form,omitempty"`
	AnalyzedAt       time.Time        `json:"analyzed_at"`
	FinalResult      FinalResult      `json:"final_result"`
	FinancialRatings FinancialRatings `json:"financial_ratings"`
	RiskMNARating    *NarrativeRating `json:"risk_mna_rating"`
	Components       Components       `json:"components"`
	Warnings         []string         `json:"warnings,omitempty"`
}
