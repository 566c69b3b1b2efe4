package rating

import (
	"errors"
	"testing"

	"filing_rating/pkg/core/calc"
	"filing_rating/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fact(concept, end string, val float64) models.Fact {
	v := val
	return models.Fact{
		Taxonomy:    "us-gaap",
		Concept:     concept,
		Unit:        "USD",
		Value:       &v,
		PeriodEnd:   end,
		Filed:       "2025-02-01",
		Form:        models.FormAnnual,
		RawForm:     "10-K",
		AccessionID: "0000000001-25-000001",
	}
}

func ratio(score float64) calc.Outcome {
	return calc.Outcome{Result: &models.RatioResult{SubRating: score}}
}

func TestAggregate_SyntheticFiling(t *testing.T) {
	set := models.FilingFactSet{
		AccessionID: "0000000001-25-000001",
		Form:        models.FormAnnual,
		Facts: []models.Fact{
			fact("Revenues", "2024-01-01", 100),
			fact("Revenues", "2024-12-31", 120),
			fact("NetIncomeLoss", "2024-12-31", 30),
			fact("StockholdersEquity", "2024-12-31", 60),
		},
	}

	in := InputsFromRatios(calc.ComputeRatios(set))
	in.Narrative = &models.NarrativeRating{Rating: 3, Rationale: "balanced outlook"}

	agg := Aggregate(in, DefaultWeights)
	assert.InDelta(t, 4.4, agg.FinalScore, 1e-9)
	assert.Equal(t, models.RecommendationStrongBuy, agg.Recommendation)
	assert.True(t, agg.Components.Debt.Available)
	assert.Equal(t, 5.0, agg.Components.Debt.Score)
	assert.Contains(t, agg.Rationale, "balanced outlook")
}

func TestAggregate_UnavailableComponentsAreNeutral(t *testing.T) {
	in := Inputs{
		YoY:          ratio(5),
		Profit:       calc.Outcome{Err: &models.MissingConceptError{Metric: "revenue"}},
		Debt:         ratio(5),
		Income:       ratio(5),
		NarrativeErr: errors.New("section risk_factors not found"),
	}

	agg := Aggregate(in, DefaultWeights)
	// 0.2*5 + 0.2*3 + 0.15*5 + 0.15*5 + 0.3*3
	assert.InDelta(t, 4.0, agg.FinalScore, 1e-9)
	assert.Equal(t, models.RecommendationStrongBuy, agg.Recommendation)
	assert.False(t, agg.Components.Profit.Available)
	assert.Equal(t, NeutralScore, agg.Components.Profit.Score)
	assert.Contains(t, agg.Components.Profit.Reason, "revenue")
	assert.False(t, agg.Components.Narrative.Available)
	assert.Contains(t, agg.Rationale, "narrative=3.00 (neutral: section risk_factors not found)")
}

func TestAggregate_AllUnavailableIsHold(t *testing.T) {
	agg := Aggregate(Inputs{}, DefaultWeights)
	assert.InDelta(t, 3.0, agg.FinalScore, 1e-9)
	assert.Equal(t, models.RecommendationHold, agg.Recommendation)
	assert.Equal(t, "not computed", agg.Components.YoY.Reason)
}

func TestDetermineRecommendation(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Recommendation
	}{
		{5, models.RecommendationStrongBuy},
		{4, models.RecommendationStrongBuy},
		{3.9999, models.RecommendationOutperform},
		{3.5, models.RecommendationOutperform},
		{3.4999, models.RecommendationHold},
		{2.5, models.RecommendationHold},
		{2.4999, models.RecommendationUnderperform},
		{1.5, models.RecommendationUnderperform},
		{1.4999, models.RecommendationSell},
		{1, models.RecommendationSell},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, determineRecommendation(tt.score), "score %v", tt.score)
	}
}

func TestAggregate_BoundedAndRounded(t *testing.T) {
	in := Inputs{
		YoY:       ratio(1),
		Profit:    ratio(1),
		Debt:      ratio(1),
		Income:    ratio(1),
		Narrative: &models.NarrativeRating{Rating: 1},
	}
	agg := Aggregate(in, DefaultWeights)
	assert.Equal(t, 1.0, agg.FinalScore)
	assert.Equal(t, models.RecommendationSell, agg.Recommendation)

	in.YoY = ratio(4.123456)
	agg = Aggregate(in, DefaultWeights)
	assert.Equal(t, roundTo(agg.FinalScore, 4), agg.FinalScore)
	assert.GreaterOrEqual(t, agg.FinalScore, 1.0)
	assert.LessOrEqual(t, agg.FinalScore, 5.0)
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultWeights.Validate())

	bad := DefaultWeights
	bad.Narrative = 0.5
	assert.Error(t, bad.Validate())

	neg := Weights{YoY: -0.1, Profit: 0.4, Debt: 0.2, Income: 0.2, Narrative: 0.3}
	assert.Error(t, neg.Validate())
}
