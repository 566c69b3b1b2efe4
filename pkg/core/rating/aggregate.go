// Package rating combines ratio sub-ratings and the narrative rating into a
// single weighted 1-5 investment rating.
package rating

import (
	"fmt"
	"math"
	"strings"

	"filing_rating/pkg/core/calc"
	"filing_rating/pkg/models"
)

// NeutralScore substitutes for any unavailable component.
const NeutralScore = 3.0

// Recommendation thresholds, applied to the score rounded to 4 decimals.
const (
	ThresholdStrongBuy    = 4.0
	ThresholdOutperform   = 3.5
	ThresholdHold         = 2.5
	ThresholdUnderperform = 1.5
)

// Weights are the per-component aggregate weights. They must sum to 1.
type Weights struct {
	YoY       float64
	Profit    float64
	Debt      float64
	Income    float64
	Narrative float64
}

// DefaultWeights: yoy 0.20, profit 0.20, debt 0.15, income 0.15, narrative 0.30.
var DefaultWeights = Weights{
	YoY:       0.20,
	Profit:    0.20,
	Debt:      0.15,
	Income:    0.15,
	Narrative: 0.30,
}

// Validate checks that every weight is non-negative and the total is 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.YoY, w.Profit, w.Debt, w.Income, w.Narrative} {
		if v < 0 {
			return fmt.Errorf("negative weight %v", v)
		}
	}
	if sum := w.YoY + w.Profit + w.Debt + w.Income + w.Narrative; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights must sum to 1, got %.4f", sum)
	}
	return nil
}

// Inputs are the five aggregate inputs. A ratio outcome without a result,
// or a nil Narrative, is unavailable.
type Inputs struct {
	YoY          calc.Outcome
	Profit       calc.Outcome
	Debt         calc.Outcome
	Income       calc.Outcome
	Narrative    *models.NarrativeRating
	NarrativeErr error
}

// InputsFromRatios seeds Inputs with the four ratio outcomes.
func InputsFromRatios(r calc.Ratios) Inputs {
	return Inputs{
		YoY:    r.YoYGrowth,
		Profit: r.ProfitMargin,
		Debt:   r.DebtToEquity,
		Income: r.NetIncome,
	}
}

// Aggregate computes the weighted final score. It never fails: every
// unavailable component contributes NeutralScore and carries its reason.
func Aggregate(in Inputs, w Weights) models.AggregateRating {
	components := models.Components{
		YoY:       ratioComponent(in.YoY),
		Profit:    ratioComponent(in.Profit),
		Debt:      ratioComponent(in.Debt),
		Income:    ratioComponent(in.Income),
		Narrative: narrativeComponent(in.Narrative, in.NarrativeErr),
	}

	score := components.YoY.Score*w.YoY +
		components.Profit.Score*w.Profit +
		components.Debt.Score*w.Debt +
		components.Income.Score*w.Income +
		components.Narrative.Score*w.Narrative
	score = calc.ClampRating(roundTo(score, 4))

	return models.AggregateRating{
		FinalScore:     score,
		Recommendation: determineRecommendation(score),
		Components:     components,
		Rationale:      buildRationale(score, components, in.Narrative),
	}
}

func ratioComponent(o calc.Outcome) models.Component {
	if o.Result != nil {
		return models.Component{Score: calc.ClampRating(o.Result.SubRating), Available: true}
	}
	return unavailable(o.Err)
}

func narrativeComponent(n *models.NarrativeRating, err error) models.Component {
	if n != nil {
		return models.Component{Score: calc.ClampRating(float64(n.Rating)), Available: true}
	}
	return unavailable(err)
}

func unavailable(err error) models.Component {
	reason := "not computed"
	if err != nil {
		reason = err.Error()
	}
	return models.Component{Score: NeutralScore, Available: false, Reason: reason}
}

// determineRecommendation maps a final score onto a recommendation
func determineRecommendation(score float64) models.Recommendation {
	if score >= ThresholdStrongBuy {
		return models.RecommendationStrongBuy
	}
	if score >= ThresholdOutperform {
		return models.RecommendationOutperform
	}
	if score >= ThresholdHold {
		return models.RecommendationHold
	}
	if score >= ThresholdUnderperform {
		return models.RecommendationUnderperform
	}
	return models.RecommendationSell
}

func buildRationale(score float64, c models.Components, n *models.NarrativeRating) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Final score %.2f", score)

	parts := []struct {
		name string
		c    models.Component
	}{
		{"yoy", c.YoY},
		{"profit", c.Profit},
		{"debt", c.Debt},
		{"income", c.Income},
		{"narrative", c.Narrative},
	}
	for _, p := range parts {
		if p.c.Available {
			fmt.Fprintf(&sb, "; %s=%.2f", p.name, p.c.Score)
		} else {
			fmt.Fprintf(&sb, "; %s=%.2f (neutral: %s)", p.name, p.c.Score, p.c.Reason)
		}
	}
	sb.WriteString(".")

	if n != nil && n.Rationale != "" {
		sb.WriteString(" Narrative: ")
		sb.WriteString(n.Rationale)
	}
	return sb.String()
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
