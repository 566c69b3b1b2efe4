package calc

import (
	"sort"
	"strings"

	"filing_rating/pkg/models"
)

// Metric names a concept family used by a ratio.
type Metric string

const (
	MetricRevenue       Metric = "revenue"
	MetricNetIncome     Metric = "net_income"
	MetricNetIncomeSign Metric = "net_income_sign"
	MetricEquity        Metric = "stockholders_equity"

	MetricLongTermDebtNoncurrent Metric = "long_term_debt_noncurrent"
	MetricLongTermDebtCurrent    Metric = "long_term_debt_current"
	MetricShortTermBorrowings    Metric = "short_term_borrowings"
)

// DebtFamilies are summed into total debt. A missing family counts as zero.
var DebtFamilies = []Metric{
	MetricLongTermDebtNoncurrent,
	MetricLongTermDebtCurrent,
	MetricShortTermBorrowings,
}

// MatchKind selects how a ConceptRule compares concept names.
type MatchKind int

const (
	MatchPrefix MatchKind = iota
	MatchContains
	MatchExact
)

// ConceptRule matches XBRL concept names, case-insensitively.
type ConceptRule struct {
	Kind    MatchKind
	Pattern string
}

// Matches reports whether concept satisfies the rule.
func (r ConceptRule) Matches(concept string) bool {
	c := strings.ToLower(concept)
	p := strings.ToLower(r.Pattern)
	switch r.Kind {
	case MatchPrefix:
		return strings.HasPrefix(c, p)
	case MatchContains:
		return strings.Contains(c, p)
	case MatchExact:
		return c == p
	}
	return false
}

// ConceptRules maps each metric onto the concept names that report it.
var ConceptRules = map[Metric][]ConceptRule{
	MetricRevenue:       {{Kind: MatchPrefix, Pattern: "revenue"}},
	MetricNetIncome:     {{Kind: MatchContains, Pattern: "netincome"}},
	MetricNetIncomeSign: {{Kind: MatchContains, Pattern: "netincomeloss"}},
	MetricEquity:        {{Kind: MatchExact, Pattern: "StockholdersEquity"}},

	MetricLongTermDebtNoncurrent: {{Kind: MatchContains, Pattern: "longtermdebtnoncurrent"}},
	MetricLongTermDebtCurrent:    {{Kind: MatchContains, Pattern: "longtermdebtcurrent"}},
	MetricShortTermBorrowings:    {{Kind: MatchContains, Pattern: "shorttermborrowings"}},
}

// factsFor returns the facts whose concept matches any rule of m.
func factsFor(facts []models.Fact, m Metric) []models.Fact {
	rules := ConceptRules[m]
	out := make([]models.Fact, 0)
	for _, f := range facts {
		for _, r := range rules {
			if r.Matches(f.Concept) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// periodSums groups values by period end. Null values contribute zero.
// Returned periods are sorted ascending.
func periodSums(facts []models.Fact) (map[string]float64, []string) {
	sums := make(map[string]float64)
	for _, f := range facts {
		if f.PeriodEnd == "" {
			continue
		}
		sums[f.PeriodEnd] += f.ValueOrZero()
	}
	periods := make([]string, 0, len(sums))
	for p := range sums {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return sums, periods
}

// latestSum returns the summed value of m at its latest period end.
func latestSum(facts []models.Fact, m Metric) (value float64, period string, ok bool) {
	sums, periods := periodSums(factsFor(facts, m))
	if len(periods) == 0 {
		return 0, "", false
	}
	period = periods[len(periods)-1]
	return sums[period], period, true
}
