package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
)

// =============================================================================
// COMPANY FACTS RESPONSE
// https://data.sec.gov/api/xbrl/companyfacts/CIK##########.json
// =============================================================================

// CompanyFactsResponse is the raw companyfacts document.
type CompanyFactsResponse struct {
	CIK        json.Number                        `json:"cik"`
	EntityName string                             `json:"entityName"`
	Facts      map[string]map[string]ConceptFacts `json:"facts"` // taxonomy -> concept
}

// ConceptFacts holds every reported value of one concept, keyed by unit.
type ConceptFacts struct {
	Label       string                     `json:"label"`
	Description string                     `json:"description"`
	Units       map[string][]FactDataPoint `json:"units"`
}

// FactDataPoint is a single reported value.
type FactDataPoint struct {
	Start string   `json:"start,omitempty"`
	End   string   `json:"end"`
	Val   *float64 `json:"val"`
	Accn  string   `json:"accn"`
	FY    int      `json:"fy"`
	FP    string   `json:"fp"`
	Form  string   `json:"form"`
	Filed string   `json:"filed"`
	Frame string   `json:"frame,omitempty"`
}

// FlattenCompanyFacts turns the nested response into a flat fact list.
// Order is deterministic: taxonomy, concept, unit, then source order.
func FlattenCompanyFacts(resp *CompanyFactsResponse) []models.Fact {
	if resp == nil {
		return nil
	}

	facts := make([]models.Fact, 0)
	for _, taxonomy := range sortedKeys(resp.Facts) {
		concepts := resp.Facts[taxonomy]
		for _, concept := range sortedKeys(concepts) {
			units := concepts[concept].Units
			for _, unit := range sortedKeys(units) {
				for _, dp := range units[unit] {
					facts = append(facts, models.Fact{
						Taxonomy:     taxonomy,
						Concept:      concept,
						Unit:         unit,
						Value:        dp.Val,
						PeriodEnd:    dp.End,
						Filed:        dp.Filed,
						Form:         models.ParseForm(dp.Form),
						RawForm:      dp.Form,
						AccessionID:  dp.Accn,
						FiscalYear:   dp.FY,
						FiscalPeriod: dp.FP,
					})
				}
			}
		}
	}
	return facts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SelectLatestFiling keeps only the facts of the most recently filed 10-K or
// 10-Q. Pass one finds the in-scope fact with the latest parseable filed
// date (ties go to the larger accession id); pass two collects every fact
// carrying that accession id.
func SelectLatestFiling(facts []models.Fact) (models.FilingFactSet, error) {
	var (
		bestFiled time.Time
		best      *models.Fact
	)

	for i := range facts {
		f := &facts[i]
		if !f.Form.InScope() || f.AccessionID == "" {
			continue
		}
		filed, err := time.Parse("2006-01-02", f.Filed)
		if err != nil {
			continue
		}
		if best == nil || filed.After(bestFiled) ||
			(filed.Equal(bestFiled) && f.AccessionID > best.AccessionID) {
			best = f
			bestFiled = filed
		}
	}

	if best == nil {
		return models.FilingFactSet{}, models.ErrNoFilingFound
	}

	set := models.FilingFactSet{
		AccessionID: best.AccessionID,
		Form:        best.Form,
		Filed:       best.Filed,
		Facts:       make([]models.Fact, 0),
	}
	for _, f := range facts {
		if f.AccessionID == set.AccessionID {
			set.Facts = append(set.Facts, f)
		}
	}
	return set, nil
}

// =============================================================================
// FETCHER
// =============================================================================

// FactsFetcher retrieves the facts of a company's latest periodic filing.
type FactsFetcher struct {
	client *EDGARClient
	logger zerolog.Logger
}

func NewFactsFetcher(client *EDGARClient, logger zerolog.Logger) *FactsFetcher {
	return &FactsFetcher{client: client, logger: logger}
}

// FetchLatestFilingFacts downloads companyfacts for cik and selects the
// latest 10-K/10-Q filing.
func (f *FactsFetcher) FetchLatestFilingFacts(ctx context.Context, cik string) (models.FilingFactSet, error) {
	resp, err := f.client.FetchCompanyFacts(ctx, cik)
	if err != nil {
		return models.FilingFactSet{}, err
	}

	all := FlattenCompanyFacts(resp)
	set, err := SelectLatestFiling(all)
	if err != nil {
		return set, fmt.Errorf("CIK %s: %w", PadCIK(cik), err)
	}

	f.logger.Info().
		Str("cik", PadCIK(cik)).
		Str("accession", set.AccessionID).
		Str("form", string(set.Form)).
		Int("facts", len(set.Facts)).
		Int("total_facts", len(all)).
		Msg("Selected latest filing")

	return set, nil
}
