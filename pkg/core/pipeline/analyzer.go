// Package pipeline runs one rating analysis end to end: resolve the symbol,
// fetch facts and narrative concurrently, aggregate, and optionally persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"filing_rating/pkg/core/calc"
	"filing_rating/pkg/core/ingest"
	"filing_rating/pkg/core/rating"
	"filing_rating/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultBranchTimeout bounds each of the facts and narrative branches.
const DefaultBranchTimeout = 2 * time.Minute

// Component names used in warnings and logs.
const (
	ComponentYoY       = "yoy"
	ComponentProfit    = "profit"
	ComponentDebt      = "debt"
	ComponentIncome    = "income"
	ComponentNarrative = "narrative"
	ComponentStore     = "store"
)

// CIKResolver maps a ticker symbol to a zero-padded CIK.
type CIKResolver interface {
	Resolve(ctx context.Context, symbol string) (string, error)
}

// FactsSource returns the facts of an entity's latest periodic filing.
type FactsSource interface {
	FetchLatestFilingFacts(ctx context.Context, cik string) (models.FilingFactSet, error)
}

// NarrativeSource returns the risk factors and MD&A of the latest annual report.
type NarrativeSource interface {
	Extract(ctx context.Context, cik string) (models.NarrativeSections, error)
}

// ReportSaver persists a finished report.
type ReportSaver interface {
	Save(ctx context.Context, report *models.Report) error
}

// Options tune an Analyzer. Zero values take defaults.
type Options struct {
	Weights       rating.Weights
	BranchTimeout time.Duration
	Saver         ReportSaver
	Logger        zerolog.Logger
}

// Analyzer orchestrates a single analysis run per call. It is safe for
// concurrent use; no state is shared between runs.
type Analyzer struct {
	resolver  CIKResolver
	facts     FactsSource
	narrative NarrativeSource
	rater     rating.NarrativeRater
	saver     ReportSaver
	weights   rating.Weights
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewAnalyzer wires an analyzer from its components.
func NewAnalyzer(resolver CIKResolver, facts FactsSource, narrative NarrativeSource, rater rating.NarrativeRater, opts Options) *Analyzer {
	weights := opts.Weights
	if weights == (rating.Weights{}) {
		weights = rating.DefaultWeights
	}
	timeout := opts.BranchTimeout
	if timeout <= 0 {
		timeout = DefaultBranchTimeout
	}
	return &Analyzer{
		resolver:  resolver,
		facts:     facts,
		narrative: narrative,
		rater:     rater,
		saver:     opts.Saver,
		weights:   weights,
		timeout:   timeout,
		logger:    opts.Logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

type factsOutcome struct {
	set    models.FilingFactSet
	ratios calc.Ratios
	err    error
}

type narrativeOutcome struct {
	rating *models.NarrativeRating
	err    error
}

// Analyze rates symbol. Only a resolver failure is returned as an error;
// every other failure degrades the affected components and is reported in
// Report.Warnings.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*models.Report, error) {
	normalized, err := ingest.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cik, err := a.resolver.Resolve(ctx, normalized)
	if err != nil {
		a.logger.Warn().Err(err).Str("symbol", normalized).Msg("Symbol resolution failed")
		return nil, err
	}

	runID := a.newID()
	log := a.logger.With().Str("run_id", runID).Str("symbol", normalized).Str("cik", cik).Logger()
	log.Info().Msg("Starting analysis")
	start := time.Now()

	var (
		fo factsOutcome
		no narrativeOutcome
		wg sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		fo = a.runFacts(ctx, cik)
	}()
	go func() {
		defer wg.Done()
		no = a.runNarrative(ctx, cik)
	}()
	wg.Wait()

	in := rating.Inputs{Narrative: no.rating, NarrativeErr: no.err}
	if fo.err != nil {
		in.YoY = calc.Outcome{Err: fo.err}
		in.Profit = calc.Outcome{Err: fo.err}
		in.Debt = calc.Outcome{Err: fo.err}
		in.Income = calc.Outcome{Err: fo.err}
	} else {
		ratios := rating.InputsFromRatios(fo.ratios)
		in.YoY, in.Profit, in.Debt, in.Income = ratios.YoY, ratios.Profit, ratios.Debt, ratios.Income
	}

	var warnings []string
	degrade := func(component string, err error) {
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("component", component).Msg("Component unavailable")
		warnings = append(warnings, fmt.Sprintf("%s: %v", component, err))
	}
	degrade(ComponentYoY, in.YoY.Err)
	degrade(ComponentProfit, in.Profit.Err)
	degrade(ComponentDebt, in.Debt.Err)
	degrade(ComponentIncome, in.Income.Err)
	degrade(ComponentNarrative, no.err)

	agg := rating.Aggregate(in, a.weights)
	report := rating.NewReport(rating.ReportMeta{
		RunID:       runID,
		Symbol:      normalized,
		CIK:         cik,
		AccessionID: fo.set.AccessionID,
		Form:        fo.set.Form,
		AnalyzedAt:  a.now(),
		Warnings:    warnings,
	}, in, agg)

	if a.saver != nil {
		if err := a.saver.Save(ctx, report); err != nil {
			log.Warn().Err(err).Str("component", ComponentStore).Msg("Failed to persist report")
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", ComponentStore, err))
		}
	}

	log.Info().
		Float64("score", agg.FinalScore).
		Str("recommendation", string(agg.Recommendation)).
		Int("warnings", len(report.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")

	return report, nil
}

func (a *Analyzer) runFacts(ctx context.Context, cik string) factsOutcome {
	bctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	set, err := a.facts.FetchLatestFilingFacts(bctx, cik)
	if err != nil {
		return factsOutcome{err: classify(bctx, err)}
	}
	return factsOutcome{set: set, ratios: calc.ComputeRatios(set)}
}

func (a *Analyzer) runNarrative(ctx context.Context, cik string) narrativeOutcome {
	bctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	sections, err := a.narrative.Extract(bctx, cik)
	if err != nil {
		return narrativeOutcome{err: classify(bctx, err)}
	}
	nr, err := a.rater.Rate(bctx, sections.RiskText, sections.MDAText)
	if err != nil {
		return narrativeOutcome{err: classify(bctx, err)}
	}
	return narrativeOutcome{rating: &nr}
}

// classify marks errors caused by the branch deadline as timeouts.
func classify(bctx context.Context, err error) error {
	if errors.Is(bctx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrComponentTimeout) {
		return fmt.Errorf("%w: %v", models.ErrComponentTimeout, err)
	}
	return err
}
