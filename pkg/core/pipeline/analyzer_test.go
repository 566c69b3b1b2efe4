package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"filing_rating/pkg/core/rating"
	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockResolver struct {
	ResolveFunc func(ctx context.Context, symbol string) (string, error)
}

func (m *MockResolver) Resolve(ctx context.Context, symbol string) (string, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, symbol)
	}
	return "0000320193", nil
}

type MockFacts struct {
	calls     atomic.Int32
	FetchFunc func(ctx context.Context, cik string) (models.FilingFactSet, error)
}

func (m *MockFacts) FetchLatestFilingFacts(ctx context.Context, cik string) (models.FilingFactSet, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, cik)
	}
	return syntheticFacts(), nil
}

type MockNarrative struct {
	calls       atomic.Int32
	ExtractFunc func(ctx context.Context, cik string) (models.NarrativeSections, error)
}

func (m *MockNarrative) Extract(ctx context.Context, cik string) (models.NarrativeSections, error) {
	m.calls.Add(1)
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, cik)
	}
	return models.NarrativeSections{RiskText: "risks", MDAText: "discussion"}, nil
}

type MockSaver struct {
	saved []*models.Report
	err   error
}

func (m *MockSaver) Save(ctx context.Context, report *models.Report) error {
	m.saved = append(m.saved, report)
	return m.err
}

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
		AccessionID: "0000320193-25-000008",
	}
}

func syntheticFacts() models.FilingFactSet {
	return models.FilingFactSet{
		AccessionID: "0000320193-25-000008",
		Form:        models.FormAnnual,
		Filed:       "2025-02-01",
		Facts: []models.Fact{
			fact("Revenues", "2024-01-01", 100),
			fact("Revenues", "2024-12-31", 120),
			fact("NetIncomeLoss", "2024-12-31", 30),
			fact("StockholdersEquity", "2024-12-31", 60),
		},
	}
}

func newTestAnalyzer(facts *MockFacts, narrative *MockNarrative, rater rating.NarrativeRater, opts Options) *Analyzer {
	opts.Logger = zerolog.Nop()
	a := NewAnalyzer(&MockResolver{}, facts, narrative, rater, opts)
	a.newID = func() string { return "run-1" }
	return a
}

// --- Tests ---

func TestAnalyzer_SyntheticRun(t *testing.T) {
	saver := &MockSaver{}
	a := newTestAnalyzer(&MockFacts{}, &MockNarrative{}, rating.StaticRater{Rating: 3, Rationale: "mixed"}, Options{Saver: saver})

	report, err := a.Analyze(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "AAPL", report.Symbol)
	assert.Equal(t, "0000320193", report.CIK)
	assert.Equal(t, "0000320193-25-000008", report.AccessionID)
	assert.InDelta(t, 4.4, report.FinalResult.Score, 1e-9)
	assert.Equal(t, models.RecommendationStrongBuy, report.FinalResult.Recommendation)
	require.NotNil(t, report.RiskMNARating)
	assert.Equal(t, 3, report.RiskMNARating.Rating)
	assert.Empty(t, report.Warnings)
	require.Len(t, saver.saved, 1)
	assert.Same(t, report, saver.saved[0])
}

func TestAnalyzer_ResolverFailureShortCircuits(t *testing.T) {
	facts, narrative := &MockFacts{}, &MockNarrative{}
	a := newTestAnalyzer(facts, narrative, rating.StaticRater{Rating: 3}, Options{})
	a.resolver = &MockResolver{ResolveFunc: func(ctx context.Context, symbol string) (string, error) {
		return "", &models.NotFoundError{Symbol: symbol}
	}}

	_, err := a.Analyze(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, facts.calls.Load())
	assert.Zero(t, narrative.calls.Load())
}

func TestAnalyzer_InvalidSymbol(t *testing.T) {
	a := newTestAnalyzer(&MockFacts{}, &MockNarrative{}, rating.StaticRater{Rating: 3}, Options{})
	_, err := a.Analyze(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrInvalidSymbol)
}

func TestAnalyzer_FactsFailureDegradesRatiosOnly(t *testing.T) {
	facts := &MockFacts{FetchFunc: func(ctx context.Context, cik string) (models.FilingFactSet, error) {
		return models.FilingFactSet{}, &models.UpstreamError{Source: "companyfacts", URL: "u", StatusCode: 503, Attempts: 3}
	}}
	a := newTestAnalyzer(facts, &MockNarrative{}, rating.StaticRater{Rating: 5, Rationale: "great"}, Options{})

	report, err := a.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	// 0.7*3 + 0.3*5
	assert.InDelta(t, 3.6, report.FinalResult.Score, 1e-9)
	assert.Equal(t, models.RecommendationOutperform, report.FinalResult.Recommendation)
	assert.Nil(t, report.FinancialRatings.YoYGrowth)
	assert.False(t, report.Components.Debt.Available)
	require.NotNil(t, report.RiskMNARating)
	assert.Len(t, report.Warnings, 4)
	assert.Contains(t, report.Warnings[0], "yoy: companyfacts: HTTP 503")
}

func TestAnalyzer_NarrativeFailureDegradesNarrativeOnly(t *testing.T) {
	narrative := &MockNarrative{ExtractFunc: func(ctx context.Context, cik string) (models.NarrativeSections, error) {
		return models.NarrativeSections{}, &models.SectionNotFoundError{Section: "risk_factors", Reason: "fewer than two anchors"}
	}}
	a := newTestAnalyzer(&MockFacts{}, narrative, rating.StaticRater{Rating: 1}, Options{})

	report, err := a.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	// 0.7*5 + 0.3*3
	assert.InDelta(t, 4.4, report.FinalResult.Score, 1e-9)
	assert.Nil(t, report.RiskMNARating)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "narrative: section risk_factors not found")
}

func TestAnalyzer_BranchTimeout(t *testing.T) {
	narrative := &MockNarrative{ExtractFunc: func(ctx context.Context, cik string) (models.NarrativeSections, error) {
		<-ctx.Done()
		return models.NarrativeSections{}, ctx.Err()
	}}
	a := newTestAnalyzer(&MockFacts{}, narrative, rating.StaticRater{Rating: 3}, Options{BranchTimeout: 20 * time.Millisecond})

	report, err := a.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, report.Components.YoY.Available)
	assert.False(t, report.Components.Narrative.Available)
	assert.Contains(t, report.Components.Narrative.Reason, models.ErrComponentTimeout.Error())
}

func TestAnalyzer_BranchesRunConcurrently(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	wait := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	facts := &MockFacts{FetchFunc: func(ctx context.Context, cik string) (models.FilingFactSet, error) {
		if err := wait(ctx); err != nil {
			return models.FilingFactSet{}, err
		}
		return syntheticFacts(), nil
	}}
	narrative := &MockNarrative{ExtractFunc: func(ctx context.Context, cik string) (models.NarrativeSections, error) {
		if err := wait(ctx); err != nil {
			return models.NarrativeSections{}, err
		}
		return models.NarrativeSections{RiskText: "r", MDAText: "m"}, nil
	}}
	a := newTestAnalyzer(facts, narrative, rating.StaticRater{Rating: 3}, Options{BranchTimeout: 5 * time.Second})

	go func() {
		<-started
		<-started
		close(release)
	}()

	report, err := a.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
}

func TestAnalyzer_StoreFailureIsNotFatal(t *testing.T) {
	saver := &MockSaver{err: errors.New("connection refused")}
	a := newTestAnalyzer(&MockFacts{}, &MockNarrative{}, rating.StaticRater{Rating: 3}, Options{Saver: saver})

	report, err := a.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"store: connection refused"}, report.Warnings)
}
