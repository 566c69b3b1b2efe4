package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"filing_rating/pkg/core/config"
	"filing_rating/pkg/core/rating"
	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const edgarTickers = `{"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}}`

const edgarFacts = `{
  "cik": 320193,
  "entityName": "Apple Inc.",
  "facts": {
    "us-gaap": {
      "Revenues": {"units": {"USD": [
        {"end": "2024-01-01", "val": 100, "accn": "0000320193-25-000008", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2025-02-01"},
        {"end": "2024-12-31", "val": 120, "accn": "0000320193-25-000008", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2025-02-01"},
        {"end": "2023-12-31", "val": 90, "accn": "0000320193-24-000002", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2024-02-01"}
      ]}},
      "NetIncomeLoss": {"units": {"USD": [
        {"end": "2024-12-31", "val": 30, "accn": "0000320193-25-000008", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2025-02-01"}
      ]}},
      "StockholdersEquity": {"units": {"USD": [
        {"end": "2024-12-31", "val": 60, "accn": "0000320193-25-000008", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2025-02-01"}
      ]}}
    }
  }
}`

const edgarSubmissions = `{
  "cik": "320193",
  "name": "Apple Inc.",
  "filings": {"recent": {
    "accessionNumber": ["0000320193-25-000008"],
    "filingDate": ["2025-02-01"],
    "form": ["10-K"],
    "primaryDocument": ["aapl-2024.htm"]
  }}
}`

const edgarDocument = `<html><head><style>p {}</style></head><body>
<p>Item 1A. Risk Factors</p><p>Item 1B. Unresolved Staff Comments</p>
<p>Item 7. MD&amp;A</p><p>Item 8. Financial Statements</p>
<p>Item 1A. Risk Factors</p><p>Competition is intense.</p>
<p>Item 1B. Unresolved Staff Comments</p><p>None.</p>
<p>Item 7. Management&#39;s Discussion</p><p>Revenue grew 20%.</p>
<p>Item 8. Financial Statements</p></body></html>`

func newFakeEDGAR(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	serve := func(path, contentType, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", contentType)
			fmt.Fprint(w, body)
		})
	}
	serve("/files/company_tickers.json", "application/json", edgarTickers)
	serve("/api/xbrl/companyfacts/CIK0000320193.json", "application/json", edgarFacts)
	serve("/submissions/CIK0000320193.json", "application/json", edgarSubmissions)
	serve("/Archives/edgar/data/320193/000032019325000008/aapl-2024.htm", "text/html", edgarDocument)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.SEC.DataBaseURL = baseURL
	cfg.SEC.ArchivesBaseURL = baseURL + "/Archives/edgar/data"
	cfg.SEC.TickersURL = baseURL + "/files/company_tickers.json"
	cfg.SEC.MaxAttempts = 1
	cfg.SEC.RateLimit = 100
	cfg.ModelsFile = "testdata/does-not-exist.yaml"
	cfg.ResourcesPath = "testdata/does-not-exist"
	return cfg
}

func TestBuild_EndToEnd(t *testing.T) {
	srv := newFakeEDGAR(t)

	var seen models.NarrativeSections
	rater := raterFunc(func(ctx context.Context, risk, mda string) (models.NarrativeRating, error) {
		seen = models.NarrativeSections{RiskText: risk, MDAText: mda}
		return models.NarrativeRating{Rating: 3, Rationale: "balanced"}, nil
	})

	w, err := Build(context.Background(), testConfig(srv.URL), zerolog.Nop(), BuildOptions{Rater: rater})
	require.NoError(t, err)
	defer w.Close()
	assert.Nil(t, w.Reports)

	report, err := w.Analyzer.Analyze(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "0000320193", report.CIK)
	assert.Equal(t, "0000320193-25-000008", report.AccessionID)
	assert.Empty(t, report.Warnings)
	assert.InDelta(t, 4.4, report.FinalResult.Score, 1e-9)
	assert.Equal(t, models.RecommendationStrongBuy, report.FinalResult.Recommendation)
	assert.Contains(t, seen.RiskText, "Competition is intense.")
	assert.Contains(t, seen.MDAText, "Revenue grew 20%.")
	assert.NotContains(t, seen.MDAText, "Financial Statements")

	_, err = w.Analyzer.Analyze(context.Background(), "MSFT")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBuild_DefaultsToLLMRater(t *testing.T) {
	w, err := Build(context.Background(), testConfig("http://127.0.0.1:0"), zerolog.Nop(), BuildOptions{})
	require.NoError(t, err)
	defer w.Close()

	_, ok := w.Analyzer.rater.(*rating.LLMRater)
	assert.True(t, ok)
	assert.Equal(t, "gemini", w.Agents.GetActiveProvider())
	assert.Equal(t, 1, w.Prompts.Count())
}

func TestBuild_RejectsBadWeights(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.Rating.Weights.Narrative = 0.9
	_, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Rater: rating.StaticRater{Rating: 3}})
	assert.Error(t, err)
}

type raterFunc func(ctx context.Context, risk, mda string) (models.NarrativeRating, error)

func (f raterFunc) Rate(ctx context.Context, risk, mda string) (models.NarrativeRating, error) {
	return f(ctx, risk, mda)
}
