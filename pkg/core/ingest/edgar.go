// Package ingest provides SEC EDGAR API integration: identifier resolution,
// company facts, and narrative section extraction from annual reports.
// API Documentation: https://www.sec.gov/developer
package ingest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"filing_rating/pkg/models"
)

const (
	// SEC EDGAR API endpoints
	DefaultDataBaseURL     = "https://data.sec.gov"
	DefaultArchivesBaseURL = "https://www.sec.gov/Archives/edgar/data"
	DefaultTickersURL      = "https://www.sec.gov/files/company_tickers.json"

	// Source labels carried by UpstreamError
	SourceSubmissions  = "submissions"
	SourceCompanyFacts = "companyfacts"
	SourceArchives     = "archives"
	SourceTickers      = "tickers"
)

// annualForms are the 10-K class forms narrative extraction accepts.
// Amendments (10-K/A) are excluded.
var annualForms = map[string]bool{
	"10-K":    true,
	"10-K405": true,
}

// =============================================================================
// SEC EDGAR DATA TYPES
// =============================================================================

// SECCompanyInfo represents the top-level company submission response.
type SECCompanyInfo struct {
	CIK            string     `json:"cik"`
	EntityType     string     `json:"entityType"`
	SIC            string     `json:"sic"`
	SICDescription string     `json:"sicDescription"`
	Name           string     `json:"name"`
	Tickers        []string   `json:"tickers"`
	Exchanges      []string   `json:"exchanges"`
	Filings        SECFilings `json:"filings"`
}

// SECFilings contains recent and older filing lists.
type SECFilings struct {
	Recent SECRecentFilings `json:"recent"`
}

// SECRecentFilings holds arrays of filing attributes (parallel arrays).
type SECRecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"` // e.g., "0000037996-24-000012"
	FilingDate      []string `json:"filingDate"`      // e.g., "2024-02-06"
	ReportDate      []string `json:"reportDate"`      // Fiscal period end
	Form            []string `json:"form"`            // "10-K", "10-Q", "8-K"
	PrimaryDocument []string `json:"primaryDocument"` // filename
}

// Filing represents a single SEC filing (denormalized from parallel arrays).
type Filing struct {
	AccessionNumber string    `json:"accession_number"`
	FilingDate      time.Time `json:"filing_date"`
	FormType        string    `json:"form_type"`
	PrimaryDocument string    `json:"primary_document"`
	URL             string    `json:"url"` // Constructed download URL
}

// tickerEntry is one row of company_tickers.json:
// { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ... }
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// =============================================================================
// SEC EDGAR CLIENT
// =============================================================================

// Endpoints holds the base URLs of the EDGAR feeds. Tests point them at
// httptest servers.
type Endpoints struct {
	DataBaseURL     string
	ArchivesBaseURL string
	TickersURL      string
}

// DefaultEndpoints returns the public SEC endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		DataBaseURL:     DefaultDataBaseURL,
		ArchivesBaseURL: DefaultArchivesBaseURL,
		TickersURL:      DefaultTickersURL,
	}
}

// EDGARClient handles SEC EDGAR API requests. All traffic goes through the
// shared Fetcher so rate limits and retries apply uniformly.
type EDGARClient struct {
	fetcher   *Fetcher
	endpoints Endpoints
}

// NewEDGARClient creates a new SEC EDGAR API client.
func NewEDGARClient(fetcher *Fetcher, endpoints Endpoints) *EDGARClient {
	def := DefaultEndpoints()
	if endpoints.DataBaseURL == "" {
		endpoints.DataBaseURL = def.DataBaseURL
	}
	if endpoints.ArchivesBaseURL == "" {
		endpoints.ArchivesBaseURL = def.ArchivesBaseURL
	}
	if endpoints.TickersURL == "" {
		endpoints.TickersURL = def.TickersURL
	}
	endpoints.DataBaseURL = strings.TrimRight(endpoints.DataBaseURL, "/")
	endpoints.ArchivesBaseURL = strings.TrimRight(endpoints.ArchivesBaseURL, "/")

	return &EDGARClient{fetcher: fetcher, endpoints: endpoints}
}

// FetchCompanyInfo retrieves company submission data from SEC EDGAR.
//
// CIK is zero-padded to 10 digits if it is not already.
func (c *EDGARClient) FetchCompanyInfo(ctx context.Context, cik string) (*SECCompanyInfo, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.endpoints.DataBaseURL, PadCIK(cik))

	var info SECCompanyInfo
	if err := c.fetcher.GetJSON(ctx, SourceSubmissions, url, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchCompanyFacts retrieves the XBRL company facts document.
func (c *EDGARClient) FetchCompanyFacts(ctx context.Context, cik string) (*CompanyFactsResponse, error) {
	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.endpoints.DataBaseURL, PadCIK(cik))

	var facts CompanyFactsResponse
	if err := c.fetcher.GetJSON(ctx, SourceCompanyFacts, url, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// FetchDocument downloads the filing document referenced by f.URL.
func (c *EDGARClient) FetchDocument(ctx context.Context, f Filing) ([]byte, error) {
	return c.fetcher.Get(ctx, SourceArchives, f.URL, "text/html, text/plain")
}

// LoadTickerTable downloads company_tickers.json and returns ticker -> CIK.
// It satisfies TickerSource.
func (c *EDGARClient) LoadTickerTable(ctx context.Context) (map[string]string, error) {
	var raw map[string]tickerEntry
	if err := c.fetcher.GetJSON(ctx, SourceTickers, c.endpoints.TickersURL, &raw); err != nil {
		return nil, err
	}
	return tickerEntriesToTable(raw), nil
}

// GetFilings extracts filings filtered by form type, newest filing date first.
//
// formTypes: "10-K", "10-Q", "8-K", etc. Pass nil for all types.
// limit: Maximum number of filings to return (0 = no limit).
// Rows with an unparseable filing date are skipped.
func (c *EDGARClient) GetFilings(cik string, info *SECCompanyInfo, formTypes []string, limit int) []Filing {
	recent := info.Filings.Recent
	filings := make([]Filing, 0)

	formTypeSet := make(map[string]bool)
	for _, ft := range formTypes {
		formTypeSet[ft] = true
	}

	n := len(recent.AccessionNumber)
	if len(recent.FilingDate) < n {
		n = len(recent.FilingDate)
	}
	if len(recent.Form) < n {
		n = len(recent.Form)
	}

	for i := 0; i < n; i++ {
		if len(formTypes) > 0 && !formTypeSet[recent.Form[i]] {
			continue
		}

		filingDate, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}

		primary := ""
		if i < len(recent.PrimaryDocument) {
			primary = recent.PrimaryDocument[i]
		}

		filings = append(filings, Filing{
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      filingDate,
			FormType:        recent.Form[i],
			PrimaryDocument: primary,
			URL:             c.DocumentURL(cik, recent.AccessionNumber[i], primary),
		})
	}

	sort.SliceStable(filings, func(i, j int) bool {
		if filings[i].FilingDate.Equal(filings[j].FilingDate) {
			return filings[i].AccessionNumber > filings[j].AccessionNumber
		}
		return filings[i].FilingDate.After(filings[j].FilingDate)
	})

	if limit > 0 && len(filings) > limit {
		filings = filings[:limit]
	}
	return filings
}

// LatestAnnualFiling picks the most recent 10-K class filing.
func (c *EDGARClient) LatestAnnualFiling(cik string, info *SECCompanyInfo) (*Filing, error) {
	forms := make([]string, 0, len(annualForms))
	for f := range annualForms {
		forms = append(forms, f)
	}
	filings := c.GetFilings(cik, info, forms, 1)
	if len(filings) == 0 {
		return nil, fmt.Errorf("%w: no 10-K filings for CIK %s", models.ErrNoFilingFound, PadCIK(cik))
	}
	return &filings[0], nil
}

// DocumentURL builds the archive URL of a filing document.
// Format: {archives}/{cik-int}/{accession-no-dashes}/{document}
// Without a primary document the full submission text file is used.
func (c *EDGARClient) DocumentURL(cik, accession, primaryDocument string) string {
	accessionNoDashes := strings.ReplaceAll(accession, "-", "")
	doc := primaryDocument
	if doc == "" {
		doc = accession + ".txt"
	}
	return fmt.Sprintf("%s/%s/%s/%s", c.endpoints.ArchivesBaseURL, cikInt(cik), accessionNoDashes, doc)
}

// =============================================================================
// CIK HELPERS
// =============================================================================

// PadCIK zero-pads a CIK to the 10 digits EDGAR uses in URLs.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if n, err := strconv.ParseInt(cik, 10, 64); err == nil {
		return fmt.Sprintf("%010d", n)
	}
	return fmt.Sprintf("%010s", strings.TrimLeft(cik, "0"))
}

// cikInt strips leading zeros for archive paths.
func cikInt(cik string) string {
	if n, err := strconv.ParseInt(strings.TrimSpace(cik), 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	trimmed := strings.TrimLeft(cik, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func tickerEntriesToTable(raw map[string]tickerEntry) map[string]string {
	table := make(map[string]string, len(raw))
	for _, entry := range raw {
		if entry.Ticker == "" {
			continue
		}
		table[entry.Ticker] = fmt.Sprintf("%010d", entry.CIK)
	}
	return table
}
