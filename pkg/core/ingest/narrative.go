package ingest

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"filing_rating/pkg/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// =============================================================================
// 10-K SECTION ANCHORS
// Headings look like "ITEM 1A. RISK FACTORS", "Item 7 - Management's ...".
// The first occurrence of each start heading is normally the table of
// contents, so the body section starts at the second occurrence.
// =============================================================================

const itemTerminator = `\s*[.:\x{2013}\x{2014}-]`

var (
	riskStartPattern = regexp.MustCompile(`(?i)\bitem\s*1A` + itemTerminator)
	riskEndPattern   = regexp.MustCompile(`(?i)\bitem\s*(?:1B|2)` + itemTerminator)
	mdaStartPattern  = regexp.MustCompile(`(?i)\bitem\s*7` + itemTerminator)
	mdaEndPattern    = regexp.MustCompile(`(?i)\bitem\s*8` + itemTerminator)
)

const (
	SectionRiskFactors = "risk_factors"
	SectionMDA         = "mda"
)

// =============================================================================
// TEXT EXTRACTION
// =============================================================================

// StripMarkup converts a filing document (HTML, iXBRL or the plain-text
// submission) to a single line of text. Script, style and hidden nodes are
// dropped. Inline text runs are joined as-is so "<b>I</b>tem 7" stays
// "Item 7"; block elements and line breaks separate words.
func StripMarkup(document []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Step 1: Remove noise elements (inline XBRL headers live in hidden divs)
	doc.Find("script, style, noscript, head").Remove()
	doc.Find(`[style*="display:none"], [style*="display: none"], [hidden]`).Remove()

	// Step 2: Collect text nodes
	var sb strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &sb)
	}

	// Step 3: Normalize whitespace (NBSP included)
	text := strings.ReplaceAll(sb.String(), "\u00a0", " ")
	return strings.Join(strings.Fields(text), " "), nil
}

// blockElements break words; every other element is treated as inline.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Br: true, atom.Caption: true, atom.Center: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Html: true, atom.Li: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true,
	atom.Table: true, atom.Tbody: true, atom.Td: true, atom.Tfoot: true,
	atom.Th: true, atom.Thead: true, atom.Title: true, atom.Tr: true,
	atom.Ul: true,
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if block {
		sb.WriteByte(' ')
	}
}

// =============================================================================
// SECTION SLICING
// =============================================================================

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// ExtractSections slices the risk factors (Item 1A up to Item 1B or 2) and
// MD&A (Item 7 up to Item 8) out of a normalized 10-K text.
func ExtractSections(text string) (models.NarrativeSections, error) {
	risk, riskSpan, err := sliceSection(text, SectionRiskFactors, riskStartPattern, riskEndPattern)
	if err != nil {
		return models.NarrativeSections{}, err
	}

	mda, mdaSpan, err := sliceSection(text, SectionMDA, mdaStartPattern, mdaEndPattern)
	if err != nil {
		return models.NarrativeSections{}, err
	}

	if riskSpan.overlaps(mdaSpan) {
		return models.NarrativeSections{}, &models.SectionNotFoundError{
			Section: SectionMDA,
			Reason:  "section overlaps risk factors",
		}
	}

	return models.NarrativeSections{RiskText: risk, MDAText: mda}, nil
}

func sliceSection(text, name string, startRe, endRe *regexp.Regexp) (string, span, error) {
	starts := startRe.FindAllStringIndex(text, 2)
	if len(starts) < 2 {
		return "", span{}, &models.SectionNotFoundError{
			Section: name,
			Reason:  fmt.Sprintf("expected at least 2 start headings, found %d", len(starts)),
		}
	}
	start := starts[1][0]

	end := -1
	for _, m := range endRe.FindAllStringIndex(text, -1) {
		if m[0] > start {
			end = m[0]
			break
		}
	}
	if end < 0 {
		return "", span{}, &models.SectionNotFoundError{
			Section: name,
			Reason:  "no end heading after section start",
		}
	}

	content := strings.TrimSpace(text[start:end])
	if content == "" {
		return "", span{}, &models.SectionNotFoundError{Section: name, Reason: "section is empty"}
	}
	return content, span{start: start, end: end}, nil
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// NarrativeExtractor pulls the narrative sections of a company's latest 10-K.
type NarrativeExtractor struct {
	client *EDGARClient
	logger zerolog.Logger
}

func NewNarrativeExtractor(client *EDGARClient, logger zerolog.Logger) *NarrativeExtractor {
	return &NarrativeExtractor{client: client, logger: logger}
}

// Extract locates the latest annual filing for cik, downloads its primary
// document and slices out the risk factors and MD&A.
func (e *NarrativeExtractor) Extract(ctx context.Context, cik string) (models.NarrativeSections, error) {
	info, err := e.client.FetchCompanyInfo(ctx, cik)
	if err != nil {
		return models.NarrativeSections{}, err
	}

	filing, err := e.client.LatestAnnualFiling(cik, info)
	if err != nil {
		return models.NarrativeSections{}, err
	}

	doc, err := e.client.FetchDocument(ctx, *filing)
	if err != nil {
		return models.NarrativeSections{}, err
	}

	text, err := StripMarkup(doc)
	if err != nil {
		return models.NarrativeSections{}, err
	}

	sections, err := ExtractSections(text)
	if err != nil {
		return models.NarrativeSections{}, fmt.Errorf("filing %s: %w", filing.AccessionNumber, err)
	}

	e.logger.Info().
		Str("cik", PadCIK(cik)).
		Str("accession", filing.AccessionNumber).
		Int("risk_chars", len(sections.RiskText)).
		Int("mda_chars", len(sections.MDAText)).
		Msg("Extracted narrative sections")

	return sections, nil
}
