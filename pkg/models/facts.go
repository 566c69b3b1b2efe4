package models

// Form classifies the periodic report a fact was filed with.
type Form string

const (
	FormAnnual    Form = "10-K"
	FormQuarterly Form = "10-Q"
	FormOther     Form = "other"
)

// ParseForm maps a raw EDGAR form string onto Form. Only exact 10-K and 10-Q
// are in scope; amendments and everything else are FormOther.
func ParseForm(raw string) Form {
	switch raw {
	case "10-K":
		return FormAnnual
	case "10-Q":
		return FormQuarterly
	default:
		return FormOther
	}
}

// InScope reports whether the form can anchor the latest-filing selection.
func (f Form) InScope() bool {
	return f == FormAnnual || f == FormQuarterly
}

// Fact is one reported XBRL data point.
type Fact struct {
	Taxonomy     string   `json:"taxonomy"` // "us-gaap", "dei", ...
	Concept      string   `json:"concept"`
	Unit         string   `json:"unit"`
	Value        *float64 `json:"value"`
	PeriodEnd    string   `json:"period_end"` // YYYY-MM-DD
	Filed        string   `json:"filed"`      // YYYY-MM-DD
	Form         Form     `json:"form"`
	RawForm      string   `json:"raw_form"`
	AccessionID  string   `json:"accession_id"`
	FiscalYear   int      `json:"fiscal_year,omitempty"`
	FiscalPeriod string   `json:"fiscal_period,omitempty"`
}

// ValueOrZero returns the fact value, treating null as zero.
func (f Fact) ValueOrZero() float64 {
	if f.Value == nil {
		return 0
	}
	return *f.Value
}

// FilingFactSet holds every fact reported in exactly one filing.
type FilingFactSet struct {
	AccessionID string `json:"accession_id"`
	Form        Form   `json:"form"`
	Filed       string `json:"filed"`
	Facts       []Fact `json:"facts"`
}

// Empty reports whether the set contains no facts.
func (s FilingFactSet) Empty() bool {
	return len(s.Facts) == 0
}
