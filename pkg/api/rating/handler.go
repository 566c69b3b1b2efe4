// Package rating exposes the analysis pipeline over HTTP.
package rating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"

	"filing_rating/pkg/core/ingest"
	corerating "filing_rating/pkg/core/rating"
	"filing_rating/pkg/core/store"
	"filing_rating/pkg/core/utils"
	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
)

// Analyzer runs one analysis. pipeline.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*models.Report, error)
}

// HistoryStore lists stored reports. store.ReportRepo satisfies it.
type HistoryStore interface {
	History(ctx context.Context, symbol string, limit int) ([]*models.Report, error)
}

// DefaultHistoryLimit applies when the limit query parameter is absent.
const DefaultHistoryLimit = 10

type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler holds dependencies for rating endpoints
type Handler struct {
	analyzer Analyzer
	history  HistoryStore
	logger   zerolog.Logger
}

// NewHandler creates a rating handler. history may be nil when persistence
// is disabled.
func NewHandler(analyzer Analyzer, history HistoryStore, logger zerolog.Logger) *Handler {
	return &Handler{analyzer: analyzer, history: history, logger: logger}
}

// HandleRating serves GET /api/rating?ticker=AAPL[&format=json|markdown|html].
func (h *Handler) HandleRating(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ticker := r.URL.Query().Get("ticker")
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "markdown", "html":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}

	report, err := h.analyzer.Analyze(r.Context(), ticker)
	if err != nil {
		status := statusFor(err)
		h.logger.Warn().Err(err).Str("symbol", ticker).Int("status", status).Msg("Rating request failed")
		writeError(w, status, err.Error())
		return
	}

	switch format {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, corerating.RenderMarkdown(report))
	case "html":
		body, err := utils.MarkdownToHTML(corerating.RenderMarkdown(report))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s rating</title></head><body>\n%s</body></html>\n",
			html.EscapeString(report.Symbol), body)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// HandleHistory serves GET /api/rating/history?ticker=AAPL&limit=10.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "report history requires a database")
		return
	}

	// Reports are stored under the normalized symbol
	ticker, err := ingest.NormalizeSymbol(r.URL.Query().Get("ticker"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := h.history.History(r.Context(), ticker, limit)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("symbol", ticker).Msg("History query failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// statusFor maps analysis errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
