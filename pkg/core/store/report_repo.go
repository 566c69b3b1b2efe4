package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"filing_rating/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNoReports is returned when a symbol has no stored report.
	ErrNoReports = errors.New("no stored report")
	// ErrUnavailable is returned when no database is configured.
	ErrUnavailable = errors.New("database pool not initialized")
)

// MaxHistory caps History results.
const MaxHistory = 100

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReportRepository stores and retrieves rating reports.
type ReportRepository interface {
	Save(ctx context.Context, report *models.Report) error
	Latest(ctx context.Context, symbol string) (*models.Report, error)
	History(ctx context.Context, symbol string, limit int) ([]*models.Report, error)
}

// ReportRepo is the PostgreSQL ReportRepository.
type ReportRepo struct {
	db DBTX
}

// NewReportRepo creates a repository on db. A nil db falls back to the
// shared pool from InitDB.
func NewReportRepo(db DBTX) *ReportRepo {
	if db == nil {
		if p := GetPool(); p != nil {
			db = p
		}
	}
	return &ReportRepo{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS rating_reports (
	run_id         UUID PRIMARY KEY,
	symbol         TEXT NOT NULL,
	cik            TEXT NOT NULL,
	accession_id   TEXT,
	final_score    DOUBLE PRECISION NOT NULL,
	recommendation TEXT NOT NULL,
	report_json    JSONB NOT NULL,
	analyzed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rating_reports_symbol_idx ON rating_reports (symbol, analyzed_at DESC);
`

// EnsureSchema creates the reports table if it does not exist.
func (r *ReportRepo) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return ErrUnavailable
	}
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save inserts a report. Saving the same run twice overwrites it.
func (r *ReportRepo) Save(ctx context.Context, report *models.Report) error {
	if r.db == nil {
		return ErrUnavailable
	}

	jsonData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO rating_reports (run_id, symbol, cik, accession_id, final_score, recommendation, report_json, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id)
		DO UPDATE SET
			report_json = EXCLUDED.report_json,
			final_score = EXCLUDED.final_score,
			recommendation = EXCLUDED.recommendation;
	`

	_, err = r.db.Exec(ctx, query,
		report.RunID,
		report.Symbol,
		report.CIK,
		report.AccessionID,
		report.FinalResult.Score,
		string(report.FinalResult.Recommendation),
		jsonData,
		report.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Latest returns the most recent report for symbol.
func (r *ReportRepo) Latest(ctx context.Context, symbol string) (*models.Report, error) {
	if r.db == nil {
		return nil, ErrUnavailable
	}

	query := `SELECT report_json FROM rating_reports WHERE symbol = $1 ORDER BY analyzed_at DESC LIMIT 1`

	var jsonData []byte
	if err := r.db.QueryRow(ctx, query, symbol).Scan(&jsonData); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w for %s", ErrNoReports, symbol)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return decodeReport(jsonData)
}

// History returns up to limit reports for symbol, newest first.
func (r *ReportRepo) History(ctx context.Context, symbol string, limit int) ([]*models.Report, error) {
	if r.db == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}

	query := `SELECT report_json FROM rating_reports WHERE symbol = $1 ORDER BY analyzed_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		rep, err := decodeReport(jsonData)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

func decodeReport(data []byte) (*models.Report, error) {
	var rep models.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &rep, nil
}
