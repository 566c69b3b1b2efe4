package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"filing_rating/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakeDB struct {
	execSQL  string
	execArgs []any
	row      fakeRow
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL, f.execArgs = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, assert.AnError
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

func sampleReport() *models.Report {
	return &models.Report{
		RunID:      "6f1c2d3e-0000-4000-8000-000000000001",
		Symbol:     "AAPL",
		CIK:        "0000320193",
		AnalyzedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		FinalResult: models.FinalResult{
			Score:          4.4,
			Recommendation: models.RecommendationStrongBuy,
		},
	}
}

func TestReportRepo_Save(t *testing.T) {
	db := &fakeDB{}
	repo := NewReportRepo(db)

	require.NoError(t, repo.Save(context.Background(), sampleReport()))
	assert.Contains(t, db.execSQL, "INSERT INTO rating_reports")
	require.Len(t, db.execArgs, 8)
	assert.Equal(t, "AAPL", db.execArgs[1])
	assert.Equal(t, 4.4, db.execArgs[4])
	assert.Equal(t, "strong_buy", db.execArgs[5])
}

func TestReportRepo_Latest(t *testing.T) {
	data, err := json.Marshal(sampleReport())
	require.NoError(t, err)

	repo := NewReportRepo(&fakeDB{row: fakeRow{data: data}})
	got, err := repo.Latest(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "0000320193", got.CIK)
	assert.Equal(t, models.RecommendationStrongBuy, got.FinalResult.Recommendation)
}

func TestReportRepo_LatestNoRows(t *testing.T) {
	repo := NewReportRepo(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := repo.Latest(context.Background(), "MSFT")
	assert.ErrorIs(t, err, ErrNoReports)
}

func TestReportRepo_Unavailable(t *testing.T) {
	repo := &ReportRepo{}
	assert.ErrorIs(t, repo.Save(context.Background(), sampleReport()), ErrUnavailable)
	_, err := repo.History(context.Background(), "AAPL", 5)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, repo.EnsureSchema(context.Background()), ErrUnavailable)
}
