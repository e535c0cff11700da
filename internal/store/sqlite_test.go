package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/domain"
)

func setupStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history", "grader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func testReport(id string, created time.Time, pct float64) *domain.EvaluationReport {
	return &domain.EvaluationReport{
		RunID:     id,
		CreatedAt: created,
		Policy:    "rubric",
		Results: []domain.EvaluationResult{
			{QuestionID: "Q1", MaxMarks: 10, ObtainedMarks: pct / 10, Percentage: pct, Status: domain.StatusOK},
		},
		Summary: domain.Summary{
			TotalMax: 10, TotalObtained: pct / 10, OverallPercentage: pct,
			Grade: domain.Grade(pct), Counts: domain.Counts{Evaluated: 1, OK: 1},
		},
		Usage: domain.UsageStats{APIRequests: 3, RunsCompleted: 1},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := testReport("run-1", created, 90)
	want.SelectedChoices = map[string]string{"G1": "Q3"}

	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.Results, got.Results)
	assert.Equal(t, want.SelectedChoices, got.SelectedChoices)
}

func TestGetMissing(t *testing.T) {
	s := setupStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveReplaces(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, testReport("run-1", created, 40)))
	require.NoError(t, s.Save(ctx, testReport("run-1", created, 85)))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "A", runs[0].Grade)
}

func TestSaveRejectsMissingRunID(t *testing.T) {
	s := setupStore(t)
	require.Error(t, s.Save(context.Background(), &domain.EvaluationReport{}))
	require.Error(t, s.Save(context.Background(), nil))
}

func TestList(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, s.Save(ctx, testReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour), float64(50+i*10))))
	}

	runs, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-3", runs[1].RunID)
	assert.Equal(t, "run-2", runs[2].RunID)
	assert.Equal(t, base.Add(4*time.Hour), runs[0].CreatedAt)
	assert.Equal(t, 90.0, runs[0].OverallPercentage)
	assert.Equal(t, "A+", runs[0].Grade)
	assert.Equal(t, 1, runs[0].Questions)
	assert.Equal(t, int64(3), runs[0].APIRequests)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "grader.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testReport("run-1", time.Now(), 70)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Summary.Grade)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	require.Error(t, err)
}
