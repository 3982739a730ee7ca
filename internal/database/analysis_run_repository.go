package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mpawatch/mpawatch/internal/models"
)

var (
	// ErrRunNotFound is returned when no analysis run matches the ID.
	ErrRunNotFound = errors.New("analysis run not found")
	// ErrDuplicateRun is returned when a run ID is already stored.
	ErrDuplicateRun = errors.New("analysis run already exists")
)

const (
	pqUniqueViolation   = "23505"
	pqInvalidTextFormat = "22P02"

	defaultListLimit = 50
	maxListLimit     = 500
)

// RunFilter narrows a run listing.
type RunFilter struct {
	WDPACode string
	Limit    int
}

// PostgresAnalysisRunRepository stores analysis runs in PostgreSQL. The full
// result document is kept as JSONB so historic reports can be served as-is.
type PostgresAnalysisRunRepository struct {
	db *sql.DB
}

// NewPostgresAnalysisRunRepository creates a repository backed by db.
func NewPostgresAnalysisRunRepository(db *sql.DB) *PostgresAnalysisRunRepository {
	return &PostgresAnalysisRunRepository{db: db}
}

// Create inserts a run and fills in CreatedAt.
func (r *PostgresAnalysisRunRepository) Create(ctx context.Context, run *models.AnalysisRun) error {
	failedJSON, err := json.Marshal(nonNilFailed(run.FailedPeriods))
	if err != nil {
		return fmt.Errorf("failed to marshal failed periods: %w", err)
	}

	var resultJSON []byte
	if run.Result != nil {
		resultJSON, err = json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	query := `
		INSERT INTO analysis_runs (id, mpa_name, wdpa_code, start_date, end_date, status, error,
			total_fishing_hours, unique_vessels, failed_periods, result, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		run.ID,
		run.MPAName,
		run.WDPACode,
		run.StartDate,
		run.EndDate,
		string(run.Status),
		run.ErrorMsg,
		run.TotalHours,
		run.UniqueVessels,
		failedJSON,
		nullableJSON(resultJSON),
		run.DurationMs,
	).Scan(&run.CreatedAt)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}
	return nil
}

// Get returns a run including its full result document.
func (r *PostgresAnalysisRunRepository) Get(ctx context.Context, id string) (*models.AnalysisRun, error) {
	query := `
		SELECT id, mpa_name, wdpa_code, start_date, end_date, status, COALESCE(error, ''),
			total_fishing_hours, unique_vessels, failed_periods, result, duration_ms, created_at
		FROM analysis_runs
		WHERE id = $1
	`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextFormat {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get analysis run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first, without result documents.
func (r *PostgresAnalysisRunRepository) List(ctx context.Context, filter RunFilter) ([]models.AnalysisRun, error) {
	query := `
		SELECT id, mpa_name, wdpa_code, start_date, end_date, status, COALESCE(error, ''),
			total_fishing_hours, unique_vessels, failed_periods, NULL::jsonb, duration_ms, created_at
		FROM analysis_runs
		WHERE ($1 = '' OR wdpa_code = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, filter.WDPACode, clampLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	defer rows.Close()

	runs := []models.AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, withResult bool) (*models.AnalysisRun, error) {
	var (
		run        models.AnalysisRun
		status     string
		failedJSON []byte
		resultJSON []byte
	)
	err := row.Scan(
		&run.ID, &run.MPAName, &run.WDPACode, &run.StartDate, &run.EndDate, &status, &run.ErrorMsg,
		&run.TotalHours, &run.UniqueVessels, &failedJSON, &resultJSON, &run.DurationMs, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.AnalysisStatus(status)

	if len(failedJSON) > 0 {
		if err := json.Unmarshal(failedJSON, &run.FailedPeriods); err != nil {
			return nil, fmt.Errorf("failed to decode failed periods: %w", err)
		}
	}
	if withResult && len(resultJSON) > 0 {
		run.Result = &models.AnalysisResult{}
		if err := json.Unmarshal(resultJSON, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return &run, nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

func nonNilFailed(f []models.FailedRange) []models.FailedRange {
	if f == nil {
		return []models.FailedRange{}
	}
	return f
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
