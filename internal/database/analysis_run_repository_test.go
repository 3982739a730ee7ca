package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mpawatch/mpawatch/internal/models"
)

func TestAnalysisRunRoundTrip(t *testing.T) {
	// Skip if no database connection available
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Requires database connection - set TEST_DATABASE_URL to run")
	}

	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URL = dbURL
	db, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS analysis_runs, schema_migrations"); err != nil {
		t.Fatalf("failed to reset schema: %v", err)
	}
	if err := RunMigrations(ctx, db, filepath.Join("..", "..", "migrations"), discardLogger()); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}

	repo := NewPostgresAnalysisRunRepository(db)

	run := &models.AnalysisRun{
		ID:            uuid.New().String(),
		MPAName:       "Dogger Bank",
		WDPACode:      "555591636",
		StartDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:        models.AnalysisStatusSuccess,
		TotalHours:    42.5,
		UniqueVessels: 3,
		FailedPeriods: []models.FailedRange{{Start: "2020-12-31", End: "2021-12-30", Year: 2020, Error: "boom", Attempts: 3}},
		Result:        &models.AnalysisResult{Status: models.AnalysisStatusSuccess, MPAName: "Dogger Bank", TotalRecords: 7},
		DurationMs:    1200,
	}

	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	t.Run("duplicate insert", func(t *testing.T) {
		if err := repo.Create(ctx, run); !errors.Is(err, ErrDuplicateRun) {
			t.Errorf("expected ErrDuplicateRun, got %v", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if got.Result == nil || got.Result.TotalRecords != 7 {
			t.Errorf("expected stored result, got %+v", got.Result)
		}
		if !reflect.DeepEqual(got.FailedPeriods, run.FailedPeriods) {
			t.Errorf("failed periods = %+v, want %+v", got.FailedPeriods, run.FailedPeriods)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		if _, err := repo.Get(ctx, uuid.New().String()); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
		if _, err := repo.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound for malformed id, got %v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		runs, err := repo.List(ctx, RunFilter{WDPACode: "555591636"})
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != run.ID {
			t.Fatalf("unexpected runs: %+v", runs)
		}
		if runs[0].Result != nil {
			t.Error("listing should not carry result documents")
		}
	})
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"010_b.sql", "002_a.sql", "001_init.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles returned error: %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	want := []string{"001_init.sql", "002_a.sql", "010_b.sql"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("migrationFiles = %v, want %v", names, want)
	}
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{
		0:    defaultListLimit,
		-5:   defaultListLimit,
		10:   10,
		5000: maxListLimit,
	}
	for in, want := range tests {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPQCode(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pq.Error{Code: pqUniqueViolation})
	if got := pqCode(wrapped); got != pqUniqueViolation {
		t.Errorf("pqCode = %q, want %q", got, pqUniqueViolation)
	}
	if got := pqCode(errors.New("plain")); got != "" {
		t.Errorf("pqCode of non-pq error = %q, want empty", got)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
