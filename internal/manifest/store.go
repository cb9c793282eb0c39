package manifest

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/csub-dev/csub/pkg/api"
)

// Store is a SQLite-backed record of generation runs. It is pure
// bookkeeping: the generator works the same with no store attached.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open opens (or creates) the manifest database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// RunRecorder ties generated jobs to one recorded run. It implements
// job.Recorder.
type RunRecorder struct {
	s     *Store
	runID string
}

// NewRun inserts a run row and returns a recorder for its jobs.
func (s *Store) NewRun(name, source string, chunkSize int) (*RunRecorder, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, name, source, chunk_size, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, source, chunkSize, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &RunRecorder{s: s, runID: id}, nil
}

// RunID returns the identifier of the recorded run.
func (r *RunRecorder) RunID() string { return r.runID }

// RecordJob upserts one generated chunk/job pair for the run.
func (r *RunRecorder) RecordJob(ordinal int, chunkPath, jobPath string) error {
	_, err := r.s.db.Exec(
		`INSERT INTO jobs (run_id, ordinal, chunk_path, job_path) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, ordinal) DO UPDATE SET chunk_path = excluded.chunk_path, job_path = excluded.job_path`,
		r.runID, ordinal, chunkPath, jobPath,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Runs lists recorded runs, newest first, with their job counts.
func (s *Store) Runs(ctx context.Context) ([]api.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.source, r.chunk_size, r.created_at, COUNT(j.run_id)
		 FROM runs r LEFT JOIN jobs j ON j.run_id = r.id
		 GROUP BY r.id ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var runs []api.Run
	for rows.Next() {
		var r api.Run
		if err := rows.Scan(&r.ID, &r.Name, &r.Source, &r.ChunkSize, &r.CreatedAt, &r.Jobs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
