// Package jobs persists build jobs and their status state machine.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	// ErrNotFound is returned for unknown or expired job ids.
	ErrNotFound = errors.New("build job not found")
	// ErrTerminal is returned when a mutation targets a completed or failed job.
	ErrTerminal = errors.New("build job already finished")
)

// Job is one tracked build attempt.
type Job struct {
	ID           string
	AppName      string
	URL          string
	HasIcon      bool
	Status       string
	Progress     int
	Message      string
	Error        string
	ArtifactPath string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Store is the sqlite-backed job ledger. Record updates are applied through
// guarded UPDATE statements, so concurrent writers cannot move a job out of a
// terminal state or roll its progress backwards.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the job database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("jobs db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS build_jobs (
			id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			url TEXT NOT NULL,
			has_icon INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			artifact_path TEXT NOT NULL DEFAULT '',
			created_at_utc TEXT NOT NULL,
			updated_at_utc TEXT NOT NULL,
			completed_at_utc TEXT
		);`,
		"CREATE INDEX IF NOT EXISTS idx_build_jobs_created ON build_jobs(created_at_utc);",
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a new job in pending state with zero progress.
func (s *Store) Create(id, appName, url string, hasIcon bool) (Job, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO build_jobs (id, app_name, url, has_icon, status, progress, message, created_at_utc, updated_at_utc)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		id, appName, url, boolToInt(hasIcon), StatusPending,
		"Job created, waiting to start...",
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Job{}, err
	}

	return Job{
		ID:        id,
		AppName:   appName,
		URL:       url,
		HasIcon:   hasIcon,
		Status:    StatusPending,
		Progress:  0,
		Message:   "Job created, waiting to start...",
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get returns the current snapshot of a job.
func (s *Store) Get(id string) (Job, error) {
	row := s.db.QueryRow(
		`SELECT id, app_name, url, has_icon, status, progress, message, error, artifact_path,
			created_at_utc, updated_at_utc, completed_at_utc
		FROM build_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Advance moves a job to processing and updates its progress and message.
// Progress never decreases; a lower value keeps the stored one. Advancing a
// finished job returns ErrTerminal and changes nothing.
func (s *Store) Advance(id string, progress int, message string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE build_jobs
		SET status = ?, progress = MAX(progress, ?), message = ?, updated_at_utc = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing, progress, message, now, id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return err
	}
	return s.checkMutated(res, id)
}

// Complete marks a job as successfully finished with its artifact path.
func (s *Store) Complete(id, artifactPath string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE build_jobs
		SET status = ?, progress = 100, message = ?, artifact_path = ?, updated_at_utc = ?, completed_at_utc = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted, "APK build completed successfully!", artifactPath, now, now,
		id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return err
	}
	return s.checkMutated(res, id)
}

// Fail marks a job as failed with the given error text.
func (s *Store) Fail(id, errorText string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE build_jobs
		SET status = ?, message = ?, error = ?, updated_at_utc = ?, completed_at_utc = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, "Build failed", errorText, now, now,
		id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return err
	}
	return s.checkMutated(res, id)
}

// checkMutated distinguishes "no such job" from "job already terminal" when a
// guarded update touched no rows.
func (s *Store) checkMutated(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRow(`SELECT status FROM build_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w (status %s)", ErrTerminal, status)
}

// DeleteOlderThan removes jobs created before now-age and returns how many
// records were dropped.
func (s *Store) DeleteOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM build_jobs WHERE created_at_utc < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// StartSweeper launches the retention sweep loop. It runs independently of
// build execution and stops when ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval, age time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dropped, err := s.DeleteOlderThan(age)
				if err != nil {
					log.Printf("job sweep failed: %v", err)
					continue
				}
				if dropped > 0 {
					log.Printf("job sweep dropped %d jobs older than %v", dropped, age)
				}
			}
		}
	}()
}

func scanJob(row *sql.Row) (Job, error) {
	var j Job
	var hasIcon int
	var created, updated string
	var completed sql.NullString

	err := row.Scan(&j.ID, &j.AppName, &j.URL, &hasIcon, &j.Status, &j.Progress,
		&j.Message, &j.Error, &j.ArtifactPath, &created, &updated, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}

	j.HasIcon = hasIcon != 0
	j.CreatedAt, _ = time.Parse(time.RFC3339, created)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	if completed.Valid {
		parsed, err := time.Parse(time.RFC3339, completed.String)
		if err == nil {
			j.CompletedAt = &parsed
		}
	}
	return j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
