// Package reportstore persists connectivity reports and render jobs using SQLite.
package reportstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidfague/bmtool/internal/connectivity"

	_ "modernc.org/sqlite"
)

// JobStatus represents the current state of a render job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether s is terminal.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Report is a stored matrix reduction.
type Report struct {
	ID        string            `json:"report_id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Params    map[string]string `json:"params"`
	CreatedAt time.Time         `json:"created_at"`
	// Grid is only filled by GetReport.
	Grid connectivity.Grid `json:"-"`
}

// RenderJob is a queued matrix reduction whose result becomes a Report.
type RenderJob struct {
	ID         string            `json:"job_id"`
	Kind       string            `json:"kind"`
	Status     JobStatus         `json:"status"`
	Params     map[string]string `json:"params"`
	Phase      string            `json:"phase,omitempty"`
	ReportID   string            `json:"report_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Store provides persistent storage for reports and render jobs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based report store.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		params_json TEXT NOT NULL,
		row_labels_json TEXT NOT NULL,
		col_labels_json TEXT NOT NULL,
		annotations_json TEXT,
		n_rows INTEGER NOT NULL,
		n_cols INTEGER NOT NULL,
		values_zst BLOB NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_kind ON reports(kind);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);

	CREATE TABLE IF NOT EXISTS render_jobs (
		job_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		params_json TEXT NOT NULL,
		phase TEXT DEFAULT '',
		report_id TEXT DEFAULT '',
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_render_jobs_status ON render_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_render_jobs_finished ON render_jobs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveReport stores r, assigning an ID and creation time when unset.
func (s *Store) SaveReport(r *Report) error {
	if err := r.Grid.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	rowsJSON, err := json.Marshal(r.Grid.RowLabels)
	if err != nil {
		return err
	}
	colsJSON, err := json.Marshal(r.Grid.ColLabels)
	if err != nil {
		return err
	}
	var annotations *string
	if r.Grid.Annotations != nil {
		b, err := json.Marshal(r.Grid.Annotations)
		if err != nil {
			return fmt.Errorf("failed to marshal annotations: %w", err)
		}
		a := string(b)
		annotations = &a
	}
	blob := encodeValues(r.Grid.Values)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO reports (report_id, kind, title, params_json, row_labels_json, col_labels_json, annotations_json, n_rows, n_cols, values_zst, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Kind,
		r.Title,
		string(paramsJSON),
		string(rowsJSON),
		string(colsJSON),
		annotations,
		r.Grid.Values.Rows(),
		r.Grid.Values.Cols(),
		blob,
		r.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// GetReport retrieves a report and its grid by ID. It returns nil when no
// report matches.
func (s *Store) GetReport(id string) (*Report, error) {
	row := s.db.QueryRow(`
		SELECT report_id, kind, title, params_json, created_at, row_labels_json, col_labels_json, annotations_json, n_rows, n_cols, values_zst
		FROM reports WHERE report_id = ?
	`, id)

	var r Report
	var paramsJSON, createdAtStr, rowsJSON, colsJSON string
	var annotations sql.NullString
	var nRows, nCols int
	var blob []byte
	err := row.Scan(&r.ID, &r.Kind, &r.Title, &paramsJSON, &createdAtStr, &rowsJSON, &colsJSON, &annotations, &nRows, &nCols, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if err := json.Unmarshal([]byte(rowsJSON), &r.Grid.RowLabels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row labels: %w", err)
	}
	if err := json.Unmarshal([]byte(colsJSON), &r.Grid.ColLabels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column labels: %w", err)
	}
	if annotations.Valid {
		if err := json.Unmarshal([]byte(annotations.String), &r.Grid.Annotations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal annotations: %w", err)
		}
	}
	if r.Grid.Values, err = decodeValues(blob, nRows, nCols); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReports returns report metadata, newest first.
func (s *Store) ListReports(limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT report_id, kind, title, params_json, created_at
		FROM reports
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		var r Report
		var paramsJSON, createdAtStr string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Title, &paramsJSON, &createdAtStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteReport deletes a report.
func (s *Store) DeleteReport(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM reports WHERE report_id = ?", id)
	return err
}

// CreateJob creates a new job record. ID, status and creation time are
// assigned when unset.
func (s *Store) CreateJob(job *RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO render_jobs (job_id, kind, status, params_json, phase, report_id, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Kind,
		string(job.Status),
		string(paramsJSON),
		job.Phase,
		job.ReportID,
		job.Error,
		job.CreatedAt.Format(time.RFC3339),
		nil,
		nil,
	)
	return err
}

const jobColumns = `job_id, kind, status, params_json, phase, report_id, error, created_at, started_at, finished_at`

// GetJob retrieves a job by ID. It returns nil when no job matches.
func (s *Store) GetJob(jobID string) (*RenderJob, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM render_jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := s.scanJobs(rows)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// UpdateJobStatus updates the job status and error message.
func (s *Store) UpdateJobStatus(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status.Finished() {
		t := time.Now().Format(time.RFC3339)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE job_id = ?
	`, string(status), errMsg, finishedAt, jobID)
	return err
}

// UpdateJobStarted marks a job as running with start time.
func (s *Store) UpdateJobStarted(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, started_at = ?
		WHERE job_id = ?
	`, string(JobStatusRunning), now, jobID)
	return err
}

// UpdateJobPhase records the pipeline stage a job is in.
func (s *Store) UpdateJobPhase(jobID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE render_jobs SET phase = ? WHERE job_id = ?`, phase, jobID)
	return err
}

// SetJobReport links a job to the report it produced.
func (s *Store) SetJobReport(jobID, reportID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE render_jobs SET report_id = ? WHERE job_id = ?`, reportID, jobID)
	return err
}

// ListQueuedJobs returns all queued jobs (for restart recovery).
func (s *Store) ListQueuedJobs() ([]*RenderJob, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+`
		FROM render_jobs WHERE status = ?
		ORDER BY created_at ASC
	`, string(JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// MarkRunningAsFailed marks all running jobs as failed (for restart recovery).
func (s *Store) MarkRunningAsFailed(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(JobStatusFailed), errMsg, now, string(JobStatusRunning))
	return err
}

// DeleteExpired deletes finished jobs and reports older than retentionDays.
func (s *Store) DeleteExpired(retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	jobs, err := s.db.Exec(`
		DELETE FROM render_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	reports, err := s.db.Exec(`DELETE FROM reports WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	nj, _ := jobs.RowsAffected()
	nr, _ := reports.RowsAffected()
	return nj + nr, nil
}

// DeleteJob deletes a job. Its report is kept.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM render_jobs WHERE job_id = ?", jobID)
	return err
}

func (s *Store) scanJobs(rows *sql.Rows) ([]*RenderJob, error) {
	var jobs []*RenderJob
	for rows.Next() {
		var job RenderJob
		var paramsJSON string
		var createdAtStr string
		var startedAtStr, finishedAtStr sql.NullString

		err := rows.Scan(
			&job.ID,
			&job.Kind,
			&job.Status,
			&paramsJSON,
			&job.Phase,
			&job.ReportID,
			&job.Error,
			&createdAtStr,
			&startedAtStr,
			&finishedAtStr,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(paramsJSON), &job.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}

		job.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		if startedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339, startedAtStr.String)
			job.StartedAt = &t
		}
		if finishedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
			job.FinishedAt = &t
		}

		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
