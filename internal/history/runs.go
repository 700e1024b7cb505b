package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = "id, input_path, input_name, input_hash, output_path, status, source, speakers, segments, skipped_short, skipped_empty, skipped_failed, backend, device, error_kind, error_message, report, started_at, finished_at"

// Begin records a running transcription. An empty ID is replaced with a new
// UUID; the stored run is returned.
func (s *Store) Begin(ctx context.Context, run Run) (*Run, error) {
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.InputName == "" {
		run.InputName = filepath.Base(run.InputPath)
	}
	if run.Source == "" {
		run.Source = "cli"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = StatusRunning

	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (
            id, input_path, input_name, input_hash, status, source, backend, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.InputPath,
		run.InputName,
		nullableString(run.InputHash),
		string(run.Status),
		run.Source,
		nullableString(run.Backend),
		run.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.Get(ctx, run.ID)
}

// Finish stores the terminal outcome of a run.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome) error {
	if outcome.Status == "" || outcome.Status == StatusRunning {
		return fmt.Errorf("finish run %s: terminal status required", id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET
            status = ?, output_path = ?, speakers = ?, segments = ?,
            skipped_short = ?, skipped_empty = ?, skipped_failed = ?,
            backend = COALESCE(?, backend), device = ?, error_kind = ?, error_message = ?,
            report = ?, finished_at = ?
        WHERE id = ?`,
		string(outcome.Status),
		nullableString(outcome.OutputPath),
		outcome.Speakers,
		outcome.Segments,
		outcome.SkippedShort,
		outcome.SkippedEmpty,
		outcome.SkippedFailed,
		nullableString(outcome.Backend),
		nullableString(outcome.Device),
		nullableString(outcome.ErrorKind),
		nullableString(outcome.ErrorMessage),
		nullableString(outcome.Report),
		time.Now().UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get fetches a run by ID. A unique ID prefix of at least 8 characters is
// accepted as well.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) && len(id) >= 8 {
		return s.getByPrefix(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *Store) getByPrefix(ctx context.Context, prefix string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%s: %w", prefix, ErrNotFound)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run prefix %s is ambiguous", prefix)
	}
}

// List returns the most recent runs first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// LatestByHash returns the newest successful run for an input digest, or
// nil when none exists.
func (s *Store) LatestByHash(ctx context.Context, hash string) (*Run, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE input_hash = ? AND status = ? ORDER BY started_at DESC LIMIT 1`,
		hash, string(StatusSucceeded),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest by hash: %w", err)
	}
	return run, nil
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		inputHash    sql.NullString
		outputPath   sql.NullString
		status       string
		backend      sql.NullString
		device       sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		report       sql.NullString
		startedRaw   string
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.InputPath,
		&run.InputName,
		&inputHash,
		&outputPath,
		&status,
		&run.Source,
		&run.Speakers,
		&run.Segments,
		&run.SkippedShort,
		&run.SkippedEmpty,
		&run.SkippedFailed,
		&backend,
		&device,
		&errorKind,
		&errorMessage,
		&report,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.InputHash = inputHash.String
	run.OutputPath = outputPath.String
	run.Status = Status(status)
	run.Backend = backend.String
	run.Device = device.String
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMessage.String
	run.Report = report.String

	started, err := time.Parse(time.RFC3339Nano, startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = started
	if finishedRaw.Valid && finishedRaw.String != "" {
		finished, err := time.Parse(time.RFC3339Nano, finishedRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &finished
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
