// Package history keeps a sqlite ledger of submitted jobs and their
// outcomes. A job is started once, then finished exactly once: either
// with a result, with a failure reason, or superseded by a newer job.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

const reasonSuperseded = "superseded"

// Record is a single submitted job.
type Record struct {
	Job           model.JobHandle
	StartedAt     time.Time
	InProgress    bool
	Success       *bool
	Result        model.Result
	FailureReason *string
}

type Row struct {
	Record
	ID int
}

func (j Row) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "job: %q, started_at: %s, in_progress: %t", j.Job, j.StartedAt.Format(time.RFC3339), j.InProgress)
	if j.Success != nil {
		fmt.Fprintf(&sb, ", success: %t", *j.Success)
	} else {
		sb.WriteString(", success: nil")
	}
	if j.Result != nil {
		fmt.Fprintf(&sb, ", entries: %d", len(j.Result))
	}
	if j.FailureReason != nil {
		fmt.Fprintf(&sb, ", failure_reason: %q", *j.FailureReason)
	}
	return sb.String()
}

// DB is the job ledger.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path. Use ":memory:" for a private
// in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job TEXT NOT NULL UNIQUE,
			started_at INTEGER NOT NULL,
			in_progress BOOLEAN NOT NULL,
			success BOOLEAN DEFAULT NULL,
			result TEXT DEFAULT NULL,
			failure_reason TEXT DEFAULT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Start records that job is in progress. Jobs still in progress are
// marked as superseded, as only the newest job can deliver its outcome.
// Starting a job which is in progress is a no-op, starting a finished one
// returns ErrAlreadyFinished.
func (d *DB) Start(ctx context.Context, job model.JobHandle) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, job)

	var inProgress bool
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM jobs WHERE job=?`, job.String(),
	).Scan(&inProgress)
	switch {
	case err == nil && inProgress:
		return nil
	case err == nil && !inProgress:
		return ErrAlreadyFinished
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs
		 SET
			in_progress = false,
			success = false,
			failure_reason = ?
		 WHERE in_progress = true;
		`, reasonSuperseded,
	)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (job, started_at, in_progress) VALUES (?,?,?);`,
		job.String(), d.now().UnixMilli(), true,
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// FinishOK stores the result of a job which is in progress.
func (d *DB) FinishOK(ctx context.Context, job model.JobHandle, result model.Result) error {
	if result == nil {
		result = model.Result{}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return d.finish(ctx, job, true, string(b), "")
}

// FinishErr stores the failure reason of a job which is in progress.
func (d *DB) FinishErr(ctx context.Context, job model.JobHandle, reason string) error {
	return d.finish(ctx, job, false, "", reason)
}

func (d *DB) finish(ctx context.Context, job model.JobHandle, success bool, result, reason string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, job)

	var inProgress bool
	err = tx.QueryRowContext(ctx,
		`SELECT in_progress FROM jobs WHERE job=?`, job.String(),
	).Scan(&inProgress)
	switch {
	case err == nil && !inProgress:
		return ErrAlreadyFinished
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs
		 SET
			in_progress = false,
			success = ?,
			result = NULLIF(?, ''),
			failure_reason = NULLIF(?, '')
		 WHERE job = ?;
		`, success, result, reason, job.String(),
	)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Get returns the job or ErrNotFound.
func (d *DB) Get(ctx context.Context, job model.JobHandle) (Row, error) {
	row := d.db.QueryRowContext(ctx, selectJobs+` WHERE job=?`, job.String())
	ret, err := scanRow(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Row{}, ErrNotFound
	case err != nil:
		return Row{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return ret, nil
}

// List returns up to limit most recent jobs, newest first. A limit <= 0
// returns all of them.
func (d *DB) List(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, selectJobs+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

// Record updates the ledger from a UI state transition.
func (d *DB) Record(ctx context.Context, st model.UIState) error {
	if st.Job == "" {
		return nil
	}
	switch st.Phase {
	case model.PhaseLoading:
		return d.Start(ctx, st.Job)
	case model.PhaseIdle:
		return d.FinishOK(ctx, st.Job, st.Result)
	case model.PhaseError:
		reason := "unknown error"
		if st.Err != nil {
			reason = st.Err.Error()
		}
		return d.FinishErr(ctx, st.Job, reason)
	}
	return nil
}

const selectJobs = `SELECT id, job, started_at, in_progress, success, result, failure_reason FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var (
		ret       Row
		job       string
		startedAt int64
		result    sql.NullString
	)
	err := s.Scan(
		&ret.ID,
		&job,
		&startedAt,
		&ret.InProgress,
		&ret.Success,
		&result,
		&ret.FailureReason,
	)
	if err != nil {
		return Row{}, err
	}
	ret.Job = model.JobHandle(job)
	ret.StartedAt = time.UnixMilli(startedAt)
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &ret.Result); err != nil {
			return Row{}, fmt.Errorf("decoding result of %s: %w", job, err)
		}
	}
	return ret, nil
}

func rollback(ctx context.Context, tx *sql.Tx, job model.JobHandle) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("job", job.String()))
	}
}
