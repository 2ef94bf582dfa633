// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store persists healing attempts and their step ledger in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/healing"
)

// Store is a SQLite-backed healing.Ledger.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates the database file (and parent directory) if needed and
// prepares the schema.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS healing_attempts (
		id TEXT PRIMARY KEY,
		run_group_id TEXT NOT NULL,
		probe_id TEXT,
		status TEXT NOT NULL,
		diagnosis TEXT,
		plan TEXT,
		outcome TEXT,
		effectiveness TEXT,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS healing_steps (
		attempt_id TEXT NOT NULL,
		step_number INTEGER NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT,
		thoughts TEXT,
		decision TEXT,
		status TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (attempt_id, step_number)
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_run_group ON healing_attempts(run_group_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON healing_attempts(created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: failed to create schema: %w", err)
	}

	log.Infof("store: healing ledger ready (db: %s)", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	return nil
}

// CreateAttempt implements healing.Ledger.
func (s *Store) CreateAttempt(ctx context.Context, attempt *healing.Attempt) error {
	if attempt == nil {
		return fmt.Errorf("store: attempt cannot be nil")
	}

	query := `
	INSERT INTO healing_attempts (
		id, run_group_id, probe_id, status, error_message, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.RunGroupID,
		attempt.ProbeID,
		string(attempt.Status),
		attempt.ErrorMessage,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to insert attempt: %w", err)
	}
	return nil
}

// UpdateAttempt implements healing.Ledger.
func (s *Store) UpdateAttempt(ctx context.Context, attempt *healing.Attempt) error {
	if attempt == nil {
		return fmt.Errorf("store: attempt cannot be nil")
	}

	diagnosis, err := marshalNullable(attempt.Diagnosis)
	if err != nil {
		return err
	}
	plan, err := marshalNullable(attempt.Plan)
	if err != nil {
		return err
	}
	outcome, err := marshalNullable(attempt.Outcome)
	if err != nil {
		return err
	}
	effectiveness, err := marshalNullable(attempt.Effectiveness)
	if err != nil {
		return err
	}

	query := `
	UPDATE healing_attempts
	SET status = ?, diagnosis = ?, plan = ?, outcome = ?, effectiveness = ?,
	    error_message = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(attempt.Status),
		diagnosis,
		plan,
		outcome,
		effectiveness,
		attempt.ErrorMessage,
		attempt.UpdatedAt,
		attempt.ID,
	)
	if err != nil {
		return fmt.Errorf("store: failed to update attempt: %w", err)
	}
	if n, errRows := res.RowsAffected(); errRows == nil && n == 0 {
		return fmt.Errorf("store: attempt %s does not exist", attempt.ID)
	}
	return nil
}

// RecordStep implements healing.Ledger. The first recording of a step number
// inserts the row; re-recordings update the state in place while keeping the
// original created_at, so the intent-to-act and the outcome-of-acting stay
// distinguishable.
func (s *Store) RecordStep(ctx context.Context, step *healing.Step) error {
	if step == nil {
		return fmt.Errorf("store: step cannot be nil")
	}
	if step.StepNumber < 1 {
		return fmt.Errorf("store: step number must be 1-based, got %d", step.StepNumber)
	}

	var metadataJSON []byte
	if step.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(step.Metadata)
		if err != nil {
			log.Warnf("store: failed to marshal step metadata: %v", err)
			metadataJSON = []byte("{}")
		}
	}

	now := time.Now().UTC()
	query := `
	INSERT INTO healing_steps (
		attempt_id, step_number, kind, title, content, thoughts, decision,
		status, metadata, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(attempt_id, step_number) DO UPDATE SET
		content = excluded.content,
		thoughts = excluded.thoughts,
		decision = excluded.decision,
		status = excluded.status,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		step.AttemptID,
		step.StepNumber,
		string(step.Kind),
		step.Title,
		step.Content,
		step.Thoughts,
		step.Decision,
		string(step.Status),
		string(metadataJSON),
		step.CreatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("store: failed to record step: %w", err)
	}
	return nil
}

// GetAttempt implements healing.Ledger.
func (s *Store) GetAttempt(ctx context.Context, attemptID string) (*healing.Attempt, error) {
	query := attemptColumns + ` WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, attemptID)
	attempt, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: attempt %s not found", attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to load attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts implements healing.Ledger.
func (s *Store) ListAttempts(ctx context.Context, runGroupID string) ([]*healing.Attempt, error) {
	query := attemptColumns + ` WHERE run_group_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, runGroupID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*healing.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			log.Warnf("store: failed to scan attempt: %v", err)
			continue
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating attempts: %w", err)
	}
	return attempts, nil
}

// ListSteps implements healing.Ledger.
func (s *Store) ListSteps(ctx context.Context, attemptID string) ([]*healing.Step, error) {
	query := `
	SELECT attempt_id, step_number, kind, title, content, thoughts, decision,
	       status, metadata, created_at
	FROM healing_steps
	WHERE attempt_id = ?
	ORDER BY step_number ASC
	`
	rows, err := s.db.QueryContext(ctx, query, attemptID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*healing.Step
	for rows.Next() {
		var (
			step         healing.Step
			kind, status string
			content      sql.NullString
			thoughts     sql.NullString
			decision     sql.NullString
			metadataJSON sql.NullString
		)
		err := rows.Scan(
			&step.AttemptID,
			&step.StepNumber,
			&kind,
			&step.Title,
			&content,
			&thoughts,
			&decision,
			&status,
			&metadataJSON,
			&step.CreatedAt,
		)
		if err != nil {
			log.Warnf("store: failed to scan step: %v", err)
			continue
		}
		step.Kind = healing.StepKind(kind)
		step.Status = healing.StepStatus(status)
		step.Content = content.String
		step.Thoughts = thoughts.String
		step.Decision = decision.String
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &step.Metadata); err != nil {
				log.Warnf("store: failed to unmarshal step metadata: %v", err)
			}
		}
		steps = append(steps, &step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating steps: %w", err)
	}
	return steps, nil
}

const attemptColumns = `
	SELECT id, run_group_id, probe_id, status, diagnosis, plan, outcome,
	       effectiveness, error_message, created_at, updated_at
	FROM healing_attempts`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*healing.Attempt, error) {
	var (
		attempt       healing.Attempt
		status        string
		probeID       sql.NullString
		diagnosis     sql.NullString
		plan          sql.NullString
		outcome       sql.NullString
		effectiveness sql.NullString
		errorMessage  sql.NullString
	)
	err := row.Scan(
		&attempt.ID,
		&attempt.RunGroupID,
		&probeID,
		&status,
		&diagnosis,
		&plan,
		&outcome,
		&effectiveness,
		&errorMessage,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.Status = healing.AttemptStatus(status)
	attempt.ProbeID = probeID.String
	attempt.ErrorMessage = errorMessage.String
	if err := unmarshalNullable(diagnosis, &attempt.Diagnosis); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(plan, &attempt.Plan); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(outcome, &attempt.Outcome); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(effectiveness, &attempt.Effectiveness); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// marshalNullable renders a pointer as JSON or NULL.
func marshalNullable(v any) (any, error) {
	if v == nil || isNilPointer(v) {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: marshal column: %w", err)
	}
	return string(raw), nil
}

func unmarshalNullable[T any](col sql.NullString, target **T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return fmt.Errorf("store: unmarshal column: %w", err)
	}
	*target = &v
	return nil
}

func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *healing.Diagnosis:
		return p == nil
	case *healing.ActionPlan:
		return p == nil
	case *healing.ActionOutcome:
		return p == nil
	case *healing.Effectiveness:
		return p == nil
	}
	return false
}
