// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit persists a local trail of tool invocations.
//
// Records carry redacted arguments and session fingerprints only; raw
// tokens and credential values never reach the database.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one audited tool invocation.
type Record struct {
	// Time is when the invocation completed.
	Time time.Time

	// Operation is the operation identity, or the built-in tool name.
	Operation string

	// Session is the session token fingerprint, never the raw token.
	Session string

	// RequestID correlates the record with dispatch logs.
	RequestID string

	// Outcome is "success" or the error kind that halted the call.
	Outcome string

	// StatusCode is the upstream status, zero when dispatch never ran.
	StatusCode int

	// DurationMs is wall time for the whole invocation.
	DurationMs int64

	// Args are the redacted call arguments.
	Args map[string]interface{}
}

// Store is a SQLite-backed audit trail.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	operation   TEXT NOT NULL,
	session     TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	args        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_invocations_ts ON invocations(ts);
CREATE INDEX IF NOT EXISTS idx_invocations_operation ON invocations(operation);
`

// Open opens or creates the audit database at path. Use ":memory:" for an
// ephemeral trail.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// SQLite serializes writes; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append writes one record. Argument redaction is the caller's concern;
// Append stores what it is given.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	args, err := json.Marshal(rec.Args)
	if err != nil {
		args = []byte(`{}`)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations (ts, operation, session, request_id, outcome, status_code, duration_ms, args)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UTC().Format(time.RFC3339Nano),
		rec.Operation,
		rec.Session,
		rec.RequestID,
		rec.Outcome,
		rec.StatusCode,
		rec.DurationMs,
		string(args),
	)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, operation, session, request_id, outcome, status_code, duration_ms, args
		FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ts, args string
		if err := rows.Scan(&ts, &rec.Operation, &rec.Session, &rec.RequestID,
			&rec.Outcome, &rec.StatusCode, &rec.DurationMs, &args); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.Time, _ = time.Parse(time.RFC3339Nano, ts)
		if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
			rec.Args = nil
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
