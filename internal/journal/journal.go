package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users delete the journal to adopt the new schema.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

// Submission kinds.
const (
	KindUpload     = "upload"
	KindWriteBatch = "write_batch"
	KindWithdraw   = "withdraw"
)

// Submission outcomes.
const (
	OutcomeUploaded  = "uploaded"
	OutcomeConfirmed = "confirmed"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
)

// Record is one journalled submission attempt.
type Record struct {
	ID         int64
	RequestID  string
	Kind       string
	AssetIndex int
	StartIndex int
	EndIndex   int
	Attempt    int
	Provider   string
	Signature  string
	Outcome    string
	Detail     string
	CreatedAt  time.Time
}

// Journal manages the submission history backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) initSchema(ctx context.Context) error {
	var tableExists int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return j.createSchema(ctx)
	}

	var version int
	if err := j.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, j.path)
	}
	return nil
}

func (j *Journal) createSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Append inserts a submission attempt.
func (j *Journal) Append(ctx context.Context, record Record) error {
	if record.Attempt <= 0 {
		record.Attempt = 1
	}
	_, err := j.db.ExecContext(
		ctx,
		`INSERT INTO submissions (
            request_id, kind, asset_index, start_index, end_index,
            attempt, provider, signature, outcome, detail, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID,
		record.Kind,
		record.AssetIndex,
		record.StartIndex,
		record.EndIndex,
		record.Attempt,
		nullableString(record.Provider),
		nullableString(record.Signature),
		record.Outcome,
		nullableString(record.Detail),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append submission: %w", err)
	}
	return nil
}

const recordColumns = "id, request_id, kind, asset_index, start_index, end_index, attempt, provider, signature, outcome, detail, created_at"

// Recent returns the newest records, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM submissions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent submissions: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// BatchAttempts returns all write-batch attempts covering the given index,
// oldest first. The writer consults this before a batch's first submission:
// a signed attempt journalled by an earlier run may have landed after that
// run died, so the on-chain state gets rechecked instead of writing blind.
func (j *Journal) BatchAttempts(ctx context.Context, index int) ([]Record, error) {
	rows, err := j.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM submissions
         WHERE kind = ? AND start_index <= ? AND end_index >= ?
         ORDER BY id`,
		KindWriteBatch,
		index,
		index,
	)
	if err != nil {
		return nil, fmt.Errorf("query batch attempts: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Stats returns submission counts grouped by kind and outcome.
func (j *Journal) Stats(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT kind, outcome, COUNT(1) FROM submissions GROUP BY kind, outcome`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]map[string]int)
	for rows.Next() {
		var kind, outcome string
		var count int
		if err := rows.Scan(&kind, &outcome, &count); err != nil {
			return nil, err
		}
		if stats[kind] == nil {
			stats[kind] = make(map[string]int)
		}
		stats[kind][outcome] = count
	}
	return stats, rows.Err()
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			record     Record
			assetIndex sql.NullInt64
			startIndex sql.NullInt64
			endIndex   sql.NullInt64
			provider   sql.NullString
			signature  sql.NullString
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.Kind,
			&assetIndex,
			&startIndex,
			&endIndex,
			&record.Attempt,
			&provider,
			&signature,
			&record.Outcome,
			&detail,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		record.AssetIndex = int(assetIndex.Int64)
		record.StartIndex = int(startIndex.Int64)
		record.EndIndex = int(endIndex.Int64)
		record.Provider = provider.String
		record.Signature = signature.String
		record.Detail = detail.String
		if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			record.CreatedAt = created
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
