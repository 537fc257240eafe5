// Package store persists usage records in a local SQLite database.
// The table is append-mostly and deduplicated on message id: inserts
// replaying an already-ingested message are silently absorbed.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ccmeter/ccmeter/internal/model"
)

// Store wraps the SQL database connection.
type Store struct {
	*sql.DB
}

// Open opens the SQLite database at path and applies the connection
// pragmas. The busy timeout bounds how long a write blocks behind a
// concurrent writer instead of failing immediately.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode keeps readers unblocked during the single writer's commits
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &Store{db}, nil
}

// Migrate creates the schema. Safe to invoke on an already-initialized
// database.
func (s *Store) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		message_id TEXT UNIQUE NOT NULL,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_write_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL,
		created_at TIMESTAMP NOT NULL,
		machine_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_records(session_id);
	CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
	CREATE INDEX IF NOT EXISTS idx_usage_machine ON usage_records(machine_id);
	`

	_, err := s.Exec(schema)
	return err
}

// Insert persists one record, generating its id at write time. A
// record whose message id is already stored is a successful no-op so
// that replays after a crash stay idempotent. A NULL cost column marks
// an unknown cost.
func (s *Store) Insert(r model.UsageRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	var cost sql.NullFloat64
	if r.Cost.Known {
		cost = sql.NullFloat64{Float64: r.Cost.USD, Valid: true}
	}

	_, err := s.Exec(`
		INSERT OR IGNORE INTO usage_records
		(id, session_id, message_id, model, provider,
		 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		 cost, created_at, machine_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.SessionID, r.MessageID, r.Model, r.Provider(),
		r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.CacheReadTokens, r.Usage.CacheWriteTokens,
		cost, r.CreatedAt.UTC(), r.MachineID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// Exists reports whether a record for the message id is already
// stored, letting the ingest path short-circuit reprocessing.
func (s *Store) Exists(messageID string) (bool, error) {
	var one int
	err := s.QueryRow(`SELECT 1 FROM usage_records WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const recordColumns = `id, session_id, message_id, model,
	input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
	cost, created_at, machine_id`

// QueryBySession returns all records for a session, oldest first.
func (s *Store) QueryBySession(sessionID string) ([]model.UsageRecord, error) {
	rows, err := s.Query(`
		SELECT `+recordColumns+`
		FROM usage_records
		WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// QueryByRange returns records for one machine within the half-open
// interval [start, end), optionally narrowed by a case-sensitive
// substring match on the model identifier, plus the count of distinct
// sessions among the matches.
func (s *Store) QueryByRange(machineID string, start, end time.Time, modelSubstring string) ([]model.UsageRecord, int, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM usage_records
		WHERE machine_id = ? AND created_at >= ? AND created_at < ?
	`
	args := []interface{}{machineID, start.UTC(), end.UTC()}
	if modelSubstring != "" {
		query += ` AND instr(model, ?) > 0`
		args = append(args, modelSubstring)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	sessions := make(map[string]bool)
	for _, r := range records {
		sessions[r.SessionID] = true
	}

	return records, len(sessions), nil
}

func scanRecords(rows *sql.Rows) ([]model.UsageRecord, error) {
	var records []model.UsageRecord
	for rows.Next() {
		var r model.UsageRecord
		var cost sql.NullFloat64
		err := rows.Scan(
			&r.ID, &r.SessionID, &r.MessageID, &r.Model,
			&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.CacheReadTokens, &r.Usage.CacheWriteTokens,
			&cost, &r.CreatedAt, &r.MachineID,
		)
		if err != nil {
			return nil, err
		}
		if cost.Valid {
			r.Cost = model.KnownCost(cost.Float64)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
