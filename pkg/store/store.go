package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cognivoice/cognivoice-go/pkg/analysis"
	"github.com/cognivoice/cognivoice-go/pkg/errorsx"
)

// Store is a local SQLite cache of completed analyses, giving the CLI
// an offline history independent of the backend.
type Store struct {
	conn *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("create store directory: %w", err), errorsx.ReasonStore)
	}

	conn, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("open store: %w", err), errorsx.ReasonStore)
	}
	// SQLite works best with a single writer connection.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, errorsx.Wrap(fmt.Errorf("init schema: %w", err), errorsx.ReasonStore)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		risk_level TEXT NOT NULL,
		prediction TEXT,
		confidence REAL,
		file_name TEXT,
		timestamp TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Save caches a completed record, replacing any previous row with the
// same id.
func (s *Store) Save(rec *analysis.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStore)
	}
	_, err = s.conn.Exec(`
		INSERT OR REPLACE INTO analyses (id, risk_level, prediction, confidence, file_name, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RiskLevel, rec.BackendData.FinalPrediction,
		rec.BackendData.Confidence, rec.BackendData.FileName,
		rec.Timestamp, string(payload))
	return errorsx.Wrap(err, errorsx.ReasonStore)
}

// List returns cached records, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]analysis.Record, error) {
	query := `SELECT payload FROM analyses ORDER BY timestamp DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStore)
	}
	defer rows.Close()

	var records []analysis.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStore)
		}
		var rec analysis.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStore)
		}
		records = append(records, rec)
	}
	return records, errorsx.Wrap(rows.Err(), errorsx.ReasonStore)
}

// Count returns the number of cached records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&n)
	return n, errorsx.Wrap(err, errorsx.ReasonStore)
}

func (s *Store) Close() error {
	return s.conn.Close()
}
