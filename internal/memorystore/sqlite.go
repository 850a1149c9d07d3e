package memorystore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// SQLite is a durable Memory backend storing messages in a local
// SQLite file, one row per message, scoped by key (typically an agent
// name) so multiple agents can share a database file without
// colliding. Grounded on the teacher's cockroach.go connection-setup
// shape, adapted to modernc.org/sqlite's pure-Go, cgo-free driver.
type SQLite struct {
	db  *sql.DB
	key string
}

// NewSQLite opens (creating if absent) a SQLite database at path and
// ensures the memory table exists.
func NewSQLite(path, key string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memorystore: open sqlite %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS aof_memory (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_key TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memorystore: create schema: %w", err)
	}
	return &SQLite{db: db, key: key}, nil
}

func (s *SQLite) Append(msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("memorystore: marshal message: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO aof_memory (memory_key, payload) VALUES (?, ?)`, s.key, string(data))
	if err != nil {
		return fmt.Errorf("memorystore: insert: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(n int) ([]model.Message, error) {
	query := `SELECT payload FROM aof_memory WHERE memory_key = ? ORDER BY id DESC`
	args := []any{s.key}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memorystore: query: %w", err)
	}
	defer rows.Close()

	var reversed []model.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("memorystore: scan row: %w", err)
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("memorystore: decode row: %w", err)
		}
		reversed = append(reversed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

func (s *SQLite) Clear() error {
	_, err := s.db.Exec(`DELETE FROM aof_memory WHERE memory_key = ?`, s.key)
	if err != nil {
		return fmt.Errorf("memorystore: clear: %w", err)
	}
	return nil
}
