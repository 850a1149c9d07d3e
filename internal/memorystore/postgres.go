package memorystore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// Postgres is a durable Memory backend for shared, multi-process
// deployments, storing messages in a Postgres table scoped by key.
// Grounded on the teacher's cockroach.go (Postgres-wire-compatible
// CockroachDB store): same driver, schema-on-connect idiom, trimmed of
// the teacher's prepared-statement cache and branch/fork columns,
// which have no equivalent in spec's Memory boundary.
type Postgres struct {
	db  *sql.DB
	key string
}

// NewPostgres opens a connection pool against dsn and ensures the
// memory table exists.
func NewPostgres(dsn, key string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("memorystore: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("memorystore: ping postgres: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS aof_memory (
	id BIGSERIAL PRIMARY KEY,
	memory_key TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memorystore: create schema: %w", err)
	}
	return &Postgres{db: db, key: key}, nil
}

func (p *Postgres) Append(msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("memorystore: marshal message: %w", err)
	}
	_, err = p.db.Exec(`INSERT INTO aof_memory (memory_key, payload) VALUES ($1, $2)`, p.key, string(data))
	if err != nil {
		return fmt.Errorf("memorystore: insert: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(n int) ([]model.Message, error) {
	query := `SELECT payload FROM aof_memory WHERE memory_key = $1 ORDER BY id DESC`
	args := []any{p.key}
	if n > 0 {
		query += ` LIMIT $2`
		args = append(args, n)
	}
	rows, err := p.db.Query(query, args...)
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

func (p *Postgres) Clear() error {
	_, err := p.db.Exec(`DELETE FROM aof_memory WHERE memory_key = $1`, p.key)
	if err != nil {
		return fmt.Errorf("memorystore: clear: %w", err)
	}
	return nil
}
