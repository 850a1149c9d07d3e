// Package memorystore provides the durable pkg/kernel/memory.Memory
// backends the in-process default (memory.InMemory) doesn't cover:
// append-only JSONL on disk, SQLite, Postgres, and Redis. Grounded on
// the teacher's internal/sessions store family (store.go's interface
// shape, cockroach.go's prepared-statement/connection-pool pattern)
// before that package was trimmed — spec's Memory boundary (§4.1) is
// narrower than the teacher's branch-aware session store
// (append/recent/clear only), so each backend here is a fresh,
// purpose-built implementation of that narrower contract rather than a
// port of the teacher's richer one.
package memorystore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// File is a durable Memory backend storing one JSON object per line.
// Restartable: Recent re-reads the file from disk.
type File struct {
	mu   sync.Mutex
	path string
	max  int
}

// NewFile builds a File-backed memory store appending to path.
// maxMessages <= 0 means unbounded.
func NewFile(path string, maxMessages int) *File {
	return &File{path: path, max: maxMessages}
}

func (f *File) Append(msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memorystore: open %s: %w", f.path, err)
	}
	defer file.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("memorystore: marshal message: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("memorystore: append to %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Recent(n int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memorystore: open %s: %w", f.path, err)
	}
	defer file.Close()

	var all []model.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var msg model.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("memorystore: decode line: %w", err)
		}
		all = append(all, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("memorystore: scan %s: %w", f.path, err)
	}

	if f.max > 0 && len(all) > f.max {
		all = all[len(all)-f.max:]
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return all[len(all)-n:], nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("memorystore: clear %s: %w", f.path, err)
	}
	return nil
}
