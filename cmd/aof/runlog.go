package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// runRecord is the on-disk shape a "flow run" invocation leaves behind
// so a later "flow status"/"flow logs" invocation (a separate process)
// can read it back. Spec §6's persisted-state layout keeps runs
// in-memory "for the process lifetime" by default; a CLI invocation IS
// one process lifetime, so this file is the local stand-in for the
// optional external persistence collaborator.
type runRecord struct {
	RunID    string           `json:"run_id"`
	FlowName string           `json:"flow_name"`
	Status   string           `json:"status"`
	Err      string           `json:"err,omitempty"`
	Events   []flowEventEntry `json:"events"`
}

type flowEventEntry struct {
	Type   string `json:"type"`
	Node   string `json:"node"`
	Reason string `json:"reason,omitempty"`
}

func runsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".aof", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeRunRecord(rec runRecord) error {
	dir, err := runsDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, rec.RunID+".json"), data, 0o644)
}

func readRunRecord(runID string) (runRecord, error) {
	dir, err := runsDir()
	if err != nil {
		return runRecord{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		return runRecord{}, err
	}
	var rec runRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return runRecord{}, err
	}
	return rec, nil
}
