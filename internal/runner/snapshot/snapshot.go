// Package snapshot saves the ids and per-item outcomes of a run so a later
// run can replay the same ids without crawling.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one crawled id and what the run did with it.
type Entry struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	Outcome  string `json:"outcome"`
	Class    string `json:"class,omitempty"`
	Path     string `json:"path,omitempty"`
}

type Payload struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	StartURL   string    `json:"start_url"`
	StopReason string    `json:"stop_reason"`
	Entries    []Entry   `json:"entries"`
}

// IDs returns the entry ids in crawl order.
func (p Payload) IDs() []string {
	ids := make([]string, 0, len(p.Entries))
	for _, entry := range p.Entries {
		ids = append(ids, entry.ID)
	}
	return ids
}

func Save(path string, payload Payload) error {
	if path == "" {
		return fmt.Errorf("snapshot path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func Load(path string) (Payload, error) {
	if path == "" {
		return Payload{}, fmt.Errorf("snapshot path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("read snapshot: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return payload, nil
}
