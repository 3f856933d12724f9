package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bakkerme/posterdigest/internal/core"
)

const defaultStateFile = "digest_state.json"

// FileStore keeps the state in a single JSON file. Writes go to a temporary
// file in the same directory which then replaces the target with a rename.
type FileStore struct {
	path string

	// rename is os.Rename; tests swap it to simulate a crash before the replace.
	rename func(oldpath, newpath string) error
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultStateFile
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &FileStore{path: path, rename: os.Rename}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

// BackupPath is where an unreadable state file is moved on load.
func (s *FileStore) BackupPath() string {
	return s.path + ".bak"
}

// Load reads the state file. A missing file is an empty state. A file that
// cannot be read or decoded is renamed to BackupPath and an empty state is
// returned; corruption never blocks startup.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	logger := core.LoggerFromContext(ctx)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, nil
		}
		s.backup(ctx, fmt.Errorf("read state: %w", err))
		return State{}, nil
	}
	state, err := decodeState(data)
	if err != nil {
		s.backup(ctx, err)
		return State{}, nil
	}
	logger.Debug("state file read", "path", s.path, "bytes", len(data))
	return state, nil
}

func (s *FileStore) backup(ctx context.Context, cause error) {
	logger := core.LoggerFromContext(ctx)
	if err := s.rename(s.path, s.BackupPath()); err != nil {
		logger.Warn("state file unusable and could not be backed up; starting empty",
			"path", s.path, "error", cause, "backup_error", err)
		return
	}
	logger.Warn("state file unusable; moved aside and starting empty",
		"path", s.path, "backup", s.BackupPath(), "error", cause)
}

func decodeState(data []byte) (State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return State{}, fmt.Errorf("decode state: expected a JSON object")
	}
	var raw struct {
		Sent    []string `json:"sent_ids"`
		Ignored []string `json:"ignored_ids"`
		LastRun *string  `json:"last_run"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	state := State{Sent: raw.Sent, Ignored: raw.Ignored}
	if raw.LastRun != nil {
		state.LastRun = parseLastRun(*raw.LastRun)
	}
	return state, nil
}

// lastRunLayouts also accepts naive ISO timestamps written by older tooling.
var lastRunLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseLastRun(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range lastRunLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// Save writes state atomically: temp file, fsync, rename over the target.
func (s *FileStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.Sent == nil {
		state.Sent = []string{}
	}
	if state.Ignored == nil {
		state.Ignored = []string{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := s.rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	committed = true
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
