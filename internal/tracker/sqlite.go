package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	defaultSQLiteTable = "digest_ids"

	dispositionSent    = "sent"
	dispositionIgnored = "ignored"
)

// SQLiteStore keeps the digest state in two tables: one row per id with its
// disposition and newest-first position, and a single-row meta table for
// last_run. Save replaces everything inside one transaction.
type SQLiteStore struct {
	db         *sql.DB
	table      string
	tableIdent string
	metaIdent  string
}

func NewSQLiteStore(dsn string, table string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if table == "" {
		table = defaultSQLiteTable
	}
	tableIdent, err := quoteSQLiteIdentifier(table)
	if err != nil {
		return nil, err
	}
	metaIdent, err := quoteSQLiteIdentifier(table + "_meta")
	if err != nil {
		return nil, err
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{
		db:         db,
		table:      table,
		tableIdent: tableIdent,
		metaIdent:  metaIdent,
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf("SELECT id, disposition FROM %s ORDER BY position ASC", s.tableIdent),
	)
	if err != nil {
		return State{}, fmt.Errorf("query digest ids: %w", err)
	}
	defer rows.Close()

	var state State
	for rows.Next() {
		var id, disposition string
		if err := rows.Scan(&id, &disposition); err != nil {
			return State{}, fmt.Errorf("scan digest id: %w", err)
		}
		switch disposition {
		case dispositionSent:
			state.Sent = append(state.Sent, id)
		case dispositionIgnored:
			state.Ignored = append(state.Ignored, id)
		}
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("iterate digest ids: %w", err)
	}

	var lastRun sql.NullTime
	err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT last_run FROM %s WHERE key = 1", s.metaIdent)).Scan(&lastRun)
	if err != nil && err != sql.ErrNoRows {
		return State{}, fmt.Errorf("query last run: %w", err)
	}
	if lastRun.Valid {
		ts := lastRun.Time.UTC()
		state.LastRun = &ts
	}
	return state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.tableIdent)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear digest ids: %w", err)
	}
	stmt, err := tx.PrepareContext(
		ctx,
		fmt.Sprintf("INSERT INTO %s (id, disposition, position) VALUES (?, ?, ?)", s.tableIdent),
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	insert := func(ids []string, disposition string) error {
		for i, id := range ids {
			if id == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id, disposition, i); err != nil {
				return fmt.Errorf("insert %s id: %w", disposition, err)
			}
		}
		return nil
	}
	if err := insert(state.Sent, dispositionSent); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insert(state.Ignored, dispositionIgnored); err != nil {
		_ = tx.Rollback()
		return err
	}

	var lastRun any
	if state.LastRun != nil {
		lastRun = state.LastRun.UTC()
	}
	if _, err := tx.ExecContext(
		ctx,
		fmt.Sprintf("INSERT INTO %s (key, last_run) VALUES (1, ?) ON CONFLICT(key) DO UPDATE SET last_run = excluded.last_run", s.metaIdent),
		lastRun,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update last run: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if s.table == "" {
		return fmt.Errorf("sqlite table name is required")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		disposition TEXT NOT NULL,
		position INTEGER NOT NULL
	)`, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite table: %w", err)
	}
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_position_idx ON %s (disposition, position)", s.table, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create sqlite index: %w", err)
	}
	meta := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key INTEGER PRIMARY KEY CHECK (key = 1),
		last_run TIMESTAMP
	)`, s.metaIdent)
	if _, err := s.db.ExecContext(ctx, meta); err != nil {
		return fmt.Errorf("create sqlite meta table: %w", err)
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var sqliteIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteSQLiteIdentifier(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("sqlite table name is required")
	}
	if !sqliteIdentifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("sqlite table name %q must match %s", identifier, sqliteIdentifierPattern.String())
	}
	return `"` + identifier + `"`, nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*FileStore)(nil)

