package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/ppiankov/callproxy/internal/settings"
)

// Store persists snapshots.
type Store interface {
	// Load returns the latest snapshot, or nil if none was saved.
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Close() error
}

// Open opens a store from a location of the form file:<path> or
// sqlite:<path>. A leading ~/ in the path is expanded.
func Open(location string) (Store, error) {
	kind, path, ok := strings.Cut(location, ":")
	if !ok || path == "" {
		return nil, fmt.Errorf("invalid state location %q: want file:<path> or sqlite:<path>", location)
	}
	path = settings.ExpandHome(path)

	switch kind {
	case "file":
		return NewFileStore(path), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", kind)
	}
}

// FileStore keeps the latest snapshot in one CBOR file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (f *FileStore) Load(context.Context) (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Unmarshal(data)
}

// Save implements Store. The file is replaced atomically.
func (f *FileStore) Save(_ context.Context, s *State) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("cannot create snapshot directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Close implements Store.
func (f *FileStore) Close() error {
	return nil
}

// keepSnapshots is how many rows SQLiteStore retains.
const keepSnapshots = 10

// SQLiteStore keeps a short history of snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("cannot create snapshot directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			saved_at TEXT NOT NULL,
			version INTEGER NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return Unmarshal(data)
}

// Save implements Store. Older rows beyond the retention window are pruned.
func (s *SQLiteStore) Save(ctx context.Context, st *State) (err error) {
	data, err := Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("failed to roll back snapshot: %w", rbErr))
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (saved_at, version, data) VALUES (?, ?, ?)`,
		st.SavedAt.UTC().Format(time.RFC3339Nano), st.Version, data,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)`,
		keepSnapshots,
	); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Count returns the number of retained snapshots.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
