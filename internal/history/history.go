package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/louisbarrett/tmux-cast/internal/logging"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Record is one casting session in the history database.
type Record struct {
	ID        int64
	Target    string
	Device    string
	URL       string
	Width     int
	Height    int
	FPS       int
	StartedAt time.Time
	EndedAt   time.Time
	Frames    int64
}

// Store persists casting session history in a SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// DefaultPath returns the default history database location under the
// user's home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tmux-cast.db"
	}
	return filepath.Join(home, ".tmux-cast", "history.db")
}

// Open opens (creating if needed) the history database at dbPath. The
// parent directory is created if it does not exist.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	// WAL mode with a busy timeout to avoid "database is locked"
	// errors when a second instance inspects history mid-session.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close history database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close history database after schema failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	logging.Debug("History database opened at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		device TEXT NOT NULL,
		url TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		fps INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		frames INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`
	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(execCtx, schema)
	return err
}

// Begin records the start of a casting session and returns its id.
func (s *Store) Begin(ctx context.Context, rec Record) (int64, error) {
	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(execCtx,
		`INSERT INTO sessions (target, device, url, width, height, fps, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Target, rec.Device, rec.URL, rec.Width, rec.Height, rec.FPS,
		rec.StartedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("record session start: %w", err)
	}
	return result.LastInsertId()
}

// Finish marks a session as ended and stores the final frame count.
func (s *Store) Finish(ctx context.Context, id int64, frames int64) error {
	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(execCtx,
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE id = ?`,
		time.Now().Unix(), frames, id,
	)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx,
		`SELECT id, target, device, url, width, height, fps, started_at, ended_at, frames
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Error("failed to close history rows: %v", closeErr)
		}
	}()

	var records []Record
	for rows.Next() {
		var rec Record
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.Target, &rec.Device, &rec.URL,
			&rec.Width, &rec.Height, &rec.FPS, &started, &ended, &rec.Frames); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.StartedAt = time.Unix(started, 0)
		if ended.Valid {
			rec.EndedAt = time.Unix(ended.Int64, 0)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
