package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatgate/internal/domain"
)

// SQLiteStore implements domain.UserStore on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("repo: create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repo: open database: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the quota path.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repo: ping database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repo: initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_users (
		user_id TEXT PRIMARY KEY,
		plan TEXT NOT NULL,
		daily_usage_count INTEGER NOT NULL DEFAULT 0,
		last_used_date TEXT NOT NULL DEFAULT '',
		recent_turns TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("repo: close database: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sqliteSelectUsers = `
	SELECT user_id, plan, daily_usage_count, last_used_date, recent_turns, created_at, updated_at
	FROM chat_users`

const sqliteUpsertUser = `
	INSERT INTO chat_users (user_id, plan, daily_usage_count, last_used_date, recent_turns, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		plan = excluded.plan,
		daily_usage_count = excluded.daily_usage_count,
		last_used_date = excluded.last_used_date,
		recent_turns = excluded.recent_turns,
		updated_at = excluded.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (domain.UserRecord, error) {
	var (
		rec                  domain.UserRecord
		plan, turnsJSON      string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.UserID, &plan, &rec.DailyUsageCount, &rec.LastUsedDate, &turnsJSON, &createdAt, &updatedAt); err != nil {
		return rec, err
	}
	rec.Plan = domain.Plan(plan)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	turns, err := decodeTurns([]byte(turnsJSON))
	if err != nil {
		return rec, err
	}
	rec.RecentTurns = turns
	return rec, nil
}

// Load returns every stored user.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]domain.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectUsers)
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", domain.ErrStoreIO, err)
	}
	defer func() { _ = rows.Close() }()

	records := map[string]domain.UserRecord{}
	for rows.Next() {
		rec, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", domain.ErrStoreIO, err)
		}
		records[rec.UserID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %v", domain.ErrStoreIO, err)
	}
	return records, nil
}

// Save replaces the table contents inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records map[string]domain.UserRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreIO, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_users`); err != nil {
		return fmt.Errorf("%w: clear users: %v", domain.ErrStoreIO, err)
	}
	for id, rec := range records {
		if rec.UserID == "" {
			rec.UserID = id
		}
		if err = execUpsert(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreIO, err)
	}
	return nil
}

// Get returns one user or domain.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*domain.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectUsers+` WHERE user_id = ?`, userID)
	rec, err := scanSQLiteUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan user: %v", domain.ErrStoreIO, err)
	}
	return &rec, nil
}

// Put upserts one user.
func (s *SQLiteStore) Put(ctx context.Context, record domain.UserRecord) error {
	return execUpsert(ctx, s.db, record)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execUpsert(ctx context.Context, db sqlExecer, rec domain.UserRecord) error {
	if rec.UserID == "" {
		return errors.New("repo: user id is required")
	}
	turns, err := encodeTurns(rec.RecentTurns)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	_, err = db.ExecContext(ctx, sqliteUpsertUser,
		rec.UserID, string(rec.Plan), rec.DailyUsageCount, rec.LastUsedDate,
		string(turns), createdAt.Unix(), updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert user %s: %v", domain.ErrStoreIO, rec.UserID, err)
	}
	return nil
}

func encodeTurns(turns []domain.Turn) ([]byte, error) {
	if turns == nil {
		turns = []domain.Turn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("%w: encode turns: %v", domain.ErrStoreIO, err)
	}
	return raw, nil
}

func decodeTurns(raw []byte) ([]domain.Turn, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var turns []domain.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	if len(turns) == 0 {
		return nil, nil
	}
	return turns, nil
}

var _ domain.UserStore = (*SQLiteStore)(nil)
