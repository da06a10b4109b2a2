package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dm-companion/internal/companion"
	"dm-companion/pkg/retrylimit"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db    *sql.DB
	retry retrylimit.RetryConfig
}

func openSQLite(dbPath string) (*sqliteStore, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg := retrylimit.DefaultRetryConfig()
	cfg.ErrorClassifier = isConflict
	cfg.OnRetry = func(attempt int, err error) {
		log.Debug().Str("component", "storage").Int("attempt", attempt).Err(err).Msg("sqlite busy, retrying")
	}

	s := &sqliteStore{db: db, retry: cfg}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT PRIMARY KEY,
		history TEXT NOT NULL DEFAULT '[]',
		affinity INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// isConflict reports SQLITE_BUSY and "database is locked" errors.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry retries fn on lock conflicts only.
func (s *sqliteStore) withRetry(ctx context.Context, fn func() error) error {
	return retrylimit.WithRetryConfig(ctx, func() error {
		err := fn()
		if err != nil && !isConflict(err) {
			return retrylimit.Fatal(err)
		}
		return err
	}, nil, s.retry)
}

func (s *sqliteStore) get(ctx context.Context, userID string) (companion.State, bool, error) {
	var (
		raw   string
		st    companion.State
		found bool
	)
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT history, affinity FROM conversations WHERE user_id = ?`, userID)
		err := row.Scan(&raw, &st.Affinity)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan conversation: %w", err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return companion.State{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &st.History); err != nil {
		return companion.State{}, false, fmt.Errorf("decode history: %w", err)
	}
	return st, true, nil
}

func (s *sqliteStore) put(ctx context.Context, userID string, st companion.State) error {
	history, err := json.Marshal(st.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	query := `
	INSERT INTO conversations (user_id, history, affinity, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		history = excluded.history,
		affinity = excluded.affinity,
		updated_at = excluded.updated_at`

	return s.withRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, query, userID, string(history), st.Affinity, time.Now().Unix()); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		return nil
	})
}

func (s *sqliteStore) ids(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.withRetry(ctx, func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM conversations ORDER BY user_id`)
		if err != nil {
			return fmt.Errorf("query users: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan user id: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

// maintain folds the WAL back into the main database file.
func (s *sqliteStore) maintain(ctx context.Context) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
		return err
	})
}

func (s *sqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
