package users

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ratatoskr/pkg/logx"
)

// sqliteStore keeps the list in a single-table SQLite database. The
// position column preserves list order, which the auth gate's
// first-match policy depends on.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	position              INTEGER PRIMARY KEY,
	system_user           TEXT NOT NULL UNIQUE,
	enabled               INTEGER NOT NULL DEFAULT 1,
	telegram_user_id      INTEGER,
	promote_on_first_auth INTEGER NOT NULL DEFAULT 0,
	pipe_dir              TEXT NOT NULL DEFAULT '',
	allowed_usernames     TEXT NOT NULL DEFAULT '',
	first_seen_at         TEXT,
	last_seen_at          TEXT
);
`

func openSQLite(path string, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("users: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("users: open %s: %w", path, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("users: migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT system_user, enabled, telegram_user_id, promote_on_first_auth,
		       pipe_dir, allowed_usernames, first_seen_at, last_seen_at
		FROM users ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("users: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			tgID      sql.NullInt64
			usernames string
			first     sql.NullString
			last      sql.NullString
		)
		if err := rows.Scan(&e.SystemUser, &e.Enabled, &tgID, &e.PromoteOnFirstAuth,
			&e.PipeDir, &usernames, &first, &last); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		if tgID.Valid {
			id := tgID.Int64
			e.TelegramUserID = &id
		}
		if usernames != "" {
			e.AllowedUsernames = strings.Split(usernames, ",")
		}
		e.FirstSeenAt = parseSeenAt(first)
		e.LastSeenAt = parseSeenAt(last)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM users"); err != nil {
		return fmt.Errorf("users: clear: %w", err)
	}
	for i, e := range entries {
		var tgID any
		if e.TelegramUserID != nil {
			tgID = *e.TelegramUserID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (position, system_user, enabled, telegram_user_id,
				promote_on_first_auth, pipe_dir, allowed_usernames,
				first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, e.SystemUser, e.Enabled, tgID, e.PromoteOnFirstAuth,
			e.PipeDir, strings.Join(e.AllowedUsernames, ","),
			formatSeenAt(e.FirstSeenAt), formatSeenAt(e.LastSeenAt))
		if err != nil {
			return fmt.Errorf("users: insert %s: %w", e.SystemUser, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func parseSeenAt(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatSeenAt(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
