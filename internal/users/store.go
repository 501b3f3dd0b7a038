package users

import (
	"context"
	"errors"
	"strings"

	"ratatoskr/pkg/logx"
)

// Config selects and locates the user store.
type Config struct {
	Driver string // "yaml" (default) or "sqlite"
	Path   string
}

// Store loads and saves the full user list. Order is significant: the
// auth gate matches in list order.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("users: path is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "yaml", "file":
		return openYAML(cfg.Path, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg.Path, log)
	default:
		return nil, errors.New("users: unknown driver: " + cfg.Driver)
	}
}
