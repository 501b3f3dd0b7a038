package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ratatoskr/internal/users"
	"ratatoskr/pkg/logx"
)

// Gate guards the inbound path with the configured user list.
//
// Reads share a lock; Promote takes it exclusively for the whole
// mutate-then-persist sequence, so promotions serialize.
type Gate struct {
	store users.Store
	log   logx.Logger

	mu      sync.RWMutex
	entries []users.Entry
}

// NewGate wraps the given list. store may be nil for read-only use
// (promotion then fails).
func NewGate(entries []users.Entry, store users.Store, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{store: store, log: log, entries: entries}
}

// Open reports whether the gate is in open mode: an empty user list
// disables authorization entirely rather than blocking everyone.
func (g *Gate) Open() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries) == 0
}

// Check resolves a sender to a user index, in two phases over list
// order: first by bound platform id, then (when a username was
// supplied) by case-insensitive username match against enabled
// entries that allow promotion. Disabled entries never match.
func (g *Gate) Check(senderID int64, username string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for i, e := range g.entries {
		if !e.Enabled {
			continue
		}
		if e.TelegramUserID != nil && *e.TelegramUserID == senderID {
			return i, true
		}
	}

	if username == "" {
		return 0, false
	}
	lower := strings.ToLower(username)
	for i, e := range g.entries {
		if !e.Enabled || !e.PromoteOnFirstAuth {
			continue
		}
		for _, allowed := range e.AllowedUsernames {
			if strings.ToLower(allowed) == lower {
				return i, true
			}
		}
	}
	return 0, false
}

// NeedsPromotion reports whether the entry at index still waits for
// its first authenticated contact.
func (g *Gate) NeedsPromotion(index int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if index < 0 || index >= len(g.entries) {
		return false
	}
	e := g.entries[index]
	return e.PromoteOnFirstAuth && e.TelegramUserID == nil
}

// Promote binds senderID to the entry at index, clears the username
// allowance and the promote flag, and persists synchronously. When
// persistence fails the in-memory mutation has already happened; the
// caller gets the error and the next save retries implicitly.
func (g *Gate) Promote(ctx context.Context, index int, senderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if index < 0 || index >= len(g.entries) {
		return fmt.Errorf("auth: no user at index %d", index)
	}
	e := &g.entries[index]
	id := senderID
	e.TelegramUserID = &id
	e.AllowedUsernames = nil
	e.PromoteOnFirstAuth = false
	now := time.Now().UTC()
	e.LastSeenAt = &now
	if e.FirstSeenAt == nil {
		e.FirstSeenAt = &now
	}

	g.log.Info("promoted user",
		logx.String("system_user", e.SystemUser),
		logx.Int64("telegram_user_id", senderID))

	if g.store == nil {
		return fmt.Errorf("auth: no store configured, promotion of %q not persisted", e.SystemUser)
	}
	if err := g.store.Save(ctx, g.entries); err != nil {
		return fmt.Errorf("auth: persist promotion of %q: %w", e.SystemUser, err)
	}
	return nil
}

// Replace swaps the whole list, e.g. after a file reload.
func (g *Gate) Replace(entries []users.Entry) {
	g.mu.Lock()
	g.entries = entries
	g.mu.Unlock()
}

// SystemUser returns the unique key of the entry at index.
func (g *Gate) SystemUser(index int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if index < 0 || index >= len(g.entries) {
		return "", false
	}
	return g.entries[index].SystemUser, true
}

// UserCount and PipeDir satisfy the pipe router's directory lookup.

func (g *Gate) UserCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

func (g *Gate) PipeDir(index int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if index < 0 || index >= len(g.entries) || g.entries[index].PipeDir == "" {
		return "", false
	}
	return g.entries[index].PipeDir, true
}
