package users

import (
	"context"
	"fmt"
	"time"
)

// Add appends a new entry. The system user is the unique key.
func Add(ctx context.Context, store Store, systemUser, pipeDir string, usernames []string, promote bool) error {
	entries, err := store.Load(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.SystemUser == systemUser {
			return fmt.Errorf("users: %q already exists", systemUser)
		}
	}

	now := time.Now().UTC()
	entries = append(entries, Entry{
		SystemUser:         systemUser,
		Enabled:            true,
		PromoteOnFirstAuth: promote,
		PipeDir:            pipeDir,
		AllowedUsernames:   usernames,
		FirstSeenAt:        &now,
	})
	return store.Save(ctx, entries)
}

// Remove deletes the entry for systemUser.
func Remove(ctx context.Context, store Store, systemUser string) error {
	entries, err := store.Load(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.SystemUser != systemUser {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return fmt.Errorf("users: %q not found", systemUser)
	}
	return store.Save(ctx, kept)
}

// List returns all entries in list order.
func List(ctx context.Context, store Store) ([]Entry, error) {
	return store.Load(ctx)
}
