package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ratatoskr/pkg/logx"
)

func newYAMLStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	st, err := Open(Config{Driver: "yaml", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st, path
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	st, _ := newYAMLStore(t)
	ctx := context.Background()

	id := int64(12345)
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []Entry{{
		SystemUser:       "alice",
		Enabled:          true,
		TelegramUserID:   &id,
		PipeDir:          "/run/bridge/alice",
		AllowedUsernames: []string{"alice_tg"},
		FirstSeenAt:      &seen,
	}}
	if err := st.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries", len(out))
	}
	e := out[0]
	if e.SystemUser != "alice" || !e.Enabled || e.PipeDir != "/run/bridge/alice" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.TelegramUserID == nil || *e.TelegramUserID != 12345 {
		t.Fatalf("telegram id: %+v", e.TelegramUserID)
	}
	if len(e.AllowedUsernames) != 1 || e.AllowedUsernames[0] != "alice_tg" {
		t.Fatalf("usernames: %v", e.AllowedUsernames)
	}
	if e.FirstSeenAt == nil || !e.FirstSeenAt.Equal(seen) {
		t.Fatalf("first seen: %v", e.FirstSeenAt)
	}
}

func TestYAMLLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	st, _ := newYAMLStore(t)
	entries, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty list, got %v", entries)
	}
}

func TestYAMLEnabledDefaultsTrue(t *testing.T) {
	t.Parallel()
	st, path := newYAMLStore(t)
	writeFile(t, path, "users:\n  - system_user: bob\n    pipe_dir: /tmp/bob\n")

	entries, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || !entries[0].Enabled {
		t.Fatalf("enabled default not applied: %+v", entries)
	}
}

func TestSQLiteRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "users.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	id := int64(777)
	in := []Entry{
		{SystemUser: "zeta", Enabled: true, PromoteOnFirstAuth: true, AllowedUsernames: []string{"ZetaTG", "zeta2"}},
		{SystemUser: "alpha", Enabled: false, TelegramUserID: &id, PipeDir: "/tmp/alpha"},
	}
	if err := st.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 || out[0].SystemUser != "zeta" || out[1].SystemUser != "alpha" {
		t.Fatalf("order not preserved: %+v", out)
	}
	if !out[0].PromoteOnFirstAuth || len(out[0].AllowedUsernames) != 2 {
		t.Fatalf("zeta fields: %+v", out[0])
	}
	if out[1].Enabled || out[1].TelegramUserID == nil || *out[1].TelegramUserID != 777 {
		t.Fatalf("alpha fields: %+v", out[1])
	}
}

func TestCRUD(t *testing.T) {
	t.Parallel()
	st, _ := newYAMLStore(t)
	ctx := context.Background()

	if err := Add(ctx, st, "alice", "/tmp/alice", []string{"alice_tg"}, true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := Add(ctx, st, "alice", "", nil, false); err == nil {
		t.Fatal("duplicate Add did not fail")
	}
	if err := Add(ctx, st, "dave", "", nil, false); err != nil {
		t.Fatalf("Add dave: %v", err)
	}

	entries, err := List(ctx, st)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].SystemUser != "alice" {
		t.Fatalf("list: %+v", entries)
	}
	if !entries[0].PromoteOnFirstAuth || entries[0].TelegramUserID != nil {
		t.Fatalf("new entry shape: %+v", entries[0])
	}
	if entries[0].FirstSeenAt == nil {
		t.Fatal("first_seen_at not recorded")
	}

	if err := Remove(ctx, st, "alice"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(ctx, st, "ghost"); err == nil {
		t.Fatal("removing unknown user did not fail")
	}
	entries, _ = List(ctx, st)
	if len(entries) != 1 || entries[0].SystemUser != "dave" {
		t.Fatalf("after remove: %+v", entries)
	}
}
