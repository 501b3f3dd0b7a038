package auth

import (
	"context"
	"path/filepath"
	"testing"

	"ratatoskr/internal/users"
	"ratatoskr/pkg/logx"
)

func entry(systemUser string, tgID *int64, promote bool, usernames ...string) users.Entry {
	return users.Entry{
		SystemUser:         systemUser,
		Enabled:            true,
		TelegramUserID:     tgID,
		PromoteOnFirstAuth: promote,
		AllowedUsernames:   usernames,
	}
}

func id(v int64) *int64 { return &v }

func TestCheckByBoundID(t *testing.T) {
	t.Parallel()
	g := NewGate([]users.Entry{entry("alice", id(111), false)}, nil, logx.Nop())

	if _, ok := g.Check(111, ""); !ok {
		t.Fatal("bound id did not match")
	}
	if _, ok := g.Check(999, ""); ok {
		t.Fatal("unknown id matched")
	}
}

func TestCheckByUsernameRequiresPromoteFlag(t *testing.T) {
	t.Parallel()
	g := NewGate([]users.Entry{entry("bob", nil, true, "BobTG")}, nil, logx.Nop())

	// Case-insensitive match.
	if idx, ok := g.Check(555, "bobtg"); !ok || idx != 0 {
		t.Fatalf("username match failed: idx=%d ok=%v", idx, ok)
	}
	if _, ok := g.Check(555, "unknown"); ok {
		t.Fatal("unknown username matched")
	}
	// No username supplied: phase two never runs.
	if _, ok := g.Check(555, ""); ok {
		t.Fatal("matched without username")
	}

	// Without the promote flag, usernames are inert.
	g2 := NewGate([]users.Entry{entry("bob", nil, false, "BobTG")}, nil, logx.Nop())
	if _, ok := g2.Check(555, "bobtg"); ok {
		t.Fatal("matched despite promote_on_first_auth=false")
	}
}

func TestCheckSkipsDisabledEntries(t *testing.T) {
	t.Parallel()
	e := entry("carol", id(222), false)
	e.Enabled = false
	g := NewGate([]users.Entry{e}, nil, logx.Nop())
	if _, ok := g.Check(222, ""); ok {
		t.Fatal("disabled entry matched")
	}
}

func TestCheckBoundIDTakesPrecedence(t *testing.T) {
	t.Parallel()
	g := NewGate([]users.Entry{
		entry("promotable", nil, true, "shared"),
		entry("bound", id(42), false),
	}, nil, logx.Nop())

	// Even though the promotable entry comes first in list order, a
	// bound-id match anywhere wins over any username match.
	if idx, ok := g.Check(42, "shared"); !ok || idx != 1 {
		t.Fatalf("got idx=%d ok=%v, want idx=1", idx, ok)
	}
}

func TestCheckFirstInListOrderWins(t *testing.T) {
	t.Parallel()
	g := NewGate([]users.Entry{
		entry("first", nil, true, "Dup"),
		entry("second", nil, true, "dup"),
	}, nil, logx.Nop())
	if idx, ok := g.Check(1, "DUP"); !ok || idx != 0 {
		t.Fatalf("got idx=%d ok=%v, want first entry", idx, ok)
	}
}

func TestOpenMode(t *testing.T) {
	t.Parallel()
	g := NewGate(nil, nil, logx.Nop())
	if !g.Open() {
		t.Fatal("empty list should be open mode")
	}
	if _, ok := g.Check(1, "anyone"); ok {
		t.Fatal("check should not match on an empty list")
	}

	g2 := NewGate([]users.Entry{entry("alice", id(1), false)}, nil, logx.Nop())
	if g2.Open() {
		t.Fatal("non-empty list reported open")
	}
}

func TestPromotePersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.yaml")
	store, err := users.Open(users.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	list := []users.Entry{entry("dave", nil, true, "DaveTG")}
	if err := store.Save(ctx, list); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	g := NewGate(list, store, logx.Nop())
	if !g.NeedsPromotion(0) {
		t.Fatal("entry should need promotion")
	}
	if err := g.Promote(ctx, 0, 777); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if g.NeedsPromotion(0) {
		t.Fatal("entry still needs promotion after Promote")
	}

	// The bound id now matches directly; the username is retired.
	if _, ok := g.Check(777, ""); !ok {
		t.Fatal("bound id does not match after promotion")
	}
	if _, ok := g.Check(888, "davetg"); ok {
		t.Fatal("retired username still matches")
	}

	// And the persisted state agrees.
	reloaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	e := reloaded[0]
	if e.TelegramUserID == nil || *e.TelegramUserID != 777 {
		t.Fatalf("persisted id: %+v", e.TelegramUserID)
	}
	if len(e.AllowedUsernames) != 0 || e.PromoteOnFirstAuth {
		t.Fatalf("persisted flags: %+v", e)
	}
}

func TestPromoteWithoutStoreFails(t *testing.T) {
	t.Parallel()
	g := NewGate([]users.Entry{entry("eve", nil, true, "EveTG")}, nil, logx.Nop())
	if err := g.Promote(context.Background(), 0, 5); err == nil {
		t.Fatal("expected error without a store")
	}
	// The in-memory mutation stands even though persistence failed.
	if _, ok := g.Check(5, ""); !ok {
		t.Fatal("in-memory binding missing after failed persist")
	}
}
