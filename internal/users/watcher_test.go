package users

import (
	"context"
	"os"
	"testing"
	"time"

	"ratatoskr/pkg/logx"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcherDeliversReload(t *testing.T) {
	t.Parallel()
	st, path := newYAMLStore(t)
	writeFile(t, path, "users: []\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loads := make(chan []Entry, 4)
	w := NewWatcher(st, path, func(e []Entry) { loads <- e }, logx.Nop())
	go func() { _ = w.Run(ctx) }()

	// Give the watcher a moment to register before the first write.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, path, "users:\n  - system_user: carol\n")

	select {
	case entries := <-loads:
		if len(entries) != 1 || entries[0].SystemUser != "carol" {
			t.Fatalf("reloaded entries: %+v", entries)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered")
	}
}
