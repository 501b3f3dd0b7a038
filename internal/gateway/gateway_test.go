package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"ratatoskr/internal/auth"
	"ratatoskr/internal/transport"
	"ratatoskr/internal/users"
	"ratatoskr/internal/wire"
	"ratatoskr/pkg/logx"
)

type fakePublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeAnswerer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeAnswerer) AnswerCallback(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

func openGateway(pub Publisher, ans CallbackAnswerer) *Gateway {
	src := wire.Source{Platform: wire.Platform, BotUsername: "testbot"}
	return New(auth.NewGate(nil, nil, logx.Nop()), pub, ans, src, logx.Nop())
}

func textUpdate(chatID, fromID int64, text string) transport.Update {
	return transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID: 7, ChatID: chatID, FromID: fromID,
			FromUsername: "alice", FromName: "Alice", Text: text,
		},
	}
}

func TestMessagePublishedWithEnvelope(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	g := openGateway(pub, nil)

	g.handle(context.Background(), textUpdate(42, 100, "hi"))

	if pub.count() != 1 {
		t.Fatalf("published %d payloads, want 1", pub.count())
	}
	if pub.keys[0] != "42" {
		t.Fatalf("key = %q, want chat id", pub.keys[0])
	}

	var env wire.Inbound
	if err := json.Unmarshal(pub.payloads[0], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.TraceID == "" {
		t.Fatal("missing trace id")
	}
	if env.MessageType.Type != wire.KindTelegramMessage {
		t.Fatalf("kind = %q", env.MessageType.Type)
	}
	var cm wire.ChatMessage
	if err := env.MessageType.Decode(&cm); err != nil {
		t.Fatal(err)
	}
	if cm.ChatID != 42 || cm.SenderID != 100 || cm.Text != "hi" {
		t.Fatalf("payload = %+v", cm)
	}
	if cm.Attachments == nil {
		t.Fatal("attachments must serialize as an empty array, not null")
	}
}

func TestCallbackAnsweredAndPublished(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	ans := &fakeAnswerer{}
	g := openGateway(pub, ans)

	g.handle(context.Background(), transport.Update{
		Kind: transport.UpdateCallback,
		Callback: &transport.Callback{
			ID: "cb-1", FromID: 100, ChatID: 42, MessageID: 7, Data: "choice:a",
		},
	})

	if pub.count() != 1 {
		t.Fatalf("published %d payloads, want 1", pub.count())
	}
	var env wire.Inbound
	if err := json.Unmarshal(pub.payloads[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.MessageType.Type != wire.KindCallbackQuery {
		t.Fatalf("kind = %q", env.MessageType.Type)
	}
	if len(ans.ids) != 1 || ans.ids[0] != "cb-1" {
		t.Fatalf("answered = %v", ans.ids)
	}
}

func TestUnauthorizedSenderDropped(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	uid := int64(999)
	gate := auth.NewGate([]users.Entry{{
		SystemUser:     "bob",
		Enabled:        true,
		TelegramUserID: &uid,
	}}, nil, logx.Nop())
	g := New(gate, pub, nil, wire.Source{Platform: wire.Platform}, logx.Nop())

	g.handle(context.Background(), textUpdate(42, 100, "nope"))
	if pub.count() != 0 {
		t.Fatal("unauthorized message was published")
	}

	g.handle(context.Background(), textUpdate(42, 999, "yes"))
	if pub.count() != 1 {
		t.Fatal("authorized message was not published")
	}
}

func TestFirstContactPromotes(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	gate := auth.NewGate([]users.Entry{{
		SystemUser:         "carol",
		Enabled:            true,
		PromoteOnFirstAuth: true,
		AllowedUsernames:   []string{"Alice"},
	}}, nil, logx.Nop())
	g := New(gate, pub, nil, wire.Source{Platform: wire.Platform}, logx.Nop())

	g.handle(context.Background(), textUpdate(42, 100, "first contact"))
	if pub.count() != 1 {
		t.Fatal("first contact was not published")
	}
	// The id is now bound; the same sender passes without the username.
	if _, ok := gate.Check(100, ""); !ok {
		t.Fatal("sender not promoted to bound id")
	}
}

func TestReactionWithoutUserDroppedWhenGated(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	uid := int64(100)
	gate := auth.NewGate([]users.Entry{{
		SystemUser:     "dave",
		Enabled:        true,
		TelegramUserID: &uid,
	}}, nil, logx.Nop())
	g := New(gate, pub, nil, wire.Source{Platform: wire.Platform}, logx.Nop())

	g.handle(context.Background(), transport.Update{
		Kind:     transport.UpdateReaction,
		Reaction: &transport.Reaction{ChatID: 42, MessageID: 7, New: []string{"👍"}},
	})
	if pub.count() != 0 {
		t.Fatal("anonymous reaction passed a closed gate")
	}

	g.handle(context.Background(), transport.Update{
		Kind:     transport.UpdateReaction,
		Reaction: &transport.Reaction{ChatID: 42, MessageID: 7, UserID: &uid, New: []string{"👍"}},
	})
	if pub.count() != 1 {
		t.Fatal("authorized reaction was dropped")
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	g := openGateway(pub, nil)

	ch := make(chan transport.Update, 1)
	ch <- textUpdate(1, 2, "bye")
	close(ch)

	if err := g.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d, want 1", pub.count())
	}
}
