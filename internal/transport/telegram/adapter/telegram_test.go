package adapter

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "ratatoskr/internal/transport"
	"ratatoskr/pkg/logx"
)

func adapterWithOut(ch chan kit.Update) *Adapter {
	a := &Adapter{log: logx.Nop()}
	var out chan<- kit.Update = ch
	a.out.Store(out)
	return a
}

func TestInterceptForwardsReactionUpdates(t *testing.T) {
	t.Parallel()
	ch := make(chan kit.Update, 1)
	a := adapterWithOut(ch)

	uid := int64(100)
	pass := a.interceptUpdate(&tele.Update{MessageReaction: &tele.MessageReaction{
		Chat:         &tele.Chat{ID: 42},
		MessageID:    7,
		User:         &tele.User{ID: uid},
		DateUnixtime: 1700000000,
		OldReaction:  []tele.Reaction{{Emoji: "👎"}},
		NewReaction:  []tele.Reaction{{Emoji: "👍"}},
	}})
	if pass {
		t.Fatal("reaction update leaked into normal dispatch")
	}

	select {
	case up := <-ch:
		if up.Kind != kit.UpdateReaction {
			t.Fatalf("kind = %q", up.Kind)
		}
		r := up.Reaction
		if r.ChatID != 42 || r.MessageID != 7 || r.Date != 1700000000 {
			t.Fatalf("reaction = %+v", r)
		}
		if r.UserID == nil || *r.UserID != uid {
			t.Fatalf("user id = %v", r.UserID)
		}
		if len(r.Old) != 1 || r.Old[0] != "👎" || len(r.New) != 1 || r.New[0] != "👍" {
			t.Fatalf("emoji lists = %v %v", r.Old, r.New)
		}
	default:
		t.Fatal("reaction was not forwarded")
	}
}

func TestInterceptPassesOtherUpdatesThrough(t *testing.T) {
	t.Parallel()
	ch := make(chan kit.Update, 1)
	a := adapterWithOut(ch)

	if !a.interceptUpdate(&tele.Update{Message: &tele.Message{ID: 1}}) {
		t.Fatal("plain message update was swallowed")
	}
	if len(ch) != 0 {
		t.Fatal("non-reaction update was forwarded directly")
	}

	// A reaction without a chat is unusable; drop it silently.
	if a.interceptUpdate(&tele.Update{MessageReaction: &tele.MessageReaction{MessageID: 7}}) {
		t.Fatal("chatless reaction reached normal dispatch")
	}
	if len(ch) != 0 {
		t.Fatal("chatless reaction was forwarded")
	}
}
