// Package gateway carries authorized platform updates onto the broker.
//
// Every update passes the auth gate first; what survives is flattened
// into the envelope format the external handler consumes and published
// keyed by chat id, so per-conversation ordering holds on partitioned
// backends.
package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ratatoskr/internal/auth"
	"ratatoskr/internal/transport"
	"ratatoskr/internal/wire"
	"ratatoskr/pkg/logx"
)

// Publisher is the broker side the gateway needs.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// CallbackAnswerer acknowledges callback queries so clients stop
// showing a spinner.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type Gateway struct {
	gate     *auth.Gate
	pub      Publisher
	answerer CallbackAnswerer
	source   wire.Source
	log      logx.Logger
}

func New(gate *auth.Gate, pub Publisher, answerer CallbackAnswerer, source wire.Source, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{gate: gate, pub: pub, answerer: answerer, source: source, log: log}
}

// Run consumes updates until the channel closes or ctx ends. One bad
// update never stops the loop.
func (g *Gateway) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			g.handle(ctx, up)
		}
	}
}

func (g *Gateway) handle(ctx context.Context, up transport.Update) {
	senderID, username := senderOf(up)

	if !g.gate.Open() {
		idx, ok := g.gate.Check(senderID, username)
		if !ok {
			g.log.Debug("unauthorized update dropped",
				logx.String("kind", string(up.Kind)),
				logx.Int64("sender_id", senderID),
				logx.String("username", username))
			return
		}
		if g.gate.NeedsPromotion(idx) {
			if err := g.gate.Promote(ctx, idx, senderID); err != nil {
				// The in-memory binding holds; only persistence failed.
				g.log.Warn("user promotion not persisted", logx.Err(err))
			}
		}
	}

	// Acknowledge callbacks right away so clients stop spinning; the
	// publish below may still fail independently.
	if up.Kind == transport.UpdateCallback && g.answerer != nil {
		if err := g.answerer.AnswerCallback(ctx, up.Callback.ID, ""); err != nil {
			g.log.Debug("answer callback", logx.Err(err))
		}
	}

	env, key, ok := g.envelope(up)
	if !ok {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		g.log.Error("encode inbound envelope", logx.Err(err))
		return
	}
	if err := g.pub.Publish(ctx, key, payload); err != nil {
		g.log.Error("publish inbound envelope",
			logx.String("kind", env.MessageType.Type), logx.Err(err))
		return
	}
}

func senderOf(up transport.Update) (int64, string) {
	switch up.Kind {
	case transport.UpdateMessage:
		return up.Message.FromID, up.Message.FromUsername
	case transport.UpdateCallback:
		return up.Callback.FromID, up.Callback.FromUsername
	case transport.UpdateEdited:
		return up.Edited.FromID, up.Edited.FromUsername
	case transport.UpdateReaction:
		if up.Reaction.UserID != nil {
			return *up.Reaction.UserID, ""
		}
	}
	return 0, ""
}

func (g *Gateway) envelope(up transport.Update) (wire.Inbound, string, bool) {
	var (
		mt  wire.Tagged
		key string
		err error
	)
	switch up.Kind {
	case transport.UpdateMessage:
		mt, err = wire.NewTagged(wire.KindTelegramMessage, chatMessage(up.Message))
		key = strconv.FormatInt(up.Message.ChatID, 10)
	case transport.UpdateCallback:
		cb := up.Callback
		mt, err = wire.NewTagged(wire.KindCallbackQuery, wire.CallbackQuery{
			ChatID:          cb.ChatID,
			UserID:          cb.FromID,
			MessageID:       cb.MessageID,
			CallbackData:    cb.Data,
			CallbackQueryID: cb.ID,
		})
		key = strconv.FormatInt(cb.ChatID, 10)
	case transport.UpdateReaction:
		r := up.Reaction
		mt, err = wire.NewTagged(wire.KindMessageReaction, wire.MessageReaction{
			ChatID:      r.ChatID,
			MessageID:   r.MessageID,
			UserID:      r.UserID,
			Date:        unixTime(r.Date),
			OldReaction: emptyIfNil(r.Old),
			NewReaction: emptyIfNil(r.New),
		})
		key = strconv.FormatInt(r.ChatID, 10)
	case transport.UpdateEdited:
		m := up.Edited
		em := wire.EditedMessage{ChatMessage: *chatMessage(m)}
		if m.EditDate != 0 {
			d := m.EditDate
			em.EditDate = &d
		}
		mt, err = wire.NewTagged(wire.KindEditedMessage, em)
		key = strconv.FormatInt(m.ChatID, 10)
	default:
		g.log.Warn("unknown update kind", logx.String("kind", string(up.Kind)))
		return wire.Inbound{}, "", false
	}
	if err != nil {
		g.log.Error("encode inbound payload", logx.Err(err))
		return wire.Inbound{}, "", false
	}
	return wire.NewInbound(uuid.NewString(), g.source, mt), key, true
}

func chatMessage(m *transport.Message) *wire.ChatMessage {
	cm := &wire.ChatMessage{
		MessageID:      m.ID,
		ChatID:         m.ChatID,
		SenderID:       m.FromID,
		SenderUsername: m.FromUsername,
		SenderName:     m.FromName,
		Text:           m.Text,
		Attachments:    []wire.Attachment{},
	}
	if m.ThreadID != 0 {
		t := m.ThreadID
		cm.ThreadID = &t
	}
	for _, a := range m.Attachments {
		cm.Attachments = append(cm.Attachments, wire.Attachment{
			Kind:         a.Kind,
			FileID:       a.FileID,
			FileUniqueID: a.FileUniqueID,
			FileSize:     a.FileSize,
			FileName:     a.FileName,
		})
	}
	return cm
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
