package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Platform is the only chat platform this bridge speaks.
const Platform = "telegram"

// Outbound kinds, produced by the external handler.
const (
	KindText      = "TextMessage"
	KindImage     = "ImageMessage"
	KindAudio     = "AudioMessage"
	KindVoice     = "VoiceMessage"
	KindVideo     = "VideoMessage"
	KindVideoNote = "VideoNoteMessage"
	KindDocument  = "DocumentMessage"
	KindSticker   = "StickerMessage"
	KindAnimation = "AnimationMessage"
	KindEdit      = "EditMessage"
	KindDelete    = "DeleteMessage"
	KindTyping    = "TypingMessage"
)

// Inbound kinds, produced by this bridge.
const (
	KindTelegramMessage = "TelegramMessage"
	KindCallbackQuery   = "CallbackQuery"
	KindMessageReaction = "MessageReaction"
	KindEditedMessage   = "EditedMessage"
)

// Tagged is the inner {"type": ..., "data": ...} union.
type Tagged struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewTagged wraps a payload value under its kind name.
func NewTagged(kind string, payload any) (Tagged, error) {
	if payload == nil {
		return Tagged{Type: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Tagged{}, fmt.Errorf("wire: encode %s payload: %w", kind, err)
	}
	return Tagged{Type: kind, Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (t Tagged) Decode(v any) error {
	if len(t.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Data, v); err != nil {
		return fmt.Errorf("wire: decode %s payload: %w", t.Type, err)
	}
	return nil
}

// Source identifies where an inbound envelope came from.
type Source struct {
	Platform    string `json:"platform"`
	BotID       *int64 `json:"bot_id"`
	BotUsername string `json:"bot_username,omitempty"`
}

// Target addresses an outbound command.
type Target struct {
	Platform string `json:"platform"`
	ChatID   int64  `json:"chat_id"`
	ThreadID *int   `json:"thread_id,omitempty"`
}

// Inbound is the envelope published on the in topic.
type Inbound struct {
	TraceID     string    `json:"trace_id"`
	MessageType Tagged    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
	Source      Source    `json:"source"`
}

// Outbound is the envelope consumed from the out topic.
type Outbound struct {
	TraceID     string    `json:"trace_id,omitempty"`
	MessageType Tagged    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
	Target      Target    `json:"target"`
}

// DecodeOutbound parses a raw broker payload into an Outbound envelope.
func DecodeOutbound(payload []byte) (*Outbound, error) {
	var out Outbound
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("wire: decode outbound envelope: %w", err)
	}
	if out.MessageType.Type == "" {
		return nil, fmt.Errorf("wire: outbound envelope missing message type")
	}
	return &out, nil
}

// NewInbound builds an inbound envelope around an already-tagged payload.
func NewInbound(traceID string, src Source, mt Tagged) Inbound {
	return Inbound{
		TraceID:     traceID,
		MessageType: mt,
		Timestamp:   time.Now().UTC(),
		Source:      src,
	}
}
