package wire

import "time"

// ChatMessage is the flattened view of an inbound chat message. The
// platform's own message object is far larger; the external handler
// only ever needed these fields.
type ChatMessage struct {
	MessageID      int          `json:"message_id"`
	ChatID         int64        `json:"chat_id"`
	ThreadID       *int         `json:"thread_id,omitempty"`
	SenderID       int64        `json:"sender_id"`
	SenderUsername string       `json:"sender_username,omitempty"`
	SenderName     string       `json:"sender_name,omitempty"`
	Text           string       `json:"text,omitempty"`
	Attachments    []Attachment `json:"file_attachments"`
}

// Attachment describes a file referenced by an inbound message.
// Files are not downloaded; the handler fetches them itself if needed.
type Attachment struct {
	Kind         string `json:"kind"`
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FileName     string `json:"file_name,omitempty"`
}

// Attachment kinds.
const (
	AttachPhoto     = "photo"
	AttachAudio     = "audio"
	AttachVoice     = "voice"
	AttachVideo     = "video"
	AttachVideoNote = "video_note"
	AttachDocument  = "document"
	AttachSticker   = "sticker"
	AttachAnimation = "animation"
)

type CallbackQuery struct {
	ChatID          int64  `json:"chat_id"`
	UserID          int64  `json:"user_id"`
	MessageID       int    `json:"message_id"`
	CallbackData    string `json:"callback_data"`
	CallbackQueryID string `json:"callback_query_id"`
}

type MessageReaction struct {
	ChatID      int64     `json:"chat_id"`
	MessageID   int       `json:"message_id"`
	UserID      *int64    `json:"user_id"` // nil when anonymous
	Date        time.Time `json:"date"`
	OldReaction []string  `json:"old_reaction"`
	NewReaction []string  `json:"new_reaction"`
}

type EditedMessage struct {
	ChatMessage
	EditDate *int64 `json:"edit_date,omitempty"`
}
