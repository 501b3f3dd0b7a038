// Package transport defines the platform-neutral surface between the
// chat platform adapter and the rest of the bridge: inbound updates on
// one side, a narrow send/edit/delete client on the other.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateEdited   UpdateKind = "edited"
	UpdateReaction UpdateKind = "reaction"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Edited   *Message
	Reaction *Reaction
}

// Attachment describes one file carried by a message.
type Attachment struct {
	Kind         string // photo, audio, voice, video, video_note, document, sticker, animation
	FileID       string
	FileUniqueID string
	FileSize     int64
	FileName     string
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	Attachments  []Attachment
	EditDate     int64 // unix seconds, edited messages only
}

type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	ChatID       int64
	ThreadID     int
	MessageID    int
	Data         string
}

type Reaction struct {
	ChatID    int64
	MessageID int
	UserID    *int64 // nil for anonymous/channel reactions
	Old       []string
	New       []string
	Date      int64
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Button is one inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// ReplyButton is one button of a persistent reply keyboard; WebAppURL
// is optional.
type ReplyButton struct {
	Text      string
	WebAppURL string
}

type SendOptions struct {
	ParseMode      string // "", "HTML", "MarkdownV2"
	DisablePreview bool
	Inline         [][]Button
	Reply          [][]ReplyButton
}

type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaVideo     MediaKind = "video"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
)

// Client is the outbound surface the dispatcher drives. One call maps
// to one platform API call; chunking and formatting happen above.
type Client interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, kind MediaKind, path, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditMarkup(ctx context.Context, ref MessageRef, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendTyping(ctx context.Context, to ChatTarget) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Adapter is a Client that also produces inbound updates.
type Adapter interface {
	Client

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// BotIdentity reports the authenticated bot account, valid after
	// construction.
	BotIdentity() (id int64, username string)
}
