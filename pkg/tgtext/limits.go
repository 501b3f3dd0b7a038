package tgtext

// Telegram size limits, in characters.
const (
	// MaxMessageLen is the limit for a plain text message.
	MaxMessageLen = 4096
	// MaxCaptionLen is the limit for a media caption.
	MaxCaptionLen = 1024

	// InlineRowBudget is the per-row width budget for inline keyboards.
	InlineRowBudget = 26
	// ReplyRowBudget is the per-row width budget for reply keyboards,
	// which render wider buttons than inline ones.
	ReplyRowBudget = 20
)
