package wire

// Button is one inline keyboard button.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// ReplyButton is one reply-keyboard button.
type ReplyButton struct {
	Text            string   `json:"text"`
	RequestContact  *bool    `json:"request_contact,omitempty"`
	RequestLocation *bool    `json:"request_location,omitempty"`
	WebApp          *WebApp  `json:"web_app,omitempty"`
}

type WebApp struct {
	URL string `json:"url"`
}

// ReplyKeyboard mirrors Telegram's reply keyboard markup.
type ReplyKeyboard struct {
	Keyboard              [][]ReplyButton `json:"keyboard"`
	IsPersistent          *bool           `json:"is_persistent,omitempty"`
	ResizeKeyboard        *bool           `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard       *bool           `json:"one_time_keyboard,omitempty"`
	InputFieldPlaceholder string          `json:"input_field_placeholder,omitempty"`
	Selective             *bool           `json:"selective,omitempty"`
}

type TextMessage struct {
	Text                  string          `json:"text"`
	Buttons               [][]Button      `json:"buttons,omitempty"`
	ReplyKeyboard         *ReplyKeyboard  `json:"reply_keyboard,omitempty"`
	ParseMode             string          `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool            `json:"disable_web_page_preview,omitempty"`
}

type ImageMessage struct {
	ImagePath     string         `json:"image_path"`
	Caption       string         `json:"caption,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type AudioMessage struct {
	AudioPath     string         `json:"audio_path"`
	Caption       string         `json:"caption,omitempty"`
	Duration      int            `json:"duration,omitempty"`
	Performer     string         `json:"performer,omitempty"`
	Title         string         `json:"title,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type VoiceMessage struct {
	VoicePath     string         `json:"voice_path"`
	Caption       string         `json:"caption,omitempty"`
	Duration      int            `json:"duration,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type VideoMessage struct {
	VideoPath         string         `json:"video_path"`
	Caption           string         `json:"caption,omitempty"`
	Duration          int            `json:"duration,omitempty"`
	Width             int            `json:"width,omitempty"`
	Height            int            `json:"height,omitempty"`
	SupportsStreaming bool           `json:"supports_streaming,omitempty"`
	Buttons           [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard     *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type VideoNoteMessage struct {
	VideoNotePath string         `json:"video_note_path"`
	Duration      int            `json:"duration,omitempty"`
	Length        int            `json:"length,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type DocumentMessage struct {
	DocumentPath  string         `json:"document_path"`
	Filename      string         `json:"filename,omitempty"`
	Caption       string         `json:"caption,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type StickerMessage struct {
	StickerPath   string         `json:"sticker_path"`
	Emoji         string         `json:"emoji,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type AnimationMessage struct {
	AnimationPath string         `json:"animation_path"`
	Caption       string         `json:"caption,omitempty"`
	Duration      int            `json:"duration,omitempty"`
	Width         int            `json:"width,omitempty"`
	Height        int            `json:"height,omitempty"`
	Buttons       [][]Button     `json:"buttons,omitempty"`
	ReplyKeyboard *ReplyKeyboard `json:"reply_keyboard,omitempty"`
}

type EditMessage struct {
	MessageID  int        `json:"message_id"`
	NewText    string     `json:"new_text,omitempty"`
	NewButtons [][]Button `json:"new_buttons,omitempty"`
}

type DeleteMessage struct {
	MessageID int `json:"message_id"`
}

// TypingMessage has no payload; the kind alone carries the intent.
type TypingMessage struct{}
