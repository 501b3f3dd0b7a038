// Package dispatch consumes outbound envelopes from the broker stream
// and drives the platform client: formatting, chunking, keyboard
// layout, send pacing, and delivery reports.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"ratatoskr/internal/transport"
	"ratatoskr/internal/wire"
	"ratatoskr/pkg/logx"
	"ratatoskr/pkg/tgtext"
)

// StatusPublisher receives best-effort delivery reports. May be nil.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, key string, payload []byte) error
}

// Dispatcher executes outbound commands strictly in stream order. One
// failed command is logged and reported; it never halts the stream.
type Dispatcher struct {
	client  transport.Client
	status  StatusPublisher
	limiter *rate.Limiter
	log     logx.Logger
}

func New(client transport.Client, status StatusPublisher, ratePerSec int, log logx.Logger) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		client:  client,
		status:  status,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// Run consumes the stream until it closes or ctx ends.
func (d *Dispatcher) Run(ctx context.Context, stream <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-stream:
			if !ok {
				return nil
			}
			d.dispatch(ctx, payload)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, payload []byte) {
	env, err := wire.DecodeOutbound(payload)
	if err != nil {
		d.log.Warn("malformed outbound envelope", logx.Err(err))
		return
	}
	to := transport.ChatTarget{ChatID: env.Target.ChatID}
	if env.Target.ThreadID != nil {
		to.ThreadID = *env.Target.ThreadID
	}

	ref, err := d.execute(ctx, env, to)
	if err != nil {
		d.log.Error("outbound command failed",
			logx.String("kind", env.MessageType.Type),
			logx.Int64("chat_id", to.ChatID),
			logx.Err(err))
	}
	// Typing is fire-and-forget; everything else gets a report.
	if env.MessageType.Type != wire.KindTyping {
		d.report(ctx, env, to, ref, err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, env *wire.Outbound, to transport.ChatTarget) (transport.MessageRef, error) {
	var none transport.MessageRef
	switch env.MessageType.Type {
	case wire.KindText:
		var m wire.TextMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendText(ctx, to, m)

	case wire.KindImage:
		var m wire.ImageMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaPhoto, m.ImagePath, m.Caption, m.Buttons, m.ReplyKeyboard)

	case wire.KindAudio:
		var m wire.AudioMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaAudio, m.AudioPath, m.Caption, m.Buttons, m.ReplyKeyboard)

	case wire.KindVoice:
		var m wire.VoiceMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaVoice, m.VoicePath, m.Caption, m.Buttons, m.ReplyKeyboard)

	case wire.KindVideo:
		var m wire.VideoMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaVideo, m.VideoPath, m.Caption, m.Buttons, m.ReplyKeyboard)

	case wire.KindVideoNote:
		var m wire.VideoNoteMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaVideoNote, m.VideoNotePath, "", m.Buttons, m.ReplyKeyboard)

	case wire.KindDocument:
		var m wire.DocumentMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaDocument, m.DocumentPath, m.Caption, m.Buttons, m.ReplyKeyboard)

	case wire.KindSticker:
		var m wire.StickerMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaSticker, m.StickerPath, "", m.Buttons, m.ReplyKeyboard)

	case wire.KindAnimation:
		var m wire.AnimationMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.sendMedia(ctx, to, transport.MediaAnimation, m.AnimationPath, m.Caption, m.Buttons, m.ReplyKeyboard)

	case wire.KindEdit:
		var m wire.EditMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		return d.edit(ctx, to, m)

	case wire.KindDelete:
		var m wire.DeleteMessage
		if err := env.MessageType.Decode(&m); err != nil {
			return none, err
		}
		ref := transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.MessageID}
		if err := d.limiter.Wait(ctx); err != nil {
			return none, err
		}
		return ref, d.client.DeleteMessage(ctx, ref)

	case wire.KindTyping:
		if err := d.limiter.Wait(ctx); err != nil {
			return none, err
		}
		return none, d.client.SendTyping(ctx, to)

	default:
		return none, fmt.Errorf("unknown message type %q", env.MessageType.Type)
	}
}

// sendText chunks the raw text, attaches keyboards to the first chunk
// only, and falls back to an unformatted send when a formatted chunk is
// rejected.
func (d *Dispatcher) sendText(ctx context.Context, to transport.ChatTarget, m wire.TextMessage) (transport.MessageRef, error) {
	chunks := tgtext.Split(m.Text, tgtext.MaxMessageLen)
	if len(chunks) == 0 {
		// The platform rejects empty sends outright.
		return transport.MessageRef{}, errors.New("empty text message")
	}

	var first transport.MessageRef
	var firstErr error
	for i, chunk := range chunks {
		opt := &transport.SendOptions{DisablePreview: m.DisableWebPagePreview}
		if i == 0 {
			opt.Inline = inlineRows(m.Buttons)
			opt.Reply = replyRows(m.ReplyKeyboard)
		}
		ref, err := d.sendChunk(ctx, to, chunk, m.ParseMode, opt)
		if err != nil {
			if ctx.Err() != nil {
				return first, err
			}
			// Drop the chunk, keep the rest of the message flowing.
			d.log.Warn("chunk dropped",
				logx.Int64("chat_id", to.ChatID),
				logx.Int("chunk", i), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if first.MessageID == 0 {
			first = ref
		}
	}
	return first, firstErr
}

func (d *Dispatcher) sendChunk(ctx context.Context, to transport.ChatTarget, raw, parseMode string, opt *transport.SendOptions) (transport.MessageRef, error) {
	rendered, mode := render(raw, parseMode)
	opt.ParseMode = mode
	if err := d.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	ref, err := d.client.SendText(ctx, to, rendered, opt)
	if err == nil || mode == "" {
		return ref, err
	}

	// The platform rejected the formatted text; deliver the raw text
	// unformatted rather than dropping the message.
	d.log.Warn("formatted send rejected, retrying unformatted",
		logx.Int64("chat_id", to.ChatID), logx.Err(err))
	opt.ParseMode = ""
	if err := d.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	return d.client.SendText(ctx, to, raw, opt)
}

// render maps the handler's parse mode onto what actually gets sent.
// Markdown is converted to HTML locally; Telegram's own markdown parser
// rejects too many handler-generated strings.
func render(text, parseMode string) (rendered, mode string) {
	switch strings.ToLower(parseMode) {
	case "markdown", "markdownv2":
		return tgtext.ToHTML(text), "HTML"
	case "html":
		return text, "HTML"
	default:
		return text, ""
	}
}

// sendMedia fast-fails on a missing file before touching the API.
// Caption overflow beyond the caption limit continues as plain text
// messages after the media message.
func (d *Dispatcher) sendMedia(ctx context.Context, to transport.ChatTarget, kind transport.MediaKind, path, caption string, buttons [][]wire.Button, kb *wire.ReplyKeyboard) (transport.MessageRef, error) {
	var none transport.MessageRef
	if _, err := os.Stat(path); err != nil {
		return none, fmt.Errorf("media file %q: %w", path, err)
	}

	capChunks := tgtext.Split(caption, tgtext.MaxCaptionLen)
	head := ""
	if len(capChunks) > 0 {
		head = capChunks[0]
	}

	opt := &transport.SendOptions{
		Inline: inlineRows(buttons),
		Reply:  replyRows(kb),
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return none, err
	}
	first, err := d.client.SendMedia(ctx, to, kind, path, head, opt)
	if err != nil {
		return none, err
	}
	for _, c := range capChunks[1:] {
		if err := d.limiter.Wait(ctx); err != nil {
			return first, err
		}
		if _, err := d.client.SendText(ctx, to, c, &transport.SendOptions{}); err != nil {
			return first, err
		}
	}
	return first, nil
}

func (d *Dispatcher) edit(ctx context.Context, to transport.ChatTarget, m wire.EditMessage) (transport.MessageRef, error) {
	ref := transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.MessageID}
	opt := &transport.SendOptions{Inline: inlineRows(m.NewButtons)}
	if err := d.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	// Without new text this is a markup-only edit; the platform rejects
	// editing a message to empty text.
	if m.NewText == "" {
		return ref, d.client.EditMarkup(ctx, ref, opt)
	}
	return ref, d.client.EditText(ctx, ref, m.NewText, opt)
}

func (d *Dispatcher) report(ctx context.Context, env *wire.Outbound, to transport.ChatTarget, ref transport.MessageRef, sendErr error) {
	if d.status == nil {
		return
	}
	st := wire.SentStatus{
		ChatID:              to.ChatID,
		MessageID:           ref.MessageID,
		Status:              wire.StatusSuccess,
		Timestamp:           time.Now().UTC(),
		OriginalMessageType: env.MessageType.Type,
	}
	if sendErr != nil {
		st.Status = wire.StatusFailed
	}
	if env.TraceID != "" {
		tid := env.TraceID
		st.OriginalCorrelationID = &tid
	}
	payload, err := json.Marshal(st)
	if err != nil {
		d.log.Error("encode status report", logx.Err(err))
		return
	}
	key := strconv.FormatInt(to.ChatID, 10)
	if err := d.status.PublishStatus(ctx, key, payload); err != nil {
		d.log.Warn("publish status report", logx.Err(err))
	}
}

func inlineRows(rows [][]wire.Button) [][]transport.Button {
	if len(rows) == 0 {
		return nil
	}
	conv := make([][]transport.Button, 0, len(rows))
	for _, row := range rows {
		r := make([]transport.Button, 0, len(row))
		for _, b := range row {
			r = append(r, transport.Button{Text: b.Text, Data: b.CallbackData})
		}
		conv = append(conv, r)
	}
	return tgtext.AutoLayout(conv, buttonWidth, tgtext.InlineRowBudget)
}

func replyRows(kb *wire.ReplyKeyboard) [][]transport.ReplyButton {
	if kb == nil || len(kb.Keyboard) == 0 {
		return nil
	}
	conv := make([][]transport.ReplyButton, 0, len(kb.Keyboard))
	for _, row := range kb.Keyboard {
		r := make([]transport.ReplyButton, 0, len(row))
		for _, b := range row {
			rb := transport.ReplyButton{Text: b.Text}
			if b.WebApp != nil {
				rb.WebAppURL = b.WebApp.URL
			}
			r = append(r, rb)
		}
		conv = append(conv, r)
	}
	return tgtext.AutoLayout(conv, replyButtonWidth, tgtext.ReplyRowBudget)
}

func buttonWidth(b transport.Button) int { return utf8.RuneCountInString(b.Text) }
func replyButtonWidth(b transport.ReplyButton) int { return utf8.RuneCountInString(b.Text) }
