package adapter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "ratatoskr/internal/runtime/supervisor"
	kit "ratatoskr/internal/transport"
	"ratatoskr/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot to the transport surface: long-poll updates
// flow out on a channel, outbound calls map one-to-one onto bot API
// methods.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger,
	// stop watcher). Created on Start(), cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was
	// slower than the poll loop; reported periodically, not per update.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)

	// Reaction updates must be requested explicitly and telebot has no
	// handler route for them; the poller filter picks them off before
	// normal dispatch.
	poller := &tele.LongPoller{
		Timeout: timeout,
		AllowedUpdates: []string{
			"message", "edited_message", "callback_query", "message_reaction",
		},
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: tele.NewMiddlewarePoller(poller, a.interceptUpdate),
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	a.registerHandlers()
	return a, nil
}

// interceptUpdate forwards reaction updates onto the output channel and
// drops them from telebot's own dispatch, which has no route for them.
// Everything else passes through untouched.
func (a *Adapter) interceptUpdate(u *tele.Update) bool {
	mr := u.MessageReaction
	if mr == nil {
		return true
	}
	if mr.Chat == nil {
		return false
	}
	r := &kit.Reaction{
		ChatID:    mr.Chat.ID,
		MessageID: mr.MessageID,
		Old:       reactionEmojis(mr.OldReaction),
		New:       reactionEmojis(mr.NewReaction),
		Date:      mr.DateUnixtime,
	}
	if mr.User != nil {
		id := mr.User.ID
		r.UserID = &id
	}
	a.sendUpdate(kit.Update{Kind: kit.UpdateReaction, Reaction: r})
	return false
}

// BotIdentity reports the authenticated bot account.
func (a *Adapter) BotIdentity() (int64, string) {
	if a.bot == nil || a.bot.Me == nil {
		return 0, ""
	}
	return a.bot.Me.ID, a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: flattenMessage(m)})
		return nil
	})

	mediaHandler := func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: flattenMessage(m)})
		return nil
	}
	for _, ep := range []string{
		tele.OnPhoto, tele.OnAudio, tele.OnVoice, tele.OnVideo,
		tele.OnVideoNote, tele.OnDocument, tele.OnSticker, tele.OnAnimation,
	} {
		a.bot.Handle(ep, mediaHandler)
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		up := kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:           cb.ID,
				FromID:       cb.Sender.ID,
				FromUsername: cb.Sender.Username,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				MessageID:    m.ID,
				Data:         strings.TrimPrefix(cb.Data, "\f"),
			},
		}
		a.sendUpdate(up)
		return nil
	})

	a.bot.Handle(tele.OnEdited, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		fm := flattenMessage(m)
		fm.EditDate = m.LastEdit
		a.sendUpdate(kit.Update{Kind: kit.UpdateEdited, Edited: fm})
		return nil
	})
}

func flattenMessage(m *tele.Message) *kit.Message {
	out := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
		out.FromName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	out.Attachments = flattenAttachments(m)
	return out
}

func flattenAttachments(m *tele.Message) []kit.Attachment {
	var out []kit.Attachment
	add := func(kind string, f tele.File, name string) {
		out = append(out, kit.Attachment{
			Kind:         kind,
			FileID:       f.FileID,
			FileUniqueID: f.UniqueID,
			FileSize:     f.FileSize,
			FileName:     name,
		})
	}
	switch {
	case m.Photo != nil:
		add("photo", m.Photo.File, "")
	case m.Audio != nil:
		add("audio", m.Audio.File, m.Audio.FileName)
	case m.Voice != nil:
		add("voice", m.Voice.File, "")
	case m.Video != nil:
		add("video", m.Video.File, m.Video.FileName)
	case m.VideoNote != nil:
		add("video_note", m.VideoNote.File, "")
	case m.Document != nil:
		add("document", m.Document.File, m.Document.FileName)
	case m.Sticker != nil:
		add("sticker", m.Sticker.File, "")
	case m.Animation != nil:
		add("animation", m.Animation.File, m.Animation.FileName)
	}
	return out
}

func reactionEmojis(rs []tele.Reaction) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.Emoji != "" {
			out = append(out, r.Emoji)
		}
	}
	return out
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// Adapter failures should not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)",
					logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	// Stop telebot when the adapter context is cancelled.
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() blocks until Stop(). In some failure modes it
	// can exit unexpectedly; run it under a restart loop so the adapter
	// self-heals.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("stopping",
		logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))

	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}
	if sup == nil {
		return nil
	}

	// Grace window: keep shutdown snappy even if getUpdates long-poll
	// is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

func buildMarkup(opt *kit.SendOptions) *tele.ReplyMarkup {
	if opt == nil || (len(opt.Inline) == 0 && len(opt.Reply) == 0) {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	if len(opt.Inline) > 0 {
		rows := make([][]tele.InlineButton, 0, len(opt.Inline))
		for _, row := range opt.Inline {
			r := make([]tele.InlineButton, 0, len(row))
			for _, b := range row {
				r = append(r, tele.InlineButton{Text: b.Text, Data: b.Data})
			}
			rows = append(rows, r)
		}
		rm.InlineKeyboard = rows
	}
	if len(opt.Reply) > 0 {
		rows := make([][]tele.ReplyButton, 0, len(opt.Reply))
		for _, row := range opt.Reply {
			r := make([]tele.ReplyButton, 0, len(row))
			for _, b := range row {
				rb := tele.ReplyButton{Text: b.Text}
				if b.WebAppURL != "" {
					rb.WebApp = &tele.WebApp{URL: b.WebAppURL}
				}
				r = append(r, rb)
			}
			rows = append(rows, r)
		}
		rm.ReplyKeyboard = rows
		rm.ResizeKeyboard = true
	}
	return rm
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
		so.ReplyMarkup = buildMarkup(opt)
	}
	return so
}

func ctxDone(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxDone(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, kind kit.MediaKind, path, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxDone(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	file := tele.FromDisk(path)

	var what any
	switch kind {
	case kit.MediaPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case kit.MediaAudio:
		what = &tele.Audio{File: file, Caption: caption, FileName: filepath.Base(path)}
	case kit.MediaVoice:
		what = &tele.Voice{File: file, Caption: caption}
	case kit.MediaVideo:
		what = &tele.Video{File: file, Caption: caption, FileName: filepath.Base(path)}
	case kit.MediaVideoNote:
		what = &tele.VideoNote{File: file}
	case kit.MediaDocument:
		what = &tele.Document{File: file, Caption: caption, FileName: filepath.Base(path)}
	case kit.MediaSticker:
		what = &tele.Sticker{File: file}
	case kit.MediaAnimation:
		what = &tele.Animation{File: file, Caption: caption, FileName: filepath.Base(path)}
	default:
		return kit.MessageRef{}, errors.New("unknown media kind " + string(kind))
	}

	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, opt)
	_, err := a.bot.Edit(m, text, so)
	return err
}

func (a *Adapter) EditMarkup(ctx context.Context, ref kit.MessageRef, opt *kit.SendOptions) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.EditReplyMarkup(m, buildMarkup(opt))
	return err
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}
	return a.bot.Delete(&tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}})
}

func (a *Adapter) SendTyping(ctx context.Context, to kit.ChatTarget) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}
	return a.bot.Notify(&tele.Chat{ID: to.ChatID}, tele.Typing)
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
