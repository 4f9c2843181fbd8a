// Package telegram adapts the Telegram Bot API to the transport boundary.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
)

// Media references are stored as "<kind>:<file_id>".
const (
	MediaPhoto    = "photo"
	MediaVideo    = "video"
	MediaDocument = "document"
	MediaVoice    = "voice"
)

// Bot is a long-polling Telegram client implementing transport.Sender.
type Bot struct {
	api *tgbotapi.BotAPI
	log *logger.Logger
}

func New(token string, log *logger.Logger) (*Bot, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("telegram")
	if err := tgbotapi.SetLogger(botLogger{log.Sugar()}); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Info("authorized", zap.String("username", api.Self.UserName))
	return &Bot{api: api, log: log}, nil
}

// Poll receives updates until ctx is cancelled. Updates of one participant
// are handled in the order Telegram delivered them; Poll returns after
// in-flight handlers finish.
func (b *Bot) Poll(ctx context.Context, h transport.Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	queue := transport.NewQueue(h)
	defer queue.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			in, ok := Convert(upd)
			if !ok {
				continue
			}
			queue.Dispatch(ctx, in)
		}
	}
}

// Convert maps an update to an inbound event. Updates without a sender are skipped.
func Convert(upd tgbotapi.Update) (transport.Inbound, bool) {
	if cq := upd.CallbackQuery; cq != nil && cq.From != nil {
		in := transport.Inbound{
			ParticipantID: cq.From.ID,
			ChatID:        cq.From.ID,
			Username:      cq.From.UserName,
			DisplayName:   displayName(cq.From),
			ChatKind:      transport.ChatPrivate,
			Callback:      &transport.Callback{ID: cq.ID, Data: cq.Data},
		}
		if cq.Message != nil {
			in.Callback.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				in.ChatID = cq.Message.Chat.ID
				in.ChatKind = chatKind(cq.Message.Chat)
			}
		}
		return in, true
	}
	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return transport.Inbound{}, false
	}
	in := transport.Inbound{
		ParticipantID: m.From.ID,
		ChatID:        m.Chat.ID,
		Username:      m.From.UserName,
		DisplayName:   displayName(m.From),
		ChatKind:      chatKind(m.Chat),
		Text:          m.Text,
		Caption:       m.Caption,
	}
	switch {
	case len(m.Photo) > 0:
		in.MediaRef = MediaPhoto + ":" + m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		in.MediaRef = MediaVideo + ":" + m.Video.FileID
	case m.Document != nil:
		in.MediaRef = MediaDocument + ":" + m.Document.FileID
	case m.Voice != nil:
		in.MediaRef = MediaVoice + ":" + m.Voice.FileID
	}
	if m.Location != nil {
		in.Location = &transport.Location{Latitude: m.Location.Latitude, Longitude: m.Location.Longitude}
	}
	in.Command, in.Args = transport.ParseCommand(m.Text)
	return in, true
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, kb *transport.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := replyMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) SendMedia(ctx context.Context, chatID int64, mediaRef, caption string, kb *transport.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kind, fileID, ok := strings.Cut(mediaRef, ":")
	if !ok || fileID == "" {
		return fmt.Errorf("telegram: malformed media reference %q", mediaRef)
	}
	file := tgbotapi.FileID(fileID)
	markup := replyMarkup(kb)
	var c tgbotapi.Chattable
	switch kind {
	case MediaPhoto:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption, p.ReplyMarkup = caption, markup
		c = p
	case MediaVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption, v.ReplyMarkup = caption, markup
		c = v
	case MediaVoice:
		v := tgbotapi.NewVoice(chatID, file)
		v.Caption, v.ReplyMarkup = caption, markup
		c = v
	default:
		d := tgbotapi.NewDocument(chatID, file)
		d.Caption, d.ReplyMarkup = caption, markup
		c = d
	}
	_, err := b.api.Send(c)
	return err
}

func (b *Bot) SendLocation(ctx context.Context, chatID int64, loc transport.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Send(tgbotapi.NewLocation(chatID, loc.Latitude, loc.Longitude))
	return err
}

func (b *Bot) SendDocument(ctx context.Context, chatID int64, doc transport.Document, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Content})
	d.Caption = caption
	_, err := b.api.Send(d)
	return err
}

func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *transport.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if kb != nil && len(kb.Inline) > 0 {
		markup := inlineMarkup(kb.Inline)
		edit.ReplyMarkup = &markup
	}
	_, err := b.api.Send(edit)
	return err
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func replyMarkup(kb *transport.Keyboard) interface{} {
	switch {
	case kb == nil:
		return nil
	case len(kb.Inline) > 0:
		return inlineMarkup(kb.Inline)
	case len(kb.Reply) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Reply))
		for _, row := range kb.Reply {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		return markup
	}
	return nil
}

func inlineMarkup(rows [][]transport.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func chatKind(c *tgbotapi.Chat) transport.ChatKind {
	if c.IsPrivate() {
		return transport.ChatPrivate
	}
	return transport.ChatGroup
}

func displayName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// botLogger routes the library's own log lines through zap.
type botLogger struct {
	s *zap.SugaredLogger
}

func (l botLogger) Println(v ...interface{})               { l.s.Debug(v...) }
func (l botLogger) Printf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
