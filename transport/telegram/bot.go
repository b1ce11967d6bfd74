// Package telegram connects the selection protocol to a Telegram bot.
package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
	"github.com/C0nstantin/mailrelay/selection"
)

type Config struct {
	Token       string        `yaml:"token" env:"TELEGRAM_TOKEN" env-description:"Telegram bot token"`
	Workers     int           `yaml:"workers" env:"TELEGRAM_WORKERS" env-default:"4" env-description:"number of update workers"`
	PollTimeout time.Duration `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT" env-default:"60s" env-description:"long polling timeout"`
	Debug       bool          `yaml:"debug" env:"TELEGRAM_DEBUG" env-description:"log raw Bot API traffic"`
}

// Protocol is the part of selection.Protocol the bot drives.
type Protocol interface {
	Start(ctx context.Context, userID int64) selection.Reply
	Help(ctx context.Context, userID int64) selection.Reply
	Find(ctx context.Context, userID int64, surname string) selection.Reply
	Select(ctx context.Context, userID int64, index int) selection.Reply
	Message(ctx context.Context, userID int64, body string) selection.Reply
	Cancel(ctx context.Context, userID int64) selection.Reply
}

// Notifier reports panics recovered while handling an update.
type Notifier interface {
	Notify(err error)
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api         botAPI
	protocol    Protocol
	workers     int
	pollTimeout time.Duration
	logger      log.Logger
	notifier    Notifier
}

// New authorizes the token against the Bot API.
func New(cfg Config, protocol Protocol, logger log.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Er(err, "telegram: authorize bot")
	}
	api.Debug = cfg.Debug
	logger.Infof("authorized on account @%s", api.Self.UserName)
	return newBot(api, cfg, protocol, logger), nil
}

func newBot(api botAPI, cfg Config, protocol Protocol, logger log.Logger) *Bot {
	return &Bot{
		api:         api,
		protocol:    protocol,
		workers:     cfg.Workers,
		pollTimeout: cfg.PollTimeout,
		logger:      logger,
	}
}

// SetNotifier enables reporting of recovered panics.
func (b *Bot) SetNotifier(n Notifier) { b.notifier = n }

// Run polls updates until ctx is done, then waits for queued updates. Those
// are handled with a context that outlives ctx, so a text accepted before
// shutdown is still relayed instead of failing on a cancelled dial.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.pollTimeout / time.Second)
	updates := b.api.GetUpdatesChan(u)

	pool := newWorkerPool(b.workers, 16, b.handle)
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	b.logger.Infof("polling updates with %d workers", len(pool.queues))
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			userID, ok := senderOf(upd)
			if !ok {
				b.logger.Debugf("skip update %d without sender", upd.UpdateID)
				continue
			}
			pool.Dispatch(ctx, userID, upd)
		}
	}
}

func senderOf(upd tgbotapi.Update) (int64, bool) {
	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID, true
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID, true
	}
	return 0, false
}

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	defer b.recoverPanic(upd.UpdateID)

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) recoverPanic(updateID int) {
	r := recover()
	if r == nil {
		return
	}
	err := errors.Errorf("panic while handling update %d: %v", updateID, r)
	b.logger.Errorf("%+v", err)
	if b.notifier != nil {
		b.notifier.Notify(err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	userID := m.From.ID
	var reply selection.Reply
	if m.IsCommand() {
		switch m.Command() {
		case "start":
			reply = b.protocol.Start(ctx, userID)
		case "find":
			reply = b.protocol.Find(ctx, userID, m.CommandArguments())
		case "cancel":
			reply = b.protocol.Cancel(ctx, userID)
		default:
			reply = b.protocol.Help(ctx, userID)
		}
	} else {
		// Text is empty for photos, stickers and other non-text content.
		reply = b.protocol.Message(ctx, userID, m.Text)
	}
	b.send(b.render(m.Chat.ID, 0, reply))
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Warnf("answer callback %s: %s", q.ID, err)
	}

	index, ok := selection.ParseSelectPayload(q.Data)
	if !ok {
		index = -1
	}
	reply := b.protocol.Select(ctx, q.From.ID, index)

	chatID, messageID := q.From.ID, 0
	if q.Message != nil {
		chatID, messageID = q.Message.Chat.ID, q.Message.MessageID
	}
	b.send(b.render(chatID, messageID, reply))
}

func (b *Bot) render(chatID int64, messageID int, r selection.Reply) tgbotapi.Chattable {
	if r.Edit && messageID != 0 && len(r.Buttons) == 0 {
		return tgbotapi.NewEditMessageText(chatID, messageID, r.Text)
	}
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if len(r.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(r.Buttons)
	}
	return msg
}

func keyboard(buttons []selection.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, len(buttons))
	for i, btn := range buttons {
		rows[i] = tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Payload))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Errorf("send reply: %s", err)
	}
}
