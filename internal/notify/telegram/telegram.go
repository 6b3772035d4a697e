// Package telegram implements notify.Notifier on the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"oversight.dev/internal/notify"
	"oversight.dev/internal/obs"
)

// Telegram allows roughly one message per second per chat.
const defaultRate = 1.0

type Config struct {
	Token         string
	ChatID        int64
	RatePerSecond float64
	HTTPTimeout   time.Duration
}

// bot is the subset of *tgbotapi.BotAPI the notifier uses.
type bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Notifier struct {
	bot     bot
	chatID  int64
	limiter *rate.Limiter
	log     zerolog.Logger
}

var (
	_ notify.Notifier       = (*Notifier)(nil)
	_ notify.CallbackSource = (*Notifier)(nil)
)

// New connects to the Bot API and verifies the token.
func New(cfg Config) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 35 * time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return newWithBot(api, cfg), nil
}

func newWithBot(b bot, cfg Config) *Notifier {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultRate
	}
	return &Notifier{
		bot:     b,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 3),
		log:     obs.Component("telegram"),
	}
}

func (n *Notifier) Name() string  { return "telegram" }
func (n *Notifier) Enabled() bool { return true }

func (n *Notifier) Send(ctx context.Context, text string, buttons []notify.Button) (notify.MessageRef, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return notify.MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = keyboard(buttons)
	}
	sent, err := n.bot.Send(msg)
	if err != nil {
		return notify.MessageRef{}, err
	}
	ref := notify.MessageRef{ChatID: n.chatID, MessageID: sent.MessageID}
	if sent.Chat != nil {
		ref.ChatID = sent.Chat.ID
	}
	return ref, nil
}

// Edit replaces the message text; the inline keyboard is dropped with it.
func (n *Notifier) Edit(ctx context.Context, ref notify.MessageRef, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := n.bot.Request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
	return err
}

func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// Listen long-polls for button taps until ctx is cancelled.
func (n *Notifier) Listen(ctx context.Context, handle func(context.Context, notify.Callback)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"callback_query"}
	updates := n.bot.GetUpdatesChan(u)
	n.log.Info().Int64("chat_id", n.chatID).Msg("telegram_listening")
	for {
		select {
		case <-ctx.Done():
			n.bot.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			cb, ok := callbackFromUpdate(upd, n.chatID)
			if !ok {
				continue
			}
			handle(ctx, cb)
		}
	}
}

// callbackFromUpdate ignores anything that is not a button tap on a message
// in the configured chat.
func callbackFromUpdate(upd tgbotapi.Update, chatID int64) (notify.Callback, bool) {
	q := upd.CallbackQuery
	if q == nil || q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != chatID {
		return notify.Callback{}, false
	}
	cb := notify.Callback{ID: q.ID, Data: q.Data, ChatID: q.Message.Chat.ID}
	if q.From != nil {
		cb.From = q.From.UserName
		if cb.From == "" {
			cb.From = q.From.FirstName
		}
	}
	return cb, true
}

func keyboard(buttons []notify.Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
