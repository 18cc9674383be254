// Package telegram connects the command handler and the scheduler to the
// Telegram Bot API using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"taskbot/internal/bot"
	"taskbot/internal/domain"
	"taskbot/internal/worker"
)

const (
	DefaultPollTimeout = 60 // seconds
	DefaultWorkers     = 8
)

type Config struct {
	Token       string
	Endpoint    string // format string with token and method verbs, e.g. tgbotapi.APIEndpoint
	PollTimeout int
	Workers     int
	HTTPClient  *http.Client
}

type Handler interface {
	Handle(ctx context.Context, req bot.Request)
}

// Bot is one Telegram identity. Every Probe opens a fresh API session;
// Deliver always uses the most recent one.
type Bot struct {
	cfg     Config
	handler Handler

	mu     sync.RWMutex
	api    *tgbotapi.BotAPI
	offset int
}

func New(cfg Config, handler Handler) *Bot {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.PollTimeout+15) * time.Second}
	}
	if err := tgbotapi.SetLogger(apiLogger{}); err != nil {
		log.Warn().Err(err).Msg("telegram: set logger")
	}
	return &Bot{cfg: cfg, handler: handler}
}

// SetHandler replaces the command handler. It must be called before Serve.
func (b *Bot) SetHandler(h Handler) { b.handler = h }

// Probe authenticates with getMe. Requests made through the new session
// are bound to ctx.
func (b *Bot) Probe(ctx context.Context) error {
	client := &ctxClient{ctx: ctx, client: b.cfg.HTTPClient}
	api, err := tgbotapi.NewBotAPIWithClient(b.cfg.Token, b.cfg.Endpoint, client)
	if err != nil {
		return fmt.Errorf("%w: get me: %w", domain.ErrTransport, b.redact(err))
	}
	b.mu.Lock()
	b.api = api
	b.mu.Unlock()
	log.Info().Str("bot", api.Self.UserName).Msg("authorized on telegram")
	return nil
}

// Serve polls for updates and hands every command to the handler through
// a bounded worker pool. It returns nil once ctx is cancelled and an
// ErrTransport error when polling fails.
func (b *Bot) Serve(ctx context.Context) error {
	api := b.current()
	if api == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransport)
	}
	pool := worker.NewPool(b.cfg.Workers)
	defer pool.Wait()

	log.Info().Str("bot", api.Self.UserName).Int("offset", b.offset).Msg("polling for updates")
	for {
		u := tgbotapi.NewUpdate(b.offset)
		u.Timeout = b.cfg.PollTimeout
		updates, err := api.GetUpdates(u)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: get updates: %w", domain.ErrTransport, b.redact(err))
		}
		for _, up := range updates {
			if up.UpdateID >= b.offset {
				b.offset = up.UpdateID + 1
			}
			req, ok := toRequest(up)
			if !ok {
				continue
			}
			log.Debug().Int64("chat_id", req.ChatID).Str("command", req.Command).Msg("received command")
			if !pool.Submit(ctx, func(ctx context.Context) { b.handler.Handle(ctx, req) }) {
				return nil
			}
		}
	}
}

// Deliver sends MarkdownV2 text to a chat.
func (b *Bot) Deliver(ctx context.Context, chatID int64, text string) error {
	api := b.current()
	if api == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransport)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("%w: send message: %w", domain.ErrTransport, b.redact(err))
	}
	return nil
}

func (b *Bot) current() *tgbotapi.BotAPI {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.api
}

// redact strips the bot token from request URLs embedded in err.
func (b *Bot) redact(err error) error {
	if b.cfg.Token == "" || !strings.Contains(err.Error(), b.cfg.Token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), b.cfg.Token, "<token>"))
}

func toRequest(up tgbotapi.Update) (bot.Request, bool) {
	msg := up.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return bot.Request{}, false
	}
	req := bot.Request{
		ChatID:  msg.Chat.ID,
		Command: strings.ToLower(msg.Command()),
		Args:    msg.CommandArguments(),
	}
	if msg.From != nil {
		id := msg.From.ID
		req.UserID = &id
		req.Username = msg.From.UserName
	}
	return req, true
}

// ctxClient binds every API request of a session to the session context,
// so a cancelled context interrupts an in-flight long poll.
type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c *ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

type apiLogger struct{}

func (apiLogger) Println(v ...interface{}) {
	log.Debug().Str("component", "telegram").Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (apiLogger) Printf(format string, v ...interface{}) {
	log.Debug().Str("component", "telegram").Msgf(format, v...)
}
