// Package bot implements the chat commands.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"taskbot/internal/domain"
	"taskbot/internal/render"
)

type Store interface {
	CreateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, chatID int64, name string) (bool, error)
	ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error)
	LogInteraction(ctx context.Context, in domain.Interaction) error
	UserStats(ctx context.Context, userID int64) (domain.UserStats, error)
	CommandStats(ctx context.Context) ([]domain.CommandStats, error)
}

type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// Request is one incoming command.
type Request struct {
	ChatID   int64
	UserID   *int64
	Username string
	Command  string // lowercase, without the leading slash
	Args     string
}

const (
	rateLimited    = "⏳ Too many requests\\. Please wait a moment\\."
	unknownCommand = "❓ Unknown command\\. Use /help to see available commands\\."

	// limiterIdle is how long a user's limiter is kept after their last
	// command. A limiter idle for more than burst seconds is full again, so
	// dropping it changes nothing.
	limiterIdle = 10 * time.Minute
)

type userLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

type Handler struct {
	store   Store
	asker   Asker
	out     Deliverer
	ownerID int64
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[int64]*userLimiter
	lastSweep time.Time
}

func NewHandler(store Store, asker Asker, out Deliverer, ownerID int64) *Handler {
	return &Handler{
		store:    store,
		asker:    asker,
		out:      out,
		ownerID:  ownerID,
		now:      time.Now,
		limiters: make(map[int64]*userLimiter),
	}
}

// Handle runs one command and replies to its chat. Errors are answered
// with UserMessage and logged; Handle itself never fails.
func (h *Handler) Handle(ctx context.Context, req Request) {
	start := time.Now()
	if req.UserID != nil && !h.allow(*req.UserID) {
		h.reply(ctx, req.ChatID, rateLimited)
		return
	}

	err := h.dispatch(ctx, req)

	if req.UserID != nil {
		in := domain.Interaction{
			Timestamp: start,
			ChatID:    req.ChatID,
			UserID:    req.UserID,
			Username:  req.Username,
			Command:   req.Command,
			Args:      req.Args,
			Duration:  time.Since(start),
		}
		if err != nil {
			in.Error = err.Error()
		}
		if lerr := h.store.LogInteraction(ctx, in); lerr != nil {
			log.Error().Err(lerr).Msg("failed to log interaction")
		}
	}

	if err != nil {
		log.Error().Err(err).Str("command", req.Command).Int64("chat_id", req.ChatID).Msg("command error")
		h.reply(ctx, req.ChatID, UserMessage(err))
	}
}

func (h *Handler) dispatch(ctx context.Context, req Request) error {
	switch req.Command {
	case "help", "start":
		return h.send(ctx, req.ChatID, render.Help())
	case "myid":
		if req.UserID == nil {
			return nil
		}
		return h.send(ctx, req.ChatID, render.Identity(*req.UserID, req.Username, *req.UserID == h.ownerID))
	case "create":
		return h.create(ctx, req)
	case "list":
		chatID := req.ChatID
		tasks, err := h.store.ListTasks(ctx, &chatID)
		if err != nil {
			return err
		}
		return h.send(ctx, req.ChatID, render.TaskList(tasks))
	case "delete":
		name := strings.TrimSpace(req.Args)
		if name == "" {
			return domain.ErrInvalidInput
		}
		deleted, err := h.store.DeleteTask(ctx, req.ChatID, name)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %q", domain.ErrTaskNotFound, name)
		}
		return h.send(ctx, req.ChatID, render.TaskDeleted(name))
	case "ask":
		question := strings.TrimSpace(req.Args)
		if question == "" {
			return domain.ErrInvalidInput
		}
		answer, err := h.asker.Ask(ctx, question)
		if err != nil {
			return err
		}
		return h.send(ctx, req.ChatID, render.Response("", question, answer))
	case "stats":
		if req.UserID == nil {
			return nil
		}
		stats, err := h.store.UserStats(ctx, *req.UserID)
		if err != nil {
			return err
		}
		return h.send(ctx, req.ChatID, render.UserStats(stats))
	case "botstats":
		if req.UserID == nil || *req.UserID != h.ownerID {
			return domain.ErrPermissionDenied
		}
		stats, err := h.store.CommandStats(ctx)
		if err != nil {
			return err
		}
		return h.send(ctx, req.ChatID, render.BotStats(stats))
	}
	return h.send(ctx, req.ChatID, unknownCommand)
}

// create checks that the answer service is reachable before storing the
// task, then sends that first answer right away.
func (h *Handler) create(ctx context.Context, req Request) error {
	name, interval, question, ok := ParseCreate(req.Args)
	if !ok {
		return domain.ErrInvalidInput
	}
	answer, err := h.asker.Ask(ctx, question)
	if err != nil {
		return err
	}
	task := domain.Task{
		ChatID:   req.ChatID,
		Name:     name,
		Question: question,
		Interval: interval,
		LastRun:  h.now(),
	}
	if err := h.store.CreateTask(ctx, task); err != nil {
		return err
	}
	if err := h.send(ctx, req.ChatID, render.TaskCreated(task)); err != nil {
		return err
	}
	return h.send(ctx, req.ChatID, render.Response(name, question, answer))
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) error {
	if err := h.out.Deliver(ctx, chatID, text); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return nil
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.out.Deliver(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

// allow applies a per-user limit of 1 command per second, burst 5.
// Limiters of users idle for limiterIdle are evicted.
func (h *Handler) allow(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	if now.Sub(h.lastSweep) >= limiterIdle {
		for id, rl := range h.limiters {
			if now.Sub(rl.lastSeen) >= limiterIdle {
				delete(h.limiters, id)
			}
		}
		h.lastSweep = now
	}
	rl, ok := h.limiters[userID]
	if !ok {
		rl = &userLimiter{Limiter: rate.NewLimiter(rate.Limit(1.0), 5)}
		h.limiters[userID] = rl
	}
	rl.lastSeen = now
	return rl.Allow()
}
