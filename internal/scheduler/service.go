package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"taskbot/internal/domain"
	"taskbot/internal/render"
)

// DefaultInterval is the poll cadence of the task store.
const DefaultInterval = 60 * time.Second

type TaskStore interface {
	ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error)
	UpdateLastRun(ctx context.Context, t domain.Task, now time.Time) (bool, error)
}

type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

type Service struct {
	store    TaskStore
	asker    Asker
	out      Deliverer
	cron     *cron.Cron
	stop     chan struct{}
	stopOnce sync.Once
	interval time.Duration
	now      func() time.Time

	cycles     atomic.Int64
	deliveries atomic.Int64
	failures   atomic.Int64
}

func NewService(store TaskStore, asker Asker, out Deliverer, checkInterval time.Duration) *Service {
	if checkInterval <= 0 {
		checkInterval = DefaultInterval
	}
	return &Service{
		store:    store,
		asker:    asker,
		out:      out,
		cron:     cron.New(cron.WithLogger(cronLogger{})),
		stop:     make(chan struct{}),
		interval: checkInterval,
		now:      time.Now,
	}
}

// Start runs a cycle immediately and then one per interval until ctx is
// cancelled or Stop is called. Ticks that fire while a cycle is still
// running are dropped, so cycles never overlap and an overrun is not
// followed by a burst of catch-up cycles. Start returns once the last cycle
// has finished.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		s.RunOnce(ctx, s.now())
	}))
	s.cron.Schedule(cron.Every(s.interval), job)

	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	job.Run()
	s.cron.Start()

	select {
	case <-ctx.Done():
	case <-s.stop:
		cancel()
	}
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Report summarises one poll cycle.
type Report struct {
	Checked   int
	Due       int
	Delivered int
	Failed    int
}

// RunOnce performs one poll cycle at now. Failures are logged per task and
// never abort the cycle; a failed task keeps its watermark and is retried
// on the next cycle.
func (s *Service) RunOnce(ctx context.Context, now time.Time) Report {
	var rep Report
	if ctx.Err() != nil {
		return rep
	}
	s.cycles.Add(1)

	tasks, err := s.store.ListTasks(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to list tasks")
	}
	for _, t := range tasks {
		rep.Checked++
		if !IsDue(t, now) {
			continue
		}
		rep.Due++
		if err := s.runTask(ctx, t, now); err != nil {
			rep.Failed++
			s.failures.Add(1)
			log.Error().Err(err).Str("task", t.Name).Int64("chat_id", t.ChatID).Msg("failed to run task")
			continue
		}
		rep.Delivered++
	}
	if rep.Due > 0 {
		log.Info().Int("due", rep.Due).Int("delivered", rep.Delivered).Int("failed", rep.Failed).Msg("scheduler cycle done")
	}
	return rep
}

func (s *Service) runTask(ctx context.Context, t domain.Task, now time.Time) error {
	log.Info().Str("task", t.Name).Str("question", t.Question).Msg("running task")

	answer, err := s.asker.Ask(ctx, t.Question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if err := s.out.Deliver(ctx, t.ChatID, render.Response(t.Name, t.Question, answer)); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	s.deliveries.Add(1)

	// The watermark restarts from this poll, so missed cycles are not
	// caught up.
	updated, err := s.store.UpdateLastRun(ctx, t, now)
	if err != nil {
		return fmt.Errorf("update last_run: %w", err)
	}
	if !updated {
		log.Warn().Str("task", t.Name).Int64("chat_id", t.ChatID).Msg("task changed or deleted during run; watermark left as is")
	}
	return nil
}

// IsDue reports whether the whole minutes elapsed since t.LastRun reach
// t.Interval. Wall-clock based.
func IsDue(t domain.Task, now time.Time) bool {
	elapsed := int64(now.Sub(t.LastRun) / time.Minute)
	return elapsed >= t.Interval
}

type Stats struct {
	Cycles     int64
	Deliveries int64
	Failures   int64
}

func (s *Service) Stats() Stats {
	return Stats{
		Cycles:     s.cycles.Load(),
		Deliveries: s.deliveries.Load(),
		Failures:   s.failures.Load(),
	}
}

// cronLogger routes robfig/cron logs into zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
