// Package session keeps the bot's transport session alive: bounded
// connection retries, then crash-only restarts of the whole
// connect-and-serve cycle.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 5 * time.Second
)

// Session is a transport that can be probed and then served until it ends.
type Session interface {
	Probe(ctx context.Context) error
	Serve(ctx context.Context) error
}

// ConnectError is returned once every connection attempt has failed.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Connector retries a probe with a fixed delay between attempts.
type Connector struct {
	MaxAttempts int
	Delay       time.Duration
}

// Connect calls probe until it succeeds or MaxAttempts calls have failed.
// It returns ctx.Err() if ctx ends while waiting between attempts.
func (c Connector) Connect(ctx context.Context, probe func(context.Context) error) error {
	limit := c.MaxAttempts
	if limit <= 0 {
		limit = 1
	}
	attempt := 0
	for {
		err := probe(ctx)
		if err == nil {
			log.Info().Int("attempt", attempt+1).Msg("connected to transport")
			return nil
		}
		attempt++
		if attempt >= limit {
			return &ConnectError{Attempts: attempt, Err: err}
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", limit).Msg("failed to connect, retrying")
		if err := sleep(ctx, c.Delay); err != nil {
			return err
		}
	}
}

// Supervisor runs connect-and-serve forever. Whether the connector gives
// up or a served session ends, it waits Connector.Delay and starts over.
// Only ctx cancellation stops it.
type Supervisor struct {
	Connector Connector
	Session   Session
}

func (s *Supervisor) Run(ctx context.Context) error {
	for {
		log.Info().Msg("starting bot session")
		if err := s.Connector.Connect(ctx, s.Session.Probe); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Dur("retry_in", s.Connector.Delay).Msg("could not connect to transport")
		} else {
			err := s.Session.Serve(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				log.Error().Err(err).Dur("retry_in", s.Connector.Delay).Msg("bot session crashed")
			} else {
				log.Info().Dur("retry_in", s.Connector.Delay).Msg("bot session ended")
			}
		}
		if err := sleep(ctx, s.Connector.Delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
