package worker

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

// Job is one independent unit of work, e.g. handling an incoming command.
type Job func(ctx context.Context)

// Pool runs jobs concurrently, at most size at a time.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit waits for a free slot and starts job in its own goroutine. It
// returns false without running job if ctx ends first. A panicking job is
// logged and does not take the pool down.
func (p *Pool) Submit(ctx context.Context, job Job) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			}
			<-p.sem
			p.wg.Done()
		}()
		job(ctx)
	}()
	return true
}

// Wait blocks until every started job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
