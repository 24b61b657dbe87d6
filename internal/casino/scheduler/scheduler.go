package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/clock"
	log "github.com/sirupsen/logrus"
)

// Round is a state machine advanced one step at a time. Interval is asked
// again after every tick, so a round can change pace between phases.
type Round interface {
	Name() string
	Interval() time.Duration
	Tick()
}

// Every wraps a plain function as a fixed-interval round.
func Every(name string, d time.Duration, fn func()) Round {
	return &every{name: name, d: d, fn: fn}
}

type every struct {
	name string
	d    time.Duration
	fn   func()
}

func (e *every) Name() string            { return e.name }
func (e *every) Interval() time.Duration { return e.d }
func (e *every) Tick()                   { e.fn() }

// Scheduler drives each round from its own goroutine. Ticks of a single
// round never overlap; different rounds run independently.
type Scheduler struct {
	clock  clock.Clock
	rounds []Round
	wg     sync.WaitGroup
}

func New(c clock.Clock, rounds ...Round) *Scheduler {
	if c == nil {
		c = clock.Real{}
	}
	return &Scheduler{clock: c, rounds: rounds}
}

func (s *Scheduler) Add(r Round) {
	s.rounds = append(s.rounds, r)
}

// Start launches every round and returns immediately. Rounds stop when ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, r := range s.rounds {
		s.wg.Add(1)
		go s.run(ctx, r)
	}
}

// Wait blocks until every round goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, r Round) {
	defer s.wg.Done()
	log.Infof("scheduler: %s round loop started", r.Name())

	for {
		select {
		case <-ctx.Done():
			log.Infof("scheduler: %s round loop stopped", r.Name())
			return
		case <-s.clock.After(r.Interval()):
			s.tick(r)
		}
	}
}

func (s *Scheduler) tick(r Round) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("round", r.Name()).Errorf("scheduler: tick panicked: %v", rec)
		}
	}()
	r.Tick()
}
