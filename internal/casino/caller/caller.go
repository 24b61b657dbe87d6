// Package caller replays keno draws number by number for clients that
// animate the reveal. Settlement never waits for it.
package caller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/clock"
	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/comm"
	log "github.com/sirupsen/logrus"
)

const DefaultInterval = 500 * time.Millisecond

type Publisher interface {
	Publish(subject string, data []byte) error
}

type Caller struct {
	pub   Publisher
	clock clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(pub Publisher, c clock.Clock) *Caller {
	if c == nil {
		c = clock.Real{}
	}
	return &Caller{pub: pub, clock: c}
}

// Handle starts a reveal for every keno-drawn event. A new draw cancels a
// reveal still in progress.
func (c *Caller) Handle(ctx context.Context, data []byte) {
	var ws comm.WSMessage
	if err := json.Unmarshal(data, &ws); err != nil {
		log.Errorf("invalid WSMessage: %v", err)
		return
	}
	if ws.Type != events.KenoDrawn {
		return
	}
	var draw keno.DrawEvent
	if err := json.Unmarshal(ws.Data, &draw); err != nil {
		log.Errorf("invalid keno draw payload: %v", err)
		return
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	log.Infof("starting caller for draw %d", draw.Draw)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Reveal(rctx, draw)
	}()
}

// Reveal publishes each drawn number as a keno-call, one per interval,
// with the history revealed so far.
func (c *Caller) Reveal(ctx context.Context, draw keno.DrawEvent) {
	interval := draw.RevealInterval
	if interval <= 0 {
		interval = DefaultInterval
	}

	history := make([]int, 0, len(draw.Numbers))
	for _, num := range draw.Numbers {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(interval):
		}
		history = append(history, num)
		c.publish(comm.CallMessage{
			Draw:    draw.Draw,
			Number:  num,
			History: append([]int(nil), history...), // copy to avoid mutation
		})
	}
	log.Infof("caller done for draw %d", draw.Draw)
}

func (c *Caller) publish(call comm.CallMessage) {
	payload, err := comm.Envelope(events.KenoCall, "", "", call)
	if err != nil {
		log.Errorf("error [publish] marshaling call: %v", err)
		return
	}
	if err := c.pub.Publish(comm.SubjectEvents, payload); err != nil {
		log.Errorf("error publishing %s for draw %d: %v", comm.SubjectEvents, call.Draw, err)
	}
}

// Wait blocks until running reveals return.
func (c *Caller) Wait() {
	c.wg.Wait()
}
