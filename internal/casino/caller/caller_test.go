package caller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/casino-services/internal/casino/clock"
	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []comm.CallMessage
}

func (r *recorder) Publish(subject string, data []byte) error {
	var m comm.WSMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if subject != comm.SubjectEvents || m.Type != events.KenoCall {
		return nil
	}
	var c comm.CallMessage
	if err := json.Unmarshal(m.Data, &c); err != nil {
		return err
	}
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func drawn(t *testing.T, d keno.DrawEvent) []byte {
	t.Helper()
	payload, err := comm.Envelope(events.KenoDrawn, "", "", d)
	require.NoError(t, err)
	return payload
}

func TestRevealCadence(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	rec := &recorder{}
	c := New(rec, fake)

	c.Handle(context.Background(), drawn(t, keno.DrawEvent{Draw: 7, Numbers: []int{5, 17, 42}}))

	for i := 1; i <= 3; i++ {
		fake.BlockUntil(1)
		assert.Equal(t, i-1, rec.len())
		fake.Advance(DefaultInterval)
		require.Eventually(t, func() bool { return rec.len() == i }, time.Second, time.Millisecond)
	}
	c.Wait()

	require.Len(t, rec.calls, 3)
	assert.Equal(t, int64(7), rec.calls[2].Draw)
	assert.Equal(t, 42, rec.calls[2].Number)
	assert.Equal(t, []int{5, 17, 42}, rec.calls[2].History)
	assert.Equal(t, []int{5}, rec.calls[0].History)
}

func TestNewDrawCancelsReveal(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	rec := &recorder{}
	c := New(rec, fake)

	c.Handle(context.Background(), drawn(t, keno.DrawEvent{Draw: 1, Numbers: []int{1, 2, 3}}))
	fake.BlockUntil(1)
	c.Handle(context.Background(), drawn(t, keno.DrawEvent{Draw: 2, Numbers: []int{9}}))

	// the cancelled reveal leaves its timer behind
	fake.BlockUntil(2)
	fake.Advance(DefaultInterval)
	c.Wait()

	require.Len(t, rec.calls, 1)
	assert.Equal(t, int64(2), rec.calls[0].Draw)
}

func TestIgnoresOtherEvents(t *testing.T) {
	rec := &recorder{}
	c := New(rec, clock.NewFake(time.Unix(0, 0)))
	payload, err := comm.Envelope(events.CrashTick, "", "", map[string]float64{"multiplier": 1.2})
	require.NoError(t, err)

	c.Handle(context.Background(), payload)
	c.Handle(context.Background(), []byte("garbage"))
	c.Wait()
	assert.Zero(t, rec.len())
}
