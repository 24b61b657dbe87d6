package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	late := f.After(2 * time.Second)
	early := f.After(time.Second)
	assert.Equal(t, 2, f.Waiters())

	f.Advance(time.Second)
	select {
	case at := <-early:
		assert.Equal(t, start.Add(time.Second), at)
	default:
		t.Fatal("early waiter did not fire")
	}
	select {
	case <-late:
		t.Fatal("late waiter fired too soon")
	default:
	}

	f.Advance(time.Second)
	<-late
	assert.Equal(t, 0, f.Waiters())
	assert.Equal(t, start.Add(2*time.Second), f.Now())
}

func TestFakeBlockUntil(t *testing.T) {
	f := NewFake(time.Now())
	done := make(chan struct{})
	go func() {
		f.BlockUntil(1)
		close(done)
	}()
	f.After(time.Minute)
	<-done
}
