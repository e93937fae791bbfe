package game

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRearmKeepsOnlyLatestTimer(t *testing.T) {
	s := NewScheduler(0)
	defer s.Close()

	var first, second atomic.Int32
	s.Arm("room-1", "question", 30*time.Millisecond, nil, func() { first.Add(1) })
	s.Arm("room-1", "question", 40*time.Millisecond, nil, func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerRoomsAreIndependent(t *testing.T) {
	s := NewScheduler(0)
	defer s.Close()

	var a, b atomic.Int32
	s.Arm("room-a", "vote", 10*time.Millisecond, nil, func() { a.Add(1) })
	s.Arm("room-b", "vote", 10*time.Millisecond, nil, func() { b.Add(1) })

	assert.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler(0)
	defer s.Close()

	var fired atomic.Int32
	s.Arm("room-1", "answer", 20*time.Millisecond, nil, func() { fired.Add(1) })
	assert.True(t, s.Cancel("room-1"))
	assert.False(t, s.Cancel("room-1"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSchedulerTicks(t *testing.T) {
	s := NewScheduler(5 * time.Millisecond)
	defer s.Close()

	var ticks atomic.Int32
	done := make(chan struct{})
	s.Arm("room-1", "setup", 60*time.Millisecond, func(remaining time.Duration) {
		ticks.Add(1)
		assert.LessOrEqual(t, remaining, 60*time.Millisecond)
	}, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never expired")
	}
	assert.Greater(t, ticks.Load(), int32(1))
}

func TestSchedulerRemaining(t *testing.T) {
	s := NewScheduler(0)
	defer s.Close()

	_, _, ok := s.Remaining("room-1")
	assert.False(t, ok)

	s.Arm("room-1", "vote", time.Minute, nil, nil)
	remaining, phase, ok := s.Remaining("room-1")
	assert.True(t, ok)
	assert.Equal(t, "vote", phase)
	assert.InDelta(t, time.Minute.Seconds(), remaining.Seconds(), 1)
}

func TestSchedulerExpireCanRearm(t *testing.T) {
	s := NewScheduler(0)
	defer s.Close()

	var chain atomic.Int32
	var step func()
	step = func() {
		if chain.Add(1) < 3 {
			s.Arm("room-1", "chain", 5*time.Millisecond, nil, step)
		}
	}
	s.Arm("room-1", "chain", 5*time.Millisecond, nil, step)

	assert.Eventually(t, func() bool { return chain.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := NewScheduler(0)
	defer s.Close()

	var after atomic.Int32
	s.Arm("room-1", "boom", 5*time.Millisecond, nil, func() { panic("boom") })
	s.Arm("room-2", "ok", 10*time.Millisecond, nil, func() { after.Add(1) })

	assert.Eventually(t, func() bool { return after.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerCloseCancelsPending(t *testing.T) {
	s := NewScheduler(0)

	var fired atomic.Int32
	s.Arm("room-1", "vote", 50*time.Millisecond, nil, func() { fired.Add(1) })
	s.Close()

	s.Arm("room-2", "vote", time.Millisecond, nil, func() { fired.Add(1) })
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, s.Pending())
}
