package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// =============================================================================
// TIMER MANAGEMENT
// =============================================================================

const DefaultTickInterval = time.Second

type TickFunc func(remaining time.Duration)

type phaseTimer struct {
	phase     string
	startTime time.Time
	duration  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

func (t *phaseTimer) remaining() time.Duration {
	return max(t.duration-time.Since(t.startTime), 0)
}

// Scheduler keeps at most one pending phase timer per room.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*phaseTimer
	tick   time.Duration
	wg     sync.WaitGroup
	closed bool
}

// NewScheduler returns a scheduler whose timers call their tick callback
// every tick. A zero tick disables countdown updates.
func NewScheduler(tick time.Duration) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*phaseTimer),
		tick:   tick,
	}
}

// Arm replaces any pending timer of roomID. Only the most recently armed
// timer of a room may run its onExpire.
func (s *Scheduler) Arm(roomID, phase string, duration time.Duration, onTick TickFunc, onExpire func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Debug().Str("room", roomID).Str("phase", phase).Msg("[Arm] scheduler closed, timer ignored")
		return
	}

	if prev := s.timers[roomID]; prev != nil {
		prev.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	t := &phaseTimer{
		phase:     phase,
		startTime: time.Now(),
		duration:  duration,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.timers[roomID] = t
	s.wg.Add(1)
	s.mu.Unlock()

	log.Debug().Str("room", roomID).Str("phase", phase).Dur("duration", duration).Msg("[Arm] timer armed")

	go s.run(roomID, t, onTick, onExpire)
}

func (s *Scheduler) run(roomID string, t *phaseTimer, onTick TickFunc, onExpire func()) {
	defer s.wg.Done()
	defer t.cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room", roomID).Str("phase", t.phase).Interface("panic", r).
				Msg("[Scheduler] timer callback panicked")
		}
	}()

	var tickC <-chan time.Time
	if s.tick > 0 && onTick != nil {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-tickC:
			if !s.isCurrent(roomID, t) {
				return
			}
			onTick(t.remaining())

		case <-t.ctx.Done():
			if t.ctx.Err() != context.DeadlineExceeded {
				log.Debug().Str("room", roomID).Str("phase", t.phase).Msg("[Scheduler] timer cancelled before expiry")
				return
			}

			s.mu.Lock()
			active := s.timers[roomID] == t
			if active {
				delete(s.timers, roomID)
			}
			s.mu.Unlock()

			if !active {
				return
			}
			log.Debug().Str("room", roomID).Str("phase", t.phase).Dur("after", t.duration).Msg("[Scheduler] timer expired")
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

func (s *Scheduler) isCurrent(roomID string, t *phaseTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[roomID] == t
}

// Cancel stops the pending timer of roomID, if any.
func (s *Scheduler) Cancel(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[roomID]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.timers, roomID)
	return true
}

// Remaining reports the time left on the room's pending timer.
func (s *Scheduler) Remaining(roomID string) (time.Duration, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[roomID]
	if !ok {
		return 0, "", false
	}
	return t.remaining(), t.phase, true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels every timer and waits for running callbacks. It must not be
// called from a timer callback.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for roomID, t := range s.timers {
		t.cancel()
		delete(s.timers, roomID)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
