package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/scythe504/turing-party-backend/internal"
)

const (
	DefaultCapacity = 32
	MinCapacity     = 16
	MaxCapacity     = 64
)

type Envelope = internal.Message[any]

// Subscription is a private bounded FIFO of one observer of one room.
type Subscription struct {
	id      uint64
	roomID  string
	ch      chan Envelope
	dropped atomic.Uint64
	closed  bool // guarded by the owning topic's mutex
}

// Events is closed when the subscription is removed or its room is closed.
func (s *Subscription) Events() <-chan Envelope {
	return s.ch
}

func (s *Subscription) RoomID() string {
	return s.roomID
}

// Dropped counts envelopes discarded to make room for newer ones.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// enqueue never blocks: when the queue is full the oldest entry goes.
func (s *Subscription) enqueue(msg Envelope) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

type topic struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
}

// Bus fans room events out to every subscription of that room.
type Bus struct {
	mu       sync.RWMutex
	rooms    map[string]*topic
	capacity int
	nextID   atomic.Uint64
	closed   bool
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = max(MinCapacity, min(capacity, MaxCapacity))
	return &Bus{
		rooms:    make(map[string]*topic),
		capacity: capacity,
	}
}

func (b *Bus) Capacity() int {
	return b.capacity
}

// Subscribe registers a new observer. Only events published after this call
// are delivered.
func (b *Bus) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		id:     b.nextID.Add(1),
		roomID: roomID,
		ch:     make(chan Envelope, b.capacity),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}

	t, ok := b.rooms[roomID]
	if !ok {
		t = &topic{subs: make(map[uint64]*Subscription)}
		b.rooms[roomID] = t
	}
	t.mu.Lock()
	t.subs[sub.id] = sub
	t.mu.Unlock()

	log.Debug().Str("room", roomID).Uint64("sub", sub.id).Msg("[Subscribe] subscriber added")
	return sub
}

// Unsubscribe removes sub; the room entry goes with its last subscriber.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.rooms[sub.roomID]
	if !ok {
		return
	}
	t.mu.Lock()
	if _, ok := t.subs[sub.id]; ok {
		delete(t.subs, sub.id)
		closeSub(sub)
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty {
		delete(b.rooms, sub.roomID)
	}
	log.Debug().Str("room", sub.roomID).Uint64("sub", sub.id).Uint64("dropped", sub.Dropped()).
		Msg("[Unsubscribe] subscriber removed")
}

// Publish enqueues {event, data} for every current subscriber of roomID.
// A room without subscribers is a no-op.
func (b *Bus) Publish(roomID, event string, data any) {
	b.mu.RLock()
	t, ok := b.rooms[roomID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	msg := Envelope{Type: event, Data: data}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.subs {
		if sub.closed {
			continue
		}
		sub.enqueue(msg)
	}
}

// CloseRoom ends every subscription of a deleted room.
func (b *Bus) CloseRoom(roomID string) {
	b.mu.Lock()
	t, ok := b.rooms[roomID]
	delete(b.rooms, roomID)
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	for id, sub := range t.subs {
		delete(t.subs, id)
		closeSub(sub)
	}
	t.mu.Unlock()
	log.Debug().Str("room", roomID).Msg("[CloseRoom] room subscriptions closed")
}

func (b *Bus) SubscriberCount(roomID string) int {
	b.mu.RLock()
	t, ok := b.rooms[roomID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Rooms returns the number of rooms with at least one subscriber.
func (b *Bus) Rooms() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

// Close ends every subscription. Later subscriptions are born closed.
func (b *Bus) Close() {
	b.mu.Lock()
	rooms := b.rooms
	b.rooms = make(map[string]*topic)
	b.closed = true
	b.mu.Unlock()

	for _, t := range rooms {
		t.mu.Lock()
		for id, sub := range t.subs {
			delete(t.subs, id)
			closeSub(sub)
		}
		t.mu.Unlock()
	}
}

func closeSub(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}
