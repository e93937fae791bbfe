package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
)

// =============================================================================
// SESSION ORCHESTRATOR
// =============================================================================

const DefaultOperationTimeout = 10 * time.Second

type Deps struct {
	Rooms     RoomRepository
	Players   PlayerRepository
	Rounds    RoundRepository
	Votes     VoteRepository
	Settings  SettingsProvider
	Answers   AnswerProvider
	Questions QuestionSource
	Bus       Publisher
	Scheduler *Scheduler
	Selector  *RoleSelector
	Delay     DelayFunc
}

type Option func(*Manager)

// WithOperationTimeout bounds the repository work of a single timer step.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.opTimeout = d
		}
	}
}

// Manager drives every room through its lifecycle. Actions and timer steps of
// one room are serialised by that room's lock; rooms never share a lock.
type Manager struct {
	rooms     RoomRepository
	players   PlayerRepository
	rounds    RoundRepository
	votes     VoteRepository
	settings  SettingsProvider
	answers   AnswerProvider
	questions QuestionSource
	bus       Publisher
	scheduler *Scheduler
	selector  *RoleSelector
	delay     DelayFunc
	opTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewManager(deps Deps, opts ...Option) *Manager {
	m := &Manager{
		rooms:     deps.Rooms,
		players:   deps.Players,
		rounds:    deps.Rounds,
		votes:     deps.Votes,
		settings:  deps.Settings,
		answers:   deps.Answers,
		questions: deps.Questions,
		bus:       deps.Bus,
		scheduler: deps.Scheduler,
		selector:  deps.Selector,
		delay:     deps.Delay,
		opTimeout: DefaultOperationTimeout,
		locks:     make(map[string]*sync.Mutex),
	}
	if m.settings == nil {
		m.settings = StaticSettings(internal.DefaultGameDefaults())
	}
	if m.scheduler == nil {
		m.scheduler = NewScheduler(DefaultTickInterval)
	}
	if m.selector == nil {
		m.selector = NewRoleSelector(time.Now().UnixNano())
	}
	if m.questions == nil {
		m.questions = fixedQuestion("Describe your perfect weekend.")
	}
	if m.delay == nil {
		m.delay = func(internal.AnswerType, time.Duration) time.Duration { return 0 }
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type fixedQuestion string

func (q fixedQuestion) RandomQuestion() string { return string(q) }

// Close stops every pending phase timer.
func (m *Manager) Close() {
	m.scheduler.Close()
}

// ===== ROOM LOCKS =====

func (m *Manager) lockRoom(roomID string) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[roomID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[roomID] = mu
	}
	m.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (m *Manager) forgetRoom(roomID string) {
	m.locksMu.Lock()
	delete(m.locks, roomID)
	m.locksMu.Unlock()
}

// ===== LOADERS =====

func (m *Manager) loadRoom(ctx context.Context, roomID string) (*internal.Room, error) {
	room, err := m.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, internal.Upstream(err, "load room %s", roomID)
	}
	return room, nil
}

func (m *Manager) loadPlayers(ctx context.Context, roomID string) ([]*internal.Player, error) {
	players, err := m.players.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, internal.Upstream(err, "list players of room %s", roomID)
	}
	return players, nil
}

// loadCurrentRound returns the room's active round.
func (m *Manager) loadCurrentRound(ctx context.Context, room *internal.Room) (*internal.Round, error) {
	if room.Phase != internal.PhasePlaying || room.CurrentRound == 0 {
		return nil, internal.InvalidState("room %s has no round in progress", room.Id)
	}
	round, err := m.rounds.GetRound(ctx, room.Id, room.CurrentRound)
	if err != nil {
		return nil, internal.Upstream(err, "load round %d of room %s", room.CurrentRound, room.Id)
	}
	return round, nil
}

// ===== TIMERS =====

// armPhase arms the room's phase timer. step runs under the room lock when
// the deadline passes; a failing or panicking step aborts the game.
func (m *Manager) armPhase(roomID, phase string, roundNumber int, d time.Duration, step func(ctx context.Context) error) {
	onTick := func(remaining time.Duration) {
		m.bus.Publish(roomID, internal.EventCountdown, internal.CountdownData{
			Remaining:   int((remaining + time.Second - 1) / time.Second),
			RemainingMs: remaining.Milliseconds(),
			Phase:       phase,
			RoundNumber: roundNumber,
		})
	}
	m.scheduler.Arm(roomID, phase, d, onTick, m.onDeadline(roomID, phase, step))
}

func (m *Manager) onDeadline(roomID, phase string, step func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
		defer cancel()

		unlock := m.lockRoom(roomID)
		defer unlock()

		err := runGuarded(func() error { return step(ctx) })
		if err == nil {
			return
		}
		// only a missing room is benign; KindOf looks at the outermost kind
		if internal.KindOf(err) == internal.KindNotFound {
			log.Warn().Err(err).Str("room", roomID).Str("phase", phase).Msg("[onDeadline] room gone, timer step ignored")
			return
		}
		log.Error().Err(err).Str("room", roomID).Str("phase", phase).Msg("[onDeadline] timer step failed, aborting game")
		m.abortLocked(roomID, err)
	}
}

func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// abortLocked force-finishes a room whose timer chain broke. Caller holds the
// room lock.
func (m *Manager) abortLocked(roomID string, cause error) {
	m.scheduler.Cancel(roomID)

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	room, err := m.rooms.GetRoom(ctx, roomID)
	if err == nil && room.Phase != internal.PhaseFinished {
		room.TransitionTo(internal.PhaseFinished, time.Now().UTC())
		if err = m.rooms.UpdateRoom(ctx, room); err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("[abortLocked] could not persist finished phase")
		}
	} else if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("[abortLocked] could not load room")
	}

	m.bus.Publish(roomID, internal.EventGameError, internal.GameErrorData{
		Error: fmt.Sprintf("game aborted: %v", cause),
	})
}

// finishLocked ends the game normally or because too few players remain.
// Caller holds the room lock.
func (m *Manager) finishLocked(ctx context.Context, room *internal.Room, reason string) error {
	m.scheduler.Cancel(room.Id)

	if reason != "" {
		m.bus.Publish(room.Id, internal.EventGameError, internal.GameErrorData{Error: reason})
	}

	if !room.TransitionTo(internal.PhaseFinished, time.Now().UTC()) {
		return nil
	}
	if err := m.rooms.UpdateRoom(ctx, room); err != nil {
		return internal.Upstream(err, "finish room %s", room.Id)
	}

	players, err := m.loadPlayers(ctx, room.Id)
	if err != nil {
		return err
	}
	results := CalculateFinalResults(players, room.CurrentRound)
	m.bus.Publish(room.Id, internal.EventGameOver, results)

	log.Info().Str("room", room.Id).Int("rounds", room.CurrentRound).Strs("winners", results.Achievements.Winners).
		Msg("[finishLocked] game over")
	return nil
}
