package game

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
)

// =============================================================================
// ROOM MANAGEMENT
// =============================================================================

// DeleteRoom removes the room and everything in it. Only the owner may
// delete a room.
func (m *Manager) DeleteRoom(ctx context.Context, roomID, requesterID string) error {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerId != requesterID {
		return internal.InvalidState("only the room owner can delete the room")
	}
	return m.deleteLocked(ctx, roomID)
}

// deleteLocked cancels the room's timer, drops its rows and closes every
// subscription. Caller holds the room lock.
func (m *Manager) deleteLocked(ctx context.Context, roomID string) error {
	m.scheduler.Cancel(roomID)

	if err := m.rooms.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, internal.ErrNotFound) {
		return internal.Upstream(err, "delete room %s", roomID)
	}

	m.bus.Publish(roomID, internal.EventRoomDeleted, map[string]string{"room_id": roomID})
	m.bus.CloseRoom(roomID)
	// a waiter still blocked on the old mutex finds the room gone
	m.forgetRoom(roomID)

	log.Info().Str("room", roomID).Msg("[deleteLocked] room deleted")
	return nil
}

// State returns what a client needs to render the room from scratch.
func (m *Manager) State(ctx context.Context, roomID string) (*internal.StateSnapshot, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	snapshot := &internal.StateSnapshot{
		Room:    room,
		Players: internal.CreatePlayerSnapshots(players),
	}
	if room.Phase == internal.PhasePlaying && room.CurrentRound > 0 {
		round, err := m.loadCurrentRound(ctx, room)
		if err != nil {
			return nil, err
		}
		view := round.PublicView()
		snapshot.Round = &view
	}
	if remaining, _, ok := m.scheduler.Remaining(roomID); ok {
		snapshot.TimeRemainingMs = remaining.Milliseconds()
	}
	return snapshot, nil
}

// CurrentRound returns the public view of the round in progress.
func (m *Manager) CurrentRound(ctx context.Context, roomID string) (*internal.RoundView, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	round, err := m.loadCurrentRound(ctx, room)
	if err != nil {
		return nil, err
	}
	view := round.PublicView()
	return &view, nil
}

// SweepFinished deletes rooms that finished more than retention ago.
func (m *Manager) SweepFinished(ctx context.Context, retention time.Duration) (int, error) {
	ids, err := m.rooms.ListFinishedBefore(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, internal.Upstream(err, "list finished rooms")
	}

	swept := 0
	for _, id := range ids {
		if err := m.sweepRoom(ctx, id); err != nil {
			log.Warn().Err(err).Str("room", id).Msg("[SweepFinished] could not delete room")
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Info().Int("rooms", swept).Msg("[SweepFinished] finished rooms removed")
	}
	return swept, nil
}

func (m *Manager) sweepRoom(ctx context.Context, roomID string) error {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	// re-check under the lock
	if room.Phase != internal.PhaseFinished {
		return nil
	}
	return m.deleteLocked(ctx, roomID)
}

// RunCleanup sweeps finished rooms every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Dur("retention", retention).Msg("[RunCleanup] room cleanup started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[RunCleanup] room cleanup stopped")
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
			if _, err := m.SweepFinished(sweepCtx, retention); err != nil {
				log.Error().Err(err).Msg("[RunCleanup] sweep failed")
			}
			cancel()
		}
	}
}
