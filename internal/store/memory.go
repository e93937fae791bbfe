package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/scythe504/turing-party-backend/internal"
)

// Memory keeps every record in process. Values are copied on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	rooms    map[string]*internal.Room
	codes    map[string]string
	players  map[string][]*internal.Player
	rounds   map[string]map[int]*internal.Round
	votes    map[string]map[int][]*internal.Vote
	defaults internal.GameDefaults
}

func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[string]*internal.Room),
		codes:    make(map[string]string),
		players:  make(map[string][]*internal.Player),
		rounds:   make(map[string]map[int]*internal.Round),
		votes:    make(map[string]map[int][]*internal.Vote),
		defaults: internal.DefaultGameDefaults(),
	}
}

// ===== SETTINGS =====

func (s *Memory) GameDefaults(context.Context) (internal.GameDefaults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults, nil
}

func (s *Memory) SetGameDefaults(d internal.GameDefaults) {
	s.mu.Lock()
	s.defaults = d.Normalize()
	s.mu.Unlock()
}

// ===== ROOMS =====

func (s *Memory) CreateRoom(_ context.Context, room *internal.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.Id]; ok {
		return internal.Conflict("room %s already exists", room.Id)
	}
	if _, ok := s.codes[room.Code]; ok {
		return internal.Conflict("room code %s already taken", room.Code)
	}
	s.rooms[room.Id] = room.Clone()
	s.codes[room.Code] = room.Id
	return nil
}

func (s *Memory) GetRoom(_ context.Context, roomID string) (*internal.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, internal.NotFound("room %s not found", roomID)
	}
	return room.Clone(), nil
}

func (s *Memory) GetRoomByCode(ctx context.Context, code string) (*internal.Room, error) {
	s.mu.RLock()
	id, ok := s.codes[strings.ToUpper(code)]
	s.mu.RUnlock()
	if !ok {
		return nil, internal.NotFound("room with code %s not found", code)
	}
	return s.GetRoom(ctx, id)
}

func (s *Memory) UpdateRoom(_ context.Context, room *internal.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.Id]; !ok {
		return internal.NotFound("room %s not found", room.Id)
	}
	s.rooms[room.Id] = room.Clone()
	return nil
}

// DeleteRoom removes the room with its players, rounds and votes.
func (s *Memory) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return internal.NotFound("room %s not found", roomID)
	}
	delete(s.codes, room.Code)
	delete(s.rooms, roomID)
	delete(s.players, roomID)
	delete(s.rounds, roomID)
	delete(s.votes, roomID)
	return nil
}

func (s *Memory) ListFinishedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, room := range s.rooms {
		if room.Phase == internal.PhaseFinished && room.FinishedAt != nil && room.FinishedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// ===== PLAYERS =====

func (s *Memory) AddPlayer(_ context.Context, player *internal.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[player.RoomId]; !ok {
		return internal.NotFound("room %s not found", player.RoomId)
	}
	for _, p := range s.players[player.RoomId] {
		if p.Id == player.Id {
			return internal.Conflict("player %s already in room", player.Id)
		}
		if strings.EqualFold(p.Nickname, player.Nickname) {
			return internal.Conflict("nickname %q is taken", player.Nickname)
		}
	}
	s.players[player.RoomId] = append(s.players[player.RoomId], player.Clone())
	return nil
}

func (s *Memory) GetPlayer(_ context.Context, roomID, playerID string) (*internal.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p := s.findPlayer(roomID, playerID); p != nil {
		return p.Clone(), nil
	}
	return nil, internal.NotFound("player %s not found in room %s", playerID, roomID)
}

func (s *Memory) ListPlayers(_ context.Context, roomID string) ([]*internal.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := s.players[roomID]
	out := make([]*internal.Player, 0, len(players))
	for _, p := range players {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *Memory) UpdatePlayer(_ context.Context, player *internal.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := s.players[player.RoomId]
	for i, p := range players {
		if p.Id == player.Id {
			players[i] = player.Clone()
			return nil
		}
	}
	return internal.NotFound("player %s not found in room %s", player.Id, player.RoomId)
}

func (s *Memory) RemovePlayer(_ context.Context, roomID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := s.players[roomID]
	i := slices.IndexFunc(players, func(p *internal.Player) bool { return p.Id == playerID })
	if i < 0 {
		return internal.NotFound("player %s not found in room %s", playerID, roomID)
	}
	s.players[roomID] = slices.Delete(players, i, i+1)
	return nil
}

// AddScores applies every delta or none of them.
func (s *Memory) AddScores(_ context.Context, roomID string, deltas map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range deltas {
		if s.findPlayer(roomID, id) == nil {
			return internal.NotFound("player %s not found in room %s", id, roomID)
		}
	}
	for id, delta := range deltas {
		s.findPlayer(roomID, id).TotalScore += delta
	}
	return nil
}

func (s *Memory) IncrementRoleCount(_ context.Context, roomID, playerID string, role internal.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayer(roomID, playerID)
	if p == nil {
		return internal.NotFound("player %s not found in room %s", playerID, roomID)
	}
	p.IncrementRole(role)
	return nil
}

func (s *Memory) findPlayer(roomID, playerID string) *internal.Player {
	for _, p := range s.players[roomID] {
		if p.Id == playerID {
			return p
		}
	}
	return nil
}

// ===== ROUNDS =====

func (s *Memory) CreateRound(_ context.Context, round *internal.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[round.RoomId]; !ok {
		return internal.NotFound("room %s not found", round.RoomId)
	}
	rounds := s.rounds[round.RoomId]
	if rounds == nil {
		rounds = make(map[int]*internal.Round)
		s.rounds[round.RoomId] = rounds
	}
	if _, ok := rounds[round.RoundNumber]; ok {
		return internal.Conflict("round %d already exists", round.RoundNumber)
	}
	rounds[round.RoundNumber] = round.Clone()
	return nil
}

func (s *Memory) GetRound(_ context.Context, roomID string, roundNumber int) (*internal.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	round, ok := s.rounds[roomID][roundNumber]
	if !ok {
		return nil, internal.NotFound("round %d not found in room %s", roundNumber, roomID)
	}
	return round.Clone(), nil
}

func (s *Memory) UpdateRound(_ context.Context, round *internal.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[round.RoomId][round.RoundNumber]; !ok {
		return internal.NotFound("round %d not found in room %s", round.RoundNumber, round.RoomId)
	}
	s.rounds[round.RoomId][round.RoundNumber] = round.Clone()
	return nil
}

// ===== VOTES =====

func (s *Memory) CreateVote(_ context.Context, vote *internal.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[vote.RoomId][vote.RoundNumber]; !ok {
		return internal.NotFound("round %d not found in room %s", vote.RoundNumber, vote.RoomId)
	}
	byRound := s.votes[vote.RoomId]
	if byRound == nil {
		byRound = make(map[int][]*internal.Vote)
		s.votes[vote.RoomId] = byRound
	}
	for _, v := range byRound[vote.RoundNumber] {
		if v.VoterId == vote.VoterId {
			return internal.Conflict("player %s already voted in round %d", vote.VoterId, vote.RoundNumber)
		}
	}
	byRound[vote.RoundNumber] = append(byRound[vote.RoundNumber], cloneVote(vote))
	return nil
}

func (s *Memory) ListVotes(_ context.Context, roomID string, roundNumber int) ([]*internal.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	votes := s.votes[roomID][roundNumber]
	out := make([]*internal.Vote, 0, len(votes))
	for _, v := range votes {
		out = append(out, cloneVote(v))
	}
	return out, nil
}

func (s *Memory) MarkVotes(_ context.Context, roomID string, roundNumber int, correct map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.votes[roomID][roundNumber] {
		if ok, marked := correct[v.VoterId]; marked {
			v.IsCorrect = &ok
		}
	}
	return nil
}

func cloneVote(v *internal.Vote) *internal.Vote {
	c := *v
	if v.IsCorrect != nil {
		b := *v.IsCorrect
		c.IsCorrect = &b
	}
	return &c
}
