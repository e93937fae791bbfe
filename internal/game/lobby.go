package game

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/utils"
)

// =============================================================================
// GAME FLOW - LOBBY & INITIALIZATION
// =============================================================================

const roomCodeAttempts = 5

type CreateRoomParams struct {
	Nickname   string `json:"nickname"`
	Password   string `json:"password,omitempty"`
	MinPlayers int    `json:"min_players,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
}

type JoinRoomParams struct {
	Code     string `json:"code"`
	Password string `json:"password,omitempty"`
	Nickname string `json:"nickname"`
}

type SetupParams struct {
	SystemPrompt *string `json:"system_prompt,omitempty"`
	AIModelRef   *string `json:"ai_model_ref,omitempty"`
}

// Session is what a creator or joiner needs to keep talking to a room.
type Session struct {
	Room   *internal.Room   `json:"room"`
	Player *internal.Player `json:"player"`
}

// CreateRoom opens a WAITING room owned by a new player.
func (m *Manager) CreateRoom(ctx context.Context, params CreateRoomParams) (*Session, error) {
	nickname, err := internal.ValidateNickname(params.Nickname)
	if err != nil {
		return nil, err
	}
	defaults, err := m.settings.GameDefaults(ctx)
	if err != nil {
		return nil, internal.Upstream(err, "load game defaults")
	}

	now := time.Now().UTC()
	owner := &internal.Player{
		Id:       utils.GenerateID(),
		Nickname: nickname,
		IsOwner:  true,
		JoinedAt: now,
	}
	config := internal.RoomConfig{
		MinPlayers: params.MinPlayers,
		MaxPlayers: params.MaxPlayers,
	}.WithDefaults(defaults)

	room := &internal.Room{
		Id:          utils.GenerateID(),
		Password:    params.Password,
		OwnerId:     owner.Id,
		Phase:       internal.PhaseWaiting,
		Config:      config,
		TotalRounds: ResolveTotalRounds(1, config.MaxRounds),
		CreatedAt:   now,
	}
	owner.RoomId = room.Id

	for attempt := 1; ; attempt++ {
		if room.Code, err = utils.GenerateRoomCode(); err != nil {
			return nil, internal.Upstream(err, "generate room code")
		}
		err = m.rooms.CreateRoom(ctx, room)
		if err == nil {
			break
		}
		if !errors.Is(err, internal.ErrConflict) || attempt == roomCodeAttempts {
			return nil, internal.Upstream(err, "create room")
		}
	}

	if err := m.players.AddPlayer(ctx, owner); err != nil {
		return nil, internal.Upstream(err, "add owner to room %s", room.Id)
	}

	log.Info().Str("room", room.Id).Str("code", room.Code).Str("owner", owner.Id).Msg("[CreateRoom] room created")
	return &Session{Room: room, Player: owner}, nil
}

// JoinRoom adds a player to a WAITING room found by its code.
func (m *Manager) JoinRoom(ctx context.Context, params JoinRoomParams) (*Session, error) {
	nickname, err := internal.ValidateNickname(params.Nickname)
	if err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(params.Code))
	if code == "" {
		return nil, internal.InvalidInput("room code is required")
	}

	found, err := m.rooms.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, internal.Upstream(err, "find room %s", code)
	}

	unlock := m.lockRoom(found.Id)
	defer unlock()

	room, err := m.loadRoom(ctx, found.Id)
	if err != nil {
		return nil, err
	}
	if !room.CanJoin() {
		return nil, internal.InvalidState("room %s is no longer accepting players", code)
	}
	if room.Password != "" && room.Password != params.Password {
		return nil, internal.InvalidInput("wrong room password")
	}

	players, err := m.loadPlayers(ctx, room.Id)
	if err != nil {
		return nil, err
	}
	if len(players) >= room.Config.MaxPlayers {
		return nil, internal.InvalidState("room %s is full (%d players)", code, room.Config.MaxPlayers)
	}
	for _, p := range players {
		if strings.EqualFold(p.Nickname, nickname) {
			return nil, internal.Conflict("nickname %q is already taken", nickname)
		}
	}

	player := &internal.Player{
		Id:       utils.GenerateID(),
		RoomId:   room.Id,
		Nickname: nickname,
		JoinedAt: time.Now().UTC(),
	}
	if err := m.players.AddPlayer(ctx, player); err != nil {
		return nil, internal.Upstream(err, "add player to room %s", room.Id)
	}

	room.TotalRounds = ResolveTotalRounds(len(players)+1, room.Config.MaxRounds)
	if err := m.rooms.UpdateRoom(ctx, room); err != nil {
		return nil, internal.Upstream(err, "update round count of room %s", room.Id)
	}

	m.bus.Publish(room.Id, internal.EventPlayerJoined, internal.PlayerJoinedData{
		Player:      internal.CreatePlayerSnapshot(player),
		PlayerCount: len(players) + 1,
		TotalRounds: room.TotalRounds,
	})

	log.Info().Str("room", room.Id).Str("player", player.Id).Str("nickname", nickname).
		Int("players", len(players)+1).Msg("[JoinRoom] player joined")
	return &Session{Room: room, Player: player}, nil
}

// SetReady toggles a player's ready flag in the lobby.
func (m *Manager) SetReady(ctx context.Context, roomID, playerID string, ready bool) (*internal.PlayerSnapshot, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Phase != internal.PhaseWaiting {
		return nil, internal.InvalidState("room %s is not in the lobby", roomID)
	}

	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	player := internal.FindPlayer(players, playerID)
	if player == nil {
		return nil, internal.NotFound("player %s not in room %s", playerID, roomID)
	}

	player.IsReady = ready
	if err := m.players.UpdatePlayer(ctx, player); err != nil {
		return nil, internal.Upstream(err, "update ready flag of %s", playerID)
	}

	readyCount := 0
	for _, p := range players {
		if p.IsReady {
			readyCount++
		}
	}
	m.bus.Publish(roomID, internal.EventPlayerReady, internal.PlayerReadyData{
		PlayerID:   player.Id,
		Nickname:   player.Nickname,
		IsReady:    ready,
		ReadyCount: readyCount,
		Total:      len(players),
	})

	snapshot := internal.CreatePlayerSnapshot(player)
	return &snapshot, nil
}

// UpdateSetup changes the player's system prompt or AI model before the first
// round starts.
func (m *Manager) UpdateSetup(ctx context.Context, roomID, playerID string, params SetupParams) (*internal.Player, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Phase != internal.PhaseWaiting && room.Phase != internal.PhaseSetup {
		return nil, internal.InvalidState("setup is closed in room %s", roomID)
	}

	player, err := m.players.GetPlayer(ctx, roomID, playerID)
	if err != nil {
		return nil, internal.Upstream(err, "load player %s", playerID)
	}
	if params.SystemPrompt != nil {
		prompt, err := internal.ValidateSystemPrompt(*params.SystemPrompt)
		if err != nil {
			return nil, err
		}
		player.SystemPrompt = prompt
	}
	if params.AIModelRef != nil {
		player.AIModelRef = strings.TrimSpace(*params.AIModelRef)
	}
	if err := m.players.UpdatePlayer(ctx, player); err != nil {
		return nil, internal.Upstream(err, "update setup of %s", playerID)
	}

	m.bus.Publish(roomID, internal.EventPlayerUpdated, internal.CreatePlayerSnapshot(player))
	return player, nil
}

// StartGame moves a WAITING room into SETUP. The round count and the phase
// durations are locked here; later edits of the global defaults do not reach
// a running game.
func (m *Manager) StartGame(ctx context.Context, roomID, requesterID string) (*internal.Room, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerId != requesterID {
		return nil, internal.InvalidState("only the room owner can start the game")
	}
	if room.Phase != internal.PhaseWaiting {
		return nil, internal.InvalidState("game in room %s has already started", roomID)
	}

	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(players) < room.Config.MinPlayers {
		return nil, internal.NewError(internal.KindInsufficientPlayers,
			"need at least %d players, have %d", room.Config.MinPlayers, len(players))
	}

	defaults, err := m.settings.GameDefaults(ctx)
	if err != nil {
		return nil, internal.Upstream(err, "load game defaults")
	}
	room.Config = room.Config.WithDefaults(defaults)
	room.TotalRounds = ResolveTotalRounds(len(players), room.Config.MaxRounds)
	room.CurrentRound = 0
	room.TransitionTo(internal.PhaseSetup, time.Now().UTC())
	if err := m.rooms.UpdateRoom(ctx, room); err != nil {
		return nil, internal.Upstream(err, "start game in room %s", roomID)
	}

	m.bus.Publish(roomID, internal.EventGameStarting, internal.GameStartingData{
		TotalRounds:  room.TotalRounds,
		SetupSeconds: seconds(room.Config.SetupDuration),
		Players:      internal.CreatePlayerSnapshots(players),
	})

	m.armPhase(roomID, timerSetup, 0, room.Config.SetupDuration, func(ctx context.Context) error {
		return m.setupExpired(ctx, roomID)
	})

	log.Info().Str("room", roomID).Int("players", len(players)).Int("total_rounds", room.TotalRounds).
		Msg("[StartGame] game starting")
	return room, nil
}

// KickPlayer removes targetID on behalf of the room owner.
func (m *Manager) KickPlayer(ctx context.Context, roomID, requesterID, targetID string) error {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerId != requesterID {
		return internal.InvalidState("only the room owner can kick players")
	}
	if targetID == requesterID {
		return internal.InvalidState("the owner cannot kick themselves")
	}
	target, err := m.players.GetPlayer(ctx, roomID, targetID)
	if err != nil {
		return internal.Upstream(err, "load player %s", targetID)
	}
	if target.IsOwner {
		return internal.InvalidState("the room owner cannot be kicked")
	}

	if err := m.players.RemovePlayer(ctx, roomID, targetID); err != nil {
		return internal.Upstream(err, "remove player %s", targetID)
	}

	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Phase == internal.PhaseWaiting {
		room.TotalRounds = ResolveTotalRounds(len(players), room.Config.MaxRounds)
		if err := m.rooms.UpdateRoom(ctx, room); err != nil {
			return internal.Upstream(err, "update round count of room %s", roomID)
		}
	}

	m.bus.Publish(roomID, internal.EventPlayerKicked, internal.PlayerKickedData{
		PlayerID:    target.Id,
		Nickname:    target.Nickname,
		PlayerCount: len(players),
		TotalRounds: room.TotalRounds,
	})
	log.Info().Str("room", roomID).Str("player", targetID).Msg("[KickPlayer] player kicked")

	return m.afterDepartureLocked(ctx, room, players)
}

// LeaveRoom removes the player. The earliest remaining player inherits
// ownership; the room is deleted with its last player.
func (m *Manager) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	player, err := m.players.GetPlayer(ctx, roomID, playerID)
	if err != nil {
		return internal.Upstream(err, "load player %s", playerID)
	}
	if err := m.players.RemovePlayer(ctx, roomID, playerID); err != nil {
		return internal.Upstream(err, "remove player %s", playerID)
	}

	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return m.deleteLocked(ctx, roomID)
	}

	data := internal.PlayerLeftData{
		PlayerID:    player.Id,
		Nickname:    player.Nickname,
		PlayerCount: len(players),
	}
	dirty := false
	if player.IsOwner || room.OwnerId == playerID {
		heir := players[0]
		heir.IsOwner = true
		if err := m.players.UpdatePlayer(ctx, heir); err != nil {
			return internal.Upstream(err, "transfer ownership to %s", heir.Id)
		}
		room.OwnerId = heir.Id
		data.NewOwnerID = heir.Id
		dirty = true
	}
	if room.Phase == internal.PhaseWaiting {
		room.TotalRounds = ResolveTotalRounds(len(players), room.Config.MaxRounds)
		dirty = true
	}
	if dirty {
		if err := m.rooms.UpdateRoom(ctx, room); err != nil {
			return internal.Upstream(err, "update room %s", roomID)
		}
	}
	data.TotalRounds = room.TotalRounds

	m.bus.Publish(roomID, internal.EventPlayerLeft, data)
	log.Info().Str("room", roomID).Str("player", playerID).Int("players", len(players)).Msg("[LeaveRoom] player left")

	return m.afterDepartureLocked(ctx, room, players)
}

// afterDepartureLocked ends a running game that lost too many players, or
// settles the voting round if the departed player was the last holdout.
func (m *Manager) afterDepartureLocked(ctx context.Context, room *internal.Room, players []*internal.Player) error {
	if !room.Phase.IsActive() {
		return nil
	}
	if len(players) < minPlayersToContinue {
		return m.finishLocked(ctx, room, "not enough players to continue")
	}
	if room.Phase != internal.PhasePlaying {
		return nil
	}
	round, err := m.loadCurrentRound(ctx, room)
	if err != nil {
		return err
	}
	return m.settleOnActionLocked(ctx, room, round, players)
}
