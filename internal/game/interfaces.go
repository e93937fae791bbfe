package game

import (
	"context"
	"time"

	"github.com/scythe504/turing-party-backend/internal"
)

// Repository errors are expected to carry an internal.ErrorKind: not_found
// for missing rows, conflict for unique violations. Anything else is treated
// as an upstream failure.

type RoomRepository interface {
	CreateRoom(ctx context.Context, room *internal.Room) error
	GetRoom(ctx context.Context, roomID string) (*internal.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*internal.Room, error)
	UpdateRoom(ctx context.Context, room *internal.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

type PlayerRepository interface {
	// AddPlayer fails with conflict when the nickname is taken in the room.
	AddPlayer(ctx context.Context, player *internal.Player) error
	GetPlayer(ctx context.Context, roomID, playerID string) (*internal.Player, error)
	// ListPlayers returns the room's players in join order.
	ListPlayers(ctx context.Context, roomID string) ([]*internal.Player, error)
	UpdatePlayer(ctx context.Context, player *internal.Player) error
	RemovePlayer(ctx context.Context, roomID, playerID string) error
	AddScores(ctx context.Context, roomID string, deltas map[string]int) error
	IncrementRoleCount(ctx context.Context, roomID, playerID string, role internal.Role) error
}

type RoundRepository interface {
	// CreateRound fails with conflict when the round number already exists.
	CreateRound(ctx context.Context, round *internal.Round) error
	GetRound(ctx context.Context, roomID string, roundNumber int) (*internal.Round, error)
	UpdateRound(ctx context.Context, round *internal.Round) error
}

type VoteRepository interface {
	// CreateVote fails with conflict on a second vote by the same voter.
	CreateVote(ctx context.Context, vote *internal.Vote) error
	ListVotes(ctx context.Context, roomID string, roundNumber int) ([]*internal.Vote, error)
	MarkVotes(ctx context.Context, roomID string, roundNumber int, correct map[string]bool) error
}

// SettingsProvider yields the global defaults a room snapshots at start.
type SettingsProvider interface {
	GameDefaults(ctx context.Context) (internal.GameDefaults, error)
}

// AnswerProvider generates an answer on the subject's behalf.
type AnswerProvider interface {
	GenerateAnswer(ctx context.Context, question, systemPrompt, model string) (string, error)
}

// QuestionSource supplies a filler question when the interrogator times out.
type QuestionSource interface {
	RandomQuestion() string
}

// Publisher is the room event fan-out the orchestrator writes to.
type Publisher interface {
	Publish(roomID, event string, data any)
	CloseRoom(roomID string)
}

// DelayFunc returns how long a recorded answer stays hidden. sincePhase is
// the time elapsed since the answer phase began.
type DelayFunc func(answerType internal.AnswerType, sincePhase time.Duration) time.Duration

type staticSettings internal.GameDefaults

func (s staticSettings) GameDefaults(context.Context) (internal.GameDefaults, error) {
	return internal.GameDefaults(s), nil
}

// StaticSettings serves fixed defaults.
func StaticSettings(d internal.GameDefaults) SettingsProvider {
	return staticSettings(d)
}
