package database_test

import (
	"context"
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/database"
	"github.com/scythe504/turing-party-backend/internal/database/migrations"
	"github.com/scythe504/turing-party-backend/internal/utils"
)

var repo *database.PostgresRepo

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testusername"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	if err := migrations.Migrate(connString); err != nil {
		panic(err)
	}

	repo, err = database.NewPostgresRepo(ctx, connString, internal.DefaultGameDefaults())
	if err != nil {
		panic(err)
	}

	code := m.Run()

	repo.Close()
	_ = postgresContainer.Terminate(ctx)
	os.Exit(code)
}

func requireRepo(t *testing.T) {
	t.Helper()
	if repo == nil {
		t.Skip("postgres container not started in short mode")
	}
}

func newRoom(t *testing.T) *internal.Room {
	t.Helper()
	code, err := utils.GenerateRoomCode()
	require.NoError(t, err)
	room := &internal.Room{
		Id:          utils.GenerateID(),
		Code:        code,
		OwnerId:     "owner",
		Phase:       internal.PhaseWaiting,
		Config:      internal.DefaultRoomConfig(),
		TotalRounds: 2,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.CreateRoom(context.Background(), room))
	return room
}

func newPlayer(t *testing.T, roomID, nickname string) *internal.Player {
	t.Helper()
	p := &internal.Player{
		Id:       utils.GenerateID(),
		RoomId:   roomID,
		Nickname: nickname,
		JoinedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AddPlayer(context.Background(), p))
	return p
}

func TestRooms(t *testing.T) {
	requireRepo(t)
	ctx := context.Background()
	room := newRoom(t)

	t.Run("GetRoom", func(t *testing.T) {
		got, err := repo.GetRoom(ctx, room.Id)
		require.NoError(t, err)
		assert.Equal(t, room.Code, got.Code)
		assert.Equal(t, room.Config, got.Config)
		assert.Nil(t, got.StartedAt)
	})

	t.Run("GetRoomByCode_LowerCase", func(t *testing.T) {
		got, err := repo.GetRoomByCode(ctx, strings.ToLower(room.Code))
		require.NoError(t, err)
		assert.Equal(t, room.Id, got.Id)
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		dup := *room
		dup.Id = utils.GenerateID()
		assert.ErrorIs(t, repo.CreateRoom(ctx, &dup), internal.ErrConflict)
	})

	t.Run("UpdateRoom", func(t *testing.T) {
		now := time.Now().UTC()
		room.Phase = internal.PhaseSetup
		room.StartedAt = &now
		require.NoError(t, repo.UpdateRoom(ctx, room))

		got, err := repo.GetRoom(ctx, room.Id)
		require.NoError(t, err)
		assert.Equal(t, internal.PhaseSetup, got.Phase)
		require.NotNil(t, got.StartedAt)
		assert.WithinDuration(t, now, *got.StartedAt, time.Millisecond)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := repo.GetRoom(ctx, "missing")
		assert.ErrorIs(t, err, internal.ErrNotFound)
		assert.ErrorIs(t, repo.UpdateRoom(ctx, &internal.Room{Id: "missing"}), internal.ErrNotFound)
	})
}

func TestPlayers(t *testing.T) {
	requireRepo(t)
	ctx := context.Background()
	room := newRoom(t)
	alice := newPlayer(t, room.Id, "Alice")
	bob := newPlayer(t, room.Id, "Bob")

	t.Run("NicknameUniquePerRoom", func(t *testing.T) {
		err := repo.AddPlayer(ctx, &internal.Player{Id: utils.GenerateID(), RoomId: room.Id, Nickname: "alice", JoinedAt: time.Now()})
		assert.ErrorIs(t, err, internal.ErrConflict)

		other := newRoom(t)
		newPlayer(t, other.Id, "Alice")
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		err := repo.AddPlayer(ctx, &internal.Player{Id: utils.GenerateID(), RoomId: "missing", Nickname: "Carol", JoinedAt: time.Now()})
		assert.ErrorIs(t, err, internal.ErrNotFound)
	})

	t.Run("ListPlayersInJoinOrder", func(t *testing.T) {
		players, err := repo.ListPlayers(ctx, room.Id)
		require.NoError(t, err)
		require.Len(t, players, 2)
		assert.Equal(t, alice.Id, players[0].Id)
		assert.Equal(t, bob.Id, players[1].Id)
	})

	t.Run("ScoresAndRoles", func(t *testing.T) {
		require.NoError(t, repo.AddScores(ctx, room.Id, map[string]int{alice.Id: 50, bob.Id: -30}))
		require.NoError(t, repo.IncrementRoleCount(ctx, room.Id, alice.Id, internal.RoleInterrogator))
		require.NoError(t, repo.IncrementRoleCount(ctx, room.Id, bob.Id, internal.RoleSubject))

		got, err := repo.GetPlayer(ctx, room.Id, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, 50, got.TotalScore)
		assert.Equal(t, 1, got.TimesAsInterrogator)

		err = repo.AddScores(ctx, room.Id, map[string]int{alice.Id: 10, "ghost": 10})
		assert.ErrorIs(t, err, internal.ErrNotFound)
		got, _ = repo.GetPlayer(ctx, room.Id, alice.Id)
		assert.Equal(t, 50, got.TotalScore)
	})

	t.Run("UpdateAndRemove", func(t *testing.T) {
		bob.IsReady = true
		bob.SystemPrompt = "You are a pirate."
		require.NoError(t, repo.UpdatePlayer(ctx, bob))
		got, err := repo.GetPlayer(ctx, room.Id, bob.Id)
		require.NoError(t, err)
		assert.True(t, got.IsReady)
		assert.Equal(t, "You are a pirate.", got.SystemPrompt)

		require.NoError(t, repo.RemovePlayer(ctx, room.Id, bob.Id))
		assert.ErrorIs(t, repo.RemovePlayer(ctx, room.Id, bob.Id), internal.ErrNotFound)
	})
}

func TestRoundsAndVotes(t *testing.T) {
	requireRepo(t)
	ctx := context.Background()
	room := newRoom(t)

	round := &internal.Round{
		Id:             utils.GenerateID(),
		RoomId:         room.Id,
		RoundNumber:    1,
		InterrogatorId: "a",
		SubjectId:      "b",
		Status:         internal.StatusQuestioning,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.CreateRound(ctx, round))

	dup := *round
	dup.Id = utils.GenerateID()
	assert.ErrorIs(t, repo.CreateRound(ctx, &dup), internal.ErrConflict)

	now := time.Now().UTC()
	round.Question = "Are you real?"
	round.Status = internal.StatusVoting
	round.Answer = "Yes"
	round.AnswerType = internal.AnswerAI
	round.UsedAIModel = "gpt-4o-mini"
	round.AnswerSubmittedAt = &now
	require.NoError(t, repo.UpdateRound(ctx, round))

	got, err := repo.GetRound(ctx, room.Id, 1)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusVoting, got.Status)
	assert.Equal(t, internal.AnswerAI, got.AnswerType)
	assert.Nil(t, got.AnswerPhaseAt)
	require.NotNil(t, got.AnswerSubmittedAt)

	_, err = repo.GetRound(ctx, room.Id, 2)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	vote := &internal.Vote{Id: utils.GenerateID(), RoomId: room.Id, RoundNumber: 1, VoterId: "a",
		Choice: internal.VoteAI, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateVote(ctx, vote))
	vote.Id = utils.GenerateID()
	assert.ErrorIs(t, repo.CreateVote(ctx, vote), internal.ErrConflict)

	require.NoError(t, repo.MarkVotes(ctx, room.Id, 1, map[string]bool{"a": true}))
	votes, err := repo.ListVotes(ctx, room.Id, 1)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.NotNil(t, votes[0].IsCorrect)
	assert.True(t, *votes[0].IsCorrect)

	require.NoError(t, repo.DeleteRoom(ctx, room.Id))
	_, err = repo.GetRound(ctx, room.Id, 1)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	votes, err = repo.ListVotes(ctx, room.Id, 1)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestListFinishedBefore(t *testing.T) {
	requireRepo(t)
	ctx := context.Background()
	room := newRoom(t)

	past := time.Now().UTC().Add(-2 * time.Hour)
	room.Phase = internal.PhaseFinished
	room.FinishedAt = &past
	require.NoError(t, repo.UpdateRoom(ctx, room))

	ids, err := repo.ListFinishedBefore(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Contains(t, ids, room.Id)

	ids, err = repo.ListFinishedBefore(ctx, past.Add(-time.Hour))
	require.NoError(t, err)
	assert.NotContains(t, ids, room.Id)
}

func TestGameDefaults(t *testing.T) {
	requireRepo(t)
	ctx := context.Background()

	d, err := repo.GameDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, internal.DefaultGameDefaults(), d)

	custom := internal.DefaultGameDefaults()
	custom.MaxRounds = 6
	custom.BonusEnabled = true
	custom.VoteDuration = 20 * time.Second
	require.NoError(t, repo.SaveGameDefaults(ctx, custom))

	d, err = repo.GameDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom, d)
}
