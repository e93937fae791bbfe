package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/utils"
)

// =============================================================================
// VOTE HANDLING
// =============================================================================

// SubmitVote records a vote on the current round and settles the round early
// once every eligible voter has voted.
func (m *Manager) SubmitVote(ctx context.Context, roomID, playerID string, choice internal.VoteChoice) error {
	if !choice.Valid() {
		return internal.InvalidInput("vote must be %q, %q or %q", internal.VoteHuman, internal.VoteAI, internal.VoteSkip)
	}

	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	round, err := m.loadCurrentRound(ctx, room)
	if err != nil {
		return err
	}
	if playerID == round.SubjectId {
		return internal.InvalidState("the subject cannot vote on round %d", round.RoundNumber)
	}
	if !round.CanAcceptVotes() {
		return internal.InvalidState("round %d is not accepting votes", round.RoundNumber)
	}

	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return err
	}
	if internal.FindPlayer(players, playerID) == nil {
		return internal.NotFound("player %s not in room %s", playerID, roomID)
	}

	vote := &internal.Vote{
		Id:          utils.GenerateID(),
		RoomId:      roomID,
		RoundNumber: round.RoundNumber,
		VoterId:     playerID,
		Choice:      choice,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.votes.CreateVote(ctx, vote); err != nil {
		return internal.Upstream(err, "record vote of %s", playerID)
	}
	log.Info().Str("room", roomID).Int("round", round.RoundNumber).Str("player", playerID).Msg("[SubmitVote] vote recorded")

	votes, err := m.votes.ListVotes(ctx, roomID, round.RoundNumber)
	if err != nil {
		return internal.Upstream(err, "list votes of round %d", round.RoundNumber)
	}
	eligible := eligibleVoters(players, round)
	m.bus.Publish(roomID, internal.EventVoteSubmitted, internal.VoteSubmittedData{
		RoundNumber:   round.RoundNumber,
		VoterId:       playerID,
		VotedCount:    countVoted(votes, eligible),
		EligibleCount: len(eligible),
	})

	// the vote is kept even when settling fails and the game is aborted
	return m.settleOnActionLocked(ctx, room, round, players)
}
