package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/turing-party-backend/internal"
)

func scoringRound(answer internal.AnswerType) *internal.Round {
	return &internal.Round{
		RoundNumber:    1,
		InterrogatorId: "interrogator",
		SubjectId:      "subject",
		AnswerType:     answer,
		Status:         internal.StatusVoting,
	}
}

func vote(voter string, choice internal.VoteChoice) *internal.Vote {
	return &internal.Vote{VoterId: voter, Choice: choice, RoundNumber: 1}
}

func TestComputeRoundScores(t *testing.T) {
	tests := []struct {
		name   string
		answer internal.AnswerType
		votes  []*internal.Vote
		bonus  bool
		want   map[string]int
	}{
		{
			name:   "mixed votes without bonus",
			answer: internal.AnswerAI,
			votes:  []*internal.Vote{vote("interrogator", internal.VoteAI), vote("juror", internal.VoteHuman)},
			want:   map[string]int{"interrogator": 50, "juror": -30, "subject": 0},
		},
		{
			name:   "jury spots the ai with bonus",
			answer: internal.AnswerAI,
			votes:  []*internal.Vote{vote("interrogator", internal.VoteAI), vote("juror", internal.VoteAI)},
			bonus:  true,
			want:   map[string]int{"interrogator": 100, "juror": 50, "subject": 0},
		},
		{
			name:   "ai fools everyone",
			answer: internal.AnswerAI,
			votes: []*internal.Vote{
				vote("interrogator", internal.VoteHuman),
				vote("juror-1", internal.VoteHuman),
				vote("juror-2", internal.VoteHuman),
			},
			bonus: true,
			want:  map[string]int{"interrogator": -30, "juror-1": -30, "juror-2": -30, "subject": 50},
		},
		{
			name:   "human mistaken for ai by everyone",
			answer: internal.AnswerHuman,
			votes:  []*internal.Vote{vote("interrogator", internal.VoteAI), vote("juror", internal.VoteAI)},
			bonus:  true,
			want:   map[string]int{"interrogator": -30, "juror": -30, "subject": 25},
		},
		{
			name:   "all correct on a human answer earns no bonus",
			answer: internal.AnswerHuman,
			votes:  []*internal.Vote{vote("interrogator", internal.VoteHuman), vote("juror", internal.VoteHuman)},
			bonus:  true,
			want:   map[string]int{"interrogator": 50, "juror": 50, "subject": 0},
		},
		{
			name:   "skip scores nothing and breaks unanimity",
			answer: internal.AnswerAI,
			votes:  []*internal.Vote{vote("interrogator", internal.VoteAI), vote("juror", internal.VoteSkip)},
			bonus:  true,
			want:   map[string]int{"interrogator": 50, "juror": 0, "subject": 0},
		},
		{
			name:   "single voter counts as every voter",
			answer: internal.AnswerAI,
			votes:  []*internal.Vote{vote("interrogator", internal.VoteAI)},
			bonus:  true,
			want:   map[string]int{"interrogator": 100, "subject": 0},
		},
		{
			name:   "no votes gives no bonus",
			answer: internal.AnswerAI,
			bonus:  true,
			want:   map[string]int{"interrogator": 0, "subject": 0},
		},
		{
			name:   "subject vote is ignored",
			answer: internal.AnswerAI,
			votes:  []*internal.Vote{vote("subject", internal.VoteHuman), vote("interrogator", internal.VoteAI)},
			bonus:  true,
			want:   map[string]int{"interrogator": 100, "subject": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRoundScores(scoringRound(tt.answer), tt.votes, tt.bonus)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeRoundScoresIsIdempotent(t *testing.T) {
	round := scoringRound(internal.AnswerAI)
	votes := []*internal.Vote{
		vote("interrogator", internal.VoteAI),
		vote("juror-1", internal.VoteHuman),
		vote("juror-2", internal.VoteSkip),
	}

	first := ComputeRoundScores(round, votes, true)
	second := ComputeRoundScores(round, votes, true)
	assert.Equal(t, first, second)
	assert.Equal(t, internal.VoteAI, votes[0].Choice)
	assert.Nil(t, votes[0].IsCorrect)
}

func TestBuildRoundResult(t *testing.T) {
	round := scoringRound(internal.AnswerAI)
	round.Question = "What did you eat today?"
	round.Answer = "Toast."
	votes := []*internal.Vote{
		vote("interrogator", internal.VoteAI),
		vote("juror", internal.VoteHuman),
		vote("other", internal.VoteSkip),
	}
	scores := ComputeRoundScores(round, votes, false)
	players := []*internal.Player{
		{Id: "interrogator", Nickname: "ann", TotalScore: 50},
		{Id: "subject", Nickname: "bob"},
		{Id: "juror", Nickname: "cid", TotalScore: -30},
		{Id: "other", Nickname: "dee"},
	}

	result := BuildRoundResult(round, votes, scores, players)

	assert.Equal(t, internal.VoteStats{Human: 1, AI: 1, Skip: 1}, result.Votes)
	require.Len(t, result.VoteDetails, 3)
	assert.True(t, result.VoteDetails[0].IsCorrect)
	assert.Equal(t, 50, result.VoteDetails[0].ScoreDelta)
	assert.False(t, result.VoteDetails[1].IsCorrect)
	assert.False(t, result.VoteDetails[2].IsCorrect)
	assert.Equal(t, internal.AnswerAI, result.SubjectChoice)
	require.Len(t, result.PlayerScores, 4)
	assert.Equal(t, -30, result.PlayerScores[2].Score)
}

func TestCalculateFinalResults(t *testing.T) {
	players := []*internal.Player{
		{Id: "a", Nickname: "ann", TotalScore: 20},
		{Id: "b", Nickname: "bob", TotalScore: 100},
		{Id: "c", Nickname: "cid", TotalScore: 100},
		{Id: "d", Nickname: "dee", TotalScore: -30},
	}

	results := CalculateFinalResults(players, 8)

	require.Len(t, results.Leaderboard, 4)
	assert.Equal(t, "b", results.Leaderboard[0].PlayerID)
	assert.Equal(t, "c", results.Leaderboard[1].PlayerID)
	assert.Equal(t, "a", results.Leaderboard[2].PlayerID)
	assert.Equal(t, "d", results.Leaderboard[3].PlayerID)
	assert.Equal(t, 4, results.Leaderboard[3].Position)
	assert.Equal(t, []string{"b", "c"}, results.Achievements.Winners)
	assert.Equal(t, 100, results.Achievements.MaxScore)
	require.NotNil(t, results.MVP)
	assert.Equal(t, "b", results.MVP.PlayerID)
	assert.Equal(t, 8, results.RoundsPlayed)
	assert.Equal(t, 4, results.TotalPlayers)
}

func TestCalculateFinalResultsEmpty(t *testing.T) {
	results := CalculateFinalResults(nil, 0)
	assert.Empty(t, results.Leaderboard)
	assert.Nil(t, results.MVP)
	assert.Empty(t, results.Achievements.Winners)
}
