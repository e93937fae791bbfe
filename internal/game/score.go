package game

import (
	"cmp"
	"slices"

	"github.com/scythe504/turing-party-backend/internal"
)

const (
	CorrectVotePoints = 50
	WrongVotePoints   = -30

	InterrogatorBonus = 50 // every voter spotted the AI
	SubjectAIBonus    = 50 // every voter took the AI answer for human
	SubjectHumanBonus = 25 // every voter took the human answer for AI
)

// ComputeRoundScores maps each player to the score delta of a revealed round.
// It is pure: the same round and votes always give the same mapping. The
// interrogator, the subject and every voter appear in the result.
func ComputeRoundScores(round *internal.Round, votes []*internal.Vote, bonusEnabled bool) map[string]int {
	scores := map[string]int{
		round.InterrogatorId: 0,
		round.SubjectId:      0,
	}

	voters := 0
	allAI, allHuman := true, true
	for _, v := range votes {
		if v.VoterId == round.SubjectId {
			continue
		}
		voters++
		if _, ok := scores[v.VoterId]; !ok {
			scores[v.VoterId] = 0
		}

		if v.Choice != internal.VoteAI {
			allAI = false
		}
		if v.Choice != internal.VoteHuman {
			allHuman = false
		}
		if v.Choice == internal.VoteSkip {
			continue
		}
		if string(v.Choice) == string(round.AnswerType) {
			scores[v.VoterId] += CorrectVotePoints
		} else {
			scores[v.VoterId] += WrongVotePoints
		}
	}

	// a lone voter still counts as every voter
	if !bonusEnabled || voters == 0 {
		return scores
	}
	switch round.AnswerType {
	case internal.AnswerAI:
		if allAI {
			scores[round.InterrogatorId] += InterrogatorBonus
		}
		if allHuman {
			scores[round.SubjectId] += SubjectAIBonus
		}
	case internal.AnswerHuman:
		if allAI {
			scores[round.SubjectId] += SubjectHumanBonus
		}
	}
	return scores
}

// IsCorrectVote reports whether a non-skip vote named the answer type.
func IsCorrectVote(v *internal.Vote, answerType internal.AnswerType) bool {
	return v.Choice != internal.VoteSkip && string(v.Choice) == string(answerType)
}

// BuildRoundResult assembles the round_result payload. players must already
// carry the updated totals.
func BuildRoundResult(round *internal.Round, votes []*internal.Vote, scores map[string]int, players []*internal.Player) internal.RoundResultData {
	result := internal.RoundResultData{
		RoundNumber:    round.RoundNumber,
		InterrogatorId: round.InterrogatorId,
		SubjectId:      round.SubjectId,
		SubjectChoice:  round.AnswerType,
		Question:       round.Question,
		Answer:         round.Answer,
		Scores:         scores,
		VoteDetails:    make([]internal.VoteDetail, 0, len(votes)),
		PlayerScores:   make([]internal.PlayerScore, 0, len(players)),
	}

	for _, v := range votes {
		switch v.Choice {
		case internal.VoteHuman:
			result.Votes.Human++
		case internal.VoteAI:
			result.Votes.AI++
		case internal.VoteSkip:
			result.Votes.Skip++
		}
		result.VoteDetails = append(result.VoteDetails, internal.VoteDetail{
			VoterId:    v.VoterId,
			Vote:       v.Choice,
			IsCorrect:  IsCorrectVote(v, round.AnswerType),
			ScoreDelta: scores[v.VoterId],
		})
	}

	for _, p := range players {
		result.PlayerScores = append(result.PlayerScores, internal.PlayerScore{
			Id:       p.Id,
			Nickname: p.Nickname,
			Score:    p.TotalScore,
		})
	}
	return result
}

// CalculateFinalResults compiles leaderboard and awards from a finished game
func CalculateFinalResults(players []*internal.Player, roundsPlayed int) internal.FinalResults {
	results := internal.FinalResults{
		RoundsPlayed: roundsPlayed,
		TotalPlayers: len(players),
		Achievements: internal.Achievements{Winners: []string{}},
	}

	playerData := make([]internal.GameResultData, 0, len(players))
	for _, player := range players {
		playerData = append(playerData, internal.GameResultData{
			PlayerID: player.Id,
			Nickname: player.Nickname,
			Score:    player.TotalScore,
		})
	}

	// stable so ties keep join order
	slices.SortStableFunc(playerData, func(a, b internal.GameResultData) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for idx := range playerData {
		playerData[idx].Position = idx + 1
	}
	results.Leaderboard = playerData

	if len(playerData) == 0 {
		return results
	}
	results.MVP = &playerData[0]
	results.Achievements.MaxScore = playerData[0].Score
	for _, p := range playerData {
		if p.Score == results.Achievements.MaxScore {
			results.Achievements.Winners = append(results.Achievements.Winners, p.PlayerID)
		}
	}
	return results
}
