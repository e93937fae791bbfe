package game

import "github.com/scythe504/turing-party-backend/internal"

// RoundsPerPlayer is how many rounds each player adds to a game.
const RoundsPerPlayer = 2

// ResolveTotalRounds derives the round count from the player count, capped at
// maxRounds (itself capped at the global limit).
func ResolveTotalRounds(playerCount, maxRounds int) int {
	if maxRounds <= 0 {
		maxRounds = internal.DefaultMaxRounds
	}
	maxRounds = min(maxRounds, internal.MaxRoundsLimit)
	return max(1, min(playerCount*RoundsPerPlayer, maxRounds))
}
