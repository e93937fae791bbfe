package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/turing-party-backend/internal"
)

func makePlayers(n int) []*internal.Player {
	players := make([]*internal.Player, n)
	for i := range n {
		players[i] = &internal.Player{Id: fmt.Sprintf("p%d", i), Nickname: fmt.Sprintf("player-%d", i)}
	}
	return players
}

func spread(players []*internal.Player, role internal.Role) int {
	lo, hi := players[0].RoleCount(role), players[0].RoleCount(role)
	for _, p := range players {
		lo = min(lo, p.RoleCount(role))
		hi = max(hi, p.RoleCount(role))
	}
	return hi - lo
}

func TestSelectRoundRolesInsufficientPlayers(t *testing.T) {
	sel := NewRoleSelector(1)

	_, _, err := sel.SelectRoundRoles(makePlayers(1), internal.DefaultRoleBalance())
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrInsufficientPlayers)

	_, _, err = sel.SelectRoundRoles(nil, internal.DefaultRoleBalance())
	assert.ErrorIs(t, err, internal.ErrInsufficientPlayers)
}

func TestSelectRoundRolesDistinct(t *testing.T) {
	sel := NewRoleSelector(7)
	players := makePlayers(2)
	for range 50 {
		interrogator, subject, err := sel.SelectRoundRoles(players, internal.DefaultRoleBalance())
		require.NoError(t, err)
		assert.NotEqual(t, interrogator.Id, subject.Id)
	}
}

func TestSelectRoundRolesKeepsSpreadWithinThreshold(t *testing.T) {
	for _, threshold := range []int{1, 2, 3} {
		for n := 2; n <= 8; n++ {
			for seed := range int64(5) {
				t.Run(fmt.Sprintf("t%d_n%d_seed%d", threshold, n, seed), func(t *testing.T) {
					sel := NewRoleSelector(seed)
					players := makePlayers(n)
					balance := internal.DefaultRoleBalance()
					balance.PityGapThreshold = threshold

					for round := range 150 {
						interrogator, subject, err := sel.SelectRoundRoles(players, balance)
						require.NoError(t, err)
						require.NotEqual(t, interrogator.Id, subject.Id)

						interrogator.IncrementRole(internal.RoleInterrogator)
						subject.IncrementRole(internal.RoleSubject)

						require.LessOrEqual(t, spread(players, internal.RoleInterrogator), threshold, "round %d", round)
						require.LessOrEqual(t, spread(players, internal.RoleSubject), threshold, "round %d", round)
					}
				})
			}
		}
	}
}

func TestSelectRoundRolesHardPity(t *testing.T) {
	sel := NewRoleSelector(3)
	players := makePlayers(3)
	players[1].TimesAsInterrogator = 3
	players[2].TimesAsInterrogator = 3

	for range 30 {
		interrogator, _, err := sel.SelectRoundRoles(players, internal.DefaultRoleBalance())
		require.NoError(t, err)
		assert.Equal(t, "p0", interrogator.Id)
	}
}

func TestSelectRoundRolesFallsBackOnImpossibleCounts(t *testing.T) {
	sel := NewRoleSelector(3)
	players := makePlayers(3)
	// no assignment can bring these within threshold in one round
	players[0].TimesAsSubject = 10
	players[1].TimesAsInterrogator = 10

	interrogator, subject, err := sel.SelectRoundRoles(players, internal.DefaultRoleBalance())
	require.NoError(t, err)
	assert.NotEqual(t, interrogator.Id, subject.Id)
}

func TestSelectRoundRolesWeightedCoversEveryone(t *testing.T) {
	sel := NewRoleSelector(11)
	players := makePlayers(4)
	seen := map[string]int{}

	// fresh counters each time so only the weighted path runs
	for range 400 {
		interrogator, _, err := sel.SelectRoundRoles(players, internal.DefaultRoleBalance())
		require.NoError(t, err)
		seen[interrogator.Id]++
	}
	for _, p := range players {
		assert.Greater(t, seen[p.Id], 50, p.Id)
	}
}

func TestSelectRoundRolesDeterministicForSeed(t *testing.T) {
	run := func() []string {
		sel := NewRoleSelector(42)
		players := makePlayers(5)
		var out []string
		for range 20 {
			i, s, err := sel.SelectRoundRoles(players, internal.DefaultRoleBalance())
			require.NoError(t, err)
			i.IncrementRole(internal.RoleInterrogator)
			s.IncrementRole(internal.RoleSubject)
			out = append(out, i.Id+">"+s.Id)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSpreadAfter(t *testing.T) {
	assert.Equal(t, 1, spreadAfter([]int{0, 0, 0}, 1))
	assert.Equal(t, 0, spreadAfter([]int{0, 1}, 0))
	assert.Equal(t, 3, spreadAfter([]int{2, 0}, 0))
}
