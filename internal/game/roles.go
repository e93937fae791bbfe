package game

import (
	"math/rand"
	"sync"

	"github.com/scythe504/turing-party-backend/internal"
)

// =============================================================================
// ROLE SELECTION
// =============================================================================

// RoleSelector picks the interrogator and subject of a round with a pity
// mechanism on top of weighted randomness.
type RoleSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRoleSelector(seed int64) *RoleSelector {
	return &RoleSelector{rng: rand.New(rand.NewSource(seed))}
}

// SelectRoundRoles returns (interrogator, subject). It does not touch the
// role counters; the caller marks usage once the round is persisted.
func (s *RoleSelector) SelectRoundRoles(players []*internal.Player, balance internal.RoleBalance) (*internal.Player, *internal.Player, error) {
	if len(players) < 2 {
		return nil, nil, internal.NewError(internal.KindInsufficientPlayers,
			"need at least 2 players to assign roles, have %d", len(players))
	}
	b := balance.Normalize()

	iCounts := roleCounts(players, internal.RoleInterrogator)
	sCounts := roleCounts(players, internal.RoleSubject)
	feasible := feasiblePairs(iCounts, sCounts, b.PityGapThreshold)

	s.mu.Lock()
	defer s.mu.Unlock()

	interrogators := make([]int, 0, len(players))
	for i := range players {
		if len(feasible) == 0 || anySubject(feasible, i) {
			interrogators = append(interrogators, i)
		}
	}
	i := s.pick(interrogators, iCounts, b)

	subjects := make([]int, 0, len(players)-1)
	for j := range players {
		if j == i {
			continue
		}
		if len(feasible) == 0 || feasible[[2]int{i, j}] {
			subjects = append(subjects, j)
		}
	}
	j := s.pick(subjects, sCounts, b)

	return players[i], players[j], nil
}

// pick applies hard pity when the count gap among candidates reaches the
// threshold, weighted sampling otherwise.
func (s *RoleSelector) pick(candidates []int, counts []int, b internal.RoleBalance) int {
	lo, hi := counts[candidates[0]], counts[candidates[0]]
	for _, c := range candidates {
		lo = min(lo, counts[c])
		hi = max(hi, counts[c])
	}

	if hi-lo >= b.PityGapThreshold {
		starved := make([]int, 0, len(candidates))
		for _, c := range candidates {
			if counts[c] == lo {
				starved = append(starved, c)
			}
		}
		return starved[s.rng.Intn(len(starved))]
	}

	weights := make([]int, len(candidates))
	total := 0
	for k, c := range candidates {
		w := b.WeightBase + (hi-counts[c])*b.WeightDeficitStep
		if counts[c] == 0 {
			w += b.WeightZeroBonus
		}
		weights[k] = w
		total += w
	}

	r := s.rng.Intn(total)
	for k, w := range weights {
		if r < w {
			return candidates[k]
		}
		r -= w
	}
	return candidates[len(candidates)-1]
}

func roleCounts(players []*internal.Player, role internal.Role) []int {
	counts := make([]int, len(players))
	for k, p := range players {
		counts[k] = p.RoleCount(role)
	}
	return counts
}

// feasiblePairs lists the (interrogator, subject) assignments that keep both
// role spreads within threshold now and still leave a valid assignment for
// the following round. Subject exclusion alone lets spreads drift past the
// threshold.
func feasiblePairs(iCounts, sCounts []int, threshold int) map[[2]int]bool {
	n := len(iCounts)
	pairs := make(map[[2]int]bool)
	for i := range n {
		if spreadAfter(iCounts, i) > threshold {
			continue
		}
		for j := range n {
			if j == i || spreadAfter(sCounts, j) > threshold {
				continue
			}
			iCounts[i]++
			sCounts[j]++
			if hasPair(iCounts, sCounts, threshold) {
				pairs[[2]int{i, j}] = true
			}
			iCounts[i]--
			sCounts[j]--
		}
	}
	return pairs
}

func hasPair(iCounts, sCounts []int, threshold int) bool {
	for i := range iCounts {
		if spreadAfter(iCounts, i) > threshold {
			continue
		}
		for j := range sCounts {
			if j != i && spreadAfter(sCounts, j) <= threshold {
				return true
			}
		}
	}
	return false
}

// spreadAfter is max-min of counts once counts[k] is incremented.
func spreadAfter(counts []int, k int) int {
	lo, hi := -1, -1
	for idx, c := range counts {
		if idx == k {
			c++
		}
		if lo < 0 || c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return hi - lo
}

func anySubject(pairs map[[2]int]bool, i int) bool {
	for p := range pairs {
		if p[0] == i {
			return true
		}
	}
	return false
}
