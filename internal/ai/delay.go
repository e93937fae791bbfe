package ai

import (
	"math/rand"
	"sync"
	"time"

	"github.com/scythe504/turing-party-backend/internal"
)

const (
	AIDelayMin    = 5 * time.Second
	AIDelayMax    = 15 * time.Second
	HumanDelayMin = 5 * time.Second
	NetworkJitter = 3 * time.Second
)

// Delayer decides how long a recorded answer stays hidden, so that the
// arrival time of an answer does not tell the voters who wrote it.
type Delayer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDelayer(seed int64) *Delayer {
	return &Delayer{rng: rand.New(rand.NewSource(seed))}
}

// DisplayDelay returns a uniform 5-15s for AI answers. A human answer is held
// until at least 5s of the answer phase have passed. Both get up to 3s of
// jitter on top.
func (d *Delayer) DisplayDelay(answerType internal.AnswerType, sincePhase time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	var base time.Duration
	if answerType == internal.AnswerAI {
		base = AIDelayMin + d.uniform(AIDelayMax-AIDelayMin)
	} else {
		base = max(HumanDelayMin-sincePhase, 0)
	}
	return base + d.uniform(NetworkJitter)
}

func (d *Delayer) uniform(span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	return time.Duration(d.rng.Int63n(int64(span) + 1))
}
