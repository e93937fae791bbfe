package internal

import "time"

// Methods (Room Struct)

var phaseOrder = map[RoomPhase]int{
	PhaseWaiting:  0,
	PhaseSetup:    1,
	PhasePlaying:  2,
	PhaseFinished: 3,
}

// CanTransitionTo reports whether a room may move from p to next. Phases
// only move forward; finished is terminal.
func (p RoomPhase) CanTransitionTo(next RoomPhase) bool {
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	if !ok {
		return false
	}
	if p == PhaseFinished {
		return false
	}
	// a forced finish may skip phases
	return to > from
}

func (p RoomPhase) IsActive() bool {
	return p == PhaseSetup || p == PhasePlaying
}

func (r *Room) CanJoin() bool {
	return r.Phase == PhaseWaiting
}

func (r *Room) IsLastRound() bool {
	return r.TotalRounds > 0 && r.CurrentRound >= r.TotalRounds
}

// TransitionTo moves the room forward, stamping start and finish times.
func (r *Room) TransitionTo(next RoomPhase, now time.Time) bool {
	if !r.Phase.CanTransitionTo(next) {
		return false
	}
	r.Phase = next
	switch next {
	case PhaseSetup:
		r.StartedAt = &now
	case PhaseFinished:
		r.FinishedAt = &now
	}
	return true
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// ===== CONFIG =====

func DefaultRoleBalance() RoleBalance {
	return RoleBalance{
		PityGapThreshold:  2,
		WeightBase:        100,
		WeightDeficitStep: 40,
		WeightZeroBonus:   60,
	}
}

// Normalize clamps every parameter into its allowed range.
func (b RoleBalance) Normalize() RoleBalance {
	return RoleBalance{
		PityGapThreshold:  clamp(b.PityGapThreshold, 1, 10),
		WeightBase:        clamp(b.WeightBase, 1, 10000),
		WeightDeficitStep: clamp(b.WeightDeficitStep, 0, 10000),
		WeightZeroBonus:   clamp(b.WeightZeroBonus, 0, 10000),
	}
}

func DefaultGameDefaults() GameDefaults {
	return GameDefaults{
		SetupDuration:    DefaultSetupDuration,
		QuestionDuration: DefaultQuestionDuration,
		AnswerDuration:   DefaultAnswerDuration,
		VoteDuration:     DefaultVoteDuration,
		RevealDelay:      DefaultRevealDelay,
		MaxRounds:        DefaultMaxRounds,
		BonusEnabled:     false,
		RoleBalance:      DefaultRoleBalance(),
	}
}

// Normalize replaces non-positive durations with the built-in defaults and
// clamps the round cap.
func (d GameDefaults) Normalize() GameDefaults {
	def := DefaultGameDefaults()
	d.SetupDuration = positiveOr(d.SetupDuration, def.SetupDuration)
	d.QuestionDuration = positiveOr(d.QuestionDuration, def.QuestionDuration)
	d.AnswerDuration = positiveOr(d.AnswerDuration, def.AnswerDuration)
	d.VoteDuration = positiveOr(d.VoteDuration, def.VoteDuration)
	if d.RevealDelay < 0 {
		d.RevealDelay = def.RevealDelay
	}
	if d.MaxRounds <= 0 {
		d.MaxRounds = def.MaxRounds
	}
	d.MaxRounds = clamp(d.MaxRounds, 1, MaxRoundsLimit)
	if d.RoleBalance == (RoleBalance{}) {
		d.RoleBalance = def.RoleBalance
	}
	d.RoleBalance = d.RoleBalance.Normalize()
	return d
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{MinPlayers: DefaultMinPlayers, MaxPlayers: DefaultMaxPlayers}.WithDefaults(DefaultGameDefaults())
}

// WithDefaults snapshots the game defaults into the config, keeping the
// room's own player limits.
func (c RoomConfig) WithDefaults(d GameDefaults) RoomConfig {
	d = d.Normalize()
	c.SetupDuration = d.SetupDuration
	c.QuestionDuration = d.QuestionDuration
	c.AnswerDuration = d.AnswerDuration
	c.VoteDuration = d.VoteDuration
	c.RevealDelay = d.RevealDelay
	c.MaxRounds = d.MaxRounds
	c.BonusEnabled = d.BonusEnabled
	c.RoleBalance = d.RoleBalance
	return c.NormalizeLimits()
}

func (c RoomConfig) NormalizeLimits() RoomConfig {
	if c.MinPlayers == 0 {
		c.MinPlayers = DefaultMinPlayers
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	c.MinPlayers = clamp(c.MinPlayers, MinPlayersLimit, MaxPlayersLimit)
	c.MaxPlayers = clamp(c.MaxPlayers, c.MinPlayers, MaxPlayersLimit)
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	c.MaxRounds = clamp(c.MaxRounds, 1, MaxRoundsLimit)
	return c
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
