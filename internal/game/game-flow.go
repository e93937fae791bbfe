package game

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/utils"
)

// =============================================================================
// GAME FLOW - ROUND MANAGEMENT
// =============================================================================
//
// Every step below runs under the room lock and re-reads the room and round
// before mutating. A step that finds the state already moved on returns nil
// without doing anything, so a timer and an action racing for the same
// transition resolve to whichever got the lock first.

const (
	timerSetup    = "setup"
	timerQuestion = "questioning"
	timerAnswer   = "answering"
	timerDisplay  = "display"
	timerVoting   = "voting"
	timerReveal   = "reveal"
)

// minPlayersToContinue is the floor below which a running game ends.
const minPlayersToContinue = 2

// setupExpired starts the first round once the setup countdown ends.
func (m *Manager) setupExpired(ctx context.Context, roomID string) error {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Phase != internal.PhaseSetup {
		log.Debug().Str("room", roomID).Str("phase", string(room.Phase)).Msg("[setupExpired] room already left setup, skipping")
		return nil
	}
	return m.startRoundLocked(ctx, room, 1)
}

// startRoundLocked picks roles and opens round number in QUESTIONING.
func (m *Manager) startRoundLocked(ctx context.Context, room *internal.Room, number int) error {
	players, err := m.loadPlayers(ctx, room.Id)
	if err != nil {
		return err
	}
	if len(players) < minPlayersToContinue {
		return m.finishLocked(ctx, room, "not enough players to continue")
	}
	if number > room.TotalRounds {
		return m.finishLocked(ctx, room, "")
	}

	interrogator, subject, err := m.selector.SelectRoundRoles(players, room.Config.RoleBalance)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	round := &internal.Round{
		Id:             utils.GenerateID(),
		RoomId:         room.Id,
		RoundNumber:    number,
		InterrogatorId: interrogator.Id,
		SubjectId:      subject.Id,
		Status:         internal.StatusQuestioning,
		CreatedAt:      now,
	}
	if err := m.rounds.CreateRound(ctx, round); err != nil {
		if errors.Is(err, internal.ErrConflict) {
			log.Warn().Str("room", room.Id).Int("round", number).Msg("[startRoundLocked] round already exists, skipping")
			return nil
		}
		return internal.Upstream(err, "create round %d", number)
	}

	firstRound := room.Phase == internal.PhaseSetup
	if firstRound {
		room.TransitionTo(internal.PhasePlaying, now)
	}
	room.CurrentRound = number
	if err := m.rooms.UpdateRoom(ctx, room); err != nil {
		return internal.Upstream(err, "advance room to round %d", number)
	}

	for _, mark := range []struct {
		player *internal.Player
		role   internal.Role
	}{{interrogator, internal.RoleInterrogator}, {subject, internal.RoleSubject}} {
		if err := m.players.IncrementRoleCount(ctx, room.Id, mark.player.Id, mark.role); err != nil {
			return internal.Upstream(err, "mark %s usage", mark.role)
		}
	}

	event := internal.EventNewRound
	if firstRound {
		event = internal.EventGameStart
	}
	m.bus.Publish(room.Id, event, internal.NewRoundData{
		RoundId:              round.Id,
		RoundNumber:          number,
		TotalRounds:          room.TotalRounds,
		InterrogatorId:       interrogator.Id,
		InterrogatorNickname: interrogator.Nickname,
		SubjectId:            subject.Id,
		SubjectNickname:      subject.Nickname,
		QuestionSeconds:      seconds(room.Config.QuestionDuration),
	})

	log.Info().Str("room", room.Id).Int("round", number).Int("total", room.TotalRounds).
		Str("interrogator", interrogator.Id).Str("subject", subject.Id).Msg("[startRoundLocked] round started")

	roomID := room.Id
	m.armPhase(roomID, timerQuestion, number, room.Config.QuestionDuration, func(ctx context.Context) error {
		return m.questionExpired(ctx, roomID, number)
	})
	return nil
}

// questionExpired forces the question from the draft or the filler bank.
func (m *Manager) questionExpired(ctx context.Context, roomID string, number int) error {
	room, round, ok, err := m.roundForStep(ctx, roomID, number)
	if err != nil || !ok {
		return err
	}
	if !round.CanAcceptQuestion() {
		log.Debug().Str("room", roomID).Int("round", number).Msg("[questionExpired] question already set, skipping")
		return nil
	}

	question := strings.TrimSpace(round.QuestionDraft)
	if question == "" {
		question = m.questions.RandomQuestion()
	}
	return m.acceptQuestionLocked(ctx, room, round, question, true)
}

// acceptQuestionLocked records the question and opens the answer phase.
func (m *Manager) acceptQuestionLocked(ctx context.Context, room *internal.Room, round *internal.Round, question string, timedOut bool) error {
	now := time.Now().UTC()
	round.Question = question
	round.Status = internal.StatusAnswering
	round.AnswerPhaseAt = &now
	if err := m.rounds.UpdateRound(ctx, round); err != nil {
		return internal.Upstream(err, "save question of round %d", round.RoundNumber)
	}

	m.bus.Publish(room.Id, internal.EventNewQuestion, internal.NewQuestionData{
		RoundNumber: round.RoundNumber,
		Question:    question,
		TimedOut:    timedOut,
	})
	m.bus.Publish(room.Id, internal.EventAnswerPhase, internal.AnswerPhaseData{
		RoundNumber:   round.RoundNumber,
		SubjectId:     round.SubjectId,
		AnswerSeconds: seconds(room.Config.AnswerDuration),
	})

	roomID, number := room.Id, round.RoundNumber
	m.armPhase(roomID, timerAnswer, number, room.Config.AnswerDuration, func(ctx context.Context) error {
		return m.answerExpired(ctx, roomID, number)
	})
	return nil
}

// answerExpired records the draft as a human answer, or the no-answer
// sentinel.
func (m *Manager) answerExpired(ctx context.Context, roomID string, number int) error {
	room, round, ok, err := m.roundForStep(ctx, roomID, number)
	if err != nil || !ok {
		return err
	}
	if !round.CanAcceptAnswer() {
		log.Debug().Str("room", roomID).Int("round", number).Msg("[answerExpired] answer already recorded, skipping")
		return nil
	}

	answer := strings.TrimSpace(round.AnswerDraft)
	if answer == "" {
		answer = internal.NoAnswer
	}
	return m.recordAnswerLocked(ctx, room, round, answer, internal.AnswerHuman, "", true)
}

// recordAnswerLocked stores the answer and hides it for the display delay.
func (m *Manager) recordAnswerLocked(ctx context.Context, room *internal.Room, round *internal.Round,
	answer string, answerType internal.AnswerType, model string, timedOut bool) error {
	now := time.Now().UTC()
	round.Answer = answer
	round.AnswerType = answerType
	round.UsedAIModel = model
	round.AnswerSubmittedAt = &now
	if err := m.rounds.UpdateRound(ctx, round); err != nil {
		return internal.Upstream(err, "save answer of round %d", round.RoundNumber)
	}

	var sincePhase time.Duration
	if round.AnswerPhaseAt != nil {
		sincePhase = now.Sub(*round.AnswerPhaseAt)
	}
	delay := max(m.delay(answerType, sincePhase), 0)

	m.bus.Publish(room.Id, internal.EventAnswerSubmitted, internal.AnswerSubmittedData{
		RoundNumber:  round.RoundNumber,
		DisplayDelay: delay.Seconds(),
		TimedOut:     timedOut,
	})

	roomID, number := room.Id, round.RoundNumber
	m.armDeadline(roomID, timerDisplay, delay, func(ctx context.Context) error {
		return m.showAnswer(ctx, roomID, number)
	})
	return nil
}

// showAnswer reveals the answer text and opens voting.
func (m *Manager) showAnswer(ctx context.Context, roomID string, number int) error {
	room, round, ok, err := m.roundForStep(ctx, roomID, number)
	if err != nil || !ok {
		return err
	}
	if !round.HasPendingAnswer() {
		log.Debug().Str("room", roomID).Int("round", number).Msg("[showAnswer] answer already shown, skipping")
		return nil
	}

	players, err := m.loadPlayers(ctx, roomID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	round.AnswerDisplayedAt = &now
	round.Status = internal.StatusVoting
	if err := m.rounds.UpdateRound(ctx, round); err != nil {
		return internal.Upstream(err, "open voting of round %d", number)
	}

	m.bus.Publish(roomID, internal.EventNewAnswer, internal.NewAnswerData{
		RoundNumber: number,
		Answer:      round.Answer,
	})
	m.bus.Publish(roomID, internal.EventVotingPhase, internal.VotingPhaseData{
		RoundNumber:   number,
		VoteSeconds:   seconds(room.Config.VoteDuration),
		EligibleCount: len(eligibleVoters(players, round)),
	})

	m.armPhase(roomID, timerVoting, number, room.Config.VoteDuration, func(ctx context.Context) error {
		return m.votingExpired(ctx, roomID, number)
	})
	return nil
}

func (m *Manager) votingExpired(ctx context.Context, roomID string, number int) error {
	room, round, ok, err := m.roundForStep(ctx, roomID, number)
	if err != nil || !ok {
		return err
	}
	if !round.CanAcceptVotes() {
		log.Debug().Str("room", roomID).Int("round", number).Msg("[votingExpired] round already settled, skipping")
		return nil
	}
	return m.settleLocked(ctx, room, round)
}

// settleLocked applies score deltas, reveals the round and schedules what
// comes next.
func (m *Manager) settleLocked(ctx context.Context, room *internal.Room, round *internal.Round) error {
	votes, err := m.votes.ListVotes(ctx, room.Id, round.RoundNumber)
	if err != nil {
		return internal.Upstream(err, "list votes of round %d", round.RoundNumber)
	}

	scores := ComputeRoundScores(round, votes, room.Config.BonusEnabled)

	players, err := m.loadPlayers(ctx, room.Id)
	if err != nil {
		return err
	}
	deltas := make(map[string]int, len(scores))
	for id, delta := range scores {
		if delta != 0 && internal.FindPlayer(players, id) != nil {
			deltas[id] = delta
		}
	}
	if len(deltas) > 0 {
		if err := m.players.AddScores(ctx, room.Id, deltas); err != nil {
			return internal.Upstream(err, "apply scores of round %d", round.RoundNumber)
		}
	}

	correct := make(map[string]bool, len(votes))
	for _, v := range votes {
		correct[v.VoterId] = IsCorrectVote(v, round.AnswerType)
	}
	if len(correct) > 0 {
		if err := m.votes.MarkVotes(ctx, room.Id, round.RoundNumber, correct); err != nil {
			return internal.Upstream(err, "mark votes of round %d", round.RoundNumber)
		}
	}

	// revealed only once scores and votes are in, so a failure above leaves
	// the round open for the vote deadline
	round.Status = internal.StatusRevealed
	if err := m.rounds.UpdateRound(ctx, round); err != nil {
		return internal.Upstream(err, "reveal round %d", round.RoundNumber)
	}

	// reload for the updated totals
	if players, err = m.loadPlayers(ctx, room.Id); err != nil {
		return err
	}
	m.bus.Publish(room.Id, internal.EventRoundResult, BuildRoundResult(round, votes, scores, players))

	log.Info().Str("room", room.Id).Int("round", round.RoundNumber).Str("answer_type", string(round.AnswerType)).
		Int("votes", len(votes)).Msg("[settleLocked] round settled")

	roomID, number := room.Id, round.RoundNumber
	m.armDeadline(roomID, timerReveal, room.Config.RevealDelay, func(ctx context.Context) error {
		return m.revealExpired(ctx, roomID, number)
	})
	return nil
}

// revealExpired starts the next round or ends the game.
func (m *Manager) revealExpired(ctx context.Context, roomID string, number int) error {
	room, round, ok, err := m.roundForStep(ctx, roomID, number)
	if err != nil || !ok {
		return err
	}
	if !round.IsRevealed() {
		return nil
	}
	if room.IsLastRound() {
		return m.finishLocked(ctx, room, "")
	}
	return m.startRoundLocked(ctx, room, number+1)
}

// settleIfCompleteLocked settles the voting round early once every eligible
// voter has voted.
func (m *Manager) settleIfCompleteLocked(ctx context.Context, room *internal.Room, round *internal.Round, players []*internal.Player) (bool, error) {
	if !round.CanAcceptVotes() {
		return false, nil
	}
	votes, err := m.votes.ListVotes(ctx, room.Id, round.RoundNumber)
	if err != nil {
		return false, internal.Upstream(err, "list votes of round %d", round.RoundNumber)
	}
	eligible := eligibleVoters(players, round)
	if len(eligible) == 0 || countVoted(votes, eligible) < len(eligible) {
		return false, nil
	}
	return true, m.settleLocked(ctx, room, round)
}

// settleOnActionLocked is settleIfCompleteLocked for action paths, which have
// no timer to fall back on: a failed settlement aborts the game.
func (m *Manager) settleOnActionLocked(ctx context.Context, room *internal.Room, round *internal.Round, players []*internal.Player) error {
	if _, err := m.settleIfCompleteLocked(ctx, room, round, players); err != nil {
		log.Error().Err(err).Str("room", room.Id).Int("round", round.RoundNumber).
			Msg("[settleOnActionLocked] settlement failed, aborting game")
		m.abortLocked(room.Id, err)
		return err
	}
	return nil
}

// roundForStep loads the room and round a timer step was armed for. ok is
// false when the room has moved past that round.
func (m *Manager) roundForStep(ctx context.Context, roomID string, number int) (*internal.Room, *internal.Round, bool, error) {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, nil, false, err
	}
	if room.Phase != internal.PhasePlaying || room.CurrentRound != number {
		log.Debug().Str("room", roomID).Int("round", number).Int("current", room.CurrentRound).
			Str("phase", string(room.Phase)).Msg("[roundForStep] stale timer step, skipping")
		return room, nil, false, nil
	}
	round, err := m.rounds.GetRound(ctx, roomID, number)
	if err != nil {
		// a playing room always has its current round; a missing one is corruption
		return nil, nil, false, internal.WrapError(internal.KindUpstreamFailure, err,
			"load round %d of room %s", number, roomID)
	}
	return room, round, true, nil
}

// armDeadline arms a timer without countdown updates.
func (m *Manager) armDeadline(roomID, phase string, d time.Duration, step func(ctx context.Context) error) {
	m.scheduler.Arm(roomID, phase, d, nil, m.onDeadline(roomID, phase, step))
}

func eligibleVoters(players []*internal.Player, round *internal.Round) map[string]bool {
	eligible := make(map[string]bool, len(players))
	for _, p := range players {
		if p.Id != round.SubjectId {
			eligible[p.Id] = true
		}
	}
	return eligible
}

func countVoted(votes []*internal.Vote, eligible map[string]bool) int {
	n := 0
	for _, v := range votes {
		if eligible[v.VoterId] {
			n++
		}
	}
	return n
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
