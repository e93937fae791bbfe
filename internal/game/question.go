package game

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
)

// =============================================================================
// QUESTION HANDLING
// =============================================================================

// SubmitQuestion records the interrogator's question and opens the answer
// phase.
func (m *Manager) SubmitQuestion(ctx context.Context, roomID, playerID, question string) (*internal.RoundView, error) {
	question, err := internal.ValidateQuestion(question)
	if err != nil {
		return nil, err
	}

	unlock := m.lockRoom(roomID)
	defer unlock()

	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	round, err := m.loadCurrentRound(ctx, room)
	if err != nil {
		return nil, err
	}
	if round.InterrogatorId != playerID {
		return nil, internal.InvalidState("only the interrogator of round %d can ask", round.RoundNumber)
	}
	if !round.CanAcceptQuestion() {
		return nil, internal.Conflict("question of round %d is already set", round.RoundNumber)
	}

	if err := m.acceptQuestionLocked(ctx, room, round, question, false); err != nil {
		return nil, err
	}
	log.Info().Str("room", roomID).Int("round", round.RoundNumber).Str("player", playerID).Msg("[SubmitQuestion] question accepted")

	view := round.PublicView()
	return &view, nil
}

type DraftKind string

const (
	DraftQuestion DraftKind = "question"
	DraftAnswer   DraftKind = "answer"
)

// SaveDraft keeps the in-progress text a timeout falls back to. An empty
// text clears the draft.
func (m *Manager) SaveDraft(ctx context.Context, roomID, playerID string, kind DraftKind, text string) error {
	limit := internal.MaxQuestionLength
	if kind == DraftAnswer {
		limit = internal.MaxAnswerLength
	} else if kind != DraftQuestion {
		return internal.InvalidInput("unknown draft kind %q", kind)
	}
	if len([]rune(text)) > limit {
		return internal.InvalidInput("%s draft exceeds %d characters", kind, limit)
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

	switch kind {
	case DraftQuestion:
		if round.InterrogatorId != playerID {
			return internal.InvalidState("only the interrogator can draft the question")
		}
		if !round.CanAcceptQuestion() {
			return internal.InvalidState("question of round %d is already set", round.RoundNumber)
		}
		round.QuestionDraft = text
	case DraftAnswer:
		if round.SubjectId != playerID {
			return internal.InvalidState("only the subject can draft the answer")
		}
		if !round.CanAcceptAnswer() {
			return internal.InvalidState("round %d is not waiting for an answer", round.RoundNumber)
		}
		round.AnswerDraft = text
	}

	if err := m.rounds.UpdateRound(ctx, round); err != nil {
		return internal.Upstream(err, "save %s draft", kind)
	}
	return nil
}
