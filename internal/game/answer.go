package game

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
)

// =============================================================================
// ANSWER HANDLING
// =============================================================================

type AnswerParams struct {
	AnswerType internal.AnswerType `json:"answer_type"`
	Content    string              `json:"content,omitempty"`
}

// SubmitAnswer records the subject's answer, typed by hand or generated by
// the AI provider. The provider is called without holding the room lock, so
// the round is re-validated before the answer is stored.
func (m *Manager) SubmitAnswer(ctx context.Context, roomID, playerID string, params AnswerParams) (*internal.RoundView, error) {
	if !params.AnswerType.Valid() {
		return nil, internal.InvalidInput("answer type must be %q or %q", internal.AnswerHuman, internal.AnswerAI)
	}

	if params.AnswerType == internal.AnswerHuman {
		content, err := internal.ValidateAnswer(params.Content)
		if err != nil {
			return nil, err
		}
		return m.commitAnswer(ctx, roomID, playerID, 0, content, internal.AnswerHuman, "")
	}

	number, question, subject, err := m.prepareAIAnswer(ctx, roomID, playerID)
	if err != nil {
		return nil, err
	}
	if m.answers == nil {
		return nil, internal.NewError(internal.KindUpstreamFailure, "no AI answer provider configured")
	}

	log.Debug().Str("room", roomID).Int("round", number).Str("model", subject.AIModelRef).Msg("[SubmitAnswer] requesting AI answer")
	text, err := m.answers.GenerateAnswer(ctx, question, subject.SoulPrompt(), subject.AIModelRef)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID).Int("round", number).Msg("[SubmitAnswer] AI provider failed")
		return nil, internal.WrapError(internal.KindUpstreamFailure, err, "AI answer failed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, internal.NewError(internal.KindUpstreamFailure, "AI provider returned an empty answer")
	}
	if r := []rune(text); len(r) > internal.MaxAnswerLength {
		text = string(r[:internal.MaxAnswerLength])
	}

	return m.commitAnswer(ctx, roomID, playerID, number, text, internal.AnswerAI, subject.AIModelRef)
}

// prepareAIAnswer validates the request and snapshots what the provider needs.
func (m *Manager) prepareAIAnswer(ctx context.Context, roomID, playerID string) (int, string, *internal.Player, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	_, round, err := m.answerableRound(ctx, roomID, playerID)
	if err != nil {
		return 0, "", nil, err
	}
	subject, err := m.players.GetPlayer(ctx, roomID, playerID)
	if err != nil {
		return 0, "", nil, internal.Upstream(err, "load subject %s", playerID)
	}
	return round.RoundNumber, round.Question, subject, nil
}

// commitAnswer stores the answer. A non-zero number pins the round the answer
// was prepared for.
func (m *Manager) commitAnswer(ctx context.Context, roomID, playerID string, number int,
	answer string, answerType internal.AnswerType, model string) (*internal.RoundView, error) {
	unlock := m.lockRoom(roomID)
	defer unlock()

	room, round, err := m.answerableRound(ctx, roomID, playerID)
	if err != nil {
		return nil, err
	}
	if number != 0 && round.RoundNumber != number {
		return nil, internal.Conflict("round %d ended while the answer was generated", number)
	}

	if err := m.recordAnswerLocked(ctx, room, round, answer, answerType, model, false); err != nil {
		return nil, err
	}
	log.Info().Str("room", roomID).Int("round", round.RoundNumber).Str("answer_type", string(answerType)).
		Msg("[SubmitAnswer] answer recorded")

	view := round.PublicView()
	return &view, nil
}

func (m *Manager) answerableRound(ctx context.Context, roomID, playerID string) (*internal.Room, *internal.Round, error) {
	room, err := m.loadRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	round, err := m.loadCurrentRound(ctx, room)
	if err != nil {
		return nil, nil, err
	}
	if round.SubjectId != playerID {
		return nil, nil, internal.InvalidState("only the subject of round %d can answer", round.RoundNumber)
	}
	switch {
	case round.CanAcceptAnswer():
		return room, round, nil
	case round.Status == internal.StatusQuestioning:
		return nil, nil, internal.InvalidState("round %d has no question yet", round.RoundNumber)
	default:
		return nil, nil, internal.Conflict("answer of round %d is already recorded", round.RoundNumber)
	}
}
