package internal

import (
	"strings"
	"time"
	"unicode/utf8"
)

func (r *Round) CanAcceptQuestion() bool {
	return r.Status == StatusQuestioning
}

func (r *Round) CanAcceptAnswer() bool {
	return r.Status == StatusAnswering && r.AnswerSubmittedAt == nil
}

func (r *Round) CanAcceptVotes() bool {
	return r.Status == StatusVoting
}

func (r *Round) IsRevealed() bool {
	return r.Status == StatusRevealed
}

// HasPendingAnswer reports whether an answer was recorded but is still waiting for
// its display delay.
func (r *Round) HasPendingAnswer() bool {
	return r.Status == StatusAnswering && r.AnswerSubmittedAt != nil
}

func (r *Round) IsParticipant(playerID string) bool {
	return r.InterrogatorId == playerID || r.SubjectId == playerID
}

func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.AnswerPhaseAt = cloneTime(r.AnswerPhaseAt)
	c.AnswerSubmittedAt = cloneTime(r.AnswerSubmittedAt)
	c.AnswerDisplayedAt = cloneTime(r.AnswerDisplayedAt)
	return &c
}

// RoundView is what observers may see of a round. The answer stays hidden
// until it is displayed and its type until the round is revealed.
type RoundView struct {
	Id             string      `json:"id"`
	RoundNumber    int         `json:"round_number"`
	InterrogatorId string      `json:"interrogator_id"`
	SubjectId      string      `json:"subject_id"`
	Question       string      `json:"question,omitempty"`
	Answer         string      `json:"answer,omitempty"`
	AnswerType     AnswerType  `json:"answer_type,omitempty"`
	Status         RoundStatus `json:"status"`
}

func (r *Round) PublicView() RoundView {
	view := RoundView{
		Id:             r.Id,
		RoundNumber:    r.RoundNumber,
		InterrogatorId: r.InterrogatorId,
		SubjectId:      r.SubjectId,
		Question:       r.Question,
		Status:         r.Status,
	}
	if r.Status == StatusVoting || r.Status == StatusRevealed {
		view.Answer = r.Answer
	}
	if r.Status == StatusRevealed {
		view.AnswerType = r.AnswerType
	}
	return view
}

func (v VoteChoice) Valid() bool {
	return v == VoteHuman || v == VoteAI || v == VoteSkip
}

func (a AnswerType) Valid() bool {
	return a == AnswerHuman || a == AnswerAI
}

func ValidateQuestion(question string) (string, error) {
	return validateText(question, "question", MaxQuestionLength)
}

func ValidateAnswer(answer string) (string, error) {
	return validateText(answer, "answer", MaxAnswerLength)
}

func validateText(text, field string, limit int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", InvalidInput("%s must not be empty", field)
	}
	if utf8.RuneCountInString(text) > limit {
		return "", InvalidInput("%s exceeds %d characters", field, limit)
	}
	return text, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
