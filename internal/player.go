package internal

import (
	"strings"
	"unicode/utf8"
)

// PlayerSnapshot is the public view of a player; the system prompt stays
// private to its owner.
type PlayerSnapshot struct {
	ID                  string `json:"id"`
	Nickname            string `json:"nickname"`
	IsOwner             bool   `json:"is_owner"`
	IsReady             bool   `json:"is_ready"`
	HasSystemPrompt     bool   `json:"has_system_prompt"`
	AIModelRef          string `json:"ai_model_ref,omitempty"`
	TotalScore          int    `json:"total_score"`
	TimesAsInterrogator int    `json:"times_as_interrogator"`
	TimesAsSubject      int    `json:"times_as_subject"`
}

func CreatePlayerSnapshot(p *Player) PlayerSnapshot {
	return PlayerSnapshot{
		ID:                  p.Id,
		Nickname:            p.Nickname,
		IsOwner:             p.IsOwner,
		IsReady:             p.IsReady,
		HasSystemPrompt:     strings.TrimSpace(p.SystemPrompt) != "",
		AIModelRef:          p.AIModelRef,
		TotalScore:          p.TotalScore,
		TimesAsInterrogator: p.TimesAsInterrogator,
		TimesAsSubject:      p.TimesAsSubject,
	}
}

func CreatePlayerSnapshots(players []*Player) []PlayerSnapshot {
	out := make([]PlayerSnapshot, 0, len(players))
	for _, p := range players {
		out = append(out, CreatePlayerSnapshot(p))
	}
	return out
}

// RoleCount returns how many times the player has held role.
func (p *Player) RoleCount(role Role) int {
	switch role {
	case RoleInterrogator:
		return p.TimesAsInterrogator
	case RoleSubject:
		return p.TimesAsSubject
	}
	return 0
}

func (p *Player) IncrementRole(role Role) {
	switch role {
	case RoleInterrogator:
		p.TimesAsInterrogator++
	case RoleSubject:
		p.TimesAsSubject++
	}
}

// SoulPrompt is the system prompt the AI answers with.
func (p *Player) SoulPrompt() string {
	if prompt := strings.TrimSpace(p.SystemPrompt); prompt != "" {
		return prompt
	}
	return DefaultSystemPrompt
}

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func ValidateNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(nickname)
	if n < MinNicknameLength || n > MaxNicknameLength {
		return "", InvalidInput("nickname must be %d to %d characters", MinNicknameLength, MaxNicknameLength)
	}
	return nickname, nil
}

func ValidateSystemPrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) > MaxSystemPromptLength {
		return "", InvalidInput("system prompt exceeds %d characters", MaxSystemPromptLength)
	}
	return prompt, nil
}

func FindPlayer(players []*Player, id string) *Player {
	for _, p := range players {
		if p.Id == id {
			return p
		}
	}
	return nil
}
