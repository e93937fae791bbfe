package internal

import (
	"time"
)

const (
	DefaultSetupDuration    = 60 * time.Second
	DefaultQuestionDuration = 30 * time.Second
	DefaultAnswerDuration   = 45 * time.Second
	DefaultVoteDuration     = 15 * time.Second
	DefaultRevealDelay      = 3 * time.Second

	DefaultMinPlayers = 2
	DefaultMaxPlayers = 8
	MinPlayersLimit   = 2
	MaxPlayersLimit   = 16

	DefaultMaxRounds = 20
	MaxRoundsLimit   = 20

	MinNicknameLength     = 2
	MaxNicknameLength     = 32
	MaxSystemPromptLength = 2000
	MaxQuestionLength     = 500
	MaxAnswerLength       = 1000

	// NoAnswer is recorded as a human answer when the subject lets the
	// answer phase expire without a draft.
	NoAnswer            = "(no answer)"
	DefaultSystemPrompt = "You are an interesting person."
)

type RoomPhase string

const (
	PhaseWaiting  RoomPhase = "waiting"
	PhaseSetup    RoomPhase = "setup"
	PhasePlaying  RoomPhase = "playing"
	PhaseFinished RoomPhase = "finished"
)

type RoundStatus string

const (
	StatusQuestioning RoundStatus = "questioning"
	StatusAnswering   RoundStatus = "answering"
	StatusVoting      RoundStatus = "voting"
	StatusRevealed    RoundStatus = "revealed"
)

type AnswerType string

const (
	AnswerHuman AnswerType = "human"
	AnswerAI    AnswerType = "ai"
)

type VoteChoice string

const (
	VoteHuman VoteChoice = "human"
	VoteAI    VoteChoice = "ai"
	VoteSkip  VoteChoice = "skip"
)

type Role string

const (
	RoleInterrogator Role = "interrogator"
	RoleSubject      Role = "subject"
)

// RoleBalance tunes the pity-weighted role selection.
type RoleBalance struct {
	PityGapThreshold  int `json:"pity_gap_threshold"`
	WeightBase        int `json:"weight_base"`
	WeightDeficitStep int `json:"weight_deficit_step"`
	WeightZeroBonus   int `json:"weight_zero_bonus"`
}

// RoomConfig is snapshotted from GameDefaults when a game starts and never
// changes afterwards.
type RoomConfig struct {
	MinPlayers       int           `json:"min_players"`
	MaxPlayers       int           `json:"max_players"`
	SetupDuration    time.Duration `json:"setup_duration"`
	QuestionDuration time.Duration `json:"question_duration"`
	AnswerDuration   time.Duration `json:"answer_duration"`
	VoteDuration     time.Duration `json:"vote_duration"`
	RevealDelay      time.Duration `json:"reveal_delay"`
	MaxRounds        int           `json:"max_rounds"`
	BonusEnabled     bool          `json:"bonus_enabled"`
	RoleBalance      RoleBalance   `json:"role_balance"`
}

// GameDefaults are the globally editable settings a room copies at start.
type GameDefaults struct {
	SetupDuration    time.Duration `json:"setup_duration"`
	QuestionDuration time.Duration `json:"question_duration"`
	AnswerDuration   time.Duration `json:"answer_duration"`
	VoteDuration     time.Duration `json:"vote_duration"`
	RevealDelay      time.Duration `json:"reveal_delay"`
	MaxRounds        int           `json:"max_rounds"`
	BonusEnabled     bool          `json:"bonus_enabled"`
	RoleBalance      RoleBalance   `json:"role_balance"`
}

type Room struct {
	Id           string     `json:"id"`
	Code         string     `json:"code"`
	Password     string     `json:"-"`
	OwnerId      string     `json:"owner_id"`
	Phase        RoomPhase  `json:"phase"`
	Config       RoomConfig `json:"config"`
	CurrentRound int        `json:"current_round"`
	TotalRounds  int        `json:"total_rounds"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type Player struct {
	Id                  string    `json:"id"`
	RoomId              string    `json:"room_id"`
	Nickname            string    `json:"nickname"`
	IsOwner             bool      `json:"is_owner"`
	IsReady             bool      `json:"is_ready"`
	SystemPrompt        string    `json:"system_prompt,omitempty"`
	AIModelRef          string    `json:"ai_model_ref,omitempty"`
	TotalScore          int       `json:"total_score"`
	TimesAsInterrogator int       `json:"times_as_interrogator"`
	TimesAsSubject      int       `json:"times_as_subject"`
	JoinedAt            time.Time `json:"joined_at"`
}

type Round struct {
	Id             string      `json:"id"`
	RoomId         string      `json:"room_id"`
	RoundNumber    int         `json:"round_number"`
	InterrogatorId string      `json:"interrogator_id"`
	SubjectId      string      `json:"subject_id"`
	Question       string      `json:"question"`
	QuestionDraft  string      `json:"-"`
	Answer         string      `json:"answer"`
	AnswerDraft    string      `json:"-"`
	AnswerType     AnswerType  `json:"answer_type,omitempty"`
	UsedAIModel    string      `json:"used_ai_model,omitempty"`
	Status         RoundStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`

	// Answer phase bookkeeping for the display delay.
	AnswerPhaseAt     *time.Time `json:"answer_phase_at,omitempty"`
	AnswerSubmittedAt *time.Time `json:"answer_submitted_at,omitempty"`
	AnswerDisplayedAt *time.Time `json:"answer_displayed_at,omitempty"`
}

type Vote struct {
	Id          string     `json:"id"`
	RoomId      string     `json:"room_id"`
	RoundNumber int        `json:"round_number"`
	VoterId     string     `json:"voter_id"`
	Choice      VoteChoice `json:"vote"`
	IsCorrect   *bool      `json:"is_correct,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Response struct {
	StatusCode    int            `json:"status_code"`
	Success       bool           `json:"success"`
	RespStartTime int64          `json:"resp_time_start_ms"`
	RespEndTime   int64          `json:"resp_time_end_ms"`
	NetRespTime   int64          `json:"net_resp_time_ms"`
	Data          any            `json:"data,omitempty"`
	Error         *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
