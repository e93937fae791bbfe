package internal

// Message is the envelope every room event travels in.
type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// Event names published on a room's bus.
const (
	EventSnapshot        = "snapshot"
	EventPing            = "ping"
	EventPlayerJoined    = "player_joined"
	EventPlayerLeft      = "player_left"
	EventPlayerKicked    = "player_kicked"
	EventPlayerReady     = "player_ready"
	EventPlayerUpdated   = "player_updated"
	EventGameStarting    = "game_starting"
	EventCountdown       = "countdown"
	EventGameStart       = "game_start"
	EventNewRound        = "new_round"
	EventNewQuestion     = "new_question"
	EventAnswerPhase     = "answer_phase"
	EventAnswerSubmitted = "answer_submitted"
	EventNewAnswer       = "new_answer"
	EventVotingPhase     = "voting_phase"
	EventVoteSubmitted   = "vote_submitted"
	EventRoundResult     = "round_result"
	EventGameOver        = "game_over"
	EventGameError       = "game_error"
	EventRoomDeleted     = "room_deleted"
)

type CountdownData struct {
	Remaining   int    `json:"remaining"`
	RemainingMs int64  `json:"remaining_ms"`
	Phase       string `json:"phase"`
	RoundNumber int    `json:"round_number,omitempty"`
}

type PlayerJoinedData struct {
	Player      PlayerSnapshot `json:"player"`
	PlayerCount int            `json:"player_count"`
	TotalRounds int            `json:"total_rounds"`
}

type PlayerLeftData struct {
	PlayerID    string `json:"player_id"`
	Nickname    string `json:"nickname"`
	PlayerCount int    `json:"player_count"`
	NewOwnerID  string `json:"new_owner_id,omitempty"`
	TotalRounds int    `json:"total_rounds"`
}

type PlayerReadyData struct {
	PlayerID   string `json:"player_id"`
	Nickname   string `json:"nickname"`
	IsReady    bool   `json:"is_ready"`
	ReadyCount int    `json:"ready_count"`
	Total      int    `json:"total_players"`
}

type GameStartingData struct {
	TotalRounds  int              `json:"total_rounds"`
	SetupSeconds int              `json:"setup_duration"`
	Players      []PlayerSnapshot `json:"players"`
}

type NewRoundData struct {
	RoundId              string `json:"round_id"`
	RoundNumber          int    `json:"round_number"`
	TotalRounds          int    `json:"total_rounds"`
	InterrogatorId       string `json:"interrogator_id"`
	InterrogatorNickname string `json:"interrogator_nickname"`
	SubjectId            string `json:"subject_id"`
	SubjectNickname      string `json:"subject_nickname"`
	QuestionSeconds      int    `json:"question_duration"`
}

type NewQuestionData struct {
	RoundNumber int    `json:"round_number"`
	Question    string `json:"question"`
	TimedOut    bool   `json:"timed_out"`
}

type AnswerPhaseData struct {
	RoundNumber   int    `json:"round_number"`
	SubjectId     string `json:"subject_id"`
	AnswerSeconds int    `json:"answer_duration"`
}

type AnswerSubmittedData struct {
	RoundNumber  int     `json:"round_number"`
	DisplayDelay float64 `json:"display_delay"`
	TimedOut     bool    `json:"timed_out"`
}

type NewAnswerData struct {
	RoundNumber int    `json:"round_number"`
	Answer      string `json:"answer"`
}

type VotingPhaseData struct {
	RoundNumber   int `json:"round_number"`
	VoteSeconds   int `json:"vote_duration"`
	EligibleCount int `json:"eligible_voters"`
}

type VoteSubmittedData struct {
	RoundNumber   int    `json:"round_number"`
	VoterId       string `json:"voter_id"`
	VotedCount    int    `json:"voted_count"`
	EligibleCount int    `json:"eligible_voters"`
}

type VoteStats struct {
	Human int `json:"human"`
	AI    int `json:"ai"`
	Skip  int `json:"skip"`
}

type VoteDetail struct {
	VoterId    string     `json:"voter_id"`
	Vote       VoteChoice `json:"vote"`
	IsCorrect  bool       `json:"is_correct"`
	ScoreDelta int        `json:"score_delta"`
}

type PlayerScore struct {
	Id       string `json:"id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

type RoundResultData struct {
	RoundNumber    int            `json:"round_number"`
	InterrogatorId string         `json:"interrogator_id"`
	SubjectId      string         `json:"subject_id"`
	SubjectChoice  AnswerType     `json:"subject_choice"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	Votes          VoteStats      `json:"votes"`
	Scores         map[string]int `json:"scores"`
	VoteDetails    []VoteDetail   `json:"vote_details"`
	PlayerScores   []PlayerScore  `json:"player_scores"`
}

type GameResultData struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}

type Achievements struct {
	Winners  []string `json:"winners"`
	MaxScore int      `json:"max_score"`
}

type FinalResults struct {
	Leaderboard  []GameResultData `json:"leaderboard"` // sorted by score
	Achievements Achievements     `json:"achievements"`
	MVP          *GameResultData  `json:"mvp,omitempty"`
	RoundsPlayed int              `json:"rounds_played"`
	TotalPlayers int              `json:"total_players"`
}

type GameErrorData struct {
	Error string `json:"error"`
}

type PlayerKickedData struct {
	PlayerID    string `json:"player_id"`
	Nickname    string `json:"nickname"`
	PlayerCount int    `json:"player_count"`
	TotalRounds int    `json:"total_rounds"`
}

// StateSnapshot is sent to a subscriber before live events.
type StateSnapshot struct {
	Room            *Room            `json:"room"`
	Players         []PlayerSnapshot `json:"players"`
	Round           *RoundView       `json:"round,omitempty"`
	TimeRemainingMs int64            `json:"time_remaining_ms"`
}
