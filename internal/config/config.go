package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/scythe504/turing-party-backend/internal"
)

type Config struct {
	Port           int      `env:"PORT" envDefault:"8080"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"console"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	EventQueueSize    int           `env:"EVENT_QUEUE_SIZE" envDefault:"32"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	CountdownInterval time.Duration `env:"COUNTDOWN_INTERVAL" envDefault:"1s"`

	Game GameConfig
	AI   AIConfig

	FillerQuestionsCSV string `env:"FILLER_QUESTIONS_CSV"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	CleanupInterval  time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
	CleanupRetention time.Duration `env:"CLEANUP_RETENTION" envDefault:"1h"`
}

// GameConfig seeds the global game defaults.
type GameConfig struct {
	SetupDuration    time.Duration `env:"GAME_SETUP_DURATION" envDefault:"60s"`
	QuestionDuration time.Duration `env:"GAME_QUESTION_DURATION" envDefault:"30s"`
	AnswerDuration   time.Duration `env:"GAME_ANSWER_DURATION" envDefault:"45s"`
	VoteDuration     time.Duration `env:"GAME_VOTE_DURATION" envDefault:"15s"`
	RevealDelay      time.Duration `env:"GAME_REVEAL_DELAY" envDefault:"3s"`
	MaxRounds        int           `env:"GAME_MAX_ROUNDS" envDefault:"20"`
	BonusEnabled     bool          `env:"GAME_BONUS_ENABLED" envDefault:"false"`

	PityGapThreshold  int `env:"ROLE_PITY_GAP_THRESHOLD" envDefault:"2"`
	WeightBase        int `env:"ROLE_WEIGHT_BASE" envDefault:"100"`
	WeightDeficitStep int `env:"ROLE_WEIGHT_DEFICIT_STEP" envDefault:"40"`
	WeightZeroBonus   int `env:"ROLE_WEIGHT_ZERO_BONUS" envDefault:"60"`
}

type AIConfig struct {
	BaseURL      string        `env:"AI_BASE_URL"`
	APIKey       string        `env:"AI_API_KEY"`
	DefaultModel string        `env:"AI_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	Temperature  float32       `env:"AI_TEMPERATURE" envDefault:"0.8"`
	MaxTokens    int           `env:"AI_MAX_TOKENS" envDefault:"300"`
	Timeout      time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether an AI backend is configured.
func (c AIConfig) Enabled() bool {
	return c.APIKey != "" || c.BaseURL != ""
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the optional .env files, then the environment. Variables that
// are already set win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	return nil
}

// GameDefaults converts the game settings into normalized defaults.
func (c *Config) GameDefaults() internal.GameDefaults {
	g := c.Game
	return internal.GameDefaults{
		SetupDuration:    g.SetupDuration,
		QuestionDuration: g.QuestionDuration,
		AnswerDuration:   g.AnswerDuration,
		VoteDuration:     g.VoteDuration,
		RevealDelay:      g.RevealDelay,
		MaxRounds:        g.MaxRounds,
		BonusEnabled:     g.BonusEnabled,
		RoleBalance: internal.RoleBalance{
			PityGapThreshold:  g.PityGapThreshold,
			WeightBase:        g.WeightBase,
			WeightDeficitStep: g.WeightDeficitStep,
			WeightZeroBonus:   g.WeightZeroBonus,
		},
	}.Normalize()
}
