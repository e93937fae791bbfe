package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scythe504/turing-party-backend/internal"
)

var ErrUnexpectedDatabase = errors.New("unexpected database error")

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresRepo stores rooms, players, rounds, votes and the global game
// defaults.
type PostgresRepo struct {
	pool     *pgxpool.Pool
	fallback internal.GameDefaults
}

// NewPostgresRepo connects to connString. fallback is served as the game
// defaults until a settings row is saved.
func NewPostgresRepo(ctx context.Context, connString string, fallback internal.GameDefaults) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepo{pool: pool, fallback: fallback.Normalize()}, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// mapError turns driver errors into orchestrator error kinds.
func mapError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return internal.WrapError(internal.KindNotFound, err, "%s", msg)
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return internal.WrapError(internal.KindConflict, err, "%s", msg)
	case errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation:
		return internal.WrapError(internal.KindNotFound, err, "%s", msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrUnexpectedDatabase, msg, err)
	}
}

func expectOne(tag pgconn.CommandTag, format string, args ...any) error {
	if tag.RowsAffected() == 0 {
		return internal.NotFound(format, args...)
	}
	return nil
}

// ===== SETTINGS =====

func (r *PostgresRepo) GameDefaults(ctx context.Context) (internal.GameDefaults, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, "SELECT defaults FROM game_settings WHERE id = 1").Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.fallback, nil
	}
	if err != nil {
		return internal.GameDefaults{}, mapError(err, "load game defaults")
	}

	var d internal.GameDefaults
	if err := json.Unmarshal(raw, &d); err != nil {
		return internal.GameDefaults{}, fmt.Errorf("decode game defaults: %w", err)
	}
	return d.Normalize(), nil
}

// SaveGameDefaults replaces the global defaults. Running games keep the
// values they started with.
func (r *PostgresRepo) SaveGameDefaults(ctx context.Context, d internal.GameDefaults) error {
	raw, err := json.Marshal(d.Normalize())
	if err != nil {
		return fmt.Errorf("encode game defaults: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO game_settings (id, defaults, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET defaults = EXCLUDED.defaults, updated_at = now()`, raw)
	if err != nil {
		return mapError(err, "save game defaults")
	}
	return nil
}

// ===== ROOMS =====

const roomColumns = `id, code, password, owner_id, phase, config, current_round, total_rounds,
	created_at, started_at, finished_at`

func scanRoom(row pgx.Row) (*internal.Room, error) {
	var (
		room   internal.Room
		config []byte
	)
	err := row.Scan(&room.Id, &room.Code, &room.Password, &room.OwnerId, &room.Phase, &config,
		&room.CurrentRound, &room.TotalRounds, &room.CreatedAt, &room.StartedAt, &room.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &room.Config); err != nil {
		return nil, fmt.Errorf("decode room config: %w", err)
	}
	return &room, nil
}

func (r *PostgresRepo) CreateRoom(ctx context.Context, room *internal.Room) error {
	config, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("encode room config: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		room.Id, room.Code, room.Password, room.OwnerId, room.Phase, config,
		room.CurrentRound, room.TotalRounds, room.CreatedAt, room.StartedAt, room.FinishedAt)
	if err != nil {
		return mapError(err, "create room %s", room.Id)
	}
	return nil
}

func (r *PostgresRepo) GetRoom(ctx context.Context, roomID string) (*internal.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = $1", roomID))
	if err != nil {
		return nil, mapError(err, "room %s", roomID)
	}
	return room, nil
}

func (r *PostgresRepo) GetRoomByCode(ctx context.Context, code string) (*internal.Room, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+roomColumns+" FROM rooms WHERE code = $1", strings.ToUpper(code))
	room, err := scanRoom(row)
	if err != nil {
		return nil, mapError(err, "room with code %s", code)
	}
	return room, nil
}

func (r *PostgresRepo) UpdateRoom(ctx context.Context, room *internal.Room) error {
	config, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("encode room config: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE rooms SET owner_id = $2, phase = $3, config = $4, current_round = $5, total_rounds = $6,
			started_at = $7, finished_at = $8
		WHERE id = $1`,
		room.Id, room.OwnerId, room.Phase, config, room.CurrentRound, room.TotalRounds,
		room.StartedAt, room.FinishedAt)
	if err != nil {
		return mapError(err, "update room %s", room.Id)
	}
	return expectOne(tag, "room %s not found", room.Id)
}

// DeleteRoom removes the room; players, rounds and votes go with it.
func (r *PostgresRepo) DeleteRoom(ctx context.Context, roomID string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM rooms WHERE id = $1", roomID)
	if err != nil {
		return mapError(err, "delete room %s", roomID)
	}
	return expectOne(tag, "room %s not found", roomID)
}

func (r *PostgresRepo) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM rooms WHERE phase = 'finished' AND finished_at < $1 ORDER BY id`, cutoff)
	if err != nil {
		return nil, mapError(err, "list finished rooms")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err, "list finished rooms")
	}
	return ids, nil
}

// ===== PLAYERS =====

const playerColumns = `id, room_id, nickname, is_owner, is_ready, system_prompt, ai_model_ref,
	total_score, times_as_interrogator, times_as_subject, joined_at`

func scanPlayer(row pgx.Row) (*internal.Player, error) {
	var p internal.Player
	err := row.Scan(&p.Id, &p.RoomId, &p.Nickname, &p.IsOwner, &p.IsReady, &p.SystemPrompt, &p.AIModelRef,
		&p.TotalScore, &p.TimesAsInterrogator, &p.TimesAsSubject, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepo) AddPlayer(ctx context.Context, p *internal.Player) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO players (`+playerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.Id, p.RoomId, p.Nickname, p.IsOwner, p.IsReady, p.SystemPrompt, p.AIModelRef,
		p.TotalScore, p.TimesAsInterrogator, p.TimesAsSubject, p.JoinedAt)
	if err != nil {
		return mapError(err, "add player %q to room %s", p.Nickname, p.RoomId)
	}
	return nil
}

func (r *PostgresRepo) GetPlayer(ctx context.Context, roomID, playerID string) (*internal.Player, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+playerColumns+" FROM players WHERE room_id = $1 AND id = $2", roomID, playerID)
	p, err := scanPlayer(row)
	if err != nil {
		return nil, mapError(err, "player %s in room %s", playerID, roomID)
	}
	return p, nil
}

func (r *PostgresRepo) ListPlayers(ctx context.Context, roomID string) ([]*internal.Player, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+playerColumns+" FROM players WHERE room_id = $1 ORDER BY seq", roomID)
	if err != nil {
		return nil, mapError(err, "list players of room %s", roomID)
	}
	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*internal.Player, error) {
		return scanPlayer(row)
	})
	if err != nil {
		return nil, mapError(err, "list players of room %s", roomID)
	}
	return players, nil
}

func (r *PostgresRepo) UpdatePlayer(ctx context.Context, p *internal.Player) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE players SET nickname = $3, is_owner = $4, is_ready = $5, system_prompt = $6, ai_model_ref = $7
		WHERE room_id = $1 AND id = $2`,
		p.RoomId, p.Id, p.Nickname, p.IsOwner, p.IsReady, p.SystemPrompt, p.AIModelRef)
	if err != nil {
		return mapError(err, "update player %s", p.Id)
	}
	return expectOne(tag, "player %s not found in room %s", p.Id, p.RoomId)
}

func (r *PostgresRepo) RemovePlayer(ctx context.Context, roomID, playerID string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM players WHERE room_id = $1 AND id = $2", roomID, playerID)
	if err != nil {
		return mapError(err, "remove player %s", playerID)
	}
	return expectOne(tag, "player %s not found in room %s", playerID, roomID)
}

// AddScores applies every delta in one transaction.
func (r *PostgresRepo) AddScores(ctx context.Context, roomID string, deltas map[string]int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapError(err, "begin score update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for playerID, delta := range deltas {
		tag, err := tx.Exec(ctx, `
			UPDATE players SET total_score = total_score + $3 WHERE room_id = $1 AND id = $2`,
			roomID, playerID, delta)
		if err != nil {
			return mapError(err, "add score of %s", playerID)
		}
		if err := expectOne(tag, "player %s not found in room %s", playerID, roomID); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit score update")
	}
	return nil
}

func (r *PostgresRepo) IncrementRoleCount(ctx context.Context, roomID, playerID string, role internal.Role) error {
	var column string
	switch role {
	case internal.RoleInterrogator:
		column = "times_as_interrogator"
	case internal.RoleSubject:
		column = "times_as_subject"
	default:
		return internal.InvalidInput("unknown role %q", role)
	}
	tag, err := r.pool.Exec(ctx,
		"UPDATE players SET "+column+" = "+column+" + 1 WHERE room_id = $1 AND id = $2", roomID, playerID)
	if err != nil {
		return mapError(err, "increment %s count of %s", role, playerID)
	}
	return expectOne(tag, "player %s not found in room %s", playerID, roomID)
}

// ===== ROUNDS =====

const roundColumns = `id, room_id, round_number, interrogator_id, subject_id, question, question_draft,
	answer, answer_draft, answer_type, used_ai_model, status, created_at,
	answer_phase_at, answer_submitted_at, answer_displayed_at`

func (r *PostgresRepo) CreateRound(ctx context.Context, round *internal.Round) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rounds (`+roundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		round.Id, round.RoomId, round.RoundNumber, round.InterrogatorId, round.SubjectId,
		round.Question, round.QuestionDraft, round.Answer, round.AnswerDraft, round.AnswerType,
		round.UsedAIModel, round.Status, round.CreatedAt,
		round.AnswerPhaseAt, round.AnswerSubmittedAt, round.AnswerDisplayedAt)
	if err != nil {
		return mapError(err, "create round %d of room %s", round.RoundNumber, round.RoomId)
	}
	return nil
}

func (r *PostgresRepo) GetRound(ctx context.Context, roomID string, roundNumber int) (*internal.Round, error) {
	var round internal.Round
	err := r.pool.QueryRow(ctx, "SELECT "+roundColumns+" FROM rounds WHERE room_id = $1 AND round_number = $2",
		roomID, roundNumber).Scan(
		&round.Id, &round.RoomId, &round.RoundNumber, &round.InterrogatorId, &round.SubjectId,
		&round.Question, &round.QuestionDraft, &round.Answer, &round.AnswerDraft, &round.AnswerType,
		&round.UsedAIModel, &round.Status, &round.CreatedAt,
		&round.AnswerPhaseAt, &round.AnswerSubmittedAt, &round.AnswerDisplayedAt)
	if err != nil {
		return nil, mapError(err, "round %d of room %s", roundNumber, roomID)
	}
	return &round, nil
}

func (r *PostgresRepo) UpdateRound(ctx context.Context, round *internal.Round) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rounds SET question = $3, question_draft = $4, answer = $5, answer_draft = $6,
			answer_type = $7, used_ai_model = $8, status = $9,
			answer_phase_at = $10, answer_submitted_at = $11, answer_displayed_at = $12
		WHERE room_id = $1 AND round_number = $2`,
		round.RoomId, round.RoundNumber, round.Question, round.QuestionDraft, round.Answer, round.AnswerDraft,
		round.AnswerType, round.UsedAIModel, round.Status,
		round.AnswerPhaseAt, round.AnswerSubmittedAt, round.AnswerDisplayedAt)
	if err != nil {
		return mapError(err, "update round %d of room %s", round.RoundNumber, round.RoomId)
	}
	return expectOne(tag, "round %d not found in room %s", round.RoundNumber, round.RoomId)
}

// ===== VOTES =====

func (r *PostgresRepo) CreateVote(ctx context.Context, v *internal.Vote) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO votes (id, room_id, round_number, voter_id, choice, is_correct, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.Id, v.RoomId, v.RoundNumber, v.VoterId, v.Choice, v.IsCorrect, v.CreatedAt)
	if err != nil {
		return mapError(err, "vote of %s in round %d", v.VoterId, v.RoundNumber)
	}
	return nil
}

func (r *PostgresRepo) ListVotes(ctx context.Context, roomID string, roundNumber int) ([]*internal.Vote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_id, round_number, voter_id, choice, is_correct, created_at
		FROM votes WHERE room_id = $1 AND round_number = $2 ORDER BY created_at, id`, roomID, roundNumber)
	if err != nil {
		return nil, mapError(err, "list votes of round %d", roundNumber)
	}
	votes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*internal.Vote, error) {
		var v internal.Vote
		err := row.Scan(&v.Id, &v.RoomId, &v.RoundNumber, &v.VoterId, &v.Choice, &v.IsCorrect, &v.CreatedAt)
		return &v, err
	})
	if err != nil {
		return nil, mapError(err, "list votes of round %d", roundNumber)
	}
	return votes, nil
}

func (r *PostgresRepo) MarkVotes(ctx context.Context, roomID string, roundNumber int, correct map[string]bool) error {
	batch := &pgx.Batch{}
	for voterID, ok := range correct {
		batch.Queue(`UPDATE votes SET is_correct = $4 WHERE room_id = $1 AND round_number = $2 AND voter_id = $3`,
			roomID, roundNumber, voterID, ok)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err, "mark votes of round %d", roundNumber)
	}
	return nil
}
