package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/domain"
)

const uniqueViolation = "23505"

// AttemptStore is the Postgres implementation of app.AttemptStore. The
// exactly-once semantics the engine relies on are plain SQL:
//   - a partial unique index on (quiz_id, user_id) WHERE completed_at IS NULL
//     makes a second active attempt unrepresentable,
//   - StartTimer updates WHERE timer_started_at IS NULL, so the first writer
//     wins and everyone else reads back the original timestamp,
//   - Complete updates WHERE completed_at IS NULL, so a finished attempt can
//     never be re-scored.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attempts (id, quiz_id, user_id, attempt_number, started_at, answers)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.AttemptNumber, attempt.StartedAt, answers,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrActiveAttemptExists
		}
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) AttemptsByQuizUser(ctx context.Context, quizID, userID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, selectAttempt+`
		WHERE quiz_id=$1 AND user_id=$2
		ORDER BY started_at DESC, attempt_number DESC`, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, selectAttempt+` WHERE id=$1`, attemptID)
	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, err
}

func (s *AttemptStore) StartTimer(ctx context.Context, attemptID string) (time.Time, error) {
	var startedAt time.Time
	err := s.pool.QueryRow(ctx, `
		UPDATE attempts SET timer_started_at = now(), is_timer_active = TRUE
		WHERE id=$1 AND completed_at IS NULL AND timer_started_at IS NULL
		RETURNING timer_started_at`, attemptID).Scan(&startedAt)
	if err == nil {
		return startedAt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("start timer: %w", err)
	}

	// Lost the race or the attempt is closed; read back the truth.
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return time.Time{}, err
	}
	if attempt.TimerStartedAt != nil {
		return *attempt.TimerStartedAt, nil
	}
	return time.Time{}, domain.ErrAttemptCompleted
}

func (s *AttemptStore) Checkpoint(ctx context.Context, attemptID string, remainingSeconds int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE attempts SET time_remaining_checkpoint=$2
		WHERE id=$1 AND completed_at IS NULL`, attemptID, remainingSeconds)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.closedOrMissing(ctx, attemptID)
	}
	return nil
}

func (s *AttemptStore) SaveAnswers(ctx context.Context, attemptID string, answers domain.AnswerMap) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE attempts SET answers=$2
		WHERE id=$1 AND completed_at IS NULL`, attemptID, data)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.closedOrMissing(ctx, attemptID)
	}
	return nil
}

func (s *AttemptStore) Complete(ctx context.Context, attemptID string, answers domain.AnswerMap, score, maxScore float64) (domain.Attempt, error) {
	data, err := json.Marshal(answers)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal answers: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE attempts
		SET completed_at = now(), score=$2, max_score=$3, answers=$4, is_timer_active=FALSE
		WHERE id=$1 AND completed_at IS NULL
		`+returningAttempt, attemptID, score, maxScore, data)
	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.closedOrMissing(ctx, attemptID); err != nil {
			return domain.Attempt{}, err
		}
		return domain.Attempt{}, domain.ErrAttemptCompleted
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("complete attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) ResetAttempts(ctx context.Context, quizID, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM attempts WHERE quiz_id=$1 AND user_id=$2`, quizID, userID)
	if err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

func (s *AttemptStore) closedOrMissing(ctx context.Context, attemptID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attempts WHERE id=$1)`, attemptID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup attempt: %w", err)
	}
	if !exists {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrAttemptCompleted
}

const selectAttempt = `
	SELECT id, quiz_id, user_id, attempt_number, started_at, completed_at,
	       answers, score, max_score, timer_started_at, is_timer_active,
	       time_remaining_checkpoint
	FROM attempts`

const returningAttempt = `
	RETURNING id, quiz_id, user_id, attempt_number, started_at, completed_at,
	          answers, score, max_score, timer_started_at, is_timer_active,
	          time_remaining_checkpoint`

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		attempt domain.Attempt
		answers []byte
	)
	err := row.Scan(
		&attempt.ID, &attempt.QuizID, &attempt.UserID, &attempt.AttemptNumber,
		&attempt.StartedAt, &attempt.CompletedAt, &answers, &attempt.Score,
		&attempt.MaxScore, &attempt.TimerStartedAt, &attempt.TimerActive,
		&attempt.RemainingCheckpoint,
	)
	if err != nil {
		return domain.Attempt{}, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &attempt.Answers); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return attempt, nil
}
