// Package scoring grades attempts against the quiz answer key and marks them
// complete. Idempotence comes from the attempt store's compare-and-set
// Complete: the first submission wins and every later one is rejected with
// domain.ErrAttemptCompleted, never re-scored.
package scoring

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Scorer implements app.ScoringService.
type Scorer struct {
	store   app.AttemptStore
	catalog app.QuizCatalog
	logger  *zap.Logger
}

func NewScorer(store app.AttemptStore, catalog app.QuizCatalog, logger *zap.Logger) *Scorer {
	return &Scorer{store: store, catalog: catalog, logger: logger}
}

// Submit grades the canonical answer map and atomically completes the
// attempt. Essay questions are excluded from both score and maxScore; their
// grading is manual and happens outside this service.
func (s *Scorer) Submit(ctx context.Context, attemptID string, answers domain.AnswerMap) (domain.ScoreResult, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	if !attempt.Active() {
		return domain.ScoreResult{}, domain.ErrAttemptCompleted
	}

	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	score, maxScore := grade(quiz, answers)

	completed, err := s.store.Complete(ctx, attemptID, answers, score, maxScore)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	s.logger.Info("attempt scored",
		zap.String("attempt_id", attemptID),
		zap.String("quiz_id", quiz.ID),
		zap.Float64("score", score),
		zap.Float64("max_score", maxScore),
	)
	return domain.ScoreResult{AttemptID: completed.ID, Score: score, MaxScore: maxScore}, nil
}

func grade(quiz domain.Quiz, answers domain.AnswerMap) (score, maxScore float64) {
	for _, question := range quiz.Questions {
		if question.Type == domain.QuestionEssay {
			continue
		}
		points := question.Points
		if points == 0 {
			points = 1
		}
		maxScore += points
		answer, ok := answers[question.ID]
		if !ok {
			continue
		}
		if correct(question, answer) {
			score += points
		}
	}
	return score, maxScore
}

func correct(question domain.Question, answer domain.Answer) bool {
	switch question.Type {
	case domain.QuestionCheckbox:
		return sameSet(answer.Values, question.CorrectAnswers)
	case domain.QuestionFillInBlank:
		if answer.Multi() {
			return false
		}
		given := strings.ToLower(strings.TrimSpace(answer.Value))
		for _, accepted := range question.CorrectAnswers {
			if given == strings.ToLower(strings.TrimSpace(accepted)) {
				return true
			}
		}
		return false
	default: // multiple_choice, true_false
		if answer.Multi() || len(question.CorrectAnswers) == 0 {
			return false
		}
		return answer.Value == question.CorrectAnswers[0]
	}
}

// sameSet compares selections order-insensitively; both sides are expected to
// be duplicate-free already.
func sameSet(selected, correct []string) bool {
	if len(selected) != len(correct) {
		return false
	}
	want := make(map[string]struct{}, len(correct))
	for _, v := range correct {
		want[v] = struct{}{}
	}
	for _, v := range selected {
		if _, ok := want[v]; !ok {
			return false
		}
	}
	return true
}
