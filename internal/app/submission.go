package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// SubmissionCoordinator finalizes attempts. It normalizes the buffered answer
// map into canonical form and invokes the scoring service once; exactly-once
// is guaranteed by the server's reject-if-completed, so a retry or a racing
// second tab can never double-count.
type SubmissionCoordinator struct {
	store      AttemptStore
	scorer     ScoringService
	grades     GradeSink // optional
	supervisor *CountdownSupervisor
	logger     *zap.Logger
}

func NewSubmissionCoordinator(store AttemptStore, scorer ScoringService, grades GradeSink, supervisor *CountdownSupervisor, logger *zap.Logger) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		store:      store,
		scorer:     scorer,
		grades:     grades,
		supervisor: supervisor,
		logger:     logger,
	}
}

// Submit scores the attempt and returns the authoritative result. When auto
// is true the call was triggered by expiry and no learner confirmation
// applies. A conflict with a submission that already completed the attempt
// (another tab, an earlier auto-expiry) is resolved by fetching the stored
// result and reporting success; any other failure leaves the attempt mutable
// for retry.
func (c *SubmissionCoordinator) Submit(ctx context.Context, attemptID string, raw domain.AnswerMap, auto bool) (domain.ScoreResult, error) {
	trigger := "manual"
	if auto {
		trigger = "auto"
	}

	answers := NormalizeAnswers(raw)

	result, err := c.scorer.Submit(ctx, attemptID, answers)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptCompleted) {
			return c.resolveConflict(ctx, attemptID, trigger)
		}
		metrics.Submissions.WithLabelValues(trigger, "error").Inc()
		c.logger.Error("submission failed",
			zap.String("attempt_id", attemptID),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return domain.ScoreResult{}, err
	}

	metrics.Submissions.WithLabelValues(trigger, "ok").Inc()
	c.logger.Info("attempt submitted",
		zap.String("attempt_id", attemptID),
		zap.String("trigger", trigger),
		zap.Float64("score", result.Score),
		zap.Float64("max_score", result.MaxScore),
	)

	c.finish(ctx, attemptID, result)
	return result, nil
}

// resolveConflict trusts the server: another context completed the attempt
// first, so the stored score is the answer, not an error.
func (c *SubmissionCoordinator) resolveConflict(ctx context.Context, attemptID, trigger string) (domain.ScoreResult, error) {
	attempt, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	if attempt.Active() || attempt.Score == nil || attempt.MaxScore == nil {
		return domain.ScoreResult{}, domain.ErrAttemptCompleted
	}

	metrics.DuplicateSubmissions.Inc()
	metrics.Submissions.WithLabelValues(trigger, "duplicate").Inc()
	c.logger.Info("submission raced an earlier completion, using stored result",
		zap.String("attempt_id", attemptID),
		zap.String("trigger", trigger),
	)

	result := domain.ScoreResult{AttemptID: attemptID, Score: *attempt.Score, MaxScore: *attempt.MaxScore}
	c.finish(ctx, attemptID, result)
	return result, nil
}

// finish runs the post-completion side effects: stop the local countdown and
// upsert the external gradebook. Both are best effort and never roll back the
// submission.
func (c *SubmissionCoordinator) finish(ctx context.Context, attemptID string, result domain.ScoreResult) {
	if c.supervisor != nil {
		c.supervisor.Complete(attemptID)
	}
	if c.grades == nil {
		return
	}
	attempt, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		c.logger.Warn("gradebook upsert skipped, attempt fetch failed", zap.String("attempt_id", attemptID), zap.Error(err))
		return
	}
	if err := c.grades.RecordGrade(ctx, attempt, result); err != nil {
		c.logger.Warn("gradebook upsert failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}
}

// AutoSubmitHandler builds the countdown expiry callback: fetch the buffered
// answers and submit them on the learner's behalf, no confirmation required.
// Errors are logged only; the attempt stays open for a later retry or the
// next load's reconciliation.
func AutoSubmitHandler(store AttemptStore, submitter *SubmissionCoordinator, logger *zap.Logger) func(ctx context.Context, attemptID string) {
	return func(ctx context.Context, attemptID string) {
		attempt, err := store.GetAttempt(ctx, attemptID)
		if err != nil {
			logger.Error("auto-submit fetch failed", zap.String("attempt_id", attemptID), zap.Error(err))
			return
		}
		if !attempt.Active() {
			return
		}
		if _, err := submitter.Submit(ctx, attemptID, attempt.Answers, true); err != nil {
			logger.Error("auto-submit failed", zap.String("attempt_id", attemptID), zap.Error(err))
		}
	}
}

// NormalizeAnswers produces the canonical answer map sent to scoring: empty
// responses are dropped and multi-select values are deduplicated preserving
// their original order.
func NormalizeAnswers(raw domain.AnswerMap) domain.AnswerMap {
	normalized := make(domain.AnswerMap, len(raw))
	for qid, ans := range raw {
		if ans.Multi() {
			values := dedupe(ans.Values)
			if len(values) == 0 {
				continue
			}
			normalized[qid] = domain.MultiAnswer(values...)
			continue
		}
		if ans.Value == "" {
			continue
		}
		normalized[qid] = domain.ScalarAnswer(ans.Value)
	}
	return normalized
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
