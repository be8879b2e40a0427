package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Handler exposes the attempt engine over HTTP. The server is the arbiter of
// truth; these routes are thin adapters over the app layer.
type Handler struct {
	attempts  *app.AttemptService
	submitter *app.SubmissionCoordinator
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewHandler(attempts *app.AttemptService, submitter *app.SubmissionCoordinator, logger *zap.Logger) *Handler {
	return &Handler{
		attempts:  attempts,
		submitter: submitter,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Register mounts all attempt routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/attempts/resolve", h.resolve)
	mux.HandleFunc("GET /api/attempts/{id}", h.get)
	mux.HandleFunc("PUT /api/attempts/{id}/answers", h.saveAnswers)
	mux.HandleFunc("POST /api/attempts/{id}/timer/start", h.startTimer)
	mux.HandleFunc("POST /api/attempts/{id}/timer/checkpoint", h.checkpoint)
	mux.HandleFunc("POST /api/attempts/{id}/submit", h.submit)
	mux.HandleFunc("GET /api/attempts/{id}/timer/watch", h.watchTimer)
	mux.HandleFunc("DELETE /api/quizzes/{quizId}/users/{userId}/attempts", h.reset)
}

type resolveRequest struct {
	QuizID string `json:"quizId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.attempts.Resolve(r.Context(), req.QuizID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type attemptResponse struct {
	Attempt          domain.Attempt        `json:"attempt"`
	RemainingSeconds int                   `json:"remainingSeconds"`
	Provisional      *domain.TimerSnapshot `json:"provisional,omitempty"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")
	attempt, remaining, err := h.attempts.Get(r.Context(), attemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := attemptResponse{Attempt: attempt, RemainingSeconds: remaining}
	if snap, ok := h.attempts.Provisional(r.Context(), attemptID); ok {
		resp.Provisional = &snap
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type answersRequest struct {
	Answers domain.AnswerMap `json:"answers" validate:"required"`
}

func (h *Handler) saveAnswers(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.attempts.SaveAnswers(r.Context(), r.PathValue("id"), req.Answers); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startTimerResponse struct {
	TimerStartedAt time.Time `json:"timerStartedAt"`
}

func (h *Handler) startTimer(w http.ResponseWriter, r *http.Request) {
	startedAt, err := h.attempts.StartTimer(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, startTimerResponse{TimerStartedAt: startedAt})
}

type checkpointRequest struct {
	RemainingSeconds int `json:"remainingSeconds" validate:"gte=0"`
}

func (h *Handler) checkpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.attempts.Checkpoint(r.Context(), r.PathValue("id"), req.RemainingSeconds); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Answers   domain.AnswerMap `json:"answers"`
	Confirmed bool             `json:"confirmed"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Confirmed {
		h.writeError(w, domain.ErrConfirmationRequired)
		return
	}
	answers := req.Answers
	if answers == nil {
		// Fall back to the server-side buffered answers.
		attempt, _, err := h.attempts.Get(r.Context(), attemptID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		answers = attempt.Answers
	}
	result, err := h.submitter.Submit(r.Context(), attemptID, answers, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.attempts.Reset(r.Context(), r.PathValue("quizId"), r.PathValue("userId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrActiveAttemptExists), errors.Is(err, domain.ErrAttemptCompleted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrAttemptLimitReached):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrTimerNotConfigured), errors.Is(err, domain.ErrConfirmationRequired):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("response write failed", zap.Error(err))
	}
}
