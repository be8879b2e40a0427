package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/scoring"
)

func TestResolveEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	res := postJSON(t, srv.URL+"/api/attempts/resolve", `{"quizId":"quiz-1","userId":"u1"}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var body app.Resolution
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Mode != app.ModeNewlyCreated || body.Attempt.AttemptNumber != 1 {
		t.Fatalf("unexpected resolution: %+v", body)
	}
	if body.RemainingSeconds != 300 {
		t.Fatalf("expected full 5 minutes remaining, got %d", body.RemainingSeconds)
	}
}

func TestResolveValidatesPayload(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	res := postJSON(t, srv.URL+"/api/attempts/resolve", `{"quizId":"quiz-1"}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing userId, got %d", res.StatusCode)
	}
}

func TestSubmitRequiresConfirmation(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	attemptID := resolveAttempt(t, srv.URL)

	res := postJSON(t, srv.URL+"/api/attempts/"+attemptID+"/submit", `{"answers":{"q1":"4"}}`)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirmation, got %d", res.StatusCode)
	}

	res = postJSON(t, srv.URL+"/api/attempts/"+attemptID+"/submit", `{"answers":{"q1":"4"},"confirmed":true}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var result domain.ScoreResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Score != 1 || result.MaxScore != 1 {
		t.Fatalf("expected 1/1, got %v/%v", result.Score, result.MaxScore)
	}
}

func TestCheckpointEndpoint(t *testing.T) {
	srv, f := newTestServer(t)
	defer srv.Close()

	attemptID := resolveAttempt(t, srv.URL)

	res := postJSON(t, srv.URL+"/api/attempts/"+attemptID+"/timer/checkpoint", `{"remainingSeconds":250}`)
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.StatusCode)
	}

	attempt, err := f.store.GetAttempt(context.Background(), attemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.RemainingCheckpoint == nil || *attempt.RemainingCheckpoint != 250 {
		t.Fatalf("checkpoint not stored: %+v", attempt.RemainingCheckpoint)
	}
}

func TestWatchTimerStreams(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	attemptID := resolveAttempt(t, srv.URL)
	res := postJSON(t, srv.URL+"/api/attempts/"+attemptID+"/timer/start", `{}`)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start timer: %d", res.StatusCode)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/attempts/" + attemptID + "/timer/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update app.TimerUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.AttemptID != attemptID || update.State != app.CountdownRunning {
		t.Fatalf("unexpected update: %+v", update)
	}
	if update.RemainingSeconds <= 0 || update.RemainingSeconds > 300 {
		t.Fatalf("implausible remaining: %d", update.RemainingSeconds)
	}
}

type testFixture struct {
	store *memory.AttemptStore
}

func newTestServer(t *testing.T) (*httptest.Server, *testFixture) {
	t.Helper()
	limit := 5
	quizzes := map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Test quiz",
			TimeLimitMinutes: &limit,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionMultipleChoice, CorrectAnswers: []string{"4"}, Points: 1},
			},
		},
	}

	store := memory.NewAttemptStore()
	cache := memory.NewTimerCache()
	catalog := memory.NewQuizCatalog(memory.NewStaticQuizLoader(quizzes), 5*time.Minute)
	log := zap.NewNop()

	supervisor := app.NewCountdownSupervisor(store, cache, log, app.CountdownConfig{
		TickInterval:       10 * time.Millisecond,
		CheckpointInterval: 50 * time.Millisecond,
	})
	scorer := scoring.NewScorer(store, catalog, log)
	submitter := app.NewSubmissionCoordinator(store, scorer, memory.NewGradeSink(), supervisor, log)
	supervisor.SetExpiryHandler(app.AutoSubmitHandler(store, submitter, log))
	reconciler := app.NewReconciler(cache, log)
	attempts := app.NewAttemptService(store, catalog, reconciler, supervisor, log)

	mux := http.NewServeMux()
	NewHandler(attempts, submitter, log).Register(mux)

	t.Cleanup(supervisor.StopAll)
	return httptest.NewServer(mux), &testFixture{store: store}
}

func resolveAttempt(t *testing.T, baseURL string) string {
	t.Helper()
	res := postJSON(t, baseURL+"/api/attempts/resolve", `{"quizId":"quiz-1","userId":"u1"}`)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d", res.StatusCode)
	}
	var body app.Resolution
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode resolution: %v", err)
	}
	return body.Attempt.ID
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return res
}
