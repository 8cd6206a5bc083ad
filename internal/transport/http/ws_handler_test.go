package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func sampleQuiz() map[string]domain.QuizSnapshot {
	passing := 50.0
	return map[string]domain.QuizSnapshot{
		"quiz-1": {
			ID:                     "quiz-1",
			Title:                  "Capitals",
			AllowMultipleAttempts:  true,
			ShowResultsImmediately: true,
			ShowCorrectAnswers:     true,
			PassingScore:           &passing,
			IsPublished:            true,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionMultipleChoice, Points: 10, Position: 1, Options: []domain.AnswerOption{
					{ID: "a", Text: "Paris", IsCorrect: true, Position: 1},
					{ID: "b", Text: "Lyon", Position: 2},
				}},
				{ID: "q2", Type: domain.QuestionShortAnswer, Points: 10, Position: 2, CorrectAnswers: []domain.CorrectAnswer{
					{Text: "Seine"},
				}},
			},
		},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	service := app.NewAttemptService(memory.NewAttemptStore(), quizzes)
	handler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/attempt", handler.ServeAttempt)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dialAttempt(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/attempt?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn, wantType string, payload interface{}) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != wantType {
		t.Fatalf("expected %q message, got %q (%s)", wantType, env.Type, env.Payload)
	}
	if payload != nil {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			t.Fatalf("decode %q payload: %v", wantType, err)
		}
	}
}

func TestAttemptSessionFlow(t *testing.T) {
	server := newTestServer(t)
	conn := dialAttempt(t, server, "quizId=quiz-1&studentId=7")

	var attempt attemptPayload
	readMessage(t, conn, "attempt", &attempt)
	if attempt.AttemptNumber != 1 || attempt.Resumed {
		t.Fatalf("expected a fresh first attempt, got %+v", attempt)
	}
	if len(attempt.Quiz.Questions) != 2 {
		t.Fatalf("expected both questions in the view")
	}
	for _, q := range attempt.Quiz.Questions {
		for _, opt := range q.Options {
			if opt.IsCorrect {
				t.Fatalf("answer key leaked into the presentation view")
			}
		}
		if len(q.CorrectAnswers) != 0 {
			t.Fatalf("reference answers leaked into the presentation view")
		}
	}

	if err := conn.WriteJSON(map[string]interface{}{
		"type":    "answer",
		"payload": map[string]string{"questionId": "q1", "optionId": "a"},
	}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	var saved savedPayload
	readMessage(t, conn, "saved", &saved)
	if saved.QuestionID != "q1" {
		t.Fatalf("expected ack for q1, got %q", saved.QuestionID)
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	var result resultPayload
	readMessage(t, conn, "result", &result)
	if result.TotalPointsEarned != 10 || result.PossiblePoints != 20 {
		t.Fatalf("unexpected score: %+v", result)
	}
	if result.IsPassed == nil || !*result.IsPassed {
		t.Fatalf("50%% must pass a threshold of 50")
	}
	if len(result.Questions) != 2 {
		t.Fatalf("show_results_immediately must include per-question detail")
	}
	for _, q := range result.Questions {
		switch q.QuestionID {
		case "q1":
			if len(q.CorrectOptionIDs) != 1 || q.CorrectOptionIDs[0] != "a" {
				t.Fatalf("expected the correct option revealed, got %+v", q)
			}
		case "q2":
			if len(q.CorrectAnswers) != 1 || q.CorrectAnswers[0] != "Seine" {
				t.Fatalf("expected the reference answer revealed, got %+v", q)
			}
		}
	}
}

func TestResumeOverSecondConnection(t *testing.T) {
	server := newTestServer(t)

	first := dialAttempt(t, server, "quizId=quiz-1&studentId=7")
	var initial attemptPayload
	readMessage(t, first, "attempt", &initial)
	if err := first.WriteJSON(map[string]interface{}{
		"type":    "answer",
		"payload": map[string]string{"questionId": "q2", "text": "Seine"},
	}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readMessage(t, first, "saved", nil)
	_ = first.Close()

	second := dialAttempt(t, server, "quizId=quiz-1&studentId=7")
	var resumed attemptPayload
	readMessage(t, second, "attempt", &resumed)
	if !resumed.Resumed || resumed.AttemptID != initial.AttemptID {
		t.Fatalf("expected to resume attempt %d, got %+v", initial.AttemptID, resumed)
	}
	if len(resumed.Responses) != 1 || resumed.Responses[0].QuestionID != "q2" {
		t.Fatalf("expected the saved answer rehydrated, got %+v", resumed.Responses)
	}
}

func TestRejectsMissingIdentity(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/attempt?quizId=quiz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing studentId, got %d", resp.StatusCode)
	}

	conn := dialAttempt(t, server, "quizId=quiz-1&studentId=nope")
	var errPayload errorPayload
	readMessage(t, conn, "error", &errPayload)
	if errPayload.Code != "identity_unresolved" {
		t.Fatalf("expected identity_unresolved, got %q", errPayload.Code)
	}
}

func TestUnknownQuizClosesWithError(t *testing.T) {
	server := newTestServer(t)
	conn := dialAttempt(t, server, "quizId=ghost&studentId=7")

	var errPayload errorPayload
	readMessage(t, conn, "error", &errPayload)
	if errPayload.Code != "quiz_unavailable" {
		t.Fatalf("expected quiz_unavailable, got %q", errPayload.Code)
	}
}

func TestInvalidAnswerSurfacesError(t *testing.T) {
	server := newTestServer(t)
	conn := dialAttempt(t, server, "quizId=quiz-1&studentId=7")
	readMessage(t, conn, "attempt", nil)

	if err := conn.WriteJSON(map[string]interface{}{
		"type":    "answer",
		"payload": map[string]string{"questionId": "q1", "optionId": "ghost"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errPayload errorPayload
	readMessage(t, conn, "error", &errPayload)
	if errPayload.Code != "scoring_inconsistency" {
		t.Fatalf("expected scoring_inconsistency, got %q", errPayload.Code)
	}
}
