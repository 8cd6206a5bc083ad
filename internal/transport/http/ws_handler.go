package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler drives one student attempt session over a websocket:
// start-or-resume on connect, answer saves and submission over inbound
// messages, and deadline expiry pushed from the server-side timer.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId,omitempty"`
	Text       string `json:"text,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type attemptPayload struct {
	AttemptID        int64               `json:"attemptId"`
	AttemptNumber    int                 `json:"attemptNumber"`
	Quiz             domain.QuizSnapshot `json:"quiz"` // presentation view, answer key stripped
	Responses        []domain.Response   `json:"responses,omitempty"`
	RemainingSeconds *int64              `json:"remainingSeconds,omitempty"`
	Resumed          bool                `json:"resumed"`
}

type savedPayload struct {
	QuestionID string `json:"questionId"`
}

type resultPayload struct {
	AttemptID         int64            `json:"attemptId"`
	AttemptNumber     int              `json:"attemptNumber"`
	SubmittedAt       time.Time        `json:"submittedAt"`
	TotalPointsEarned float64          `json:"totalPointsEarned"`
	PossiblePoints    float64          `json:"possiblePoints"`
	PercentageScore   float64          `json:"percentageScore"`
	IsPassed          *bool            `json:"isPassed,omitempty"`
	PendingReview     bool             `json:"pendingReview"`
	Questions         []questionResult `json:"questions,omitempty"`
}

type questionResult struct {
	QuestionID       string   `json:"questionId"`
	Points           float64  `json:"points"`
	PointsEarned     float64  `json:"pointsEarned"`
	IsCorrect        bool     `json:"isCorrect"`
	IsGraded         bool     `json:"isGraded"`
	SelectedOptionID *string  `json:"selectedOptionId,omitempty"`
	ResponseText     *string  `json:"responseText,omitempty"`
	CorrectOptionIDs []string `json:"correctOptionIds,omitempty"`
	CorrectAnswers   []string `json:"correctAnswers,omitempty"`
}

// ServeAttempt upgrades HTTP requests to websockets and wires them into
// the attempt lifecycle.
func (h *WSHandler) ServeAttempt(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	studentRaw := r.URL.Query().Get("studentId")
	if quizID == "" || studentRaw == "" {
		http.Error(w, "missing quizId or studentId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	studentID, err := strconv.ParseInt(studentRaw, 10, 64)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(domain.ErrIdentityUnresolved))
		return
	}

	start, err := h.service.StartOrResume(r.Context(), quizID, studentID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	var remaining *int64
	if start.Deadline != nil {
		secs := int64(time.Until(*start.Deadline).Seconds())
		if secs < 0 {
			secs = 0
		}
		remaining = &secs

		// Auto-submit fires off the persisted deadline; a late fire
		// after a manual submit is absorbed by Submit's idempotence.
		cancelTimer := h.service.ScheduleAutoSubmit(start.Attempt, *start.Deadline, func(result app.SubmitResult, err error) {
			if err != nil {
				push(errorMessage(err))
				return
			}
			push(outboundMessage[any]{Type: "timeUp", Payload: buildResult(result)})
		})
		defer cancelTimer()
	}

	push(outboundMessage[any]{Type: "attempt", Payload: attemptPayload{
		AttemptID:        start.Attempt.ID,
		AttemptNumber:    start.Attempt.AttemptNumber,
		Quiz:             start.Quiz,
		Responses:        start.Responses,
		RemainingSeconds: remaining,
		Resumed:          start.Resumed,
	}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_payload", Message: "invalid answer payload"}})
				continue
			}
			resp, err := h.service.SaveResponse(r.Context(), start.Attempt.ID, studentID, app.AnswerInput{
				QuestionID: payload.QuestionID,
				OptionID:   payload.OptionID,
				Text:       payload.Text,
			})
			if err != nil {
				push(errorMessage(err))
				continue
			}
			push(outboundMessage[any]{Type: "saved", Payload: savedPayload{QuestionID: resp.QuestionID}})
		case "submit":
			result, err := h.service.Submit(r.Context(), start.Attempt.ID, studentID)
			if err != nil {
				push(errorMessage(err))
				continue
			}
			push(outboundMessage[any]{Type: "result", Payload: buildResult(result)})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_payload", Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-writerDone
}

// buildResult shapes the submission outcome by the quiz's visibility
// flags: per-question detail only with show_results_immediately, the
// answer key only with show_correct_answers on top of that.
func buildResult(result app.SubmitResult) resultPayload {
	attempt := result.Attempt
	snap := result.Snapshot
	payload := resultPayload{
		AttemptID:         attempt.ID,
		AttemptNumber:     attempt.AttemptNumber,
		TotalPointsEarned: attempt.TotalPointsEarned,
		PossiblePoints:    snap.TotalPoints(),
		PercentageScore:   attempt.PercentageScore,
		IsPassed:          attempt.IsPassed,
		PendingReview:     !attempt.IsGraded,
	}
	if attempt.SubmittedAt != nil {
		payload.SubmittedAt = *attempt.SubmittedAt
	}
	if !snap.ShowResultsImmediately {
		return payload
	}

	byQuestion := make(map[string]domain.Response, len(result.Responses))
	for _, resp := range result.Responses {
		byQuestion[resp.QuestionID] = resp
	}
	for i := range snap.Questions {
		question := &snap.Questions[i]
		resp := byQuestion[question.ID]
		qr := questionResult{
			QuestionID:       question.ID,
			Points:           question.Points,
			PointsEarned:     resp.PointsEarned,
			IsCorrect:        resp.IsCorrect,
			IsGraded:         resp.IsGraded,
			SelectedOptionID: resp.SelectedOptionID,
			ResponseText:     resp.ResponseText,
		}
		if snap.ShowCorrectAnswers {
			for j := range question.Options {
				if question.Options[j].IsCorrect {
					qr.CorrectOptionIDs = append(qr.CorrectOptionIDs, question.Options[j].ID)
				}
			}
			for j := range question.CorrectAnswers {
				qr.CorrectAnswers = append(qr.CorrectAnswers, question.CorrectAnswers[j].Text)
			}
		}
		payload.Questions = append(payload.Questions, qr)
	}
	return payload
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, domain.ErrAttemptLimitExceeded):
		return "attempt_limit_exceeded"
	case errors.Is(err, domain.ErrQuizUnavailable):
		return "quiz_unavailable"
	case errors.Is(err, domain.ErrIdentityUnresolved):
		return "identity_unresolved"
	case errors.Is(err, domain.ErrScoringInconsistency):
		return "scoring_inconsistency"
	case errors.Is(err, domain.ErrAttemptSubmitted):
		return "attempt_submitted"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return "question_not_found"
	case errors.Is(err, domain.ErrAttemptNotFound):
		return "attempt_not_found"
	default:
		return "internal"
	}
}
