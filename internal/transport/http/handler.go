package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"classroom-service/internal/app"
	"classroom-service/internal/domain"
)

// Handler exposes the learning service over REST plus the websocket
// progress feed. Routing uses the standard mux with method patterns.
type Handler struct {
	service    *app.LearningService
	dashboards app.ProjectionStore
	feed       *app.ProgressFeed
	snapshots  SnapshotProvider
	tokens     TokenResolver
	log        *zap.Logger
}

// SnapshotProvider supplies the initial class snapshot for new feed
// subscribers; the progress aggregator implements it.
type SnapshotProvider interface {
	ClassSnapshot(ctx context.Context, classID string) (domain.ClassProgressSnapshot, error)
}

func NewHandler(service *app.LearningService, dashboards app.ProjectionStore, feed *app.ProgressFeed, snapshots SnapshotProvider, tokens TokenResolver, log *zap.Logger) *Handler {
	return &Handler{
		service:    service,
		dashboards: dashboards,
		feed:       feed,
		snapshots:  snapshots,
		tokens:     tokens,
		log:        log,
	}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Handle("POST /api/quizzes/{id}/submit", h.requireRole(h.submitQuiz, domain.RoleStudent))
	mux.Handle("POST /api/lessons/{id}/complete", h.requireRole(h.completeLesson, domain.RoleStudent))
	mux.Handle("POST /api/lessons/{id}/media", h.requireRole(h.uploadLessonMedia, domain.RoleTeacher))
	mux.Handle("POST /api/admin/recompute-progress", h.requireRole(h.recomputeProgress, domain.RoleTeacher))
	mux.Handle("GET /api/classes/{id}/dashboard", h.requireRole(h.classDashboard, domain.RoleTeacher))
	mux.Handle("GET /api/students/{id}/summary", h.requireRole(h.childSummary, domain.RoleParent, domain.RoleTeacher))
	mux.Handle("GET /ws/classes/{id}/progress", h.requireRole(h.progressFeed, domain.RoleTeacher))
}

// looseString accepts wire values that arrive as JSON strings, numbers,
// booleans, or null and canonicalizes them to strings. Question ids in
// particular come in as numbers from some clients.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = looseString(t)
	case json.Number:
		*s = looseString(t.String())
	case bool:
		*s = looseString(strconv.FormatBool(t))
	default:
		return errors.New("expected a scalar value")
	}
	return nil
}

type wireAnswer struct {
	QuestionID looseString `json:"questionId"`
	Value      looseString `json:"value"`
}

type submitQuizRequest struct {
	Answers []wireAnswer `json:"answers"`
}

type submitQuizResponse struct {
	SubmissionID string                  `json:"submissionId"`
	Number       int64                   `json:"number"`
	Score        int                     `json:"score"`
	Results      []domain.QuestionResult `json:"results"`
	SubmittedAt  string                  `json:"submittedAt"`
}

func (h *Handler) submitQuiz(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var req submitQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.NewValidationError("answers", "malformed answer list"))
		return
	}
	answers := make([]domain.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = domain.Answer{
			QuestionID: app.CanonicalID(string(a.QuestionID)),
			Value:      string(a.Value),
		}
	}

	sub, err := h.service.SubmitQuiz(r.Context(), r.PathValue("id"), user.ID, answers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, submitQuizResponse{
		SubmissionID: sub.ID,
		Number:       sub.Number,
		Score:        sub.Score,
		Results:      sub.Results,
		SubmittedAt:  sub.SubmittedAt.Format(timeFormat),
	})
}

type completeLessonRequest struct {
	Stars int `json:"stars"`
}

type completeLessonResponse struct {
	CompletionID string `json:"completionId"`
	Stars        int    `json:"stars"`
	CompletedAt  string `json:"completedAt"`
}

func (h *Handler) completeLesson(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var req completeLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.NewValidationError("body", "malformed request"))
		return
	}

	completion, err := h.service.CompleteLesson(r.Context(), user.ID, r.PathValue("id"), req.Stars)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, completeLessonResponse{
		CompletionID: completion.ID,
		Stars:        completion.Stars,
		CompletedAt:  completion.CompletedAt.Format(timeFormat),
	})
}

func (h *Handler) uploadLessonMedia(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	key, err := h.service.AttachLessonMedia(r.Context(), r.PathValue("id"), r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"mediaKey": key})
}

func (h *Handler) recomputeProgress(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RecomputeAllProgress(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) classDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.dashboards.ClassDashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dash)
}

func (h *Handler) childSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboards.ChildSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("response encode failed", zap.Error(err))
	}
}

// writeError maps domain failures onto statuses the client can message
// distinctly: "already done" vs "not found" vs "bad input".
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAlreadySubmitted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuizNotPublished),
		errors.Is(err, domain.ErrLessonNotFound),
		errors.Is(err, domain.ErrClassNotFound),
		errors.Is(err, domain.ErrStudentNotFound),
		errors.Is(err, domain.ErrEnrollmentNotFound):
		status = http.StatusNotFound
	case domain.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidToken):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
