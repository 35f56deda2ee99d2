package app_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"classroom-service/internal/app"
	"classroom-service/internal/domain"
	"classroom-service/internal/infra/memory"
)

func newServiceEnv() (*app.LearningService, *memory.RecordStore, *app.ProgressFeed) {
	mem := memory.NewRecordStore()
	mem.SeedUser(domain.User{ID: "s1", Role: domain.RoleStudent, DisplayName: "Ana"})
	mem.SeedClass(domain.Class{ID: "c1", TeacherID: "t1", Name: "Math"})
	mem.Enroll("s1", "c1")

	mem.SeedQuiz(domain.Quiz{ID: "qz1", TeacherID: "t1", Title: "Basics", Status: domain.QuizPublished},
		[]domain.QuizQuestion{
			mcQuestion("q1", 1, 1, "a"),
			{ID: "q2", Type: domain.QuestionTrueFalse, Position: 2, Points: 1, CorrectAnswer: strPtr("true")},
		})
	mem.AssignQuiz("qz1", "c1", nil)

	mem.SeedQuiz(domain.Quiz{ID: "qz-draft", TeacherID: "t1", Title: "WIP", Status: domain.QuizDraft}, nil)

	mem.SeedLesson(domain.Lesson{ID: "l1", TeacherID: "t1", Title: "Counting"})
	mem.AssignLesson("l1", "c1")

	feed := app.NewProgressFeed()
	agg := app.NewProgressAggregator(mem, zap.NewNop())
	quizzes := memory.NewQuizCache(mem, time.Minute)
	service := app.NewLearningService(mem, quizzes, agg, feed, zap.NewNop())
	return service, mem, feed
}

func TestSubmitQuizGradesAndPropagates(t *testing.T) {
	ctx := context.Background()
	service, mem, feed := newServiceEnv()

	updates, cancel := feed.Subscribe("c1")
	defer cancel()

	sub, err := service.SubmitQuiz(ctx, "qz1", "s1", []domain.Answer{
		{QuestionID: "q1", Value: "a"},
		{QuestionID: "q2", Value: "false"},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if sub.Score != 50 {
		t.Fatalf("expected score 50, got %d", sub.Score)
	}
	if sub.ID == "" || sub.Number < 1 {
		t.Fatalf("submission missing identity: %+v", sub)
	}

	// One of the class's two activities is now done.
	e, err := mem.GetEnrollment(ctx, "s1", "c1")
	if err != nil || e.Progress != 50 {
		t.Fatalf("expected enrollment progress 50, got %+v (%v)", e, err)
	}

	select {
	case snapshot := <-updates:
		if len(snapshot.Students) != 1 || snapshot.Students[0].Progress != 50 {
			t.Fatalf("unexpected snapshot: %+v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestSubmitQuizOncePerStudent(t *testing.T) {
	ctx := context.Background()
	service, mem, _ := newServiceEnv()

	first, err := service.SubmitQuiz(ctx, "qz1", "s1", []domain.Answer{
		{QuestionID: "q1", Value: "a"},
		{QuestionID: "q2", Value: "true"},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = service.SubmitQuiz(ctx, "qz1", "s1", []domain.Answer{
		{QuestionID: "q1", Value: "c"},
	})
	if !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	stored, err := mem.GetSubmission(ctx, "qz1", "s1")
	if err != nil {
		t.Fatalf("load submission: %v", err)
	}
	if stored.ID != first.ID || stored.Score != 100 {
		t.Fatalf("first attempt must stand, got %+v", stored)
	}
}

func TestSubmitQuizRequiresPublished(t *testing.T) {
	service, _, _ := newServiceEnv()

	_, err := service.SubmitQuiz(context.Background(), "qz-draft", "s1", nil)
	if !errors.Is(err, domain.ErrQuizNotPublished) {
		t.Fatalf("expected ErrQuizNotPublished, got %v", err)
	}

	_, err = service.SubmitQuiz(context.Background(), "no-such-quiz", "s1", nil)
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestSubmitQuizUnenrolledStudent(t *testing.T) {
	ctx := context.Background()
	service, mem, _ := newServiceEnv()
	mem.SeedUser(domain.User{ID: "s2", Role: domain.RoleStudent, DisplayName: "Ben"})

	sub, err := service.SubmitQuiz(ctx, "qz1", "s2", []domain.Answer{
		{QuestionID: "q1", Value: "a"},
	})
	if err != nil {
		t.Fatalf("unenrolled submit must still grade: %v", err)
	}
	if sub.Score != 50 {
		t.Fatalf("expected score 50, got %d", sub.Score)
	}
	if _, err := mem.GetEnrollment(ctx, "s2", "c1"); !errors.Is(err, domain.ErrEnrollmentNotFound) {
		t.Fatalf("no enrollment may appear, got %v", err)
	}
}

func TestCompleteLessonUpserts(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newServiceEnv()

	first, err := service.CompleteLesson(ctx, "s1", "l1", 2)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	second, err := service.CompleteLesson(ctx, "s1", "l1", 3)
	if err != nil {
		t.Fatalf("repeat complete failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeat completion must reuse the record, got %s then %s", first.ID, second.ID)
	}
	if second.Stars != 3 {
		t.Fatalf("latest stars must win, got %d", second.Stars)
	}
}

func TestCompleteLessonValidatesStars(t *testing.T) {
	service, _, _ := newServiceEnv()

	for _, stars := range []int{-1, 4} {
		_, err := service.CompleteLesson(context.Background(), "s1", "l1", stars)
		if !domain.IsValidation(err) {
			t.Fatalf("stars %d must fail validation, got %v", stars, err)
		}
	}

	_, err := service.CompleteLesson(context.Background(), "s1", "no-such-lesson", 2)
	if !errors.Is(err, domain.ErrLessonNotFound) {
		t.Fatalf("expected ErrLessonNotFound, got %v", err)
	}
}

type fakeMedia struct {
	objects map[string]string
	deleted []string
}

func (m *fakeMedia) Put(_ context.Context, key string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[key] = string(data)
	return "https://media.test/" + key, nil
}

func (m *fakeMedia) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func TestAttachLessonMedia(t *testing.T) {
	ctx := context.Background()
	service, mem, _ := newServiceEnv()

	if _, err := service.AttachLessonMedia(ctx, "l1", strings.NewReader("clip")); err == nil {
		t.Fatal("upload without a media store must fail")
	}

	media := &fakeMedia{objects: map[string]string{}}
	service = service.WithMedia(media)

	key, err := service.AttachLessonMedia(ctx, "l1", strings.NewReader("clip"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(key, "lessons/l1/") {
		t.Fatalf("unexpected media key %q", key)
	}
	if media.objects[key] != "clip" {
		t.Fatalf("object not stored under %q", key)
	}
	lesson, _ := mem.GetLesson(ctx, "l1")
	if lesson.MediaKey != key {
		t.Fatalf("lesson media key not recorded, got %q", lesson.MediaKey)
	}

	replacement, err := service.AttachLessonMedia(ctx, "l1", strings.NewReader("clip2"))
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if len(media.deleted) != 1 || media.deleted[0] != key {
		t.Fatalf("stale object must be cleaned up, deleted %v", media.deleted)
	}
	if replacement == key {
		t.Fatal("replacement must get a fresh key")
	}
}
