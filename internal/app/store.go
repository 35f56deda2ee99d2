package app

import (
	"context"

	"classroom-service/internal/domain"
)

// RecordStore is the persistence boundary for the learning service.
// Implementations: internal/infra/postgres (bun) and internal/infra/memory.
//
// Two semantics matter beyond plain CRUD:
//   - InsertSubmission must enforce the (student, quiz) uniqueness constraint
//     at the store level and return domain.ErrAlreadySubmitted on violation,
//     so concurrent duplicates cannot both land.
//   - NextSubmissionNumber must be an atomic store-owned counter (a sequence),
//     never read-max-then-increment.
type RecordStore interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetClass(ctx context.Context, id string) (domain.Class, error)

	GetLesson(ctx context.Context, id string) (domain.Lesson, error)
	SetLessonMedia(ctx context.Context, lessonID, mediaKey string) error

	// Assignment lookups in both directions: what a class was assigned,
	// and which classes an activity fans out to.
	QuizIDsForClass(ctx context.Context, classID string) ([]string, error)
	LessonIDsForClass(ctx context.Context, classID string) ([]string, error)
	ClassIDsForQuiz(ctx context.Context, quizID string) ([]string, error)
	ClassIDsForLesson(ctx context.Context, lessonID string) ([]string, error)

	GetEnrollment(ctx context.Context, studentID, classID string) (domain.Enrollment, error)
	ListEnrollments(ctx context.Context) ([]domain.Enrollment, error)
	ListClassEnrollments(ctx context.Context, classID string) ([]domain.Enrollment, error)
	UpdateEnrollmentProgress(ctx context.Context, studentID, classID string, progress int) error

	GetSubmission(ctx context.Context, quizID, studentID string) (domain.QuizSubmission, error)
	InsertSubmission(ctx context.Context, sub domain.QuizSubmission) error
	// SubmittedQuizIDs filters quizIDs down to those the student has submitted.
	SubmittedQuizIDs(ctx context.Context, studentID string, quizIDs []string) ([]string, error)
	NextSubmissionNumber(ctx context.Context) (int64, error)

	// UpsertCompletion inserts or, for a repeated (student, lesson) pair,
	// updates stars and timestamp in place. The returned record carries the
	// surviving id.
	UpsertCompletion(ctx context.Context, c domain.LessonCompletion) (domain.LessonCompletion, error)
	// CompletedLessonIDs filters lessonIDs down to those the student completed.
	CompletedLessonIDs(ctx context.Context, studentID string, lessonIDs []string) ([]string, error)
}

// QuizContentRepository resolves a quiz together with its question set,
// typically through the Redis cache in front of the record store.
type QuizContentRepository interface {
	GetQuizContent(ctx context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error)
}
