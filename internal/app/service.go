package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classroom-service/internal/domain"
)

// MediaStore is the blob store boundary for lesson/quiz media.
type MediaStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// LearningService holds the request-scoped use cases: grading quiz
// submissions, recording lesson completions, and the admin reconciliation.
// Each call runs to completion within the request; the only shared mutable
// state is the record store.
type LearningService struct {
	store   RecordStore
	quizzes QuizContentRepository
	agg     *ProgressAggregator
	feed    *ProgressFeed
	media   MediaStore // optional; media uploads fail when unset
	log     *zap.Logger
	now     func() time.Time
}

func NewLearningService(store RecordStore, quizzes QuizContentRepository, agg *ProgressAggregator, feed *ProgressFeed, log *zap.Logger) *LearningService {
	return &LearningService{
		store:   store,
		quizzes: quizzes,
		agg:     agg,
		feed:    feed,
		log:     log,
		now:     time.Now,
	}
}

// WithMedia attaches a blob store for lesson media uploads.
func (s *LearningService) WithMedia(media MediaStore) *LearningService {
	s.media = media
	return s
}

// SubmitQuiz grades and records a student's one-time attempt at a quiz.
//
// The duplicate pre-check is advisory; the store's uniqueness constraint is
// the real guarantee, and its violation comes back as ErrAlreadySubmitted.
func (s *LearningService) SubmitQuiz(ctx context.Context, quizID, studentID string, answers []domain.Answer) (domain.QuizSubmission, error) {
	quiz, questions, err := s.quizzes.GetQuizContent(ctx, quizID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	if quiz.Status != domain.QuizPublished {
		return domain.QuizSubmission{}, domain.ErrQuizNotPublished
	}

	if _, err := s.store.GetSubmission(ctx, quizID, studentID); err == nil {
		return domain.QuizSubmission{}, domain.ErrAlreadySubmitted
	} else if !errors.Is(err, domain.ErrSubmissionNotFound) {
		return domain.QuizSubmission{}, err
	}

	graded := GradeSubmission(questions, answers)

	number, err := s.store.NextSubmissionNumber(ctx)
	if err != nil {
		return domain.QuizSubmission{}, fmt.Errorf("submission number: %w", err)
	}

	sub := domain.QuizSubmission{
		ID:          uuid.NewString(),
		Number:      number,
		QuizID:      quiz.ID,
		StudentID:   studentID,
		Answers:     answers,
		Score:       graded.Score,
		Results:     graded.Results,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return domain.QuizSubmission{}, err
	}

	classIDs, err := s.store.ClassIDsForQuiz(ctx, quizID)
	if err != nil {
		s.log.Warn("class fan-out lookup failed", zap.String("quizId", quizID), zap.Error(err))
		return sub, nil
	}
	s.propagateProgress(ctx, studentID, classIDs)
	return sub, nil
}

// CompleteLesson records (or refreshes) a student's completion of a lesson.
// Idempotent: a repeat call updates stars and timestamp on the one record.
func (s *LearningService) CompleteLesson(ctx context.Context, studentID, lessonID string, stars int) (domain.LessonCompletion, error) {
	if stars < 0 || stars > 3 {
		return domain.LessonCompletion{}, domain.NewValidationError("stars", "must be between 0 and 3")
	}
	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return domain.LessonCompletion{}, err
	}

	completion, err := s.store.UpsertCompletion(ctx, domain.LessonCompletion{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		LessonID:    lesson.ID,
		Stars:       stars,
		CompletedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.LessonCompletion{}, err
	}

	classIDs, err := s.store.ClassIDsForLesson(ctx, lessonID)
	if err != nil {
		s.log.Warn("class fan-out lookup failed", zap.String("lessonId", lessonID), zap.Error(err))
		return completion, nil
	}
	s.propagateProgress(ctx, studentID, classIDs)
	return completion, nil
}

// RecomputeAllProgress runs the batch reconciliation over every enrollment.
func (s *LearningService) RecomputeAllProgress(ctx context.Context) (BatchResult, error) {
	return s.agg.RecomputeAll(ctx)
}

// AttachLessonMedia stores the lesson's media object and records its key.
func (s *LearningService) AttachLessonMedia(ctx context.Context, lessonID string, r io.Reader) (string, error) {
	if s.media == nil {
		return "", errors.New("media store not configured")
	}
	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return "", err
	}

	key := "lessons/" + lesson.ID + "/" + uuid.NewString()
	if _, err := s.media.Put(ctx, key, r); err != nil {
		return "", fmt.Errorf("store media: %w", err)
	}
	if err := s.store.SetLessonMedia(ctx, lesson.ID, key); err != nil {
		return "", err
	}
	if lesson.MediaKey != "" && lesson.MediaKey != key {
		// Replaced media: best-effort cleanup of the previous object.
		if err := s.media.Delete(ctx, lesson.MediaKey); err != nil {
			s.log.Warn("stale media cleanup failed", zap.String("key", lesson.MediaKey), zap.Error(err))
		}
	}
	return key, nil
}

// propagateProgress recomputes progress for every class the activity fans
// out to where the student is actually enrolled, then publishes snapshots.
// An activity for an unenrolled student is a no-op, not an error; other
// failures are logged since the activity record itself already persisted.
func (s *LearningService) propagateProgress(ctx context.Context, studentID string, classIDs []string) {
	for _, classID := range classIDs {
		if _, err := s.agg.RecomputeEnrollment(ctx, studentID, classID); err != nil {
			if errors.Is(err, domain.ErrEnrollmentNotFound) {
				continue
			}
			s.log.Warn("progress recompute failed",
				zap.String("studentId", studentID),
				zap.String("classId", classID),
				zap.Error(err))
			continue
		}
		snapshot, err := s.agg.ClassSnapshot(ctx, classID)
		if err != nil {
			s.log.Warn("class snapshot failed", zap.String("classId", classID), zap.Error(err))
			continue
		}
		s.feed.Publish(snapshot)
	}
}
