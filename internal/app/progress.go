package app

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"classroom-service/internal/domain"
)

// BatchResult summarizes one reconciliation pass over all enrollments.
type BatchResult struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ProgressAggregator derives enrollment progress from completion and
// submission records. It is the only writer of Enrollment.Progress.
type ProgressAggregator struct {
	store RecordStore
	log   *zap.Logger
	now   func() time.Time
}

func NewProgressAggregator(store RecordStore, log *zap.Logger) *ProgressAggregator {
	return &ProgressAggregator{store: store, log: log, now: time.Now}
}

// computeProgress derives the percentage for one (student, class) pair
// without writing anything back.
//
// progress = round(100 * completedActivities / totalActivities), where the
// activity pool is the union of lessons and quizzes assigned to the class.
// A class with no assigned activities is always 0, never 100.
func (a *ProgressAggregator) computeProgress(ctx context.Context, studentID, classID string) (int, error) {
	lessonIDs, err := a.store.LessonIDsForClass(ctx, classID)
	if err != nil {
		return 0, err
	}
	quizIDs, err := a.store.QuizIDsForClass(ctx, classID)
	if err != nil {
		return 0, err
	}

	total := len(lessonIDs) + len(quizIDs)
	if total == 0 {
		return 0, nil
	}

	completed := 0
	if len(lessonIDs) > 0 {
		done, err := a.store.CompletedLessonIDs(ctx, studentID, lessonIDs)
		if err != nil {
			return 0, err
		}
		completed += len(done)
	}
	if len(quizIDs) > 0 {
		done, err := a.store.SubmittedQuizIDs(ctx, studentID, quizIDs)
		if err != nil {
			return 0, err
		}
		completed += len(done)
	}

	return int(math.Round(float64(completed) / float64(total) * 100)), nil
}

// RecomputeEnrollment recomputes and writes back progress for one
// enrollment. Returns domain.ErrEnrollmentNotFound when the student is not
// enrolled; callers on the activity-trigger path treat that as a no-op.
func (a *ProgressAggregator) RecomputeEnrollment(ctx context.Context, studentID, classID string) (int, error) {
	if _, err := a.store.GetEnrollment(ctx, studentID, classID); err != nil {
		return 0, err
	}
	progress, err := a.computeProgress(ctx, studentID, classID)
	if err != nil {
		return 0, err
	}
	if err := a.store.UpdateEnrollmentProgress(ctx, studentID, classID, progress); err != nil {
		return 0, err
	}
	return progress, nil
}

// RecomputeAll is the idempotent reconciliation pass: every enrollment is
// recomputed independently and written back only when the value changed.
// A failing enrollment is logged and counted, never aborts the batch.
func (a *ProgressAggregator) RecomputeAll(ctx context.Context) (BatchResult, error) {
	enrollments, err := a.store.ListEnrollments(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{Total: len(enrollments)}
	for _, e := range enrollments {
		progress, err := a.computeProgress(ctx, e.StudentID, e.ClassID)
		if err != nil {
			res.Failed++
			a.log.Warn("progress recompute failed",
				zap.String("studentId", e.StudentID),
				zap.String("classId", e.ClassID),
				zap.Error(err))
			continue
		}
		if progress == e.Progress {
			res.Skipped++
			continue
		}
		if err := a.store.UpdateEnrollmentProgress(ctx, e.StudentID, e.ClassID, progress); err != nil {
			res.Failed++
			a.log.Warn("progress write failed",
				zap.String("studentId", e.StudentID),
				zap.String("classId", e.ClassID),
				zap.Error(err))
			continue
		}
		res.Updated++
	}
	return res, nil
}

// ClassSnapshot assembles the per-student progress view for one class,
// ordered by progress descending, name ascending for ties.
func (a *ProgressAggregator) ClassSnapshot(ctx context.Context, classID string) (domain.ClassProgressSnapshot, error) {
	enrollments, err := a.store.ListClassEnrollments(ctx, classID)
	if err != nil {
		return domain.ClassProgressSnapshot{}, err
	}

	students := make([]domain.StudentProgress, 0, len(enrollments))
	for _, e := range enrollments {
		name := e.StudentID
		if user, err := a.store.GetUser(ctx, e.StudentID); err == nil {
			name = user.DisplayName
		}
		students = append(students, domain.StudentProgress{
			StudentID:   e.StudentID,
			DisplayName: name,
			Progress:    e.Progress,
		})
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Progress != students[j].Progress {
			return students[i].Progress > students[j].Progress
		}
		return students[i].DisplayName < students[j].DisplayName
	})

	return domain.ClassProgressSnapshot{
		ClassID:   classID,
		Students:  students,
		UpdatedAt: a.now(),
	}, nil
}
