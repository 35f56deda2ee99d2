package app_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"classroom-service/internal/app"
	"classroom-service/internal/domain"
	"classroom-service/internal/infra/memory"
)

func seedClassroom(lessons, quizzes int) *memory.RecordStore {
	mem := memory.NewRecordStore()
	mem.SeedUser(domain.User{ID: "s1", Role: domain.RoleStudent, DisplayName: "Ana"})
	mem.SeedClass(domain.Class{ID: "c1", TeacherID: "t1", Name: "Math"})
	mem.Enroll("s1", "c1")
	for i := 0; i < lessons; i++ {
		id := "l" + string(rune('1'+i))
		mem.SeedLesson(domain.Lesson{ID: id, TeacherID: "t1", Title: id})
		mem.AssignLesson(id, "c1")
	}
	for i := 0; i < quizzes; i++ {
		id := "qz" + string(rune('1'+i))
		mem.SeedQuiz(domain.Quiz{ID: id, TeacherID: "t1", Status: domain.QuizPublished}, nil)
		mem.AssignQuiz(id, "c1", nil)
	}
	return mem
}

func completeLessons(t *testing.T, mem *memory.RecordStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := mem.UpsertCompletion(context.Background(), domain.LessonCompletion{
			ID: "comp-" + id, StudentID: "s1", LessonID: id, Stars: 3,
		}); err != nil {
			t.Fatalf("seed completion: %v", err)
		}
	}
}

func TestRecomputeEnrollmentNoActivities(t *testing.T) {
	mem := seedClassroom(0, 0)
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	progress, err := agg.RecomputeEnrollment(context.Background(), "s1", "c1")
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if progress != 0 {
		t.Fatalf("class with no activities must be 0, got %d", progress)
	}
}

func TestRecomputeEnrollmentPartial(t *testing.T) {
	mem := seedClassroom(4, 0)
	completeLessons(t, mem, "l1", "l2")
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	progress, err := agg.RecomputeEnrollment(context.Background(), "s1", "c1")
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if progress != 50 {
		t.Fatalf("2 of 4 lessons must be 50, got %d", progress)
	}

	e, err := mem.GetEnrollment(context.Background(), "s1", "c1")
	if err != nil || e.Progress != 50 {
		t.Fatalf("progress not written back: %+v %v", e, err)
	}
}

func TestRecomputeEnrollmentComplete(t *testing.T) {
	mem := seedClassroom(2, 0)
	completeLessons(t, mem, "l1", "l2")
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	progress, err := agg.RecomputeEnrollment(context.Background(), "s1", "c1")
	if err != nil || progress != 100 {
		t.Fatalf("expected 100, got %d (%v)", progress, err)
	}
}

func TestRecomputeEnrollmentRounds(t *testing.T) {
	mem := seedClassroom(3, 0)
	completeLessons(t, mem, "l1")
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	progress, err := agg.RecomputeEnrollment(context.Background(), "s1", "c1")
	if err != nil || progress != 33 {
		t.Fatalf("expected round(1/3*100)=33, got %d (%v)", progress, err)
	}

	completeLessons(t, mem, "l2")
	progress, err = agg.RecomputeEnrollment(context.Background(), "s1", "c1")
	if err != nil || progress != 67 {
		t.Fatalf("expected round(2/3*100)=67, got %d (%v)", progress, err)
	}
}

func TestRecomputeEnrollmentNotEnrolled(t *testing.T) {
	mem := seedClassroom(1, 0)
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	_, err := agg.RecomputeEnrollment(context.Background(), "stranger", "c1")
	if !errors.Is(err, domain.ErrEnrollmentNotFound) {
		t.Fatalf("expected ErrEnrollmentNotFound, got %v", err)
	}
}

func TestRecomputeAllIdempotent(t *testing.T) {
	mem := seedClassroom(2, 0)
	mem.SeedUser(domain.User{ID: "s2", Role: domain.RoleStudent, DisplayName: "Ben"})
	mem.Enroll("s2", "c1")
	completeLessons(t, mem, "l1")
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	first, err := agg.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("recompute all failed: %v", err)
	}
	if first.Total != 2 || first.Updated != 1 || first.Failed != 0 {
		t.Fatalf("expected one update out of two, got %+v", first)
	}

	second, err := agg.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if second.Updated != 0 || second.Skipped != 2 {
		t.Fatalf("second pass must change nothing, got %+v", second)
	}
}

// failingStore makes lesson lookups fail for one class to exercise the
// batch's per-enrollment error isolation.
type failingStore struct {
	*memory.RecordStore
	failClass string
}

func (s *failingStore) LessonIDsForClass(ctx context.Context, classID string) ([]string, error) {
	if classID == s.failClass {
		return nil, errors.New("lookup exploded")
	}
	return s.RecordStore.LessonIDsForClass(ctx, classID)
}

func TestRecomputeAllIsolatesFailures(t *testing.T) {
	mem := seedClassroom(2, 0)
	mem.SeedClass(domain.Class{ID: "c2", TeacherID: "t1", Name: "Science"})
	mem.Enroll("s1", "c2")
	completeLessons(t, mem, "l1", "l2")
	agg := app.NewProgressAggregator(&failingStore{RecordStore: mem, failClass: "c2"}, zap.NewNop())

	result, err := agg.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("batch must not abort on one failure: %v", err)
	}
	if result.Total != 2 || result.Failed != 1 || result.Updated != 1 {
		t.Fatalf("expected one failure and one update, got %+v", result)
	}
}

func TestClassSnapshotOrdering(t *testing.T) {
	mem := seedClassroom(2, 0)
	mem.SeedUser(domain.User{ID: "s2", Role: domain.RoleStudent, DisplayName: "Ben"})
	mem.SeedUser(domain.User{ID: "s3", Role: domain.RoleStudent, DisplayName: "Cal"})
	mem.Enroll("s2", "c1")
	mem.Enroll("s3", "c1")
	completeLessons(t, mem, "l1", "l2")
	agg := app.NewProgressAggregator(mem, zap.NewNop())

	if _, err := agg.RecomputeEnrollment(context.Background(), "s1", "c1"); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	snapshot, err := agg.ClassSnapshot(context.Background(), "c1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snapshot.Students) != 3 {
		t.Fatalf("expected 3 students, got %d", len(snapshot.Students))
	}
	if snapshot.Students[0].StudentID != "s1" || snapshot.Students[0].Progress != 100 {
		t.Fatalf("highest progress must lead, got %+v", snapshot.Students[0])
	}
	if snapshot.Students[1].DisplayName != "Ben" || snapshot.Students[2].DisplayName != "Cal" {
		t.Fatalf("ties must order by name, got %+v", snapshot.Students[1:])
	}
}
