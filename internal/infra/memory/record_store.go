package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"classroom-service/internal/domain"
)

// RecordStore is the in-memory implementation of app.RecordStore, used by
// unit tests and the no-database serve mode. It mirrors the Postgres
// store's semantics: uniqueness of (student, quiz) submissions, upsert
// behavior for completions, and a store-owned submission sequence.
type RecordStore struct {
	mu sync.RWMutex

	users   map[string]domain.User
	classes map[string]domain.Class
	quizzes map[string]domain.Quiz
	lessons map[string]domain.Lesson

	questions map[string][]domain.QuizQuestion // quizID -> ordered questions

	quizAssignments   []domain.QuizAssignment
	lessonAssignments []domain.LessonAssignment

	enrollments map[string]domain.Enrollment      // studentID|classID
	submissions map[string]domain.QuizSubmission  // quizID|studentID
	completions map[string]domain.LessonCompletion // studentID|lessonID

	submissionSeq atomic.Int64
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		users:       make(map[string]domain.User),
		classes:     make(map[string]domain.Class),
		quizzes:     make(map[string]domain.Quiz),
		lessons:     make(map[string]domain.Lesson),
		questions:   make(map[string][]domain.QuizQuestion),
		enrollments: make(map[string]domain.Enrollment),
		submissions: make(map[string]domain.QuizSubmission),
		completions: make(map[string]domain.LessonCompletion),
	}
}

func pairKey(a, b string) string { return a + "|" + b }

// --- seeding -------------------------------------------------------------

func (s *RecordStore) SeedUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *RecordStore) SeedClass(c domain.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
}

// SeedQuiz stores a quiz with its question set, recomputing TotalPoints so
// the derived field can never drift from the questions.
func (s *RecordStore) SeedQuiz(q domain.Quiz, questions []domain.QuizQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.TotalPoints = domain.TotalPoints(questions)
	s.quizzes[q.ID] = q
	qs := make([]domain.QuizQuestion, len(questions))
	copy(qs, questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
	s.questions[q.ID] = qs
}

func (s *RecordStore) SeedLesson(l domain.Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[l.ID] = l
}

func (s *RecordStore) AssignQuiz(quizID, classID string, due *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.quizAssignments {
		if a.QuizID == quizID && a.ClassID == classID {
			return // unique per (quiz, class)
		}
	}
	s.quizAssignments = append(s.quizAssignments, domain.QuizAssignment{
		QuizID: quizID, ClassID: classID, AssignedAt: time.Now().UTC(), DueAt: due,
	})
}

func (s *RecordStore) AssignLesson(lessonID, classID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.lessonAssignments {
		if a.LessonID == lessonID && a.ClassID == classID {
			return
		}
	}
	s.lessonAssignments = append(s.lessonAssignments, domain.LessonAssignment{
		LessonID: lessonID, ClassID: classID, AssignedAt: time.Now().UTC(),
	})
}

func (s *RecordStore) Enroll(studentID, classID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(studentID, classID)
	if _, ok := s.enrollments[key]; !ok {
		s.enrollments[key] = domain.Enrollment{StudentID: studentID, ClassID: classID}
	}
}

// --- app.RecordStore -----------------------------------------------------

func (s *RecordStore) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrStudentNotFound
}

func (s *RecordStore) GetClass(_ context.Context, id string) (domain.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.classes[id]; ok {
		return c, nil
	}
	return domain.Class{}, domain.ErrClassNotFound
}

func (s *RecordStore) GetLesson(_ context.Context, id string) (domain.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.lessons[id]; ok {
		return l, nil
	}
	return domain.Lesson{}, domain.ErrLessonNotFound
}

func (s *RecordStore) SetLessonMedia(_ context.Context, lessonID, mediaKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[lessonID]
	if !ok {
		return domain.ErrLessonNotFound
	}
	l.MediaKey = mediaKey
	s.lessons[lessonID] = l
	return nil
}

func (s *RecordStore) QuizIDsForClass(_ context.Context, classID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, a := range s.quizAssignments {
		if a.ClassID == classID {
			ids = append(ids, a.QuizID)
		}
	}
	return ids, nil
}

func (s *RecordStore) LessonIDsForClass(_ context.Context, classID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, a := range s.lessonAssignments {
		if a.ClassID == classID {
			ids = append(ids, a.LessonID)
		}
	}
	return ids, nil
}

func (s *RecordStore) ClassIDsForQuiz(_ context.Context, quizID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, a := range s.quizAssignments {
		if a.QuizID == quizID {
			ids = append(ids, a.ClassID)
		}
	}
	return ids, nil
}

func (s *RecordStore) ClassIDsForLesson(_ context.Context, lessonID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, a := range s.lessonAssignments {
		if a.LessonID == lessonID {
			ids = append(ids, a.ClassID)
		}
	}
	return ids, nil
}

func (s *RecordStore) GetEnrollment(_ context.Context, studentID, classID string) (domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.enrollments[pairKey(studentID, classID)]; ok {
		return e, nil
	}
	return domain.Enrollment{}, domain.ErrEnrollmentNotFound
}

func (s *RecordStore) ListEnrollments(_ context.Context) ([]domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Enrollment, 0, len(s.enrollments))
	for _, e := range s.enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClassID != out[j].ClassID {
			return out[i].ClassID < out[j].ClassID
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func (s *RecordStore) ListClassEnrollments(_ context.Context, classID string) ([]domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Enrollment
	for _, e := range s.enrollments {
		if e.ClassID == classID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *RecordStore) UpdateEnrollmentProgress(_ context.Context, studentID, classID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(studentID, classID)
	e, ok := s.enrollments[key]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	e.Progress = progress
	s.enrollments[key] = e
	return nil
}

func (s *RecordStore) GetSubmission(_ context.Context, quizID, studentID string) (domain.QuizSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.submissions[pairKey(quizID, studentID)]; ok {
		return sub, nil
	}
	return domain.QuizSubmission{}, domain.ErrSubmissionNotFound
}

func (s *RecordStore) InsertSubmission(_ context.Context, sub domain.QuizSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(sub.QuizID, sub.StudentID)
	if _, ok := s.submissions[key]; ok {
		return domain.ErrAlreadySubmitted
	}
	s.submissions[key] = sub
	return nil
}

func (s *RecordStore) SubmittedQuizIDs(_ context.Context, studentID string, quizIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var done []string
	for _, quizID := range quizIDs {
		if _, ok := s.submissions[pairKey(quizID, studentID)]; ok {
			done = append(done, quizID)
		}
	}
	return done, nil
}

func (s *RecordStore) NextSubmissionNumber(_ context.Context) (int64, error) {
	return s.submissionSeq.Add(1), nil
}

func (s *RecordStore) UpsertCompletion(_ context.Context, c domain.LessonCompletion) (domain.LessonCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(c.StudentID, c.LessonID)
	if existing, ok := s.completions[key]; ok {
		existing.Stars = c.Stars
		existing.CompletedAt = c.CompletedAt
		s.completions[key] = existing
		return existing, nil
	}
	s.completions[key] = c
	return c, nil
}

func (s *RecordStore) CompletedLessonIDs(_ context.Context, studentID string, lessonIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var done []string
	for _, lessonID := range lessonIDs {
		if _, ok := s.completions[pairKey(studentID, lessonID)]; ok {
			done = append(done, lessonID)
		}
	}
	return done, nil
}

// --- content loading (cache fallback) ------------------------------------

// LoadQuizContent implements the loader contract behind the quiz caches.
func (s *RecordStore) LoadQuizContent(_ context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, nil, domain.ErrQuizNotFound
	}
	qs := make([]domain.QuizQuestion, len(s.questions[quizID]))
	copy(qs, s.questions[quizID])
	return quiz, qs, nil
}

// --- app.ProjectionStore -------------------------------------------------

// ClassDashboard derives the teacher view from the store maps. Scores and
// stars are scoped to the class's assigned activities, matching the SQL
// projection.
func (s *RecordStore) ClassDashboard(ctx context.Context, classID string) (domain.ClassDashboard, error) {
	class, err := s.GetClass(ctx, classID)
	if err != nil {
		return domain.ClassDashboard{}, err
	}
	enrollments, _ := s.ListClassEnrollments(ctx, classID)
	quizIDs, _ := s.QuizIDsForClass(ctx, classID)
	lessonIDs, _ := s.LessonIDsForClass(ctx, classID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	dash := domain.ClassDashboard{ClassID: class.ID, ClassName: class.Name}
	for _, e := range enrollments {
		row := domain.StudentOverview{
			StudentID: e.StudentID,
			Progress:  e.Progress,
		}
		if u, ok := s.users[e.StudentID]; ok {
			row.DisplayName = u.DisplayName
		}

		var scoreSum, scoreCount int
		var last time.Time
		for _, quizID := range quizIDs {
			if sub, ok := s.submissions[pairKey(quizID, e.StudentID)]; ok {
				scoreSum += sub.Score
				scoreCount++
				if sub.SubmittedAt.After(last) {
					last = sub.SubmittedAt
				}
			}
		}
		for _, lessonID := range lessonIDs {
			if c, ok := s.completions[pairKey(e.StudentID, lessonID)]; ok {
				row.StarsTotal += c.Stars
				if c.CompletedAt.After(last) {
					last = c.CompletedAt
				}
			}
		}
		if scoreCount > 0 {
			row.AverageScore = int(math.Round(float64(scoreSum) / float64(scoreCount)))
		}
		if !last.IsZero() {
			t := last
			row.LastActivityAt = &t
		}
		dash.Students = append(dash.Students, row)
	}
	sort.Slice(dash.Students, func(i, j int) bool {
		return dash.Students[i].DisplayName < dash.Students[j].DisplayName
	})
	return dash, nil
}

// ChildSummary derives the parent view: per-class standing plus overall
// score average and star total.
func (s *RecordStore) ChildSummary(ctx context.Context, studentID string) (domain.ChildSummary, error) {
	student, err := s.GetUser(ctx, studentID)
	if err != nil {
		return domain.ChildSummary{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.ChildSummary{StudentID: student.ID, DisplayName: student.DisplayName}
	for _, e := range s.enrollments {
		if e.StudentID != studentID {
			continue
		}
		standing := domain.ClassStanding{ClassID: e.ClassID, Progress: e.Progress}
		if c, ok := s.classes[e.ClassID]; ok {
			standing.ClassName = c.Name
		}
		summary.Classes = append(summary.Classes, standing)
	}
	sort.Slice(summary.Classes, func(i, j int) bool {
		return summary.Classes[i].ClassID < summary.Classes[j].ClassID
	})

	var scoreSum, scoreCount int
	for _, sub := range s.submissions {
		if sub.StudentID == studentID {
			scoreSum += sub.Score
			scoreCount++
		}
	}
	if scoreCount > 0 {
		summary.AverageScore = int(math.Round(float64(scoreSum) / float64(scoreCount)))
	}
	for _, c := range s.completions {
		if c.StudentID == studentID {
			summary.StarsTotal += c.Stars
		}
	}
	return summary, nil
}
