package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"classroom-service/internal/domain"
)

// RecordStore is the bun-backed implementation of app.RecordStore.
//
// The (quiz, student) and (student, lesson) uniqueness lives in table
// constraints (see migrations); a 23505 from the driver is translated to
// the matching domain conflict, never surfaced as a generic store error.
type RecordStore struct {
	db *bun.DB
}

func NewRecordStore(db *bun.DB) *RecordStore {
	return &RecordStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

// --- row models ----------------------------------------------------------

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string `bun:"id,pk"`
	DisplayName string `bun:"display_name"`
	Role        string `bun:"role"`
}

type classRow struct {
	bun.BaseModel `bun:"table:classes,alias:c"`

	ID         string `bun:"id,pk"`
	Name       string `bun:"name"`
	TeacherID  string `bun:"teacher_id"`
	GradeLevel int    `bun:"grade_level"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID           string `bun:"id,pk"`
	TeacherID    string `bun:"teacher_id"`
	Title        string `bun:"title"`
	GradeLevel   int    `bun:"grade_level"`
	TimeLimitSec int    `bun:"time_limit_sec"`
	TotalPoints  int    `bun:"total_points"`
	Status       string `bun:"status"`
}

type quizQuestionRow struct {
	bun.BaseModel `bun:"table:quiz_questions,alias:qq"`

	ID            string          `bun:"id,pk"`
	QuizID        string          `bun:"quiz_id"`
	Type          string          `bun:"type"`
	Prompt        string          `bun:"prompt"`
	Position      int             `bun:"position"`
	Points        int             `bun:"points"`
	CorrectAnswer *string         `bun:"correct_answer"`
	Options       []domain.Option `bun:"options,type:jsonb"`
}

type lessonRow struct {
	bun.BaseModel `bun:"table:lessons,alias:l"`

	ID         string `bun:"id,pk"`
	TeacherID  string `bun:"teacher_id"`
	Title      string `bun:"title"`
	GradeLevel int    `bun:"grade_level"`
	MediaKey   string `bun:"media_key"`
}

type quizAssignmentRow struct {
	bun.BaseModel `bun:"table:quiz_assignments,alias:qa"`

	QuizID     string     `bun:"quiz_id,pk"`
	ClassID    string     `bun:"class_id,pk"`
	AssignedAt time.Time  `bun:"assigned_at"`
	DueAt      *time.Time `bun:"due_at"`
}

type lessonAssignmentRow struct {
	bun.BaseModel `bun:"table:lesson_assignments,alias:la"`

	LessonID   string    `bun:"lesson_id,pk"`
	ClassID    string    `bun:"class_id,pk"`
	AssignedAt time.Time `bun:"assigned_at"`
}

type enrollmentRow struct {
	bun.BaseModel `bun:"table:enrollments,alias:e"`

	StudentID string `bun:"student_id,pk"`
	ClassID   string `bun:"class_id,pk"`
	Progress  int    `bun:"progress"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:quiz_submissions,alias:s"`

	ID          string                  `bun:"id,pk"`
	Number      int64                   `bun:"number"`
	QuizID      string                  `bun:"quiz_id"`
	StudentID   string                  `bun:"student_id"`
	Answers     []domain.Answer         `bun:"answers,type:jsonb"`
	Score       int                     `bun:"score"`
	Results     []domain.QuestionResult `bun:"results,type:jsonb"`
	SubmittedAt time.Time               `bun:"submitted_at"`
}

type completionRow struct {
	bun.BaseModel `bun:"table:lesson_completions,alias:lc"`

	ID          string    `bun:"id,pk"`
	StudentID   string    `bun:"student_id"`
	LessonID    string    `bun:"lesson_id"`
	Stars       int       `bun:"stars"`
	CompletedAt time.Time `bun:"completed_at"`
}

// --- lookups -------------------------------------------------------------

func (s *RecordStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := new(userRow)
	err := s.db.NewSelect().Model(row).Where("u.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrStudentNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return domain.User{ID: row.ID, DisplayName: row.DisplayName, Role: domain.Role(row.Role)}, nil
}

func (s *RecordStore) GetClass(ctx context.Context, id string) (domain.Class, error) {
	row := new(classRow)
	err := s.db.NewSelect().Model(row).Where("c.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Class{}, domain.ErrClassNotFound
		}
		return domain.Class{}, fmt.Errorf("get class: %w", err)
	}
	return domain.Class{ID: row.ID, Name: row.Name, TeacherID: row.TeacherID, GradeLevel: row.GradeLevel}, nil
}

func (s *RecordStore) GetLesson(ctx context.Context, id string) (domain.Lesson, error) {
	row := new(lessonRow)
	err := s.db.NewSelect().Model(row).Where("l.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lesson{}, domain.ErrLessonNotFound
		}
		return domain.Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return domain.Lesson{ID: row.ID, TeacherID: row.TeacherID, Title: row.Title, GradeLevel: row.GradeLevel, MediaKey: row.MediaKey}, nil
}

func (s *RecordStore) SetLessonMedia(ctx context.Context, lessonID, mediaKey string) error {
	res, err := s.db.NewUpdate().Model((*lessonRow)(nil)).
		Set("media_key = ?", mediaKey).
		Where("id = ?", lessonID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set lesson media: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrLessonNotFound
	}
	return nil
}

// --- assignments ---------------------------------------------------------

func (s *RecordStore) QuizIDsForClass(ctx context.Context, classID string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*quizAssignmentRow)(nil)).
		Column("qa.quiz_id").
		Where("qa.class_id = ?", classID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("quiz ids for class: %w", err)
	}
	return ids, nil
}

func (s *RecordStore) LessonIDsForClass(ctx context.Context, classID string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*lessonAssignmentRow)(nil)).
		Column("la.lesson_id").
		Where("la.class_id = ?", classID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("lesson ids for class: %w", err)
	}
	return ids, nil
}

func (s *RecordStore) ClassIDsForQuiz(ctx context.Context, quizID string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*quizAssignmentRow)(nil)).
		Column("qa.class_id").
		Where("qa.quiz_id = ?", quizID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("class ids for quiz: %w", err)
	}
	return ids, nil
}

func (s *RecordStore) ClassIDsForLesson(ctx context.Context, lessonID string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*lessonAssignmentRow)(nil)).
		Column("la.class_id").
		Where("la.lesson_id = ?", lessonID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("class ids for lesson: %w", err)
	}
	return ids, nil
}

// --- enrollments ---------------------------------------------------------

func (s *RecordStore) GetEnrollment(ctx context.Context, studentID, classID string) (domain.Enrollment, error) {
	row := new(enrollmentRow)
	err := s.db.NewSelect().Model(row).
		Where("e.student_id = ?", studentID).
		Where("e.class_id = ?", classID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Enrollment{}, domain.ErrEnrollmentNotFound
		}
		return domain.Enrollment{}, fmt.Errorf("get enrollment: %w", err)
	}
	return domain.Enrollment{StudentID: row.StudentID, ClassID: row.ClassID, Progress: row.Progress}, nil
}

func (s *RecordStore) ListEnrollments(ctx context.Context) ([]domain.Enrollment, error) {
	var rows []enrollmentRow
	err := s.db.NewSelect().Model(&rows).
		Order("class_id").Order("student_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollmentsFromRows(rows), nil
}

func (s *RecordStore) ListClassEnrollments(ctx context.Context, classID string) ([]domain.Enrollment, error) {
	var rows []enrollmentRow
	err := s.db.NewSelect().Model(&rows).
		Where("e.class_id = ?", classID).
		Order("student_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollmentsFromRows(rows), nil
}

func enrollmentsFromRows(rows []enrollmentRow) []domain.Enrollment {
	out := make([]domain.Enrollment, len(rows))
	for i, r := range rows {
		out[i] = domain.Enrollment{StudentID: r.StudentID, ClassID: r.ClassID, Progress: r.Progress}
	}
	return out
}

func (s *RecordStore) UpdateEnrollmentProgress(ctx context.Context, studentID, classID string, progress int) error {
	res, err := s.db.NewUpdate().Model((*enrollmentRow)(nil)).
		Set("progress = ?", progress).
		Where("student_id = ?", studentID).
		Where("class_id = ?", classID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

// --- submissions ---------------------------------------------------------

func (s *RecordStore) GetSubmission(ctx context.Context, quizID, studentID string) (domain.QuizSubmission, error) {
	row := new(submissionRow)
	err := s.db.NewSelect().Model(row).
		Where("s.quiz_id = ?", quizID).
		Where("s.student_id = ?", studentID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QuizSubmission{}, domain.ErrSubmissionNotFound
		}
		return domain.QuizSubmission{}, fmt.Errorf("get submission: %w", err)
	}
	return submissionFromRow(*row), nil
}

func (s *RecordStore) InsertSubmission(ctx context.Context, sub domain.QuizSubmission) error {
	row := &submissionRow{
		ID:          sub.ID,
		Number:      sub.Number,
		QuizID:      sub.QuizID,
		StudentID:   sub.StudentID,
		Answers:     sub.Answers,
		Score:       sub.Score,
		Results:     sub.Results,
		SubmittedAt: sub.SubmittedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySubmitted
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *RecordStore) SubmittedQuizIDs(ctx context.Context, studentID string, quizIDs []string) ([]string, error) {
	if len(quizIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := s.db.NewSelect().Model((*submissionRow)(nil)).
		Column("s.quiz_id").
		Where("s.student_id = ?", studentID).
		Where("s.quiz_id IN (?)", bun.In(quizIDs)).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("submitted quiz ids: %w", err)
	}
	return ids, nil
}

func (s *RecordStore) NextSubmissionNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT nextval('submission_number_seq')").Scan(&n); err != nil {
		return 0, fmt.Errorf("submission sequence: %w", err)
	}
	return n, nil
}

func submissionFromRow(row submissionRow) domain.QuizSubmission {
	return domain.QuizSubmission{
		ID:          row.ID,
		Number:      row.Number,
		QuizID:      row.QuizID,
		StudentID:   row.StudentID,
		Answers:     row.Answers,
		Score:       row.Score,
		Results:     row.Results,
		SubmittedAt: row.SubmittedAt,
	}
}

// --- completions ---------------------------------------------------------

func (s *RecordStore) UpsertCompletion(ctx context.Context, c domain.LessonCompletion) (domain.LessonCompletion, error) {
	row := &completionRow{
		ID:          c.ID,
		StudentID:   c.StudentID,
		LessonID:    c.LessonID,
		Stars:       c.Stars,
		CompletedAt: c.CompletedAt,
	}
	// Repeat completion keeps the original row (and id), refreshing stars
	// and timestamp.
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (student_id, lesson_id) DO UPDATE").
		Set("stars = EXCLUDED.stars").
		Set("completed_at = EXCLUDED.completed_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.LessonCompletion{}, fmt.Errorf("upsert completion: %w", err)
	}
	return domain.LessonCompletion{
		ID:          row.ID,
		StudentID:   row.StudentID,
		LessonID:    row.LessonID,
		Stars:       row.Stars,
		CompletedAt: row.CompletedAt,
	}, nil
}

func (s *RecordStore) CompletedLessonIDs(ctx context.Context, studentID string, lessonIDs []string) ([]string, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := s.db.NewSelect().Model((*completionRow)(nil)).
		Column("lc.lesson_id").
		Where("lc.student_id = ?", studentID).
		Where("lc.lesson_id IN (?)", bun.In(lessonIDs)).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("completed lesson ids: %w", err)
	}
	return ids, nil
}

// --- content loading (cache fallback) ------------------------------------

// LoadQuizContent implements the loader contract behind the quiz caches.
func (s *RecordStore) LoadQuizContent(ctx context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error) {
	qRow := new(quizRow)
	err := s.db.NewSelect().Model(qRow).Where("q.id = ?", quizID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Quiz{}, nil, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, nil, fmt.Errorf("load quiz: %w", err)
	}

	var questionRows []quizQuestionRow
	err = s.db.NewSelect().Model(&questionRows).
		Where("qq.quiz_id = ?", quizID).
		Order("position").
		Scan(ctx)
	if err != nil {
		return domain.Quiz{}, nil, fmt.Errorf("load questions: %w", err)
	}

	quiz := domain.Quiz{
		ID:           qRow.ID,
		TeacherID:    qRow.TeacherID,
		Title:        qRow.Title,
		GradeLevel:   qRow.GradeLevel,
		TimeLimitSec: qRow.TimeLimitSec,
		TotalPoints:  qRow.TotalPoints,
		Status:       domain.QuizStatus(qRow.Status),
	}
	questions := make([]domain.QuizQuestion, len(questionRows))
	for i, r := range questionRows {
		questions[i] = domain.QuizQuestion{
			ID:            r.ID,
			QuizID:        r.QuizID,
			Type:          domain.QuestionType(r.Type),
			Prompt:        r.Prompt,
			Position:      r.Position,
			Points:        r.Points,
			CorrectAnswer: r.CorrectAnswer,
			Options:       r.Options,
		}
	}
	return quiz, questions, nil
}

// --- authoring / seeding -------------------------------------------------

func (s *RecordStore) SaveUser(ctx context.Context, u domain.User) error {
	row := &userRow{ID: u.ID, DisplayName: u.DisplayName, Role: string(u.Role)}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *RecordStore) SaveClass(ctx context.Context, c domain.Class) error {
	row := &classRow{ID: c.ID, Name: c.Name, TeacherID: c.TeacherID, GradeLevel: c.GradeLevel}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("teacher_id = EXCLUDED.teacher_id").
		Set("grade_level = EXCLUDED.grade_level").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save class: %w", err)
	}
	return nil
}

func (s *RecordStore) SaveLesson(ctx context.Context, l domain.Lesson) error {
	row := &lessonRow{ID: l.ID, TeacherID: l.TeacherID, Title: l.Title, GradeLevel: l.GradeLevel, MediaKey: l.MediaKey}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("grade_level = EXCLUDED.grade_level").
		Set("media_key = EXCLUDED.media_key").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save lesson: %w", err)
	}
	return nil
}

// SaveQuiz writes the quiz and replaces its question set atomically,
// recomputing total_points from the questions so the derived field can
// never drift.
func (s *RecordStore) SaveQuiz(ctx context.Context, quiz domain.Quiz, questions []domain.QuizQuestion) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		quiz.TotalPoints = domain.TotalPoints(questions)
		qRow := &quizRow{
			ID:           quiz.ID,
			TeacherID:    quiz.TeacherID,
			Title:        quiz.Title,
			GradeLevel:   quiz.GradeLevel,
			TimeLimitSec: quiz.TimeLimitSec,
			TotalPoints:  quiz.TotalPoints,
			Status:       string(quiz.Status),
		}
		_, err := tx.NewInsert().Model(qRow).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("grade_level = EXCLUDED.grade_level").
			Set("time_limit_sec = EXCLUDED.time_limit_sec").
			Set("total_points = EXCLUDED.total_points").
			Set("status = EXCLUDED.status").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save quiz: %w", err)
		}

		if _, err := tx.NewDelete().Model((*quizQuestionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		if len(questions) == 0 {
			return nil
		}
		rows := make([]quizQuestionRow, len(questions))
		for i, q := range questions {
			rows[i] = quizQuestionRow{
				ID:            q.ID,
				QuizID:        quiz.ID,
				Type:          string(q.Type),
				Prompt:        q.Prompt,
				Position:      q.Position,
				Points:        q.Points,
				CorrectAnswer: q.CorrectAnswer,
				Options:       q.Options,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("save questions: %w", err)
		}
		return nil
	})
}

func (s *RecordStore) AssignQuiz(ctx context.Context, quizID, classID string, due *time.Time) error {
	row := &quizAssignmentRow{QuizID: quizID, ClassID: classID, AssignedAt: time.Now().UTC(), DueAt: due}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (quiz_id, class_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("assign quiz: %w", err)
	}
	return nil
}

func (s *RecordStore) AssignLesson(ctx context.Context, lessonID, classID string) error {
	row := &lessonAssignmentRow{LessonID: lessonID, ClassID: classID, AssignedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (lesson_id, class_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("assign lesson: %w", err)
	}
	return nil
}

func (s *RecordStore) Enroll(ctx context.Context, studentID, classID string) error {
	row := &enrollmentRow{StudentID: studentID, ClassID: classID}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (student_id, class_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}
