package domain

import "time"

// Role identifies the kind of platform account.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
)

// User is a platform account. Parent accounts reference their children
// through guardian links held by the record store.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Class groups students under one teacher for a grade level.
type Class struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TeacherID  string `json:"teacherId"`
	GradeLevel int    `json:"gradeLevel"`
}

// QuizStatus gates whether students can see and submit a quiz.
type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
)

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionOpenEnded      QuestionType = "open-ended"
	QuestionPoll           QuestionType = "poll"
	QuestionScale          QuestionType = "scale"
	QuestionWordCloud      QuestionType = "word-cloud"
	QuestionDropPin        QuestionType = "drop-pin"
	QuestionBrainstorm     QuestionType = "brainstorm"
	QuestionPuzzle         QuestionType = "puzzle"
)

// AutoGradable reports whether the grader may mark answers of this type
// correct on its own. Open-ended answers always wait for a manual pass.
func (t QuestionType) AutoGradable() bool {
	return t != QuestionOpenEnded
}

// Option is a selectable answer for choice-style questions.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Quiz is authored and owned by a single teacher. TotalPoints is derived
// from the question set and recomputed whenever questions change.
type Quiz struct {
	ID           string     `json:"id"`
	TeacherID    string     `json:"teacherId"`
	Title        string     `json:"title"`
	GradeLevel   int        `json:"gradeLevel"`
	TimeLimitSec int        `json:"timeLimitSec,omitempty"` // 0 means untimed
	TotalPoints  int        `json:"totalPoints"`
	Status       QuizStatus `json:"status"`
}

// QuizQuestion belongs to exactly one quiz. CorrectAnswer is nil for
// types that only a human can grade.
type QuizQuestion struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quizId"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Position      int          `json:"position"`
	Points        int          `json:"points"` // defaults to 1 if zero
	CorrectAnswer *string      `json:"correctAnswer,omitempty"`
	Options       []Option     `json:"options,omitempty"`
}

// TotalPoints sums the question set's point values, substituting the
// default of 1 for unset values. Quiz.TotalPoints must always equal this.
func TotalPoints(questions []QuizQuestion) int {
	total := 0
	for _, q := range questions {
		p := q.Points
		if p <= 0 {
			p = 1
		}
		total += p
	}
	return total
}

// QuizAssignment links a quiz to a class. Unique per (quiz, class).
type QuizAssignment struct {
	QuizID     string     `json:"quizId"`
	ClassID    string     `json:"classId"`
	AssignedAt time.Time  `json:"assignedAt"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
}

// Lesson is authored by a teacher; MediaKey names the blob store object
// backing the lesson content, empty until media is attached.
type Lesson struct {
	ID         string `json:"id"`
	TeacherID  string `json:"teacherId"`
	Title      string `json:"title"`
	GradeLevel int    `json:"gradeLevel"`
	MediaKey   string `json:"mediaKey,omitempty"`
}

// LessonAssignment links a lesson to a class. Unique per (lesson, class).
type LessonAssignment struct {
	LessonID   string    `json:"lessonId"`
	ClassID    string    `json:"classId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Answer is one (question, value) pair from a student. QuestionID is the
// canonical string form of whatever identifier arrived on the wire.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

// QuestionResult records the grading outcome for a single question.
type QuestionResult struct {
	QuestionID    string `json:"questionId"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	ManualReview  bool   `json:"manualReview,omitempty"`
}

// GradingResult is the grader's full output for one submission.
type GradingResult struct {
	Score        int              `json:"score"` // 0..100
	EarnedPoints int              `json:"earnedPoints"`
	TotalPoints  int              `json:"totalPoints"`
	Results      []QuestionResult `json:"results"`
}

// QuizSubmission is a student's single graded attempt at a quiz.
// At most one exists per (student, quiz); the record store enforces this
// with a uniqueness constraint, not just an application pre-check.
type QuizSubmission struct {
	ID          string           `json:"id"`
	Number      int64            `json:"number"` // human-readable sequence number
	QuizID      string           `json:"quizId"`
	StudentID   string           `json:"studentId"`
	Answers     []Answer         `json:"answers"`
	Score       int              `json:"score"` // 0..100
	Results     []QuestionResult `json:"results"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// LessonCompletion marks a lesson finished by a student. Unique per
// (student, lesson); repeating the completion updates stars and timestamp.
type LessonCompletion struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	LessonID    string    `json:"lessonId"`
	Stars       int       `json:"stars"` // 0..3
	CompletedAt time.Time `json:"completedAt"`
}

// Enrollment joins a student to a class. Progress is derived and written
// only by the progress aggregator, never by request input.
type Enrollment struct {
	StudentID string `json:"studentId"`
	ClassID   string `json:"classId"`
	Progress  int    `json:"progress"` // 0..100
}

// StudentProgress is one row of a class progress snapshot.
type StudentProgress struct {
	StudentID   string `json:"studentId"`
	DisplayName string `json:"displayName"`
	Progress    int    `json:"progress"`
}

// ClassProgressSnapshot is the ordered per-student progress view pushed
// to dashboard subscribers after a recompute.
type ClassProgressSnapshot struct {
	ClassID   string            `json:"classId"`
	Students  []StudentProgress `json:"students"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// StudentOverview is one student's row on a teacher's class dashboard.
type StudentOverview struct {
	StudentID      string     `json:"studentId"`
	DisplayName    string     `json:"displayName"`
	Progress       int        `json:"progress"`
	AverageScore   int        `json:"averageScore"` // 0 when no submissions yet
	StarsTotal     int        `json:"starsTotal"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

// ClassDashboard is the teacher-facing read projection for one class.
type ClassDashboard struct {
	ClassID   string            `json:"classId"`
	ClassName string            `json:"className"`
	Students  []StudentOverview `json:"students"`
}

// ClassStanding is a child's position in one class, for parent views.
type ClassStanding struct {
	ClassID   string `json:"classId"`
	ClassName string `json:"className"`
	Progress  int    `json:"progress"`
}

// ChildSummary is the parent-facing read projection for one student.
type ChildSummary struct {
	StudentID    string          `json:"studentId"`
	DisplayName  string          `json:"displayName"`
	Classes      []ClassStanding `json:"classes"`
	AverageScore int             `json:"averageScore"`
	StarsTotal   int             `json:"starsTotal"`
}
