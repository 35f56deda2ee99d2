package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classroom-service/internal/domain"
)

// ProjectionStore runs the denormalized dashboard reads over a pgx pool.
// These are read-only aggregate queries; all writes go through RecordStore.
type ProjectionStore struct {
	pool *pgxpool.Pool
}

func NewProjectionStore(pool *pgxpool.Pool) *ProjectionStore {
	return &ProjectionStore{pool: pool}
}

// ClassDashboard assembles the teacher view in one query: every enrolled
// student with progress, average score over the class's assigned quizzes,
// star total over the class's assigned lessons, and last activity.
func (p *ProjectionStore) ClassDashboard(ctx context.Context, classID string) (domain.ClassDashboard, error) {
	var className string
	err := p.pool.QueryRow(ctx, `SELECT name FROM classes WHERE id = $1`, classID).Scan(&className)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClassDashboard{}, domain.ErrClassNotFound
		}
		return domain.ClassDashboard{}, fmt.Errorf("load class: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT e.student_id,
		       u.display_name,
		       e.progress,
		       sq.avg_score,
		       COALESCE(lc.stars_total, 0),
		       GREATEST(sq.last_at, lc.last_at)
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		LEFT JOIN LATERAL (
			SELECT ROUND(AVG(s.score))::int AS avg_score, MAX(s.submitted_at) AS last_at
			FROM quiz_submissions s
			JOIN quiz_assignments qa ON qa.quiz_id = s.quiz_id AND qa.class_id = e.class_id
			WHERE s.student_id = e.student_id
		) sq ON true
		LEFT JOIN LATERAL (
			SELECT SUM(c.stars)::int AS stars_total, MAX(c.completed_at) AS last_at
			FROM lesson_completions c
			JOIN lesson_assignments la ON la.lesson_id = c.lesson_id AND la.class_id = e.class_id
			WHERE c.student_id = e.student_id
		) lc ON true
		WHERE e.class_id = $1
		ORDER BY u.display_name, e.student_id
	`, classID)
	if err != nil {
		return domain.ClassDashboard{}, fmt.Errorf("class dashboard: %w", err)
	}
	defer rows.Close()

	dash := domain.ClassDashboard{ClassID: classID, ClassName: className}
	for rows.Next() {
		var row domain.StudentOverview
		var avgScore *int
		var lastActivity *time.Time
		if err := rows.Scan(&row.StudentID, &row.DisplayName, &row.Progress, &avgScore, &row.StarsTotal, &lastActivity); err != nil {
			return domain.ClassDashboard{}, fmt.Errorf("scan dashboard row: %w", err)
		}
		if avgScore != nil {
			row.AverageScore = *avgScore
		}
		row.LastActivityAt = lastActivity
		dash.Students = append(dash.Students, row)
	}
	return dash, rows.Err()
}

// ChildSummary assembles the parent view for one student: per-class
// standing plus overall score average and star total.
func (p *ProjectionStore) ChildSummary(ctx context.Context, studentID string) (domain.ChildSummary, error) {
	summary := domain.ChildSummary{StudentID: studentID}

	err := p.pool.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, studentID).
		Scan(&summary.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChildSummary{}, domain.ErrStudentNotFound
		}
		return domain.ChildSummary{}, fmt.Errorf("load student: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT e.class_id, c.name, e.progress
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		WHERE e.student_id = $1
		ORDER BY e.class_id
	`, studentID)
	if err != nil {
		return domain.ChildSummary{}, fmt.Errorf("child classes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var standing domain.ClassStanding
		if err := rows.Scan(&standing.ClassID, &standing.ClassName, &standing.Progress); err != nil {
			return domain.ChildSummary{}, fmt.Errorf("scan standing: %w", err)
		}
		summary.Classes = append(summary.Classes, standing)
	}
	if err := rows.Err(); err != nil {
		return domain.ChildSummary{}, err
	}

	err = p.pool.QueryRow(ctx, `
		SELECT COALESCE(ROUND(AVG(score)), 0)::int FROM quiz_submissions WHERE student_id = $1
	`, studentID).Scan(&summary.AverageScore)
	if err != nil {
		return domain.ChildSummary{}, fmt.Errorf("average score: %w", err)
	}
	err = p.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(stars), 0)::int FROM lesson_completions WHERE student_id = $1
	`, studentID).Scan(&summary.StarsTotal)
	if err != nil {
		return domain.ChildSummary{}, fmt.Errorf("stars total: %w", err)
	}
	return summary, nil
}
