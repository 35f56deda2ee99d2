package app

import (
	"context"

	"classroom-service/internal/domain"
)

// ProjectionStore assembles the denormalized read-side views. These are
// thin projections over the record store's data (teacher name joins, score
// averages, star totals); the Postgres implementation runs them as single
// aggregate queries over a pgx pool, the memory implementation derives them
// from the store maps.
type ProjectionStore interface {
	// ClassDashboard is the teacher view: every enrolled student with
	// progress, average quiz score, total stars, and last activity.
	ClassDashboard(ctx context.Context, classID string) (domain.ClassDashboard, error)
	// ChildSummary is the parent view: one student's standing across all
	// enrolled classes.
	ChildSummary(ctx context.Context, studentID string) (domain.ChildSummary, error)
}
