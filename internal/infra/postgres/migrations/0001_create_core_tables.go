package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0001_create_core_tables.sql
var createCoreTablesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createCoreTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS lesson_completions;
				DROP TABLE IF EXISTS quiz_submissions;
				DROP SEQUENCE IF EXISTS submission_number_seq;
				DROP TABLE IF EXISTS enrollments;
				DROP TABLE IF EXISTS lesson_assignments;
				DROP TABLE IF EXISTS quiz_assignments;
				DROP TABLE IF EXISTS lessons;
				DROP TABLE IF EXISTS quiz_questions;
				DROP TABLE IF EXISTS quizzes;
				DROP TABLE IF EXISTS classes;
				DROP TABLE IF EXISTS users;
			`)
			return err
		},
	)
}
