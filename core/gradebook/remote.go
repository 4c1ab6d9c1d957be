package gradebook

import (
	"context"
	"time"
)

// Rows as stored remotely. Foreign keys and the max grade keep the table column names.
type (
	StudentRow struct {
		ID        string    `db:"id" json:"id"`
		UserID    string    `db:"user_id" json:"user_id"`
		Name      string    `db:"name" json:"name"`
		CreatedAt time.Time `db:"created_at" json:"created_at"`
	}

	TestRow struct {
		ID        string    `db:"id" json:"id"`
		UserID    string    `db:"user_id" json:"user_id"`
		Name      string    `db:"name" json:"name"`
		MaxGrade  float64   `db:"maxgrade" json:"maxgrade"`
		CreatedAt time.Time `db:"created_at" json:"created_at"`
	}

	GradeRow struct {
		ID        string    `db:"id" json:"id"`
		StudentID string    `db:"studentid" json:"studentid"`
		TestID    string    `db:"testid" json:"testid"`
		Value     float64   `db:"value" json:"value"`
		CreatedAt time.Time `db:"created_at" json:"created_at"`
	}
)

// Remote is the relational store behind a Store, over the `students`, `tests` and `grades` tables.
// Selects are ordered by creation time. Inserts assign ID and CreatedAt.
// Updates and deletes by primary key return ErrNotFound when no row matches.
type Remote interface {
	SelectStudents(ctx context.Context, ownerID string) ([]StudentRow, error)
	SelectStudentIDs(ctx context.Context, ownerID string) ([]string, error)
	SelectTests(ctx context.Context, ownerID string) ([]TestRow, error)
	SelectGrades(ctx context.Context, studentIDs []string) ([]GradeRow, error)

	InsertStudent(ctx context.Context, row StudentRow) (StudentRow, error)
	UpdateStudent(ctx context.Context, row StudentRow) (StudentRow, error)
	DeleteStudent(ctx context.Context, id string) error

	InsertTest(ctx context.Context, row TestRow) (TestRow, error)
	UpdateTest(ctx context.Context, row TestRow) (TestRow, error)
	DeleteTest(ctx context.Context, id string) error

	InsertGrade(ctx context.Context, row GradeRow) (GradeRow, error)
	UpdateGradeValue(ctx context.Context, id string, value float64) (GradeRow, error)
	DeleteGradesByStudent(ctx context.Context, studentID string) error
	DeleteGradesByTest(ctx context.Context, testID string) error
}

// Cascader is implemented by remotes able to delete a parent and its grades in one transaction.
type Cascader interface {
	DeleteStudentCascade(ctx context.Context, id string) error
	DeleteTestCascade(ctx context.Context, id string) error
}
