package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

const (
	studentColumns = "id, user_id, name, created_at"
	testColumns    = "id, user_id, name, maxgrade, created_at"
	gradeColumns   = "id, studentid, testid, value, created_at"
)

type gradebookRepository struct {
	db  core.DB
	now func() time.Time
}

var (
	_ gradebook.Remote   = (*gradebookRepository)(nil) // interface compliance check
	_ gradebook.Cascader = (*gradebookRepository)(nil)
)

func NewGradebookRepository(db core.DB) *gradebookRepository {
	return &gradebookRepository{db: db, now: time.Now}
}

// trapNoRowsErr maps "no rows" err to gradebook.ErrNotFound
func (repo gradebookRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return gradebook.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo gradebookRepository) newID() (string, time.Time) {
	return uuid.New().String(), dbTime(repo.now())
}

func (repo gradebookRepository) SelectStudents(ctx context.Context, ownerID string) ([]gradebook.StudentRow, error) {
	rows := []gradebook.StudentRow{}
	q := repo.db.Rebind("SELECT " + studentColumns + " FROM students WHERE user_id = ? ORDER BY created_at, id")
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
	}
	return rows, nil
}

func (repo gradebookRepository) SelectStudentIDs(ctx context.Context, ownerID string) ([]string, error) {
	ids := []string{}
	q := repo.db.Rebind("SELECT id FROM students WHERE user_id = ? ORDER BY created_at, id")
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "selecting student ids")
	}
	return ids, nil
}

func (repo gradebookRepository) SelectTests(ctx context.Context, ownerID string) ([]gradebook.TestRow, error) {
	rows := []gradebook.TestRow{}
	q := repo.db.Rebind("SELECT " + testColumns + " FROM tests WHERE user_id = ? ORDER BY created_at, id")
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "selecting tests")
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
	}
	return rows, nil
}

func (repo gradebookRepository) SelectGrades(ctx context.Context, studentIDs []string) ([]gradebook.GradeRow, error) {
	rows := []gradebook.GradeRow{}
	if len(studentIDs) == 0 {
		return rows, nil
	}
	q, args, err := sqlx.In("SELECT "+gradeColumns+" FROM grades WHERE studentid IN (?) ORDER BY created_at, id", studentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building grades query")
	}
	if err = sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting grades")
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
	}
	return rows, nil
}

func (repo gradebookRepository) InsertStudent(ctx context.Context, row gradebook.StudentRow) (gradebook.StudentRow, error) {
	row.ID, row.CreatedAt = repo.newID()
	q := "INSERT INTO students (" + studentColumns + ") VALUES (:id, :user_id, :name, :created_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return gradebook.StudentRow{}, errors.Wrap(err, "inserting student")
	}
	return row, nil
}

func (repo gradebookRepository) UpdateStudent(ctx context.Context, row gradebook.StudentRow) (gradebook.StudentRow, error) {
	q := repo.db.Rebind("UPDATE students SET name = ? WHERE id = ? AND user_id = ?")
	if err := repo.execOne(ctx, repo.db, q, row.Name, row.ID, row.UserID); err != nil {
		return gradebook.StudentRow{}, repo.trapNoRowsErr(err, "updating student")
	}

	var updated gradebook.StudentRow
	q = repo.db.Rebind("SELECT " + studentColumns + " FROM students WHERE id = ?")
	if err := sqlx.GetContext(ctx, repo.db, &updated, q, row.ID); err != nil {
		return gradebook.StudentRow{}, repo.trapNoRowsErr(err, "selecting student")
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return updated, nil
}

func (repo gradebookRepository) DeleteStudent(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, repo.db, "students", id)
}

func (repo gradebookRepository) InsertTest(ctx context.Context, row gradebook.TestRow) (gradebook.TestRow, error) {
	row.ID, row.CreatedAt = repo.newID()
	q := "INSERT INTO tests (" + testColumns + ") VALUES (:id, :user_id, :name, :maxgrade, :created_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return gradebook.TestRow{}, errors.Wrap(err, "inserting test")
	}
	return row, nil
}

func (repo gradebookRepository) UpdateTest(ctx context.Context, row gradebook.TestRow) (gradebook.TestRow, error) {
	q := repo.db.Rebind("UPDATE tests SET name = ?, maxgrade = ? WHERE id = ? AND user_id = ?")
	if err := repo.execOne(ctx, repo.db, q, row.Name, row.MaxGrade, row.ID, row.UserID); err != nil {
		return gradebook.TestRow{}, repo.trapNoRowsErr(err, "updating test")
	}

	var updated gradebook.TestRow
	q = repo.db.Rebind("SELECT " + testColumns + " FROM tests WHERE id = ?")
	if err := sqlx.GetContext(ctx, repo.db, &updated, q, row.ID); err != nil {
		return gradebook.TestRow{}, repo.trapNoRowsErr(err, "selecting test")
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return updated, nil
}

func (repo gradebookRepository) DeleteTest(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, repo.db, "tests", id)
}

func (repo gradebookRepository) InsertGrade(ctx context.Context, row gradebook.GradeRow) (gradebook.GradeRow, error) {
	row.ID, row.CreatedAt = repo.newID()
	q := "INSERT INTO grades (" + gradeColumns + ") VALUES (:id, :studentid, :testid, :value, :created_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return gradebook.GradeRow{}, errors.Wrap(err, "inserting grade")
	}
	return row, nil
}

func (repo gradebookRepository) UpdateGradeValue(ctx context.Context, id string, value float64) (gradebook.GradeRow, error) {
	q := repo.db.Rebind("UPDATE grades SET value = ? WHERE id = ?")
	if err := repo.execOne(ctx, repo.db, q, value, id); err != nil {
		return gradebook.GradeRow{}, repo.trapNoRowsErr(err, "updating grade")
	}

	var updated gradebook.GradeRow
	q = repo.db.Rebind("SELECT " + gradeColumns + " FROM grades WHERE id = ?")
	if err := sqlx.GetContext(ctx, repo.db, &updated, q, id); err != nil {
		return gradebook.GradeRow{}, repo.trapNoRowsErr(err, "selecting grade")
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return updated, nil
}

func (repo gradebookRepository) DeleteGradesByStudent(ctx context.Context, studentID string) error {
	return repo.deleteGrades(ctx, repo.db, "studentid", studentID)
}

func (repo gradebookRepository) DeleteGradesByTest(ctx context.Context, testID string) error {
	return repo.deleteGrades(ctx, repo.db, "testid", testID)
}

// DeleteStudentCascade deletes the grades of the student and the student in one transaction.
func (repo gradebookRepository) DeleteStudentCascade(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(tx core.DBExecutor) error {
		if err := repo.deleteGrades(ctx, tx, "studentid", id); err != nil {
			return err
		}
		return repo.deleteByID(ctx, tx, "students", id)
	})
}

// DeleteTestCascade deletes the grades of the test and the test in one transaction.
func (repo gradebookRepository) DeleteTestCascade(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(tx core.DBExecutor) error {
		if err := repo.deleteGrades(ctx, tx, "testid", id); err != nil {
			return err
		}
		return repo.deleteByID(ctx, tx, "tests", id)
	})
}

func (repo gradebookRepository) inTx(ctx context.Context, fn func(tx core.DBExecutor) error) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

// execOne runs q and returns sql.ErrNoRows when it affected no row.
func (repo gradebookRepository) execOne(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) error {
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// table and column are never user input.
func (repo gradebookRepository) deleteByID(ctx context.Context, exec core.DBExecutor, table, id string) error {
	err := repo.execOne(ctx, exec, exec.Rebind("DELETE FROM "+table+" WHERE id = ?"), id)
	if err != nil {
		return repo.trapNoRowsErr(err, "deleting from "+table)
	}
	return nil
}

func (repo gradebookRepository) deleteGrades(ctx context.Context, exec core.DBExecutor, column, id string) error {
	if _, err := exec.ExecContext(ctx, exec.Rebind("DELETE FROM grades WHERE "+column+" = ?"), id); err != nil {
		return errors.Wrap(err, "deleting grades")
	}
	return nil
}
