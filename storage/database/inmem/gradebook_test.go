package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core/gradebook"
)

const owner = "owner-1"

func newGradebookRepo(t *testing.T) *gradebookRepository {
	t.Helper()
	db, err := Open()
	require.NoError(t, err)
	clock := time.Date(2024, time.September, 2, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return NewGradebookRepository(db)
}

func TestGradebookRepository_rows(t *testing.T) {
	repo := newGradebookRepo(t)
	ctx := context.Background()

	ada, err := repo.InsertStudent(ctx, gradebook.StudentRow{UserID: owner, Name: "Ada"})
	require.NoError(t, err)
	grace, err := repo.InsertStudent(ctx, gradebook.StudentRow{UserID: owner, Name: "Grace"})
	require.NoError(t, err)
	_, err = repo.InsertStudent(ctx, gradebook.StudentRow{UserID: "owner-2", Name: "Linus"})
	require.NoError(t, err)
	final, err := repo.InsertTest(ctx, gradebook.TestRow{UserID: owner, Name: "Final", MaxGrade: 55})
	require.NoError(t, err)
	grade, err := repo.InsertGrade(ctx, gradebook.GradeRow{StudentID: ada.ID, TestID: final.ID, Value: 42.5})
	require.NoError(t, err)

	assert.NotEmpty(t, ada.ID)
	assert.True(t, grace.CreatedAt.After(ada.CreatedAt))

	students, err := repo.SelectStudents(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []gradebook.StudentRow{ada, grace}, students)

	ids, err := repo.SelectStudentIDs(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{ada.ID, grace.ID}, ids)

	tests, err := repo.SelectTests(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []gradebook.TestRow{final}, tests)

	grades, err := repo.SelectGrades(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []gradebook.GradeRow{grade}, grades)

	empty, err := repo.SelectGrades(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.InsertGrade(ctx, gradebook.GradeRow{StudentID: ada.ID, TestID: final.ID, Value: 1})
	assert.Equal(t, errDuplicateGrade, err)
	_, err = repo.InsertGrade(ctx, gradebook.GradeRow{StudentID: "nope", TestID: final.ID, Value: 1})
	assert.Equal(t, errDanglingGrade, err)
	_, err = repo.InsertTest(ctx, gradebook.TestRow{UserID: owner, Name: "Bad", MaxGrade: 0})
	assert.Equal(t, errInvalidMax, err)
}

func TestGradebookRepository_updates(t *testing.T) {
	repo := newGradebookRepo(t)
	ctx := context.Background()

	ada, err := repo.InsertStudent(ctx, gradebook.StudentRow{UserID: owner, Name: "Ada"})
	require.NoError(t, err)
	quiz, err := repo.InsertTest(ctx, gradebook.TestRow{UserID: owner, Name: "Quiz", MaxGrade: 10})
	require.NoError(t, err)
	grade, err := repo.InsertGrade(ctx, gradebook.GradeRow{StudentID: ada.ID, TestID: quiz.ID, Value: 4})
	require.NoError(t, err)

	renamed, err := repo.UpdateStudent(ctx, gradebook.StudentRow{ID: ada.ID, UserID: owner, Name: "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", renamed.Name)
	assert.Equal(t, ada.CreatedAt, renamed.CreatedAt)

	reshaped, err := repo.UpdateTest(ctx, gradebook.TestRow{ID: quiz.ID, UserID: owner, Name: "Quiz 1", MaxGrade: 20})
	require.NoError(t, err)
	assert.Equal(t, 20.0, reshaped.MaxGrade)

	regraded, err := repo.UpdateGradeValue(ctx, grade.ID, 9.5)
	require.NoError(t, err)
	assert.Equal(t, 9.5, regraded.Value)
	assert.Equal(t, grade.ID, regraded.ID)

	t.Run("not found", func(t *testing.T) {
		_, err := repo.UpdateStudent(ctx, gradebook.StudentRow{ID: ada.ID, UserID: "owner-2", Name: "x"})
		assert.Equal(t, gradebook.ErrNotFound, err)
		_, err = repo.UpdateTest(ctx, gradebook.TestRow{ID: "nope", UserID: owner, Name: "x", MaxGrade: 1})
		assert.Equal(t, gradebook.ErrNotFound, err)
		_, err = repo.UpdateGradeValue(ctx, "nope", 1)
		assert.Equal(t, gradebook.ErrNotFound, err)
	})
}

func TestGradebookRepository_deletes(t *testing.T) {
	repo := newGradebookRepo(t)
	ctx := context.Background()

	ada, err := repo.InsertStudent(ctx, gradebook.StudentRow{UserID: owner, Name: "Ada"})
	require.NoError(t, err)
	quiz, err := repo.InsertTest(ctx, gradebook.TestRow{UserID: owner, Name: "Quiz", MaxGrade: 10})
	require.NoError(t, err)
	_, err = repo.InsertGrade(ctx, gradebook.GradeRow{StudentID: ada.ID, TestID: quiz.ID, Value: 4})
	require.NoError(t, err)

	err = repo.DeleteStudent(ctx, ada.ID)
	assert.Equal(t, errGraded, errors.Cause(err), "graded students are kept")
	err = repo.DeleteTest(ctx, quiz.ID)
	assert.Equal(t, errGraded, errors.Cause(err), "graded tests are kept")

	require.NoError(t, repo.DeleteGradesByStudent(ctx, ada.ID))
	require.NoError(t, repo.DeleteStudent(ctx, ada.ID))
	require.NoError(t, repo.DeleteGradesByTest(ctx, quiz.ID))
	require.NoError(t, repo.DeleteTest(ctx, quiz.ID))

	assert.Equal(t, gradebook.ErrNotFound, repo.DeleteStudent(ctx, ada.ID))
	assert.Equal(t, gradebook.ErrNotFound, repo.DeleteTest(ctx, quiz.ID))

	students, err := repo.SelectStudents(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestGradebookRepository_withStore(t *testing.T) {
	repo := newGradebookRepo(t)
	ctx := context.Background()

	store, err := gradebook.NewStore(repo, owner)
	require.NoError(t, err)
	require.NoError(t, store.FetchAll(ctx, owner))

	ada, err := store.AddStudent(ctx, owner, "Ada")
	require.NoError(t, err)
	quiz, err := store.AddTest(ctx, owner, "Quiz", 10)
	require.NoError(t, err)
	_, err = store.UpdateGrade(ctx, ada.ID, quiz.ID, 7)
	require.NoError(t, err)
	_, err = store.UpdateGrade(ctx, ada.ID, quiz.ID, 8)
	require.NoError(t, err)

	reloaded, err := gradebook.NewStore(repo, owner)
	require.NoError(t, err)
	require.NoError(t, reloaded.FetchAll(ctx, owner))
	rows := reloaded.FormattedStudents()
	require.Len(t, rows, 1)
	assert.Equal(t, 8.0, rows[0].Total)
	assert.Equal(t, 10.0, rows[0].MaxPossible)

	require.NoError(t, store.DeleteTest(ctx, quiz.ID))
	require.NoError(t, store.DeleteStudent(ctx, ada.ID))
	assert.False(t, store.Stale())

	grades, err := repo.SelectGrades(ctx, []string{ada.ID})
	require.NoError(t, err)
	assert.Empty(t, grades)
}
