package gradebook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteStudents(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote)
	f := seedGraded(t, s)
	c := mustAddStudent(t, s, "C")

	res, err := DeleteStudents(context.Background(), s, []string{f.a.ID, "nope", f.a.ID, c.ID})
	require.NoError(t, err)

	assert.Equal(t, []string{f.a.ID, c.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "nope", res.Failed[0].ID)
	assert.Contains(t, res.Failed[0].Error, ErrNotFound.Error())

	state := s.Snapshot()
	assert.Equal(t, []Student{f.b}, state.Students)
	assert.Len(t, state.Grades, 2)
}

func TestDeleteTests(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote)
	f := seedGraded(t, s)

	remote.failOn("DeleteTest", errRemote)
	res, err := DeleteTests(context.Background(), s, []string{f.t1.ID})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Empty(t, res.Succeeded)
	assert.True(t, s.Stale())

	remote.heal("DeleteTest")
	res, err = DeleteTests(context.Background(), s, []string{f.t1.ID, f.t2.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{f.t1.ID, f.t2.ID}, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Empty(t, s.Snapshot().Tests)
	assert.Empty(t, s.Snapshot().Grades)
}

func TestDeleteStudents_canceled(t *testing.T) {
	s := newTestStore(t, newFakeRemote())
	st := mustAddStudent(t, s, "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := DeleteStudents(ctx, s, []string{st.ID})
	assert.Equal(t, context.Canceled, err)
	assert.Empty(t, res.Succeeded)
	assert.Len(t, s.Snapshot().Students, 1)
}

func TestStore_GradeSheet(t *testing.T) {
	s := newTestStore(t, newFakeRemote())
	a := mustAddStudent(t, s, "A")
	b := mustAddStudent(t, s, "B")
	quiz := mustAddTest(t, s, "Quiz", 10)
	mustGrade(t, s, b.ID, quiz.ID, 4)

	test, rows, err := s.GradeSheet(quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz, test)
	require.Len(t, rows, 2)
	assert.Equal(t, SheetRow{StudentID: a.ID, Name: "A"}, rows[0])
	require.NotNil(t, rows[1].Value)
	assert.Equal(t, 4.0, *rows[1].Value)

	_, _, err = s.GradeSheet("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EnterGrades(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote)
	a := mustAddStudent(t, s, "A")
	b := mustAddStudent(t, s, "B")
	quiz := mustAddTest(t, s, "Quiz", 10)
	mustGrade(t, s, a.ID, quiz.ID, 2)

	res, err := s.EnterGrades(context.Background(), quiz.ID, []GradeEntry{
		{StudentID: a.ID, Value: gradeValue(8)},
		{StudentID: "nope", Value: gradeValue(5)},
		{StudentID: b.ID, Value: gradeValue(11)},
		{StudentID: b.ID, Value: gradeValue(9.5)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "nope", res.Failed[0].ID)
	assert.Equal(t, b.ID, res.Failed[1].ID)
	assert.Empty(t, res.Skipped)

	_, rows, err := s.GradeSheet(quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, *rows[0].Value)
	assert.Equal(t, 9.5, *rows[1].Value)
	assert.Len(t, remote.gradeRows(), 2)

	_, err = s.EnterGrades(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EnterGrades_blankValues(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote)
	a := mustAddStudent(t, s, "A")
	b := mustAddStudent(t, s, "B")
	quiz := mustAddTest(t, s, "Quiz", 10)
	mustGrade(t, s, a.ID, quiz.ID, 6)

	res, err := s.EnterGrades(context.Background(), quiz.ID, []GradeEntry{
		{StudentID: a.ID},
		{StudentID: b.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{a.ID, b.ID}, res.Skipped)

	_, rows, err := s.GradeSheet(quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, rows[0].Value)
	assert.Equal(t, 6.0, *rows[0].Value, "blank entry keeps the existing grade")
	assert.Nil(t, rows[1].Value, "blank entry is not a zero grade")
	assert.Len(t, remote.gradeRows(), 1)

	formatted := s.FormattedStudents()
	assert.Nil(t, formatted[1].Grades[quiz.ID])
	assert.Zero(t, formatted[1].MaxPossible)
}

func gradeValue(v float64) *float64 {
	return &v
}
