package inmemdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
)

var (
	errDuplicateGrade = errors.New("grade already exists for this student and test")
	errDanglingGrade  = errors.New("grade references an unknown student or test")
	errGraded         = errors.New("row is still referenced by grades")
	errInvalidMax     = errors.New("max grade must be positive")
)

// gradebookRepository mirrors the constraints of the SQL schema.
// It runs every statement on its own, without transactions.
type gradebookRepository struct {
	db     *gradebookTables
	parent *DB
}

var _ gradebook.Remote = (*gradebookRepository)(nil) // interface compliance check

func NewGradebookRepository(db *DB) *gradebookRepository {
	return &gradebookRepository{db: db.gradebook, parent: db}
}

func (repo *gradebookRepository) SelectStudents(_ context.Context, ownerID string) ([]gradebook.StudentRow, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := []gradebook.StudentRow{}
	for _, row := range repo.db.students {
		if row.UserID == ownerID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (repo *gradebookRepository) SelectStudentIDs(_ context.Context, ownerID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := []string{}
	for _, row := range repo.db.students {
		if row.UserID == ownerID {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (repo *gradebookRepository) SelectTests(_ context.Context, ownerID string) ([]gradebook.TestRow, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := []gradebook.TestRow{}
	for _, row := range repo.db.tests {
		if row.UserID == ownerID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (repo *gradebookRepository) SelectGrades(_ context.Context, studentIDs []string) ([]gradebook.GradeRow, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	rows := []gradebook.GradeRow{}
	for _, row := range repo.db.grades {
		if wanted[row.StudentID] {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (repo *gradebookRepository) InsertStudent(_ context.Context, row gradebook.StudentRow) (gradebook.StudentRow, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	row.ID, row.CreatedAt = uuid.New().String(), repo.parent.timestamp()
	repo.db.students = append(repo.db.students, row)
	return row, nil
}

func (repo *gradebookRepository) UpdateStudent(_ context.Context, row gradebook.StudentRow) (gradebook.StudentRow, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.students {
		st := &repo.db.students[i]
		if st.ID == row.ID && st.UserID == row.UserID {
			st.Name = row.Name
			return *st, nil
		}
	}
	return gradebook.StudentRow{}, gradebook.ErrNotFound
}

func (repo *gradebookRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, g := range repo.db.grades {
		if g.StudentID == id {
			return errors.Wrapf(errGraded, "student %q", id)
		}
	}
	for i, st := range repo.db.students {
		if st.ID == id {
			repo.db.students = append(repo.db.students[:i:i], repo.db.students[i+1:]...)
			return nil
		}
	}
	return gradebook.ErrNotFound
}

func (repo *gradebookRepository) InsertTest(_ context.Context, row gradebook.TestRow) (gradebook.TestRow, error) {
	if row.MaxGrade <= 0 {
		return gradebook.TestRow{}, errInvalidMax
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	row.ID, row.CreatedAt = uuid.New().String(), repo.parent.timestamp()
	repo.db.tests = append(repo.db.tests, row)
	return row, nil
}

func (repo *gradebookRepository) UpdateTest(_ context.Context, row gradebook.TestRow) (gradebook.TestRow, error) {
	if row.MaxGrade <= 0 {
		return gradebook.TestRow{}, errInvalidMax
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.tests {
		t := &repo.db.tests[i]
		if t.ID == row.ID && t.UserID == row.UserID {
			t.Name = row.Name
			t.MaxGrade = row.MaxGrade
			return *t, nil
		}
	}
	return gradebook.TestRow{}, gradebook.ErrNotFound
}

func (repo *gradebookRepository) DeleteTest(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, g := range repo.db.grades {
		if g.TestID == id {
			return errors.Wrapf(errGraded, "test %q", id)
		}
	}
	for i, t := range repo.db.tests {
		if t.ID == id {
			repo.db.tests = append(repo.db.tests[:i:i], repo.db.tests[i+1:]...)
			return nil
		}
	}
	return gradebook.ErrNotFound
}

func (repo *gradebookRepository) InsertGrade(_ context.Context, row gradebook.GradeRow) (gradebook.GradeRow, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.hasStudent(row.StudentID) || !repo.hasTest(row.TestID) {
		return gradebook.GradeRow{}, errDanglingGrade
	}
	for _, g := range repo.db.grades {
		if g.StudentID == row.StudentID && g.TestID == row.TestID {
			return gradebook.GradeRow{}, errDuplicateGrade
		}
	}

	row.ID, row.CreatedAt = uuid.New().String(), repo.parent.timestamp()
	repo.db.grades = append(repo.db.grades, row)
	return row, nil
}

func (repo *gradebookRepository) UpdateGradeValue(_ context.Context, id string, value float64) (gradebook.GradeRow, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.grades {
		g := &repo.db.grades[i]
		if g.ID == id {
			g.Value = value
			return *g, nil
		}
	}
	return gradebook.GradeRow{}, gradebook.ErrNotFound
}

func (repo *gradebookRepository) DeleteGradesByStudent(_ context.Context, studentID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.grades = keepGrades(repo.db.grades, func(g gradebook.GradeRow) bool { return g.StudentID != studentID })
	return nil
}

func (repo *gradebookRepository) DeleteGradesByTest(_ context.Context, testID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.grades = keepGrades(repo.db.grades, func(g gradebook.GradeRow) bool { return g.TestID != testID })
	return nil
}

// hasStudent must be called with the lock held.
func (repo *gradebookRepository) hasStudent(id string) bool {
	for _, st := range repo.db.students {
		if st.ID == id {
			return true
		}
	}
	return false
}

// hasTest must be called with the lock held.
func (repo *gradebookRepository) hasTest(id string) bool {
	for _, t := range repo.db.tests {
		if t.ID == id {
			return true
		}
	}
	return false
}

func keepGrades(grades []gradebook.GradeRow, keep func(gradebook.GradeRow) bool) []gradebook.GradeRow {
	kept := make([]gradebook.GradeRow, 0, len(grades))
	for _, g := range grades {
		if keep(g) {
			kept = append(kept, g)
		}
	}
	return kept
}
