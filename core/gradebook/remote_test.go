package gradebook

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeRemote is an in-memory Remote with per-method fault injection.
type fakeRemote struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	students []StudentRow
	tests    []TestRow
	grades   []GradeRow
	faults   map[string]error
	calls    map[string]int
	delay    time.Duration // applied to InsertGrade
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		clock:  time.Date(2024, time.September, 2, 8, 0, 0, 0, time.UTC),
		faults: make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeRemote) failOn(method string, err error) {
	f.mu.Lock()
	f.faults[method] = err
	f.mu.Unlock()
}

func (f *fakeRemote) heal(method string) {
	f.mu.Lock()
	delete(f.faults, method)
	f.mu.Unlock()
}

func (f *fakeRemote) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) gradeRows() []GradeRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GradeRow{}, f.grades...)
}

// enter must be called with f.mu held.
func (f *fakeRemote) enter(method string) error {
	f.calls[method]++
	return f.faults[method]
}

func (f *fakeRemote) nextID(prefix string) (string, time.Time) {
	f.seq++
	f.clock = f.clock.Add(time.Second)
	return fmt.Sprintf("%s-%d", prefix, f.seq), f.clock
}

func (f *fakeRemote) SelectStudents(_ context.Context, ownerID string) ([]StudentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SelectStudents"); err != nil {
		return nil, err
	}
	var rows []StudentRow
	for _, r := range f.students {
		if r.UserID == ownerID {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (f *fakeRemote) SelectStudentIDs(_ context.Context, ownerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SelectStudentIDs"); err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range f.students {
		if r.UserID == ownerID {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (f *fakeRemote) SelectTests(_ context.Context, ownerID string) ([]TestRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SelectTests"); err != nil {
		return nil, err
	}
	var rows []TestRow
	for _, r := range f.tests {
		if r.UserID == ownerID {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (f *fakeRemote) SelectGrades(_ context.Context, studentIDs []string) ([]GradeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SelectGrades"); err != nil {
		return nil, err
	}
	in := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		in[id] = true
	}
	var rows []GradeRow
	for _, r := range f.grades {
		if in[r.StudentID] {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (f *fakeRemote) InsertStudent(_ context.Context, row StudentRow) (StudentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("InsertStudent"); err != nil {
		return StudentRow{}, err
	}
	row.ID, row.CreatedAt = f.nextID("student")
	f.students = append(f.students, row)
	return row, nil
}

func (f *fakeRemote) UpdateStudent(_ context.Context, row StudentRow) (StudentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateStudent"); err != nil {
		return StudentRow{}, err
	}
	for i := range f.students {
		if f.students[i].ID == row.ID {
			f.students[i].Name = row.Name
			return f.students[i], nil
		}
	}
	return StudentRow{}, ErrNotFound
}

func (f *fakeRemote) DeleteStudent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteStudent"); err != nil {
		return err
	}
	return f.deleteStudentLocked(id)
}

func (f *fakeRemote) deleteStudentLocked(id string) error {
	for i := range f.students {
		if f.students[i].ID == id {
			f.students = append(f.students[:i:i], f.students[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRemote) InsertTest(_ context.Context, row TestRow) (TestRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("InsertTest"); err != nil {
		return TestRow{}, err
	}
	row.ID, row.CreatedAt = f.nextID("test")
	f.tests = append(f.tests, row)
	return row, nil
}

func (f *fakeRemote) UpdateTest(_ context.Context, row TestRow) (TestRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateTest"); err != nil {
		return TestRow{}, err
	}
	for i := range f.tests {
		if f.tests[i].ID == row.ID {
			f.tests[i].Name = row.Name
			f.tests[i].MaxGrade = row.MaxGrade
			return f.tests[i], nil
		}
	}
	return TestRow{}, ErrNotFound
}

func (f *fakeRemote) DeleteTest(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteTest"); err != nil {
		return err
	}
	return f.deleteTestLocked(id)
}

func (f *fakeRemote) deleteTestLocked(id string) error {
	for i := range f.tests {
		if f.tests[i].ID == id {
			f.tests = append(f.tests[:i:i], f.tests[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRemote) InsertGrade(_ context.Context, row GradeRow) (GradeRow, error) {
	f.mu.Lock()
	err := f.enter("InsertGrade")
	delay := f.delay
	f.mu.Unlock()
	if err != nil {
		return GradeRow{}, err
	}
	time.Sleep(delay) // widens the lookup-then-insert window

	f.mu.Lock()
	defer f.mu.Unlock()
	row.ID, row.CreatedAt = f.nextID("grade")
	f.grades = append(f.grades, row)
	return row, nil
}

func (f *fakeRemote) UpdateGradeValue(_ context.Context, id string, value float64) (GradeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateGradeValue"); err != nil {
		return GradeRow{}, err
	}
	for i := range f.grades {
		if f.grades[i].ID == id {
			f.grades[i].Value = value
			return f.grades[i], nil
		}
	}
	return GradeRow{}, ErrNotFound
}

func (f *fakeRemote) DeleteGradesByStudent(_ context.Context, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteGradesByStudent"); err != nil {
		return err
	}
	f.grades = without(f.grades, func(g GradeRow) bool { return g.StudentID == studentID })
	return nil
}

func (f *fakeRemote) DeleteGradesByTest(_ context.Context, testID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteGradesByTest"); err != nil {
		return err
	}
	f.grades = without(f.grades, func(g GradeRow) bool { return g.TestID == testID })
	return nil
}

// cascadeRemote adds transactional cascades to fakeRemote.
type cascadeRemote struct {
	*fakeRemote
}

var _ Cascader = cascadeRemote{}

func (c cascadeRemote) DeleteStudentCascade(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteStudentCascade"); err != nil {
		return err
	}
	grades := without(c.grades, func(g GradeRow) bool { return g.StudentID == id })
	if err := c.deleteStudentLocked(id); err != nil {
		return err // rolled back: grades untouched
	}
	c.grades = grades
	return nil
}

func (c cascadeRemote) DeleteTestCascade(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteTestCascade"); err != nil {
		return err
	}
	grades := without(c.grades, func(g GradeRow) bool { return g.TestID == id })
	if err := c.deleteTestLocked(id); err != nil {
		return err
	}
	c.grades = grades
	return nil
}
