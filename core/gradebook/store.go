package gradebook

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/gradebook/core"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrOwnerMismatch = errors.New("store belongs to another owner")
	// ErrPartialDelete means the grades of a student or test were deleted remotely but the
	// parent was not. Local state is left untouched and flagged stale until Reconcile.
	ErrPartialDelete = errors.New("grades deleted but parent delete failed; refresh required")
)

// user facing messages, one per operation
const (
	msgFetchFailed         = "failed to load data"
	msgAddStudentFailed    = "failed to add student"
	msgUpdateStudentFailed = "failed to update student"
	msgDeleteStudentFailed = "failed to delete student"
	msgAddTestFailed       = "failed to add test"
	msgUpdateTestFailed    = "failed to update test"
	msgDeleteTestFailed    = "failed to delete test"
	msgUpdateGradeFailed   = "failed to save grade"
)

type Option func(*Store)

func WithLogger(logger core.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// Store is the in-memory cache of one owner's students, tests and grades.
// Every mutation is written remotely first and applied locally only once confirmed.
// It is safe for concurrent use.
type Store struct {
	remote  Remote
	ownerID string
	logger  core.Logger
	metrics *Metrics

	mu       sync.RWMutex
	students []Student
	tests    []Test
	grades   []Grade
	errMsg   string
	stale    bool
	loaded   bool

	inflight int32
	pairs    *keyedMutex

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

func NewStore(remote Remote, ownerID string, opts ...Option) (*Store, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(remote, "remote"),
		vala.StringNotEmpty(ownerID, "ownerID"),
	).Check(); err != nil {
		return nil, err
	}

	s := &Store{
		remote:   remote,
		ownerID:  ownerID,
		logger:   discardLogger{},
		students: []Student{},
		tests:    []Test{},
		grades:   []Grade{},
		pairs:    newKeyedMutex(),
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Owner() string { return s.ownerID }

// Stale reports whether a cascading delete left the remote and local states apart.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Loaded reports whether FetchAll succeeded at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) IsLoading() bool { return atomic.LoadInt32(&s.inflight) > 0 }

// Err returns the last user facing error message.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		OwnerID:   s.ownerID,
		Students:  append([]Student{}, s.students...),
		Tests:     append([]Test{}, s.tests...),
		Grades:    append([]Grade{}, s.grades...),
		IsLoading: s.IsLoading(),
		Err:       s.errMsg,
		Stale:     s.stale,
	}
}

// Subscribe registers fn to receive a Snapshot after every change and returns a func removing it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subsMu.Lock()
	if len(s.subs) == 0 {
		s.subsMu.Unlock()
		return
	}
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	state := s.Snapshot()
	for _, fn := range fns {
		fn(state)
	}
}

// track marks op in flight and returns the func closing it.
func (s *Store) track(op string) func(error) {
	start := time.Now()
	atomic.AddInt32(&s.inflight, 1)
	s.notify()
	return func(err error) {
		atomic.AddInt32(&s.inflight, -1)
		s.metrics.observe(op, start, err)
		s.notify()
	}
}

// fail records msg as the last error and logs err.
func (s *Store) fail(msg string, err error) error {
	s.logger.Error("gradebook: "+msg, err, map[string]interface{}{"owner_id": s.ownerID})
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	return err
}

func (s *Store) checkOwner(ownerID string) error {
	if ownerID != s.ownerID {
		return errors.Wrapf(ErrOwnerMismatch, "owner %q", ownerID)
	}
	return nil
}

// FetchAll loads the owner's students, tests and grades concurrently and replaces the
// local collections only when all of them succeed.
func (s *Store) FetchAll(ctx context.Context, ownerID string) (err error) {
	done := s.track("fetch_all")
	defer func() { done(err) }()

	if err = s.checkOwner(ownerID); err != nil {
		return s.fail(msgFetchFailed, err)
	}

	var (
		studentRows []StudentRow
		testRows    []TestRow
		gradeRows   []GradeRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.remote.SelectStudents(gctx, ownerID)
		if err != nil {
			return errors.Wrap(err, "selecting students")
		}
		studentRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.remote.SelectTests(gctx, ownerID)
		if err != nil {
			return errors.Wrap(err, "selecting tests")
		}
		testRows = rows
		return nil
	})
	g.Go(func() error {
		ids, err := s.remote.SelectStudentIDs(gctx, ownerID)
		if err != nil {
			return errors.Wrap(err, "selecting student ids")
		}
		if len(ids) == 0 {
			return nil
		}
		rows, err := s.remote.SelectGrades(gctx, ids)
		if err != nil {
			return errors.Wrap(err, "selecting grades")
		}
		gradeRows = rows
		return nil
	})
	if err = g.Wait(); err != nil {
		return s.fail(msgFetchFailed, err)
	}

	students, tests, grades := studentsFromRows(studentRows), testsFromRows(testRows), gradesFromRows(gradeRows)
	s.mu.Lock()
	s.students, s.tests, s.grades = students, tests, grades
	s.stale = false
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Reconcile refetches everything, clearing a stale state.
func (s *Store) Reconcile(ctx context.Context) error {
	return s.FetchAll(ctx, s.ownerID)
}

func (s *Store) AddStudent(ctx context.Context, ownerID, name string) (_ Student, err error) {
	done := s.track("add_student")
	defer func() { done(err) }()

	name = core.CleanString(name)
	if err = s.checkOwner(ownerID); err != nil {
		return Student{}, s.fail(msgAddStudentFailed, err)
	}
	if err = checkArgs(vala.StringNotEmpty(name, "name")); err != nil {
		return Student{}, s.fail(msgAddStudentFailed, err)
	}

	row, err := s.remote.InsertStudent(ctx, studentToRow(Student{Name: name}, ownerID))
	if err != nil {
		return Student{}, s.fail(msgAddStudentFailed, errors.Wrap(err, "inserting student"))
	}
	student := studentFromRow(row)

	s.mu.Lock()
	s.students = append(s.students, student)
	s.mu.Unlock()
	return student, nil
}

func (s *Store) UpdateStudent(ctx context.Context, id, name string) (_ Student, err error) {
	done := s.track("update_student")
	defer func() { done(err) }()

	name = core.CleanString(name)
	if err = checkArgs(vala.StringNotEmpty(name, "name")); err != nil {
		return Student{}, s.fail(msgUpdateStudentFailed, err)
	}
	if _, ok := s.student(id); !ok {
		return Student{}, s.fail(msgUpdateStudentFailed, errors.Wrapf(ErrNotFound, "student %q", id))
	}

	row, err := s.remote.UpdateStudent(ctx, StudentRow{ID: id, UserID: s.ownerID, Name: name})
	if err != nil {
		return Student{}, s.fail(msgUpdateStudentFailed, errors.Wrap(err, "updating student"))
	}
	updated := studentFromRow(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOfStudent(s.students, id); i >= 0 {
		s.students[i].Name = updated.Name
		return s.students[i], nil
	}
	return updated, nil
}

func (s *Store) DeleteStudent(ctx context.Context, id string) (err error) {
	done := s.track("delete_student")
	defer func() { done(err) }()

	if _, ok := s.student(id); !ok {
		return s.fail(msgDeleteStudentFailed, errors.Wrapf(ErrNotFound, "student %q", id))
	}

	if c, ok := s.remote.(Cascader); ok {
		if err = c.DeleteStudentCascade(ctx, id); err != nil {
			return s.fail(msgDeleteStudentFailed, errors.Wrap(err, "deleting student"))
		}
	} else {
		if err = s.remote.DeleteGradesByStudent(ctx, id); err != nil {
			return s.fail(msgDeleteStudentFailed, errors.Wrap(err, "deleting student grades"))
		}
		if err = s.remote.DeleteStudent(ctx, id); err != nil {
			return s.partialDelete(msgDeleteStudentFailed, "student", id, err)
		}
	}

	s.mu.Lock()
	s.students = without(s.students, func(st Student) bool { return st.ID == id })
	s.grades = without(s.grades, func(g Grade) bool { return g.StudentID == id })
	s.mu.Unlock()
	return nil
}

func (s *Store) AddTest(ctx context.Context, ownerID, name string, maxGrade float64) (_ Test, err error) {
	done := s.track("add_test")
	defer func() { done(err) }()

	name = core.CleanString(name)
	if err = s.checkOwner(ownerID); err != nil {
		return Test{}, s.fail(msgAddTestFailed, err)
	}
	if err = checkArgs(vala.StringNotEmpty(name, "name"), atLeast(maxGrade, 1, "maxGrade")); err != nil {
		return Test{}, s.fail(msgAddTestFailed, err)
	}

	row, err := s.remote.InsertTest(ctx, testToRow(Test{Name: name, MaxGrade: maxGrade}, ownerID))
	if err != nil {
		return Test{}, s.fail(msgAddTestFailed, errors.Wrap(err, "inserting test"))
	}
	test := testFromRow(row)

	s.mu.Lock()
	s.tests = append(s.tests, test)
	s.mu.Unlock()
	return test, nil
}

func (s *Store) UpdateTest(ctx context.Context, id, name string, maxGrade float64) (_ Test, err error) {
	done := s.track("update_test")
	defer func() { done(err) }()

	name = core.CleanString(name)
	if err = checkArgs(vala.StringNotEmpty(name, "name"), atLeast(maxGrade, 1, "maxGrade")); err != nil {
		return Test{}, s.fail(msgUpdateTestFailed, err)
	}
	if _, ok := s.test(id); !ok {
		return Test{}, s.fail(msgUpdateTestFailed, errors.Wrapf(ErrNotFound, "test %q", id))
	}

	row, err := s.remote.UpdateTest(ctx, TestRow{ID: id, UserID: s.ownerID, Name: name, MaxGrade: maxGrade})
	if err != nil {
		return Test{}, s.fail(msgUpdateTestFailed, errors.Wrap(err, "updating test"))
	}
	updated := testFromRow(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOfTest(s.tests, id); i >= 0 {
		s.tests[i].Name = updated.Name
		s.tests[i].MaxGrade = updated.MaxGrade
		return s.tests[i], nil
	}
	return updated, nil
}

func (s *Store) DeleteTest(ctx context.Context, id string) (err error) {
	done := s.track("delete_test")
	defer func() { done(err) }()

	if _, ok := s.test(id); !ok {
		return s.fail(msgDeleteTestFailed, errors.Wrapf(ErrNotFound, "test %q", id))
	}

	if c, ok := s.remote.(Cascader); ok {
		if err = c.DeleteTestCascade(ctx, id); err != nil {
			return s.fail(msgDeleteTestFailed, errors.Wrap(err, "deleting test"))
		}
	} else {
		if err = s.remote.DeleteGradesByTest(ctx, id); err != nil {
			return s.fail(msgDeleteTestFailed, errors.Wrap(err, "deleting test grades"))
		}
		if err = s.remote.DeleteTest(ctx, id); err != nil {
			return s.partialDelete(msgDeleteTestFailed, "test", id, err)
		}
	}

	s.mu.Lock()
	s.tests = without(s.tests, func(t Test) bool { return t.ID == id })
	s.grades = without(s.grades, func(g Grade) bool { return g.TestID == id })
	s.mu.Unlock()
	return nil
}

// partialDelete flags the store stale after the grades of a parent were deleted but the parent was not.
func (s *Store) partialDelete(msg, kind, id string, cause error) error {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
	s.logger.Warn(fmt.Sprintf("gradebook: %s %q lost its grades remotely, local state is stale", kind, id), cause)
	return s.fail(msg, errors.Wrapf(ErrPartialDelete, "deleting %s %q: %v", kind, id, cause))
}

// UpdateGrade records value as the grade of the student on the test, inserting it when the
// pair has no grade yet. Calls for the same pair are serialized.
func (s *Store) UpdateGrade(ctx context.Context, studentID, testID string, value float64) (_ Grade, err error) {
	done := s.track("update_grade")
	defer func() { done(err) }()

	if _, ok := s.student(studentID); !ok {
		return Grade{}, s.fail(msgUpdateGradeFailed, errors.Wrapf(ErrNotFound, "student %q", studentID))
	}
	test, ok := s.test(testID)
	if !ok {
		return Grade{}, s.fail(msgUpdateGradeFailed, errors.Wrapf(ErrNotFound, "test %q", testID))
	}
	if err = checkArgs(between(value, 0, test.MaxGrade, "value")); err != nil {
		return Grade{}, s.fail(msgUpdateGradeFailed, err)
	}

	unlock := s.pairs.Lock(pairKey(studentID, testID))
	defer unlock()

	if existing, ok := s.grade(studentID, testID); ok {
		row, err := s.remote.UpdateGradeValue(ctx, existing.ID, value)
		if err != nil {
			return Grade{}, s.fail(msgUpdateGradeFailed, errors.Wrap(err, "updating grade"))
		}
		updated := gradeFromRow(row)

		s.mu.Lock()
		defer s.mu.Unlock()
		if i := indexOfGrade(s.grades, existing.ID); i >= 0 {
			s.grades[i].Value = updated.Value
			return s.grades[i], nil
		}
		return updated, nil
	}

	row, err := s.remote.InsertGrade(ctx, gradeToRow(Grade{StudentID: studentID, TestID: testID, Value: value}))
	if err != nil {
		return Grade{}, s.fail(msgUpdateGradeFailed, errors.Wrap(err, "inserting grade"))
	}
	grade := gradeFromRow(row)

	s.mu.Lock()
	s.grades = append(s.grades, grade)
	s.mu.Unlock()
	return grade, nil
}

func (s *Store) student(id string) (Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOfStudent(s.students, id); i >= 0 {
		return s.students[i], true
	}
	return Student{}, false
}

func (s *Store) test(id string) (Test, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOfTest(s.tests, id); i >= 0 {
		return s.tests[i], true
	}
	return Test{}, false
}

func (s *Store) grade(studentID, testID string) (Grade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grades {
		if g.StudentID == studentID && g.TestID == testID {
			return g, true
		}
	}
	return Grade{}, false
}

func indexOfStudent(students []Student, id string) int {
	for i := range students {
		if students[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfTest(tests []Test, id string) int {
	for i := range tests {
		if tests[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfGrade(grades []Grade, id string) int {
	for i := range grades {
		if grades[i].ID == id {
			return i
		}
	}
	return -1
}

// without returns a new slice holding the items not matching drop.
func without[T any](items []T, drop func(T) bool) []T {
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if !drop(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

// checkArgs runs the checkers and turns their failures into a core.ValidationError.
func checkArgs(checkers ...vala.Checker) error {
	if err := vala.BeginValidation().Validate(checkers...).Check(); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

func atLeast(v, min float64, name string) vala.Checker {
	return func() (bool, string) {
		return v >= min && !math.IsInf(v, 0), fmt.Sprintf("Parameter %s must be a finite number of at least %v: %v", name, min, v)
	}
}

func between(v, min, max float64, name string) vala.Checker {
	return func() (bool, string) {
		return v >= min && v <= max && !math.IsInf(v, 0), fmt.Sprintf("Parameter %s must be between %v and %v: %v", name, min, max, v)
	}
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}
