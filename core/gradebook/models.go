package gradebook

import "time"

type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Test struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MaxGrade  float64   `json:"max_grade"`
	CreatedAt time.Time `json:"created_at"`
}

// Grade is the score of one Student on one Test. There is at most one Grade per (StudentID, TestID).
type Grade struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	TestID    string    `json:"test_id"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// FormattedStudent is the per-student projection used for display and export.
// Grades maps every Test ID to the recorded value, nil when ungraded.
// MaxPossible only counts the tests the student has a grade for.
type FormattedStudent struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Grades      map[string]*float64 `json:"grades"`
	Total       float64             `json:"total"`
	MaxPossible float64             `json:"max_possible"`
}

type StudentPerformance struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Average float64 `json:"average"`
}

type Performance struct {
	Students     []StudentPerformance `json:"students"`
	ClassAverage float64              `json:"class_average"`
}

// State is a read-only copy of a Store.
type State struct {
	OwnerID   string    `json:"owner_id"`
	Students  []Student `json:"students"`
	Tests     []Test    `json:"tests"`
	Grades    []Grade   `json:"grades"`
	IsLoading bool      `json:"is_loading"`
	Err       string    `json:"error,omitempty"`
	Stale     bool      `json:"stale"`
}

// SheetRow is one line of the quick grade entry sheet of a Test.
type SheetRow struct {
	StudentID string   `json:"student_id"`
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
}

// GradeEntry is one cell of the quick grade entry sheet. A nil Value leaves the grade untouched.
type GradeEntry struct {
	StudentID string   `json:"student_id" validate:"required"`
	Value     *float64 `json:"value" validate:"omitempty,gte=0"`
}

// BatchResult reports the outcome of a sequence of independent operations.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
	Skipped   []string       `json:"skipped,omitempty"`
}

type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func newBatchResult() BatchResult {
	return BatchResult{Succeeded: []string{}, Failed: []BatchFailure{}}
}

func (r *BatchResult) add(id string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, BatchFailure{ID: id, Error: err.Error()})
		return
	}
	r.Succeeded = append(r.Succeeded, id)
}
