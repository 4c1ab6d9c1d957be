package gradebook

import (
	"context"

	"github.com/pkg/errors"
)

// GradeSheet lists every student with their current grade on the test.
func (s *Store) GradeSheet(testID string) (Test, []SheetRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOfTest(s.tests, testID)
	if i < 0 {
		return Test{}, nil, errors.Wrapf(ErrNotFound, "test %q", testID)
	}

	values := make(map[string]float64)
	for _, g := range s.grades {
		if g.TestID == testID {
			values[g.StudentID] = g.Value
		}
	}
	rows := make([]SheetRow, 0, len(s.students))
	for _, st := range s.students {
		row := SheetRow{StudentID: st.ID, Name: st.Name}
		if v, ok := values[st.ID]; ok {
			v := v
			row.Value = &v
		}
		rows = append(rows, row)
	}
	return s.tests[i], rows, nil
}

// EnterGrades saves the entries of one test in order. A failing entry does not stop the others.
// Entries without a value are reported as skipped and never reach the remote.
func (s *Store) EnterGrades(ctx context.Context, testID string, entries []GradeEntry) (BatchResult, error) {
	if _, ok := s.test(testID); !ok {
		return BatchResult{}, errors.Wrapf(ErrNotFound, "test %q", testID)
	}

	res := newBatchResult()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.Value == nil {
			res.Skipped = append(res.Skipped, e.StudentID)
			continue
		}
		_, err := s.UpdateGrade(ctx, e.StudentID, testID, *e.Value)
		res.add(e.StudentID, err)
	}
	return res, nil
}
