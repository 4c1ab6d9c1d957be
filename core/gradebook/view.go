package gradebook

import (
	"math"
	"sort"
)

// FormattedStudents projects every student against every test, in collection order.
func (s *Store) FormattedStudents() []FormattedStudent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return formatStudents(s.students, s.tests, s.grades)
}

func formatStudents(students []Student, tests []Test, grades []Grade) []FormattedStudent {
	type pair struct{ studentID, testID string }
	values := make(map[pair]float64, len(grades))
	for _, g := range grades {
		values[pair{g.StudentID, g.TestID}] = g.Value
	}

	formatted := make([]FormattedStudent, 0, len(students))
	for _, st := range students {
		fs := FormattedStudent{
			ID:     st.ID,
			Name:   st.Name,
			Grades: make(map[string]*float64, len(tests)),
		}
		for _, t := range tests {
			v, ok := values[pair{st.ID, t.ID}]
			if !ok {
				fs.Grades[t.ID] = nil
				continue
			}
			fs.Grades[t.ID] = &v
			fs.Total += v
			fs.MaxPossible += t.MaxGrade
		}
		formatted = append(formatted, fs)
	}
	return formatted
}

// TotalMaxGrade sums the max grade of every test, graded or not.
func (s *Store) TotalMaxGrade() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, t := range s.tests {
		total += t.MaxGrade
	}
	return total
}

// Performance ranks students by their average recorded grade, highest first.
// Students without grades average 0. Averages are rounded to 1 decimal.
func (s *Store) Performance() Performance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		sum   float64
		count int
	}
	accs := make(map[string]*acc, len(s.students))
	for _, g := range s.grades {
		a, ok := accs[g.StudentID]
		if !ok {
			a = new(acc)
			accs[g.StudentID] = a
		}
		a.sum += g.Value
		a.count++
	}

	perf := Performance{Students: make([]StudentPerformance, 0, len(s.students))}
	var sum float64
	for _, st := range s.students {
		sp := StudentPerformance{ID: st.ID, Name: st.Name}
		if a, ok := accs[st.ID]; ok && a.count > 0 {
			sp.Average = round1(a.sum / float64(a.count))
		}
		sum += sp.Average
		perf.Students = append(perf.Students, sp)
	}
	if len(perf.Students) > 0 {
		perf.ClassAverage = round1(sum / float64(len(perf.Students)))
	}
	sort.SliceStable(perf.Students, func(i, j int) bool {
		return perf.Students[i].Average > perf.Students[j].Average
	})
	return perf
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
