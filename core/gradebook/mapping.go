package gradebook

func studentFromRow(row StudentRow) Student {
	return Student{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}
}

func studentToRow(s Student, ownerID string) StudentRow {
	return StudentRow{ID: s.ID, UserID: ownerID, Name: s.Name, CreatedAt: s.CreatedAt}
}

func testFromRow(row TestRow) Test {
	return Test{ID: row.ID, Name: row.Name, MaxGrade: row.MaxGrade, CreatedAt: row.CreatedAt}
}

func testToRow(t Test, ownerID string) TestRow {
	return TestRow{ID: t.ID, UserID: ownerID, Name: t.Name, MaxGrade: t.MaxGrade, CreatedAt: t.CreatedAt}
}

func gradeFromRow(row GradeRow) Grade {
	return Grade{ID: row.ID, StudentID: row.StudentID, TestID: row.TestID, Value: row.Value, CreatedAt: row.CreatedAt}
}

func gradeToRow(g Grade) GradeRow {
	return GradeRow{ID: g.ID, StudentID: g.StudentID, TestID: g.TestID, Value: g.Value, CreatedAt: g.CreatedAt}
}

func studentsFromRows(rows []StudentRow) []Student {
	students := make([]Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, studentFromRow(row))
	}
	return students
}

func testsFromRows(rows []TestRow) []Test {
	tests := make([]Test, 0, len(rows))
	for _, row := range rows {
		tests = append(tests, testFromRow(row))
	}
	return tests
}

func gradesFromRows(rows []GradeRow) []Grade {
	grades := make([]Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, gradeFromRow(row))
	}
	return grades
}
