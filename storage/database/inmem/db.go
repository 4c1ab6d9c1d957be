package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/user"
)

type (
	// DB keeps every table in memory. Rows are kept in insertion order.
	DB struct {
		user      *userTable
		gradebook *gradebookTables
		templates *templateTable
		now       func() time.Time
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	// gradebookTables share one lock so that grade checks see a consistent view of students and tests.
	gradebookTables struct {
		mutex    sync.RWMutex
		students []gradebook.StudentRow
		tests    []gradebook.TestRow
		grades   []gradebook.GradeRow
	}

	templateTable struct {
		mutex sync.RWMutex
		table []gradebook.Template
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:      &userTable{table: make(map[string]*user.User)},
		gradebook: new(gradebookTables),
		templates: new(templateTable),
		now:       time.Now,
	}
	return db, nil
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}
