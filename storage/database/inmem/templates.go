package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/gradebook/core/gradebook"
)

type templateRepository struct {
	db     *templateTable
	parent *DB
}

var _ gradebook.TemplateRepository = (*templateRepository)(nil) // interface compliance check

func NewTemplateRepository(db *DB) *templateRepository {
	return &templateRepository{db: db.templates, parent: db}
}

func (repo *templateRepository) CreateTemplate(_ context.Context, tmpl gradebook.Template) (gradebook.Template, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tmpl.ID = uuid.New().String()
	tmpl.CreatedAt = repo.parent.timestamp()
	tmpl.UpdatedAt = tmpl.CreatedAt
	tmpl.TestConfigs = append([]gradebook.TestConfig{}, tmpl.TestConfigs...)
	repo.db.table = append(repo.db.table, tmpl)
	return tmpl, nil
}

// QueryTemplates walks the table backwards: rows are appended in creation order.
func (repo *templateRepository) QueryTemplates(_ context.Context, userID string) ([]gradebook.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tmpls := []gradebook.Template{}
	for i := len(repo.db.table) - 1; i >= 0; i-- {
		if tmpl := repo.db.table[i]; tmpl.UserID == userID {
			tmpls = append(tmpls, tmpl)
		}
	}
	return tmpls, nil
}

func (repo *templateRepository) GetTemplate(_ context.Context, userID, id string) (gradebook.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, tmpl := range repo.db.table {
		if tmpl.ID == id && tmpl.UserID == userID {
			return tmpl, nil
		}
	}
	return gradebook.Template{}, gradebook.ErrNotFound
}

func (repo *templateRepository) DeleteTemplate(_ context.Context, userID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, tmpl := range repo.db.table {
		if tmpl.ID == id && tmpl.UserID == userID {
			repo.db.table = append(repo.db.table[:i:i], repo.db.table[i+1:]...)
			return nil
		}
	}
	return gradebook.ErrNotFound
}
