package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

const templateColumns = "id, user_id, name, description, test_configs, created_at, updated_at"

type templateRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	Name        string      `db:"name"`
	Description null.String `db:"description"`
	TestConfigs string      `db:"test_configs"` // JSON array
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type templateRepository struct {
	exec core.DBExecutor
	now  func() time.Time
}

var _ gradebook.TemplateRepository = (*templateRepository)(nil) // interface compliance check

func NewTemplateRepository(exec core.DBExecutor) *templateRepository {
	return &templateRepository{exec: exec, now: time.Now}
}

func (repo templateRepository) toRow(tmpl gradebook.Template) (templateRow, error) {
	configs := tmpl.TestConfigs
	if configs == nil {
		configs = []gradebook.TestConfig{}
	}
	raw, err := json.Marshal(configs)
	if err != nil {
		return templateRow{}, errors.Wrap(err, "encoding test configs")
	}
	return templateRow{
		ID:          tmpl.ID,
		UserID:      tmpl.UserID,
		Name:        tmpl.Name,
		Description: null.StringFromPtr(tmpl.Description),
		TestConfigs: string(raw),
		CreatedAt:   dbTime(tmpl.CreatedAt),
		UpdatedAt:   dbTime(tmpl.UpdatedAt),
	}, nil
}

func (repo templateRepository) fromRow(row templateRow) (gradebook.Template, error) {
	tmpl := gradebook.Template{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.Name,
		Description: row.Description.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.TestConfigs), &tmpl.TestConfigs); err != nil {
		return gradebook.Template{}, errors.Wrapf(err, "decoding test configs of template %q", row.ID)
	}
	return tmpl, nil
}

func (repo templateRepository) CreateTemplate(ctx context.Context, tmpl gradebook.Template) (gradebook.Template, error) {
	tmpl.ID = uuid.New().String()
	tmpl.CreatedAt = dbTime(repo.now())
	tmpl.UpdatedAt = tmpl.CreatedAt

	row, err := repo.toRow(tmpl)
	if err != nil {
		return gradebook.Template{}, err
	}
	q := `INSERT INTO grade_templates (` + templateColumns + `)
		VALUES (:id, :user_id, :name, :description, :test_configs, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.exec, q, row); err != nil {
		return gradebook.Template{}, errors.Wrap(err, "inserting template")
	}
	return repo.fromRow(row)
}

func (repo templateRepository) QueryTemplates(ctx context.Context, userID string) ([]gradebook.Template, error) {
	var rows []templateRow
	q := repo.exec.Rebind("SELECT " + templateColumns + " FROM grade_templates WHERE user_id = ? ORDER BY created_at DESC, id")
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}

	tmpls := make([]gradebook.Template, 0, len(rows))
	for _, row := range rows {
		tmpl, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		tmpls = append(tmpls, tmpl)
	}
	return tmpls, nil
}

func (repo templateRepository) GetTemplate(ctx context.Context, userID, id string) (gradebook.Template, error) {
	var row templateRow
	q := repo.exec.Rebind("SELECT " + templateColumns + " FROM grade_templates WHERE id = ? AND user_id = ?")
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return gradebook.Template{}, gradebook.ErrNotFound
		}
		return gradebook.Template{}, errors.Wrap(err, "finding template")
	}
	return repo.fromRow(row)
}

func (repo templateRepository) DeleteTemplate(ctx context.Context, userID, id string) error {
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind("DELETE FROM grade_templates WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return errors.Wrap(err, "deleting template")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return gradebook.ErrNotFound
	}
	return nil
}
