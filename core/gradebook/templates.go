package gradebook

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

var ErrNoTests = errors.New("there are no tests to save as a template")

type TestConfig struct {
	Name     string  `json:"name" validate:"required,notblank"`
	MaxGrade float64 `json:"max_grade" validate:"gte=1"`
}

// Template is a saved set of test shapes. Applying it creates new tests and keeps no link to them.
type Template struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	TestConfigs []TestConfig `json:"test_configs"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTemplate contains information needed to save the current tests as a Template.
type NewTemplate struct {
	Name        string `json:"name" validate:"required,notblank"`
	Description string `json:"description"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

type TemplateRepository interface {
	CreateTemplate(ctx context.Context, tmpl Template) (Template, error)
	// QueryTemplates returns the templates of the user, newest first.
	QueryTemplates(ctx context.Context, userID string) ([]Template, error)
	GetTemplate(ctx context.Context, userID, id string) (Template, error)
	DeleteTemplate(ctx context.Context, userID, id string) error
}

type TemplateService struct {
	repo   TemplateRepository
	logger core.Logger
}

func NewTemplateService(repo TemplateRepository, logger core.Logger) *TemplateService {
	return &TemplateService{repo: repo, logger: logger}
}

func (svc *TemplateService) Query(ctx context.Context, userID string) ([]Template, error) {
	tmpls, err := svc.repo.QueryTemplates(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	return tmpls, nil
}

// SaveCurrent snapshots the tests of the store, in order, as a new Template.
func (svc *TemplateService) SaveCurrent(ctx context.Context, store *Store, userID string, nt NewTemplate) (Template, error) {
	if store.Owner() != userID {
		return Template{}, errors.Wrapf(ErrOwnerMismatch, "owner %q", userID)
	}
	name := core.CleanString(nt.Name)
	if name == "" {
		return Template{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}

	tests := store.Snapshot().Tests
	if len(tests) == 0 {
		return Template{}, core.NewValidationError(ErrNoTests)
	}
	configs := make([]TestConfig, 0, len(tests))
	for _, t := range tests {
		configs = append(configs, TestConfig{Name: t.Name, MaxGrade: t.MaxGrade})
	}

	tmpl := Template{
		UserID:      userID,
		Name:        name,
		TestConfigs: configs,
	}
	if desc := core.CleanString(nt.Description); desc != "" {
		tmpl.Description = &desc
	}
	created, err := svc.repo.CreateTemplate(ctx, tmpl)
	if err != nil {
		return Template{}, errors.Wrap(err, "creating template")
	}
	return created, nil
}

// ApplyResult lists the tests created from a template and the configs that failed, by name.
type ApplyResult struct {
	Tests  []Test         `json:"tests"`
	Failed []BatchFailure `json:"failed"`
}

// Apply adds one test per config of the template, in order. A failing config does not stop the others.
func (svc *TemplateService) Apply(ctx context.Context, store *Store, userID, templateID string) (ApplyResult, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, userID, templateID)
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "getting template")
	}

	res := ApplyResult{Tests: make([]Test, 0, len(tmpl.TestConfigs)), Failed: []BatchFailure{}}
	for _, cfg := range tmpl.TestConfigs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t, err := store.AddTest(ctx, userID, cfg.Name, cfg.MaxGrade)
		if err != nil {
			res.Failed = append(res.Failed, BatchFailure{ID: cfg.Name, Error: err.Error()})
			continue
		}
		res.Tests = append(res.Tests, t)
	}
	return res, nil
}

func (svc *TemplateService) Delete(ctx context.Context, userID, id string) error {
	if err := svc.repo.DeleteTemplate(ctx, userID, id); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return nil
}
