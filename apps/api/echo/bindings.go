package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/user"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token   string       `json:"token"`
		Session user.Session `json:"session"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	// DestroyMultipleRequest is bound from repeated `id` query params.
	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	StudentRequest struct {
		Name string `json:"name" validate:"required,notblank"`
	}

	TestRequest struct {
		Name     string  `json:"name" validate:"required,notblank"`
		MaxGrade float64 `json:"max_grade" validate:"gte=1"`
	}

	// GradeRequest sets one grade. Value is required: zero is a valid grade.
	GradeRequest struct {
		StudentID string   `json:"student_id" validate:"required"`
		TestID    string   `json:"test_id" validate:"required"`
		Value     *float64 `json:"value" validate:"required,gte=0"`
	}

	EnterGradesRequest struct {
		Entries []gradebook.GradeEntry `json:"entries" validate:"dive"`
	}

	ImportRequest struct {
		Text string `json:"text" validate:"required"`
	}

	FormattedResponse struct {
		Students      []gradebook.FormattedStudent `json:"students"`
		TotalMaxGrade float64                      `json:"total_max_grade"`
	}

	GradeSheetResponse struct {
		Test gradebook.Test       `json:"test"`
		Rows []gradebook.SheetRow `json:"rows"`
	}

	ArchiveResponse struct {
		Location string `json:"location"`
	}

	DownloadURLResponse struct {
		URL string `json:"url"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (sr *StudentRequest) Validate(validate *validator.Validate) error {
	sr.Name = core.CleanString(sr.Name)
	return validate.Struct(sr)
}

func (tr *TestRequest) Validate(validate *validator.Validate) error {
	tr.Name = core.CleanString(tr.Name)
	return validate.Struct(tr)
}

func (gr *GradeRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(gr)
}

func (er *EnterGradesRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(er)
}

func (ir *ImportRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(ir)
}
