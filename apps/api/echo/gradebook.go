package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

const importFileField = "file"

type gradebookApi struct {
	validate *validator.Validate
}

func registerGradebookAPI(g *echo.Group, registry *gradebook.Registry, validate *validator.Validate) {
	api := gradebookApi{validate: validate}

	gg := g.Group("/gradebook", storeMiddleware(registry))
	gg.GET("", api.state)
	gg.POST("/refresh", api.refresh)
	gg.GET("/formatted", api.formatted)
	gg.GET("/performance", api.performance)
	gg.PUT("/grades", api.updateGrade)

	sg := gg.Group("/students")
	sg.POST("", api.addStudent)
	sg.DELETE("", api.deleteStudents)
	sg.POST("/import", api.importStudents)
	sg.PUT("/:id", api.updateStudent)
	sg.DELETE("/:id", api.deleteStudent)

	tg := gg.Group("/tests")
	tg.POST("", api.addTest)
	tg.DELETE("", api.deleteTests)
	tg.PUT("/:id", api.updateTest)
	tg.DELETE("/:id", api.deleteTest)
	tg.GET("/:id/sheet", api.gradeSheet)
	tg.PUT("/:id/grades", api.enterGrades)
}

// Handlers

func (api *gradebookApi) state(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, store.Snapshot())
}

func (api *gradebookApi) refresh(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Reconcile(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "reconciling store")
	}
	return ctx.JSON(http.StatusOK, store.Snapshot())
}

func (api *gradebookApi) formatted(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, FormattedResponse{
		Students:      store.FormattedStudents(),
		TotalMaxGrade: store.TotalMaxGrade(),
	})
}

func (api *gradebookApi) performance(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, store.Performance())
}

func (api *gradebookApi) addStudent(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data StudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	student, err := store.AddStudent(ctx.Request().Context(), store.Owner(), data.Name)
	if err != nil {
		return errors.Wrap(err, "adding student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

func (api *gradebookApi) updateStudent(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data StudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	student, err := store.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data.Name)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *gradebookApi) deleteStudent(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	if err := store.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *gradebookApi) deleteStudents(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	query := bindDestroyMultiple(ctx)
	res, err := gradebook.DeleteStudents(ctx.Request().Context(), store, query.IDs)
	if err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.JSON(http.StatusOK, res)
}

// importStudents accepts either a JSON body with pasted text, or a multipart CSV upload.
func (api *gradebookApi) importStudents(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}

	var names []string
	if fh, err := ctx.FormFile(importFileField); err == nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		defer f.Close()
		if names, err = gradebook.ParseCSVNames(f); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: importFileField, Error: err.Error()})
		}
	} else {
		var data ImportRequest
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to ImportRequest")
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		names = gradebook.ParseNames(data.Text)
	}

	res, err := gradebook.ImportStudents(ctx.Request().Context(), store, store.Owner(), names)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gradebookApi) addTest(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data TestRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	test, err := store.AddTest(ctx.Request().Context(), store.Owner(), data.Name, data.MaxGrade)
	if err != nil {
		return errors.Wrap(err, "adding test")
	}
	return ctx.JSON(http.StatusCreated, test)
}

func (api *gradebookApi) updateTest(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data TestRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	test, err := store.UpdateTest(ctx.Request().Context(), ctx.Param("id"), data.Name, data.MaxGrade)
	if err != nil {
		return errors.Wrap(err, "updating test")
	}
	return ctx.JSON(http.StatusOK, test)
}

func (api *gradebookApi) deleteTest(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	if err := store.DeleteTest(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting test")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *gradebookApi) deleteTests(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	query := bindDestroyMultiple(ctx)
	res, err := gradebook.DeleteTests(ctx.Request().Context(), store, query.IDs)
	if err != nil {
		return errors.Wrap(err, "deleting tests")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gradebookApi) gradeSheet(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	test, rows, err := store.GradeSheet(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building grade sheet")
	}
	return ctx.JSON(http.StatusOK, GradeSheetResponse{Test: test, Rows: rows})
}

func (api *gradebookApi) enterGrades(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data EnterGradesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnterGradesRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := store.EnterGrades(ctx.Request().Context(), ctx.Param("id"), data.Entries)
	if err != nil {
		return errors.Wrap(err, "entering grades")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gradebookApi) updateGrade(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data GradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grade, err := store.UpdateGrade(ctx.Request().Context(), data.StudentID, data.TestID, *data.Value)
	if err != nil {
		return errors.Wrap(err, "saving grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}

// bindDestroyMultiple reads the repeated `id` query params.
func bindDestroyMultiple(ctx echo.Context) DestroyMultipleRequest {
	return DestroyMultipleRequest{IDs: ctx.QueryParams()["id"]}
}
