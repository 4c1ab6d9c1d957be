package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
)

type templateApi struct {
	svc      *gradebook.TemplateService
	validate *validator.Validate
}

func registerTemplateAPI(
	g *echo.Group,
	registry *gradebook.Registry,
	svc *gradebook.TemplateService,
	validate *validator.Validate,
) {
	api := templateApi{svc: svc, validate: validate}
	withStore := storeMiddleware(registry)

	tg := g.Group("/templates")
	tg.GET("", api.query)
	tg.POST("", api.saveCurrent, withStore)
	tg.POST("/:id/apply", api.apply, withStore)
	tg.DELETE("/:id", api.destroy)
}

// Handlers

func (api *templateApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	tmpls, err := api.svc.Query(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *templateApi) saveCurrent(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	var data gradebook.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.SaveCurrent(ctx.Request().Context(), store, store.Owner(), data)
	if err != nil {
		return errors.Wrap(err, "saving template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *templateApi) apply(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Apply(ctx.Request().Context(), store, store.Owner(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "applying template")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *templateApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), claims.Subject, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}
