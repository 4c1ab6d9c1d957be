package echoapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
	blobsvc "github.com/trezcool/gradebook/services/blob"
)

const downloadURLExpiry = 15 * time.Minute

// ExportStore archives exports and serves them back.
type ExportStore interface {
	gradebook.ExportArchiver
	List(ctx context.Context, ownerID string) ([]blobsvc.Export, error)
	DownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

var _ ExportStore = (*blobsvc.S3Archiver)(nil)

type exportApi struct {
	store ExportStore
}

func registerExportAPI(g *echo.Group, registry *gradebook.Registry, store ExportStore) {
	api := exportApi{store: store}

	eg := g.Group("/exports")
	eg.GET("/csv", api.download(gradebook.FormatCSV), storeMiddleware(registry))
	eg.GET("/pdf", api.download(gradebook.FormatPDF), storeMiddleware(registry))

	ag := eg.Group("", api.enabled)
	ag.GET("", api.query)
	ag.POST("", api.archive, storeMiddleware(registry))
	ag.GET("/url", api.downloadURL)
}

func (api *exportApi) enabled(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if api.store == nil {
			return errArchiveDisabled
		}
		return next(ctx)
	}
}

// Handlers

func (api *exportApi) download(format gradebook.ExportFormat) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		store, err := getContextStore(ctx)
		if err != nil {
			return err
		}
		content, err := store.Export(format)
		if err != nil {
			return errors.Wrapf(err, "exporting %s", format)
		}
		filename := "grades-" + time.Now().UTC().Format("2006-01-02") + "." + string(format)
		ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return ctx.Blob(http.StatusOK, format.ContentType(), content)
	}
}

func (api *exportApi) archive(ctx echo.Context) error {
	store, err := getContextStore(ctx)
	if err != nil {
		return err
	}
	format, err := gradebook.ParseExportFormat(ctx.QueryParam("format"))
	if err != nil {
		return err
	}
	location, err := gradebook.Archive(ctx.Request().Context(), store, api.store, format, time.Now())
	if err != nil {
		return errors.Wrapf(err, "archiving %s", format)
	}
	return ctx.JSON(http.StatusCreated, ArchiveResponse{Location: location})
}

func (api *exportApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	exports, err := api.store.List(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing exports")
	}
	return ctx.JSON(http.StatusOK, exports)
}

func (api *exportApi) downloadURL(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	// keys are scoped by owner
	key := ctx.QueryParam("key")
	if !strings.HasPrefix(key, claims.Subject+"/") || strings.Contains(key, "..") {
		return errHttpNotFound
	}
	url, err := api.store.DownloadURL(ctx.Request().Context(), key, downloadURLExpiry)
	if err != nil {
		return errors.Wrap(err, "presigning export")
	}
	return ctx.JSON(http.StatusOK, DownloadURLResponse{URL: url})
}
