package echoapi

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/user"
	logsvc "github.com/trezcool/gradebook/services/logger"
)

func TestAppHTTPErrorHandler(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	vErr := validate.Struct(StudentRequest{})

	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantBody     string
		wantShutdown bool
	}{
		{name: "jwt missing", err: middleware.ErrJWTMissing, wantCode: http.StatusUnauthorized, wantBody: `{"error":"missing or malformed jwt"}`},
		{name: "http error", err: errors.Wrap(errRefreshExpired, "refreshing"), wantCode: http.StatusForbidden, wantBody: `{"error":"refresh has expired"}`},
		{name: "validator", err: vErr, wantCode: http.StatusBadRequest, wantBody: `{"name":"this field is required"}`},
		{
			name:     "validation fields",
			err:      core.NewValidationError(nil, core.FieldError{Field: "token", Error: "expired"}),
			wantCode: http.StatusBadRequest,
			wantBody: `{"token":"expired"}`,
		},
		{name: "validation message", err: errors.Wrap(core.NewValidationError(gradebook.ErrNoNames), "importing"), wantCode: http.StatusBadRequest, wantBody: `{"error":"no valid names to import"}`},
		{name: "not found", err: errors.Wrapf(gradebook.ErrNotFound, "student %q", "x"), wantCode: http.StatusNotFound, wantBody: `{"error":"not found"}`},
		{name: "user not found", err: errors.Wrap(user.ErrNotFound, "finding"), wantCode: http.StatusNotFound, wantBody: `{"error":"user not found"}`},
		{name: "owner mismatch", err: errors.Wrap(gradebook.ErrOwnerMismatch, "adding"), wantCode: http.StatusForbidden},
		{name: "partial delete", err: errors.Wrap(gradebook.ErrPartialDelete, "deleting"), wantCode: http.StatusConflict},
		{name: "session expired", err: user.ErrSessionExpired, wantCode: http.StatusUnauthorized},
		{name: "unexpected", err: errors.New("db down"), wantCode: http.StatusInternalServerError, wantBody: `{"error":"Internal Server Error"}`},
		{name: "shutdown", err: errors.Wrap(core.NewShutdownError("integrity"), "saving"), wantCode: http.StatusInternalServerError, wantShutdown: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var shutdown bool
			logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{TestMode: true})
			handler := newAppHTTPErrorHandler(logger, translator, func() { shutdown = true })

			e := echo.New()
			rec := httptest.NewRecorder()
			handler(tc.err, e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, rec.Body.String())
			}
			assert.Equal(t, tc.wantShutdown, shutdown)
		})
	}
}

func TestAppHTTPErrorHandler_head(t *testing.T) {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{TestMode: true})
	handler := newAppHTTPErrorHandler(logger, core.NewTranslator(), func() {})

	e := echo.New()
	rec := httptest.NewRecorder()
	handler(errHttpNotFound, e.NewContext(httptest.NewRequest(http.MethodHead, "/", nil), rec))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}
