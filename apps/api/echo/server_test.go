package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/user"
	emailsvc "github.com/trezcool/gradebook/services/email"
	logsvc "github.com/trezcool/gradebook/services/logger"
	inmemdb "github.com/trezcool/gradebook/storage/database/inmem"
)

const testPassword = "Sup3r-secret"

type testApp struct {
	srv      *Server
	conf     *core.Config
	users    user.Service
	mail     *emailsvc.ConsoleServiceMock
	sessions *user.Sessions
	registry *gradebook.Registry
	remote   gradebook.Remote
}

func newTestApp(t *testing.T, archiver ExportStore) *testApp {
	t.Helper()
	conf := &core.Config{
		AppName:                   "Gradebook",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://gradebook.test",
		DefaultFromEmail:          mail.Address{Name: "Gradebook", Address: "noreply@gradebook.test"},
		PasswordResetTimeoutDelta: 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
	}
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(conf, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db, err := inmemdb.Open()
	require.NoError(t, err)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(inmemdb.NewUserRepository(db), mailSvc, conf)

	remote := inmemdb.NewGradebookRepository(db)
	promReg := prometheus.NewRegistry()
	registry := gradebook.NewRegistry(remote, logger, gradebook.NewMetrics(promReg))
	sessions := user.NewSessions()
	t.Cleanup(sessions.OnAuthStateChange(registry.OnAuthStateChange))

	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		Sessions:       sessions,
		Registry:       registry,
		Templates:      gradebook.NewTemplateService(inmemdb.NewTemplateRepository(db), logger),
		Archiver:       archiver,
		Gatherer:       promReg,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &testApp{
		srv:      srv,
		conf:     conf,
		users:    usrSvc,
		mail:     mailSvc,
		sessions: sessions,
		registry: registry,
		remote:   remote,
	}
}

func (app *testApp) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.srv.ServeHTTP(rec, req)
	return rec
}

// signUp creates an account and logs it in.
func (app *testApp) signUp(t *testing.T, uname string) (string, user.Session) {
	t.Helper()
	rec := app.request(t, http.MethodPost, "/v1/users/signup", "", user.NewUser{
		Name:            "Terry " + uname,
		Username:        uname,
		Email:           uname + "@school.test",
		Password:        testPassword,
		PasswordConfirm: testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return app.login(t, uname, testPassword)
}

func (app *testApp) login(t *testing.T, uname, pwd string) (string, user.Session) {
	t.Helper()
	rec := app.request(t, http.MethodPost, "/v1/users/login", "", LoginRequest{Username: uname, Password: pwd})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.Session
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorFields(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	fields := map[string]string{}
	decode(t, rec, &fields)
	return fields
}

func TestServer_home(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.request(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Gradebook API!", rec.Body.String())
}

func TestServer_metrics(t *testing.T) {
	app := newTestApp(t, nil)
	token, _ := app.signUp(t, "teacher")
	rec := app.request(t, http.MethodGet, "/v1/gradebook", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.request(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gradebook_open_stores 1")
	assert.Contains(t, rec.Body.String(), `gradebook_store_operations_total{op="fetch_all",result="ok"}`)
}

func TestUserAPI_signup(t *testing.T) {
	app := newTestApp(t, nil)
	app.signUp(t, "teacher")

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{
			name:      "username taken",
			nu:        user.NewUser{Name: "Other", Username: "Teacher", Password: testPassword, PasswordConfirm: testPassword},
			wantField: "username",
		},
		{
			name:      "email taken",
			nu:        user.NewUser{Name: "Other", Email: "TEACHER@school.test", Password: testPassword, PasswordConfirm: testPassword},
			wantField: "email",
		},
		{
			name:      "weak password",
			nu:        user.NewUser{Name: "Other", Username: "other", Password: "password", PasswordConfirm: "password"},
			wantField: "password",
		},
		{
			name:      "password mismatch",
			nu:        user.NewUser{Name: "Other", Username: "other", Password: testPassword, PasswordConfirm: "nope"},
			wantField: "password_confirm",
		},
		{
			name:      "no username nor email",
			nu:        user.NewUser{Name: "Other", Password: testPassword, PasswordConfirm: testPassword},
			wantField: "username",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.request(t, http.MethodPost, "/v1/users/signup", "", tc.nu)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, errorFields(t, rec), tc.wantField)
		})
	}
}

func TestUserAPI_login(t *testing.T) {
	app := newTestApp(t, nil)
	app.signUp(t, "teacher")

	tests := []struct {
		name     string
		data     LoginRequest
		wantCode int
	}{
		{name: "username", data: LoginRequest{Username: "Teacher", Password: testPassword}, wantCode: http.StatusOK},
		{name: "email", data: LoginRequest{Username: "teacher@school.test", Password: testPassword}, wantCode: http.StatusOK},
		{name: "wrong password", data: LoginRequest{Username: "teacher", Password: "nope"}, wantCode: http.StatusBadRequest},
		{name: "unknown user", data: LoginRequest{Username: "ghost", Password: testPassword}, wantCode: http.StatusBadRequest},
		{name: "missing fields", data: LoginRequest{}, wantCode: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.request(t, http.MethodPost, "/v1/users/login", "", tc.data)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestUserAPI_session(t *testing.T) {
	app := newTestApp(t, nil)
	token, sess := app.signUp(t, "teacher")

	rec := app.request(t, http.MethodGet, "/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, "teacher", usr.Username)
	assert.Equal(t, sess.UserID, usr.ID)
	assert.False(t, usr.LastLogin.IsZero())

	rec = app.request(t, http.MethodGet, "/v1/users/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got user.Session
	decode(t, rec, &got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, 1, app.registry.Len(), "signing in loads the store")

	rec = app.request(t, http.MethodPost, "/v1/users/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, app.sessions.ActiveCount(usr.ID))
	assert.Equal(t, 0, app.registry.Len(), "the last sign out drops the store")

	// the token is still well signed, but its session is gone
	rec = app.request(t, http.MethodGet, "/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserAPI_unauthenticated(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name  string
		path  string
		token string
	}{
		{name: "no token", path: "/v1/users/me"},
		{name: "garbage token", path: "/v1/users/me", token: "not-a-jwt"},
		{name: "gradebook", path: "/v1/gradebook"},
		{name: "templates", path: "/v1/templates"},
		{name: "exports", path: "/v1/exports/csv"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.request(t, http.MethodGet, tc.path, tc.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestUserAPI_foreignSignature(t *testing.T) {
	app := newTestApp(t, nil)
	_, sess := app.signUp(t, "teacher")
	usr, err := app.users.GetByID(context.Background(), sess.UserID)
	require.NoError(t, err)

	other := newAuthenticator(&core.Config{SecretKey: "another-secret", AppName: "Gradebook"}, app.users, app.sessions)
	token, err := other.GenerateToken(other.claims(usr, sess))
	require.NoError(t, err)

	rec := app.request(t, http.MethodGet, "/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserAPI_tokenRefresh(t *testing.T) {
	app := newTestApp(t, nil)
	token, sess := app.signUp(t, "teacher")

	rec := app.request(t, http.MethodPost, "/v1/users/token-refresh", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, sess.ID, resp.Session.ID, "the session is kept")
	assert.False(t, resp.Session.ExpiresAt.Before(sess.ExpiresAt))

	rec = app.request(t, http.MethodGet, "/v1/users/me", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// refresh window closed
	app.conf.Server.JWTRefreshExpirationDelta = -time.Second
	rec = app.request(t, http.MethodPost, "/v1/users/token-refresh", resp.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserAPI_passwordReset(t *testing.T) {
	app := newTestApp(t, nil)
	app.signUp(t, "teacher")

	// unknown emails get the same answer
	for _, email := range []string{"ghost@school.test", "teacher@school.test"} {
		rec := app.request(t, http.MethodPost, "/v1/users/password-reset", "", PasswordResetRequest{Email: email})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp SuccessResponse
		decode(t, rec, &resp)
		assert.Equal(t, passwordResetSent, resp.Success)
	}

	sent := app.mail.SentMessages()
	require.Len(t, sent, 1)
	data, ok := sent[0].TemplateData.(map[string]string)
	require.True(t, ok)

	const newPassword = "An0ther-secret"
	rec := app.request(t, http.MethodPost, "/v1/users/password-reset-confirm", "", user.ResetUserPassword{
		Token:           "bogus-token",
		UID:             data["UID"],
		Password:        newPassword,
		PasswordConfirm: newPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.request(t, http.MethodPost, "/v1/users/password-reset-confirm", "", user.ResetUserPassword{
		Token:           data["Token"],
		UID:             data["UID"],
		Password:        newPassword,
		PasswordConfirm: newPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	app.login(t, "teacher", newPassword)
	rec = app.request(t, http.MethodPost, "/v1/users/login", "", LoginRequest{Username: "teacher", Password: testPassword})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserAPI_trailingSlash(t *testing.T) {
	app := newTestApp(t, nil)
	token, _ := app.signUp(t, "teacher")
	rec := app.request(t, http.MethodGet, "/v1/users/me/", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"username":"teacher"`))
}
