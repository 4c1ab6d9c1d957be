package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core/gradebook"
)

func TestTemplateAPI(t *testing.T) {
	app := newTestApp(t, nil)
	token, _ := app.signUp(t, "teacher")
	other, _ := app.signUp(t, "other")

	rec := app.request(t, http.MethodPost, "/v1/templates", token, gradebook.NewTemplate{Name: "Term"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no tests to save")

	addTest(t, app, token, "Quiz", 10)
	addTest(t, app, token, "Final", 50)

	rec = app.request(t, http.MethodPost, "/v1/templates", token, gradebook.NewTemplate{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "blank name")

	rec = app.request(t, http.MethodPost, "/v1/templates", token, gradebook.NewTemplate{Name: " Term ", Description: "Autumn"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tmpl gradebook.Template
	decode(t, rec, &tmpl)
	assert.Equal(t, "Term", tmpl.Name)
	require.NotNil(t, tmpl.Description)
	assert.Equal(t, "Autumn", *tmpl.Description)
	assert.Equal(t, []gradebook.TestConfig{{Name: "Quiz", MaxGrade: 10}, {Name: "Final", MaxGrade: 50}}, tmpl.TestConfigs)

	rec = app.request(t, http.MethodGet, "/v1/templates", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tmpls []gradebook.Template
	decode(t, rec, &tmpls)
	require.Len(t, tmpls, 1)
	assert.Equal(t, tmpl.ID, tmpls[0].ID)

	rec = app.request(t, http.MethodGet, "/v1/templates", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tmpls)
	assert.Empty(t, tmpls)

	rec = app.request(t, http.MethodPost, "/v1/templates/"+tmpl.ID+"/apply", other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "templates are private")

	rec = app.request(t, http.MethodPost, "/v1/templates/"+tmpl.ID+"/apply", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var applied gradebook.ApplyResult
	decode(t, rec, &applied)
	assert.Empty(t, applied.Failed)
	created := applied.Tests
	require.Len(t, created, 2)
	assert.Equal(t, "Quiz", created[0].Name)
	assert.Equal(t, 50.0, created[1].MaxGrade)

	rec = app.request(t, http.MethodGet, "/v1/gradebook", token, nil)
	var state gradebook.State
	decode(t, rec, &state)
	assert.Len(t, state.Tests, 4, "applying adds new tests")

	rec = app.request(t, http.MethodDelete, "/v1/templates/"+tmpl.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.request(t, http.MethodDelete, "/v1/templates/"+tmpl.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.request(t, http.MethodPost, "/v1/templates/"+tmpl.ID+"/apply", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
