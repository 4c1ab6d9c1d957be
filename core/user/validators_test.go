package user

import (
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gradebook/core"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}

func newTestValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	LoadCommonPasswords(discardLogger{})
	return validate
}

func TestNewUser_Validate(t *testing.T) {
	validate := newTestValidator()

	valid := NewUser{
		Name:            " Jane Teacher ",
		Username:        " JTeacher ",
		Email:           "Jane@School.test",
		Password:        "Tr1cky#Pass",
		PasswordConfirm: "Tr1cky#Pass",
	}
	withPwd := func(pwd string) NewUser {
		nu := valid
		nu.Password, nu.PasswordConfirm = pwd, pwd
		return nu
	}

	tests := []struct {
		name    string
		nu      NewUser
		wantTag string
	}{
		{name: "valid", nu: valid},
		{name: "no username nor email", nu: NewUser{Name: "J", Password: "Tr1cky#Pass", PasswordConfirm: "Tr1cky#Pass"}, wantTag: usernameOrEmailTag},
		{name: "password mismatch", nu: func() NewUser { nu := valid; nu.PasswordConfirm = "other"; return nu }(), wantTag: "eqfield"},
		{name: "too short", nu: withPwd("Ab1#"), wantTag: pwdMinLenTag},
		{name: "whitespace", nu: withPwd("Tr1cky #Pass"), wantTag: pwdNoSpaceTag},
		{name: "all numeric", nu: withPwd("1234567890"), wantTag: pwdNotAllNumTag},
		{name: "not complex", nu: withPwd("trickypass"), wantTag: pwdComplexityTag},
		{name: "similar to username", nu: withPwd("Jteacher1!"), wantTag: pwdAttrSimTag},
		{name: "common", nu: withPwd("P@ssw0rd"), wantTag: pwdNoCommonTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate)
			if tt.wantTag == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if !ok {
				t.Fatalf("Validate() error = %v, want validator.ValidationErrors", err)
			}
			var found bool
			for _, fe := range vErrs {
				if fe.Tag() == tt.wantTag {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() error = %v, wantTag %v", err, tt.wantTag)
			}
		})
	}

	t.Run("cleans fields", func(t *testing.T) {
		nu := valid
		if err := nu.Validate(validate); err != nil {
			t.Fatalf("Validate() unexpected error = %v", err)
		}
		if nu.Name != "Jane Teacher" || nu.Username != "jteacher" || nu.Email != "jane@school.test" {
			t.Errorf("Validate() did not clean fields: %+v", nu)
		}
	})
}
