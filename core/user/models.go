package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/gradebook/core"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// NewUser contains information needed to sign up a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	return validate.Struct(nu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter selects a single User. The first non-empty field wins.
// UsernameOrEmail is either [usernameOrEmail] or [username, email].
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string
}

func (f GetFilter) IsEmpty() bool {
	return f.ID == "" && f.Username == "" && f.Email == "" && len(f.UsernameOrEmail) == 0
}

// Match reports whether usr satisfies the filter.
func (f GetFilter) Match(usr User) bool {
	switch {
	case f.ID != "":
		return usr.ID == f.ID
	case f.Username != "":
		return usr.Username == f.Username
	case f.Email != "":
		return usr.Email == f.Email
	case len(f.UsernameOrEmail) > 0:
		uname, email := f.UsernameAndEmail()
		return (uname != "" && usr.Username == uname) || (email != "" && usr.Email == email)
	}
	return false
}

// UsernameAndEmail returns the (username, email) pair to look up, each defaulting to the other.
func (f GetFilter) UsernameAndEmail() (string, string) {
	if len(f.UsernameOrEmail) == 0 {
		return "", ""
	}
	uname := f.UsernameOrEmail[0]
	var email string
	if len(f.UsernameOrEmail) > 1 {
		email = f.UsernameOrEmail[1]
	}
	if email == "" {
		email = uname
	} else if uname == "" {
		uname = email
	}
	return uname, email
}
