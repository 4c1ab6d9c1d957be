package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/user"
)

const (
	contextTokenKey   = "userToken"
	contextUserKey    = "user"
	contextSessionKey = "session"
	tokenAudience     = "Gradebook"
)

// Claims represents the authorization claims transmitted via a JWT.
// The session id travels as `jti`.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
}

type authenticator struct {
	conf      *core.Config
	svc       user.Service
	sessions  *user.Sessions
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, svc user.Service, sessions *user.Sessions) *authenticator {
	return &authenticator{
		conf:     conf,
		svc:      svc,
		sessions: sessions,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *authenticator) claims(usr user.User, sess user.Session, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        sess.ID,
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: sess.ExpiresAt.Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// login checks the credentials and opens a new session.
func (a *authenticator) login(ctx context.Context, uname, pwd string) (string, user.Session, error) {
	usr, err := a.svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", user.Session{}, errAuthenticationFailed
		}
		return "", user.Session{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return "", user.Session{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return "", user.Session{}, errAccountDeactivated
	}
	if usr, err = a.svc.SetLastLogin(ctx, usr); err != nil {
		return "", user.Session{}, errors.Wrap(err, "setting lastLogin")
	}

	sess := a.sessions.Start(usr, a.conf.Server.JWTExpirationDelta)
	token, err := a.GenerateToken(a.claims(usr, sess))
	if err != nil {
		_ = a.sessions.SignOut(sess.ID)
		return "", user.Session{}, err
	}
	return token, sess, nil
}

// middleware checks the JWT, then that its session is still open.
func (a *authenticator) middleware() echo.MiddlewareFunc {
	jwtMW := middleware.JWTWithConfig(a.jwtConfig)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMW(func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			sess, err := a.sessions.Get(claims.Id)
			if err != nil {
				return errSessionEnded
			}
			if sess.UserID != claims.Subject {
				return errUnauthorized
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		})
	}
}

// refresh extends the session of the request and issues a new token for it.
func (a *authenticator) refresh(ctx echo.Context) (string, user.Session, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", user.Session{}, err
	}
	usr, err := getContextUser(ctx, a.svc)
	if err != nil {
		return "", user.Session{}, errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", user.Session{}, errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", user.Session{}, errRefreshExpired
	}

	sess, err := a.sessions.Refresh(claims.Id, a.conf.Server.JWTExpirationDelta)
	if err != nil {
		return "", user.Session{}, errSessionEnded
	}
	token, err := a.GenerateToken(a.claims(usr, sess, claims.OrigIssuedAt))
	if err != nil {
		return "", user.Session{}, err
	}
	return token, sess, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextSession(ctx echo.Context) (user.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(user.Session); ok {
		return sess, nil
	}
	return user.Session{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
