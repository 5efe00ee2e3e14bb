package echoapi

import (
	"context"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
)

const (
	tokenContextKey = "userToken"
	userContextKey  = "user"
	tokenAudience   = "SGA"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Papel        string `json:"papel,omitempty"`
	IsStaff      bool   `json:"is_staff,omitempty"`
}

func (c Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

type jwtAuth struct {
	config       middleware.JWTConfig
	issuer       string
	expiration   time.Duration
	refreshDelta time.Duration
}

func newJWTAuth(conf *core.Config) jwtAuth {
	return jwtAuth{
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    tokenContextKey,
			Claims:        new(Claims),
		},
		issuer:       conf.AppName,
		expiration:   conf.Server.JWTExpirationDelta,
		refreshDelta: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (a jwtAuth) claims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   strconv.Itoa(usr.ID),
			Audience:  tokenAudience,
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Papel:        usr.Papel(),
		IsStaff:      usr.IsStaff,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a jwtAuth) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.config.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a jwtAuth) tokenFor(usr user.User, origIat ...int64) (string, error) {
	return a.generateToken(a.claims(usr, origIat...))
}

func (a jwtAuth) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, ok := contextUser(ctx)
	if !ok {
		return "", errUnauthorized
	}

	// the refresh window starts at the original login
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	return a.tokenFor(usr, claims.OrigIssuedAt)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func contextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(userContextKey).(user.User)
	return usr, ok
}

func mustContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := contextUser(ctx); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// contextUserMiddleware loads the token's user. Deleted users are unauthorized and deactivated ones forbidden.
func contextUserMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			id, err := claims.UserID()
			if err != nil {
				return errUnauthorized
			}
			usr, err := svc.GetByID(reqContext(ctx), id)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			ctx.Set(userContextKey, usr)
			return next(ctx)
		}
	}
}

func reqContext(ctx echo.Context) context.Context {
	return ctx.Request().Context()
}
