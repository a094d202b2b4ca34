package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kilabu/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTrainer = "trainer"
	RoleViewer  = "viewer"
)

var (
	Roles = []string{RoleAdmin, RoleTrainer, RoleViewer}

	contextTokenKey = "userToken"
	signingMethod   = middleware.AlgorithmHS256
)

// Claims represents the authorization claims transmitted via a JWT.
// Users are managed elsewhere: the token is all we know about the caller.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// CanManageAttendance tells whether the caller may take, edit or delete attendance.
func (c Claims) CanManageAttendance() bool {
	return c.Role == RoleAdmin || c.Role == RoleTrainer
}

func (c Claims) Actor() core.Actor {
	return core.Actor{ID: c.Subject, Username: c.Username, Role: c.Role}
}

func NewClaims(conf *core.Config, subject, username, role string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: username,
		Role:     role,
	}
}

func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: signingMethod,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(signingMethod), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
