package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kilabu/core"
)

// actorMiddleware stores the caller in the request context so services can log who did what.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(core.WithActor(req.Context(), claims.Actor())))
		return next(ctx)
	}
}

func manageAttendanceMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.CanManageAttendance() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}
