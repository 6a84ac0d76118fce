package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/user"
)

const contextViewerKey = "viewer"

// viewerMiddleware loads the authenticated user and its admin scope. It must run after the JWT middleware.
func viewerMiddleware(users user.Service, schools school.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			reqCtx := ctx.Request().Context()

			usr, err := users.GetByID(reqCtx, claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.Active() {
				return errAccountDeactivated
			}

			v, err := schools.Viewer(reqCtx, usr)
			if err != nil {
				return errors.Wrap(err, "resolving viewer")
			}
			ctx.Set(contextViewerKey, v)
			return next(ctx)
		}
	}
}

func contextViewer(ctx echo.Context) (school.Viewer, bool) {
	v, ok := ctx.Get(contextViewerKey).(school.Viewer)
	return v, ok
}

func getContextViewer(ctx echo.Context) (school.Viewer, error) {
	if v, ok := contextViewer(ctx); ok {
		return v, nil
	}
	return school.Viewer{}, errUnauthorized
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			v, err := getContextViewer(ctx)
			if err != nil {
				return err
			}
			if v.User.IsAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
