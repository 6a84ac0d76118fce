package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core/school"
)

type permissionApi struct {
	svc      school.Service
	validate *validator.Validate
}

func registerPermissionAPI(g *echo.Group, deps ServerDeps) {
	api := permissionApi{svc: deps.SchoolSvc, validate: deps.Validate}

	ag := g.Group("/admin/permissions", adminMiddleware())
	ag.GET("", api.query)
	ag.POST("", api.grant)
	ag.DELETE("/:id", api.revoke)
}

// query lists the permissions of `admin_id`, the viewer's own by default.
func (api *permissionApi) query(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	adminID := ctx.QueryParam("admin_id")
	if adminID == "" {
		adminID = v.User.ID
	}

	perms, err := api.svc.ForAdmin(ctx.Request().Context(), adminID)
	if err != nil {
		return errors.Wrap(err, "querying permissions")
	}
	if perms == nil {
		perms = []school.AdminPermission{}
	}
	return ctx.JSON(http.StatusOK, perms)
}

func (api *permissionApi) grant(ctx echo.Context) error {
	var data school.NewPermission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPermission")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	perm, err := api.svc.Grant(ctx.Request().Context(), v, data, api.validate)
	if err != nil {
		return errors.Wrap(err, "granting permission")
	}
	return ctx.JSON(http.StatusCreated, perm)
}

func (api *permissionApi) revoke(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Revoke(ctx.Request().Context(), v, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "revoking permission")
	}
	return ctx.NoContent(http.StatusNoContent)
}
