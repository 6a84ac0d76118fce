package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

var (
	errObjNotFoundInCtx  = errors.New("object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set this role"
)

type profileApi struct {
	svc      user.Service
	students student.Service
	tx       core.Transactor
	validate *validator.Validate
}

func registerProfileAPI(g *echo.Group, deps ServerDeps) {
	api := profileApi{
		svc:      deps.UserSvc,
		students: deps.StudentSvc,
		tx:       deps.Tx,
		validate: deps.Validate,
	}

	pg := g.Group("/profiles")
	pg.GET("/me", api.me)
	pg.POST("", api.create, adminMiddleware())
	pg.GET("", api.query, adminMiddleware())
	pg.DELETE("", api.destroyMultiple, adminMiddleware())
	pg.GET("/roles", api.queryRoles)

	// detail endpoints
	dg := pg.Group("/:id", selfOrManagerMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
}

type (
	// CreateProfileRequest creates a profile, optionally with its initial caseload.
	CreateProfileRequest struct {
		user.NewUser
		Students []student.NewStudent `json:"students"`
	}

	CreateProfileResponse struct {
		user.User
		Students []student.Student `json:"students,omitempty"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

// Handlers

func (api *profileApi) create(ctx echo.Context) error {
	var data CreateProfileRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateProfileRequest")
	}
	reqCtx := ctx.Request().Context()
	if err := data.NewUser.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}

	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	// placement drives access: only an admin managing the new site may move a profile there
	site, district := usr.SchoolSite, usr.SchoolDistrict
	if data.SchoolSite != nil {
		site = *data.SchoolSite
	}
	if data.SchoolDistrict != nil {
		district = *data.SchoolDistrict
	}
	if (site != usr.SchoolSite || district != usr.SchoolDistrict) && !v.Manages(site, district) {
		return errHttpForbidden
	}

	// viewer cannot set a role > their own role
	if user.RolePriority(data.Role) > user.RolePriority(v.User.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles})
	}
	if !v.Manages(data.SchoolSite, data.SchoolDistrict) {
		return errHttpForbidden
	}

	var resp CreateProfileResponse
	err = api.tx.WithinTx(reqCtx, func(txCtx context.Context) error {
		usr, err := api.svc.Create(txCtx, data.NewUser)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		resp.User = usr

		for _, ns := range data.Students {
			ns.ProviderID = usr.ID
			st, err := api.students.Create(txCtx, v, ns)
			if err != nil {
				return errors.Wrap(err, "creating student")
			}
			resp.Students = append(resp.Students, st)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// query lists the profiles at the sites and districts the admin manages.
func (api *profileApi) query(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if v.Scope.IsEmpty() {
		return ctx.JSON(http.StatusOK, []user.User{})
	}

	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return err
	}
	filter := &user.QueryFilter{
		Search:          ctx.QueryParam("search"),
		Roles:           queryList(ctx, "role"),
		SchoolSites:     v.Scope.Sites,
		SchoolDistricts: v.Scope.Districts,
		IsActive:        isActive,
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *profileApi) me(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, v.User)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *profileApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if !v.User.IsAdmin() {
		// `IsActive` and `Role` can only be changed by admins
		if data.IsActive != nil || (data.Role != nil && *data.Role != usr.Role) {
			return errHttpForbidden
		}
	}

	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, usr, api.validate, api.svc); err != nil {
		return err
	}

	// viewer cannot set a role > their own role
	if data.Role != nil && user.RolePriority(*data.Role) > user.RolePriority(v.User.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles})
	}

	usr, err = api.svc.Update(reqCtx, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *profileApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}

	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if !canDelete(v, usr) {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *profileApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	for _, id := range query.IDs {
		usr, err := api.svc.GetByID(reqCtx, id)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if !canDelete(v, usr) {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(reqCtx, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *profileApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// canDelete: nobody deletes themselves or a profile with a higher role.
func canDelete(v school.Viewer, usr user.User) bool {
	if usr.ID == v.User.ID {
		return false
	}
	if user.RolePriority(usr.Role) > user.RolePriority(v.User.Role) {
		return false
	}
	return v.Manages(usr.SchoolSite, usr.SchoolDistrict)
}

func selfOrManagerMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			v, err := getContextViewer(ctx)
			if err != nil {
				return err
			}

			usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if usr.ID == v.User.ID || v.Manages(usr.SchoolSite, usr.SchoolDistrict) {
				ctx.Set("object", usr)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}
