package school

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/user"
)

var ErrNotFound = core.NewNotFoundError("admin permission")

type (
	Repository interface {
		CreatePermission(ctx context.Context, perm AdminPermission) (AdminPermission, error)
		QueryPermissions(ctx context.Context, adminID string) ([]AdminPermission, error)
		GetPermission(ctx context.Context, id string) (AdminPermission, error)
		DeletePermission(ctx context.Context, id string) error
	}

	Service interface {
		Grant(ctx context.Context, granter Viewer, np NewPermission, validate *validator.Validate) (AdminPermission, error)
		Revoke(ctx context.Context, granter Viewer, id string) error
		ForAdmin(ctx context.Context, adminID string) ([]AdminPermission, error)
		// Viewer resolves the admin scope of usr.
		Viewer(ctx context.Context, usr user.User) (Viewer, error)
	}

	service struct {
		repo  Repository
		users user.Repository
		cache core.Cache
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users user.Repository, cache core.Cache) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(cache, "cache"),
	).CheckAndPanic()
	return &service{repo: repo, users: users, cache: cache}
}

// scopeChanged bumps the schedule generation: cached views are filtered by admin scope.
func (svc *service) scopeChanged(ctx context.Context) {
	_, _ = svc.cache.Incr(ctx, core.ScheduleGenerationKey)
}

// Grant stores a new permission. A district admin may grant anything within its districts;
// a site admin may only grant site_admin on sites it manages.
func (svc *service) Grant(ctx context.Context, granter Viewer, np NewPermission, validate *validator.Validate) (AdminPermission, error) {
	np.Clean()
	if err := validate.Struct(np); err != nil {
		return AdminPermission{}, err
	}

	admin, err := svc.users.GetUser(ctx, user.GetFilter{ID: np.AdminID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return AdminPermission{}, core.NewValidationError(err, core.FieldError{Field: "admin_id", Error: "invalid value"})
		}
		return AdminPermission{}, errors.Wrap(err, "finding admin")
	}
	if admin.Role != np.Role {
		return AdminPermission{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "role does not match the user's role"})
	}

	switch np.Role {
	case user.RoleDistrictAdmin:
		if granter.User.Role != user.RoleDistrictAdmin || !granter.Scope.Contains("", np.SchoolDistrict) {
			return AdminPermission{}, core.ErrForbidden
		}
		np.SchoolSite = ""
	case user.RoleSiteAdmin:
		if !granter.Manages(np.SchoolSite, np.SchoolDistrict) {
			return AdminPermission{}, core.ErrForbidden
		}
	}

	perm, err := svc.repo.CreatePermission(ctx, AdminPermission{
		AdminID:        np.AdminID,
		Role:           np.Role,
		SchoolSite:     np.SchoolSite,
		SchoolDistrict: np.SchoolDistrict,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return AdminPermission{}, err
	}
	svc.scopeChanged(ctx)
	return perm, nil
}

func (svc *service) Revoke(ctx context.Context, granter Viewer, id string) error {
	perm, err := svc.repo.GetPermission(ctx, id)
	if err != nil {
		return err
	}
	if perm.AdminID == granter.User.ID {
		return core.ErrForbidden // no self-demotion
	}
	if !granter.Manages(perm.SchoolSite, perm.SchoolDistrict) {
		return core.ErrForbidden
	}
	if err = svc.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	svc.scopeChanged(ctx)
	return nil
}

func (svc *service) ForAdmin(ctx context.Context, adminID string) ([]AdminPermission, error) {
	return svc.repo.QueryPermissions(ctx, adminID)
}

func (svc *service) Viewer(ctx context.Context, usr user.User) (Viewer, error) {
	v := Viewer{User: usr}
	if !usr.IsAdmin() {
		return v, nil
	}
	perms, err := svc.repo.QueryPermissions(ctx, usr.ID)
	if err != nil {
		return Viewer{}, errors.Wrap(err, "querying admin permissions")
	}
	v.Scope = NewScope(perms)
	return v, nil
}
