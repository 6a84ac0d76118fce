package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
)

const permissionColumns = `id, admin_id, role, school_site, school_district, created_at`

type permissionRow struct {
	ID             string      `db:"id"`
	AdminID        string      `db:"admin_id"`
	Role           string      `db:"role"`
	SchoolSite     null.String `db:"school_site"`
	SchoolDistrict null.String `db:"school_district"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (r permissionRow) permission() school.AdminPermission {
	return school.AdminPermission{
		ID:             r.ID,
		AdminID:        r.AdminID,
		Role:           r.Role,
		SchoolSite:     r.SchoolSite.String,
		SchoolDistrict: r.SchoolDistrict.String,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type schoolRepository struct {
	db core.DBExecutor
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db core.DBExecutor) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) exec(ctx context.Context) core.DBExecutor {
	return core.ExecutorFromContext(ctx, repo.db)
}

func (repo *schoolRepository) CreatePermission(ctx context.Context, perm school.AdminPermission) (school.AdminPermission, error) {
	perm.ID = uuid.New().String()
	_, err := execAffected(ctx, repo.exec(ctx),
		`INSERT INTO admin_permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		perm.ID, perm.AdminID, perm.Role, nullString(perm.SchoolSite), nullString(perm.SchoolDistrict), perm.CreatedAt.UTC())
	if err != nil {
		return school.AdminPermission{}, errors.Wrap(err, "inserting admin permission")
	}
	return perm, nil
}

func (repo *schoolRepository) QueryPermissions(ctx context.Context, adminID string) ([]school.AdminPermission, error) {
	var w where
	if adminID != "" {
		w.add("admin_id = ?", adminID)
	}

	var rows []permissionRow
	query := "SELECT " + permissionColumns + " FROM admin_permissions" + w.String() + " ORDER BY created_at, id"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		if pqCode(err) == pqInvalidTextRepr {
			return []school.AdminPermission{}, nil
		}
		return nil, errors.Wrap(err, "querying admin permissions")
	}
	perms := make([]school.AdminPermission, 0, len(rows))
	for _, r := range rows {
		perms = append(perms, r.permission())
	}
	return perms, nil
}

func (repo *schoolRepository) GetPermission(ctx context.Context, id string) (school.AdminPermission, error) {
	var row permissionRow
	if err := getOne(ctx, repo.exec(ctx), &row, "SELECT "+permissionColumns+" FROM admin_permissions WHERE id = ?", id); err != nil {
		return school.AdminPermission{}, trapNotFound(err, school.ErrNotFound, "getting admin permission")
	}
	return row.permission(), nil
}

func (repo *schoolRepository) DeletePermission(ctx context.Context, id string) error {
	n, err := execAffected(ctx, repo.exec(ctx), "DELETE FROM admin_permissions WHERE id = ?", id)
	if err != nil {
		return trapNotFound(err, school.ErrNotFound, "deleting admin permission")
	}
	if n == 0 {
		return school.ErrNotFound
	}
	return nil
}
