package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/user"
)

const userColumns = `id, name, email, role, school_site, school_district, is_active, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Email          string      `db:"email"`
	Role           string      `db:"role"`
	SchoolSite     null.String `db:"school_site"`
	SchoolDistrict null.String `db:"school_district"`
	IsActive       bool        `db:"is_active"`
	PasswordHash   []byte      `db:"password_hash"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	LastLogin      null.Time   `db:"last_login"`
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		Role:           r.Role,
		SchoolSite:     r.SchoolSite.String,
		SchoolDistrict: r.SchoolDistrict.String,
		PasswordHash:   r.PasswordHash,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		LastLogin:      r.LastLogin.Time.UTC(),
	}
	usr.SetActive(r.IsActive)
	return usr
}

// userOrderColumns whitelists the orderable fields.
var userOrderColumns = map[string]string{
	"name":        "lower(name)",
	"email":       "lower(email)",
	"role":        "role",
	"school_site": "school_site",
	"created_at":  "created_at",
	"last_login":  "last_login",
}

type userRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DBExecutor) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) exec(ctx context.Context) core.DBExecutor {
	return core.ExecutorFromContext(ctx, repo.db)
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs []string) error {
	var w where
	w.add("lower(email) = lower(?)", email)
	if len(excludedIDs) > 0 {
		w.add("id::text NOT IN (?)", excludedIDs)
	}

	var exists bool
	if err := getOne(ctx, repo.exec(ctx), &exists, "SELECT EXISTS (SELECT 1 FROM users"+w.String()+")", w.args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	if usr.IsActive == nil {
		usr.SetActive(true)
	}
	_, err := execAffected(ctx, repo.exec(ctx),
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usr.ID, usr.Name, usr.Email, usr.Role, nullString(usr.SchoolSite), nullString(usr.SchoolDistrict),
		usr.Active(), usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), nullTime(usr.LastLogin))
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("(name ILIKE ? OR email ILIKE ?)", val, val)
		}
		if len(filter.Roles) > 0 {
			w.add("role IN (?)", filter.Roles)
		}
		var conds []string
		var args []interface{}
		if len(filter.SchoolSites) > 0 {
			conds = append(conds, "school_site IN (?)")
			args = append(args, filter.SchoolSites)
		}
		if len(filter.SchoolDistricts) > 0 {
			conds = append(conds, "school_district IN (?)")
			args = append(args, filter.SchoolDistricts)
		}
		w.anyOf(conds, args)
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := userOrderColumns[ord.Field]; ok {
			orderBy = append(orderBy, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "lower(name) ASC")
	}
	orderBy = append(orderBy, "id ASC")

	var rows []userRow
	query := "SELECT " + userColumns + " FROM users" + w.String() + " ORDER BY " + joinComma(orderBy)
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("lower(email) = lower(?)", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := getOne(ctx, repo.exec(ctx), &row, "SELECT "+userColumns+" FROM users"+w.String(), w.args...); err != nil {
		return user.User{}, trapNotFound(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	n, err := execAffected(ctx, repo.exec(ctx),
		`UPDATE users SET name = ?, email = ?, role = ?, school_site = ?, school_district = ?, is_active = ?,
			password_hash = ?, updated_at = ?, last_login = ? WHERE id = ?`,
		usr.Name, usr.Email, usr.Role, nullString(usr.SchoolSite), nullString(usr.SchoolDistrict), usr.Active(),
		usr.PasswordHash, usr.UpdatedAt.UTC(), nullTime(usr.LastLogin), usr.ID)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, trapNotFound(err, user.ErrNotFound, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := execAffected(ctx, repo.exec(ctx), "DELETE FROM users WHERE id::text IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return n, nil
}
