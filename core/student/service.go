package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/user"
)

var ErrNotFound = core.NewNotFoundError("student")

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		UpdateStudent(ctx context.Context, st Student) (Student, error)
		// DeleteStudent also deletes the student's sessions and attendance.
		DeleteStudent(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, v school.Viewer, ns NewStudent) (Student, error)
		Query(ctx context.Context, v school.Viewer, filter QueryFilter) ([]Student, error)
		Get(ctx context.Context, v school.Viewer, id string) (Student, error)
		Update(ctx context.Context, v school.Viewer, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, v school.Viewer, id string) error
	}

	service struct {
		repo     Repository
		users    user.Repository
		cache    core.Cache
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

// NewService returns the caseload service. The schedule generation in cache is bumped
// whenever a student is updated or deleted.
func NewService(repo Repository, users user.Repository, cache core.Cache, validate *validator.Validate) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	return &service{repo: repo, users: users, cache: cache, validate: validate}
}

func (svc *service) invalidateSchedules(ctx context.Context) {
	_, _ = svc.cache.Incr(ctx, core.ScheduleGenerationKey)
}

// CanRead reports whether v may see st: its provider, an admin of its site,
// or support staff (SEA, teacher) working at the same site.
func CanRead(v school.Viewer, st Student) bool {
	if v.CanAccess(st.ProviderID, st.SchoolSite, st.SchoolDistrict) {
		return true
	}
	return (v.User.IsSEA() || v.User.IsTeacher()) && v.User.SchoolSite != "" && v.User.SchoolSite == st.SchoolSite
}

// CanWrite reports whether v may modify st.
func CanWrite(v school.Viewer, st Student) bool {
	return v.CanAccess(st.ProviderID, st.SchoolSite, st.SchoolDistrict)
}

func (svc *service) Create(ctx context.Context, v school.Viewer, ns NewStudent) (Student, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}

	provider := v.User
	if ns.ProviderID != "" && ns.ProviderID != v.User.ID {
		p, err := svc.users.GetUser(ctx, user.GetFilter{ID: ns.ProviderID})
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return Student{}, core.NewValidationError(err, core.FieldError{Field: "provider_id", Error: "invalid value"})
			}
			return Student{}, errors.Wrap(err, "finding provider")
		}
		if !v.Manages(p.SchoolSite, p.SchoolDistrict) {
			return Student{}, core.ErrForbidden
		}
		provider = p
	}
	if !provider.IsProvider() {
		return Student{}, core.NewValidationError(nil, core.FieldError{Field: "provider_id", Error: "only service providers have a caseload"})
	}

	site := provider.SchoolSite
	if ns.SchoolSite != "" {
		site = ns.SchoolSite
	}
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		ProviderID:        provider.ID,
		Initials:          ns.Initials,
		GradeLevel:        ns.GradeLevel,
		TeacherName:       ns.TeacherName,
		SchoolSite:        site,
		SchoolDistrict:    provider.SchoolDistrict,
		SessionsPerWeek:   ns.SessionsPerWeek,
		MinutesPerSession: ns.MinutesPerSession,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

// Query narrows filter to what v may read.
func (svc *service) Query(ctx context.Context, v school.Viewer, filter QueryFilter) ([]Student, error) {
	switch {
	case v.User.IsAdmin():
		if v.Scope.IsEmpty() {
			return []Student{}, nil
		}
		filter.SchoolSites = v.Scope.Sites
		filter.SchoolDistricts = v.Scope.Districts
	case v.User.IsProvider():
		filter.ProviderIDs = []string{v.User.ID}
	default:
		if v.User.SchoolSite == "" {
			return []Student{}, nil
		}
		filter.SchoolSites = []string{v.User.SchoolSite}
		filter.SchoolDistricts = nil
	}
	filter.Search = NormalizeInitials(filter.Search)
	filter.GradeLevel = NormalizeGrade(filter.GradeLevel)
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *service) Get(ctx context.Context, v school.Viewer, id string) (Student, error) {
	st, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if !CanRead(v, st) {
		return Student{}, ErrNotFound
	}
	return st, nil
}

func (svc *service) Update(ctx context.Context, v school.Viewer, id string, us UpdateStudent) (Student, error) {
	st, err := svc.Get(ctx, v, id)
	if err != nil {
		return Student{}, err
	}
	if !CanWrite(v, st) {
		return Student{}, core.ErrForbidden
	}
	us.Clean()
	if err = svc.validate.Struct(us); err != nil {
		return Student{}, err
	}
	us.Apply(&st)
	st.UpdatedAt = time.Now().UTC()
	if st, err = svc.repo.UpdateStudent(ctx, st); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	svc.invalidateSchedules(ctx)
	return st, nil
}

func (svc *service) Delete(ctx context.Context, v school.Viewer, id string) error {
	st, err := svc.Get(ctx, v, id)
	if err != nil {
		return err
	}
	if !CanWrite(v, st) {
		return core.ErrForbidden
	}
	if err = svc.repo.DeleteStudent(ctx, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	svc.invalidateSchedules(ctx)
	return nil
}
