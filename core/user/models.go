package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/speddy/speddy/core"
)

// Roles
const (
	// Providers
	RoleResource   = "resource"
	RoleSpeech     = "speech"
	RoleOT         = "ot"
	RoleCounseling = "counseling"
	RoleSpecialist = "specialist"

	// Support staff
	RoleSEA     = "sea"
	RoleTeacher = "teacher"

	// Admin
	RoleSiteAdmin     = "site_admin"
	RoleDistrictAdmin = "district_admin"
)

var (
	ProviderRoles = []string{RoleResource, RoleSpeech, RoleOT, RoleCounseling, RoleSpecialist}
	AdminRoles    = []string{RoleSiteAdmin, RoleDistrictAdmin}
	AllRoles      = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleDistrictAdmin: 30,
		RoleSiteAdmin:     25,

		// Providers: 20 - 11
		RoleResource:   15,
		RoleSpeech:     15,
		RoleOT:         15,
		RoleCounseling: 15,
		RoleSpecialist: 15,

		// Support: 10 - 1
		RoleSEA:     5,
		RoleTeacher: 1,
	}

	Roles = []Role{
		{Name: "Resource Specialist", Value: RoleResource},
		{Name: "Speech Therapist", Value: RoleSpeech},
		{Name: "Occupational Therapist", Value: RoleOT},
		{Name: "Counselor", Value: RoleCounseling},
		{Name: "Program Specialist", Value: RoleSpecialist},
		{Name: "Special Education Assistant", Value: RoleSEA},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Site Admin", Value: RoleSiteAdmin},
		{Name: "District Admin", Value: RoleDistrictAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, len(rolePriorities))
	all = append(all, ProviderRoles...)
	all = append(all, RoleSEA, RoleTeacher)
	all = append(all, AdminRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	SchoolSite     string    `json:"school_site"`
	SchoolDistrict string    `json:"school_district"`
	IsActive       *bool     `json:"is_active"`
	PasswordHash   []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
	LastLogin      time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u User) IsProvider() bool { return core.StringInSlice(u.Role, ProviderRoles) }
func (u User) IsAdmin() bool    { return core.StringInSlice(u.Role, AdminRoles) }
func (u User) IsSEA() bool      { return u.Role == RoleSEA }
func (u User) IsTeacher() bool  { return u.Role == RoleTeacher }

// SameSite reports whether both users work at the same school site.
func (u User) SameSite(o User) bool {
	return u.SchoolSite != "" && u.SchoolSite == o.SchoolSite
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,allroles"`
	SchoolSite      string `json:"school_site"`
	SchoolDistrict  string `json:"school_district"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.SchoolSite = core.CleanString(nu.SchoolSite)
	nu.SchoolDistrict = core.CleanString(nu.SchoolDistrict)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            *string `json:"name"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Role            *string `json:"role" validate:"omitempty,allroles"`
	SchoolSite      *string `json:"school_site"`
	SchoolDistrict  *string `json:"school_district"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	cleanPtr := func(s *string, lower bool) {
		if s != nil {
			*s = core.CleanString(*s, lower)
		}
	}
	cleanPtr(uu.Name, false)
	cleanPtr(uu.Email, true)
	cleanPtr(uu.Role, true)
	cleanPtr(uu.SchoolSite, false)
	cleanPtr(uu.SchoolDistrict, false)

	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Name != nil && *uu.Name == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field cannot be blank"})
	}
	if uu.Email != nil && *uu.Email != origUsr.Email {
		return svc.CheckUniqueness(ctx, *uu.Email, origUsr)
	}
	return nil
}

// Apply copies the set fields onto usr.
func (uu UpdateUser) Apply(usr *User) error {
	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.Email != nil && *uu.Email != "" {
		usr.Email = *uu.Email
	}
	if uu.Role != nil && *uu.Role != "" {
		usr.Role = *uu.Role
	}
	if uu.SchoolSite != nil {
		usr.SchoolSite = *uu.SchoolSite
	}
	if uu.SchoolDistrict != nil {
		usr.SchoolDistrict = *uu.SchoolDistrict
	}
	if uu.IsActive != nil {
		usr.SetActive(*uu.IsActive)
	}
	if uu.Password != "" {
		return usr.SetPassword(uu.Password)
	}
	return nil
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search string
	Roles  []string
	// SchoolSites and SchoolDistricts are OR'ed together: a user matches if it belongs to any of them.
	SchoolSites     []string
	SchoolDistricts []string
	IsActive        *bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
