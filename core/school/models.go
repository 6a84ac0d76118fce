package school

import (
	"time"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/user"
)

// AdminPermission grants an admin authority over a school site or a whole district.
type AdminPermission struct {
	ID             string    `json:"id"`
	AdminID        string    `json:"admin_id"`
	Role           string    `json:"role"`
	SchoolSite     string    `json:"school_site,omitempty"`
	SchoolDistrict string    `json:"school_district,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewPermission struct {
	AdminID        string `json:"admin_id" validate:"required"`
	Role           string `json:"role" validate:"required,oneof=site_admin district_admin"`
	SchoolSite     string `json:"school_site" validate:"required_if=Role site_admin"`
	SchoolDistrict string `json:"school_district" validate:"required_if=Role district_admin"`
}

func (np *NewPermission) Clean() {
	np.AdminID = core.CleanString(np.AdminID)
	np.Role = core.CleanString(np.Role, true /* lower */)
	np.SchoolSite = core.CleanString(np.SchoolSite)
	np.SchoolDistrict = core.CleanString(np.SchoolDistrict)
}

// Scope is the set of sites and districts an admin may manage.
type Scope struct {
	Sites     []string `json:"sites"`
	Districts []string `json:"districts"`
}

// NewScope builds the Scope granted by perms.
func NewScope(perms []AdminPermission) Scope {
	var s Scope
	for _, p := range perms {
		switch p.Role {
		case user.RoleDistrictAdmin:
			if p.SchoolDistrict != "" && !core.StringInSlice(p.SchoolDistrict, s.Districts) {
				s.Districts = append(s.Districts, p.SchoolDistrict)
			}
		case user.RoleSiteAdmin:
			if p.SchoolSite != "" && !core.StringInSlice(p.SchoolSite, s.Sites) {
				s.Sites = append(s.Sites, p.SchoolSite)
			}
		}
	}
	return s
}

func (s Scope) IsEmpty() bool {
	return len(s.Sites) == 0 && len(s.Districts) == 0
}

// Contains reports whether a resource at site (in district) falls within the scope.
func (s Scope) Contains(site, district string) bool {
	if site != "" && core.StringInSlice(site, s.Sites) {
		return true
	}
	return district != "" && core.StringInSlice(district, s.Districts)
}

// Viewer is the acting user together with the admin scope it was granted.
type Viewer struct {
	User  user.User
	Scope Scope
}

func (v Viewer) ID() string { return v.User.ID }

// Manages reports whether the viewer administers resources at site/district.
func (v Viewer) Manages(site, district string) bool {
	return v.User.IsAdmin() && v.Scope.Contains(site, district)
}

// CanAccess reports whether the viewer owns a resource or administers its site.
func (v Viewer) CanAccess(ownerID, site, district string) bool {
	return v.User.ID == ownerID || v.Manages(site, district)
}
