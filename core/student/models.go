package student

import (
	"strings"
	"time"

	"github.com/speddy/speddy/core"
)

// GradeLevels in school order.
var GradeLevels = []string{"TK", "K", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

// Student is a caseload entry. Only initials are stored.
type Student struct {
	ID                string    `json:"id"`
	ProviderID        string    `json:"provider_id"`
	Initials          string    `json:"initials"`
	GradeLevel        string    `json:"grade_level"`
	TeacherName       string    `json:"teacher_name"`
	SchoolSite        string    `json:"school_site"`
	SchoolDistrict    string    `json:"school_district"`
	SessionsPerWeek   int       `json:"sessions_per_week"`
	MinutesPerSession int       `json:"minutes_per_session"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type NewStudent struct {
	ProviderID        string `json:"provider_id"` // admins only; defaults to the acting user
	Initials          string `json:"initials" validate:"required,max=4,alpha"`
	GradeLevel        string `json:"grade_level" validate:"required,gradelevel"`
	TeacherName       string `json:"teacher_name"`
	SchoolSite        string `json:"school_site"`
	SessionsPerWeek   int    `json:"sessions_per_week" validate:"required,min=1,max=10"`
	MinutesPerSession int    `json:"minutes_per_session" validate:"required,min=5,max=240"`
}

func (ns *NewStudent) Clean() {
	ns.ProviderID = core.CleanString(ns.ProviderID)
	ns.Initials = NormalizeInitials(ns.Initials)
	ns.GradeLevel = NormalizeGrade(ns.GradeLevel)
	ns.TeacherName = core.CleanString(ns.TeacherName)
	ns.SchoolSite = core.CleanString(ns.SchoolSite)
}

type UpdateStudent struct {
	Initials          *string `json:"initials" validate:"omitempty,max=4,alpha"`
	GradeLevel        *string `json:"grade_level" validate:"omitempty,gradelevel"`
	TeacherName       *string `json:"teacher_name"`
	SessionsPerWeek   *int    `json:"sessions_per_week" validate:"omitempty,min=1,max=10"`
	MinutesPerSession *int    `json:"minutes_per_session" validate:"omitempty,min=5,max=240"`
}

func (us *UpdateStudent) Clean() {
	if us.Initials != nil {
		s := NormalizeInitials(*us.Initials)
		us.Initials = &s
	}
	if us.GradeLevel != nil {
		s := NormalizeGrade(*us.GradeLevel)
		us.GradeLevel = &s
	}
	if us.TeacherName != nil {
		s := core.CleanString(*us.TeacherName)
		us.TeacherName = &s
	}
}

func (us UpdateStudent) Apply(st *Student) {
	if us.Initials != nil && *us.Initials != "" {
		st.Initials = *us.Initials
	}
	if us.GradeLevel != nil && *us.GradeLevel != "" {
		st.GradeLevel = *us.GradeLevel
	}
	if us.TeacherName != nil {
		st.TeacherName = *us.TeacherName
	}
	if us.SessionsPerWeek != nil {
		st.SessionsPerWeek = *us.SessionsPerWeek
	}
	if us.MinutesPerSession != nil {
		st.MinutesPerSession = *us.MinutesPerSession
	}
}

type QueryFilter struct {
	IDs         []string
	ProviderIDs []string
	// SchoolSites and SchoolDistricts are OR'ed together.
	SchoolSites     []string
	SchoolDistricts []string
	GradeLevel      string
	TeacherName     string // case-insensitive exact match
	Search          string // initials prefix
}

// NormalizeInitials upper-cases initials and drops dots and spaces ("j. d." -> "JD").
func NormalizeInitials(s string) string {
	var b []rune
	for _, r := range core.CleanString(s) {
		if r == '.' || r == ' ' {
			continue
		}
		b = append(b, r)
	}
	return strings.ToUpper(string(b))
}

// NormalizeGrade maps the usual spellings onto GradeLevels ("k" -> "K", "01" -> "1", "tk" -> "TK").
func NormalizeGrade(s string) string {
	s = strings.ToUpper(core.CleanString(s))
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

// GradeIndex returns the position of grade in GradeLevels, or -1.
func GradeIndex(grade string) int {
	for i, g := range GradeLevels {
		if g == grade {
			return i
		}
	}
	return -1
}
