package schedule

import (
	"strings"

	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
)

// ViewMode narrows what a provider sees of its own schedule.
type ViewMode string

const (
	ViewAll  ViewMode = "all"
	ViewMine ViewMode = "mine" // sessions the provider delivers
	ViewSEA  ViewMode = "sea"  // sessions delegated to SEAs
)

func ParseViewMode(s string) (ViewMode, bool) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewAll:
		return ViewAll, true
	case ViewMine:
		return ViewMine, true
	case ViewSEA:
		return ViewSEA, true
	}
	return "", false
}

// Visible returns the sessions v may see. students resolves each session's student;
// sessions whose student is unknown are only visible to their provider and assignees.
func Visible(v school.Viewer, sessions []Session, students map[string]student.Student, mode ViewMode) []Session {
	visible := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if canSee(v, s, students, mode) {
			visible = append(visible, s)
		}
	}
	return visible
}

func canSee(v school.Viewer, s Session, students map[string]student.Student, mode ViewMode) bool {
	usr := v.User
	st, known := students[s.StudentID]

	switch {
	case usr.IsProvider():
		if s.AssignedToSpecialistID == usr.ID {
			return true
		}
		if s.ProviderID != usr.ID {
			return false
		}
		switch mode {
		case ViewMine:
			return s.DeliveredBy != DeliveredBySEA
		case ViewSEA:
			return s.DeliveredBy == DeliveredBySEA
		}
		return true
	case usr.IsSEA():
		return s.AssignedToSEAID == usr.ID
	case usr.IsTeacher():
		return known && usr.Name != "" &&
			strings.EqualFold(st.TeacherName, usr.Name) &&
			(usr.SchoolSite == "" || usr.SchoolSite == st.SchoolSite)
	case usr.IsAdmin():
		return known && v.Manages(st.SchoolSite, st.SchoolDistrict)
	}
	return false
}
