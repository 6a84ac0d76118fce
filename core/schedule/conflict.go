package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/student"
)

// ConflictInput is everything DetectConflicts looks at. Callers load the items of the
// candidate's day; items of other days are ignored anyway.
type ConflictInput struct {
	Candidate         Session
	Student           student.Student
	BellSchedules     []BellSchedule
	SpecialActivities []SpecialActivity
	SchoolHours       []SchoolHours
	Holidays          []Holiday
	// Sessions may include the candidate itself, its template and its instances.
	Sessions []Session
	// MaxConcurrent caps the provider's overlapping sessions. Zero disables the check.
	MaxConcurrent int
}

// DetectConflicts returns every reason the candidate cannot be scheduled, sorted by kind then start.
func DetectConflicts(in ConflictInput) []Conflict {
	cand := in.Candidate
	rng := cand.Range()
	conflicts := make([]Conflict, 0)

	if !rng.Valid() {
		conflicts = append(conflicts, Conflict{
			Kind:        ConflictInvalidRange,
			Start:       cand.Start,
			End:         cand.End,
			Description: fmt.Sprintf("start time %s must be before end time %s", cand.Start, cand.End),
		})
		return conflicts
	}

	if !cand.IsTemplate() {
		for _, h := range in.Holidays {
			if h.Date.Equal(*cand.SessionDate) && h.AppliesTo(in.Student.SchoolSite) {
				conflicts = append(conflicts, Conflict{
					Kind:        ConflictHoliday,
					Start:       cand.Start,
					End:         cand.End,
					Description: fmt.Sprintf("%s is a holiday (%s)", h.Date, h.Name),
					RefID:       h.ID,
				})
			}
		}
	}

	if hours, ok := hoursFor(in.SchoolHours, cand.DayOfWeek, in.Student); ok && !hours.Range().Contains(rng) {
		conflicts = append(conflicts, Conflict{
			Kind:        ConflictSchoolHours,
			Start:       hours.Start,
			End:         hours.End,
			Description: fmt.Sprintf("outside school hours (%s) for grade %s", hours.Range(), in.Student.GradeLevel),
			RefID:       hours.ID,
		})
	}

	for _, b := range in.BellSchedules {
		if b.DayOfWeek != cand.DayOfWeek || !sameSite(b.SchoolSite, in.Student.SchoolSite) {
			continue
		}
		if b.AppliesTo(in.Student.GradeLevel) && b.Range().Overlaps(rng) {
			conflicts = append(conflicts, Conflict{
				Kind:        ConflictBellSchedule,
				Start:       b.Start,
				End:         b.End,
				Description: fmt.Sprintf("%s for grade %s (%s)", b.PeriodName, in.Student.GradeLevel, b.Range()),
				RefID:       b.ID,
			})
		}
	}

	if in.Student.TeacherName != "" {
		for _, a := range in.SpecialActivities {
			if a.DayOfWeek != cand.DayOfWeek || !sameSite(a.SchoolSite, in.Student.SchoolSite) {
				continue
			}
			if strings.EqualFold(a.TeacherName, in.Student.TeacherName) && a.Range().Overlaps(rng) {
				conflicts = append(conflicts, Conflict{
					Kind:        ConflictSpecialActivity,
					Start:       a.Start,
					End:         a.End,
					Description: fmt.Sprintf("%s with %s (%s)", a.ActivityName, a.TeacherName, a.Range()),
					RefID:       a.ID,
				})
			}
		}
	}

	concurrent := 0
	for _, other := range occurrences(cand, in.Sessions) {
		if !other.Range().Overlaps(rng) {
			continue
		}
		if other.StudentID == cand.StudentID {
			conflicts = append(conflicts, Conflict{
				Kind:        ConflictStudentSession,
				Start:       other.Start,
				End:         other.End,
				Description: fmt.Sprintf("student already has a %s session (%s)", other.ServiceType, other.Range()),
				RefID:       other.ID,
			})
		}
		if cand.AssignedToSEAID != "" && other.AssignedToSEAID == cand.AssignedToSEAID {
			conflicts = append(conflicts, Conflict{
				Kind:        ConflictSEASession,
				Start:       other.Start,
				End:         other.End,
				Description: fmt.Sprintf("assigned SEA is busy (%s)", other.Range()),
				RefID:       other.ID,
			})
		}
		if other.ProviderID == cand.ProviderID && other.DeliveredBy == DeliveredByProvider {
			concurrent++
		}
	}
	if in.MaxConcurrent > 0 && cand.DeliveredBy == DeliveredByProvider && concurrent >= in.MaxConcurrent {
		conflicts = append(conflicts, Conflict{
			Kind:        ConflictProviderCapacity,
			Start:       cand.Start,
			End:         cand.End,
			Description: fmt.Sprintf("provider already has %d overlapping sessions (max %d)", concurrent, in.MaxConcurrent),
		})
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		ki, kj := conflictOrder[conflicts[i].Kind], conflictOrder[conflicts[j].Kind]
		if ki != kj {
			return ki < kj
		}
		return conflicts[i].Start < conflicts[j].Start
	})
	return conflicts
}

// hoursFor picks the school hours of the student's grade on day, falling back to the default row.
func hoursFor(hours []SchoolHours, day int, st student.Student) (SchoolHours, bool) {
	var fallback *SchoolHours
	for i, h := range hours {
		if h.DayOfWeek != day || !sameSite(h.SchoolSite, st.SchoolSite) {
			continue
		}
		if strings.EqualFold(h.GradeLevel, st.GradeLevel) {
			return h, true
		}
		if h.GradeLevel == DefaultGrade && fallback == nil {
			fallback = &hours[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return SchoolHours{}, false
}

// sameSite treats items without a site as applying everywhere.
func sameSite(itemSite, studentSite string) bool {
	return itemSite == "" || studentSite == "" || itemSite == studentSite
}

// occurrences returns the sessions taking place on the candidate's day. For a dated
// candidate a template only counts when it has no instance in that week. The candidate,
// its template, its own instances and cancelled sessions are left out.
func occurrences(cand Session, sessions []Session) []Session {
	skip := func(s Session) bool {
		if s.Status == StatusCancelled {
			return true
		}
		if cand.ID != "" && (s.ID == cand.ID || s.TemplateID == cand.ID) {
			return true
		}
		return cand.TemplateID != "" && s.ID == cand.TemplateID
	}

	out := make([]Session, 0, len(sessions))
	if cand.IsTemplate() {
		for _, s := range sessions {
			if skip(s) {
				continue
			}
			if s.IsTemplate() && s.DayOfWeek == cand.DayOfWeek ||
				!s.IsTemplate() && s.TemplateID == "" && s.SessionDate.ISOWeekday() == cand.DayOfWeek {
				out = append(out, s)
			}
		}
		return out
	}

	date := *cand.SessionDate
	materialized := make(map[string]bool)
	for _, s := range sessions {
		if !s.IsTemplate() && s.TemplateID != "" && s.Occurrence().WeekStart().Equal(date.WeekStart()) {
			materialized[s.TemplateID] = true
		}
	}
	for _, s := range sessions {
		if skip(s) {
			continue
		}
		if s.IsTemplate() && s.DayOfWeek == date.ISOWeekday() && !materialized[s.ID] ||
			!s.IsTemplate() && s.SessionDate.Equal(date) {
			out = append(out, s)
		}
	}
	return out
}

// datesBetween returns every date of [from, to].
func datesBetween(from, to core.Date) []core.Date {
	var dates []core.Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}
