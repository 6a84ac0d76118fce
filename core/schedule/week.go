package schedule

import (
	"sort"

	"github.com/speddy/speddy/core"
)

type DayView struct {
	DayOfWeek int       `json:"day_of_week"`
	Name      string    `json:"name"`
	Date      core.Date `json:"date"`
	Holiday   string    `json:"holiday,omitempty"`
	Sessions  []Session `json:"sessions"`
}

type WeekView struct {
	WeekStart core.Date `json:"week_start"`
	Days      []DayView `json:"days"`
}

// BuildWeek lays out the school days of the week starting at weekStart. Each day lists its
// instances, plus the templates of that weekday not yet materialized for the week. An instance
// originally placed in this week materializes its template even when it was moved elsewhere.
// Holidays empty their day. site selects the holidays that apply ("" means any).
func BuildWeek(weekStart core.Date, sessions []Session, holidays []Holiday, site string) WeekView {
	weekStart = weekStart.WeekStart()
	week := WeekView{WeekStart: weekStart, Days: make([]DayView, 0, len(Weekdays))}

	materialized := make(map[string]bool)
	for _, s := range sessions {
		if !s.IsTemplate() && s.TemplateID != "" && s.Occurrence().WeekStart().Equal(weekStart) {
			materialized[s.TemplateID] = true
		}
	}

	for i := range Weekdays {
		date := weekStart.AddDays(i)
		day := DayView{DayOfWeek: i + 1, Name: Weekdays[i], Date: date, Sessions: make([]Session, 0)}
		for _, h := range holidays {
			if h.Date.Equal(date) && (site == "" || h.AppliesTo(site)) {
				day.Holiday = h.Name
				break
			}
		}
		if day.Holiday == "" {
			day.Sessions = sessionsOn(date, sessions, materialized)
		}
		week.Days = append(week.Days, day)
	}
	return week
}

func sessionsOn(date core.Date, sessions []Session, materialized map[string]bool) []Session {
	out := make([]Session, 0)
	for _, s := range sessions {
		if s.IsTemplate() && s.DayOfWeek == date.ISOWeekday() && !materialized[s.ID] ||
			!s.IsTemplate() && s.SessionDate.Equal(date) && s.Status != StatusCancelled {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}
