package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
)

// MaxGenerateDays bounds a single GenerateInstances call.
const MaxGenerateDays = 366

var (
	ErrInvalidDateRange = errors.New("from date must not be after to date")
	ErrDateRangeTooLong = errors.Errorf("date range must not exceed %d days", MaxGenerateDays)
)

// GenerateInstances materializes templates into dated instances for every matching date of
// [from, to]. A template yields at most one instance per week: weeks where existing already
// holds an instance of it (keyed by the instance's original date, so moved instances count)
// are skipped, as are holidays at the student's site (looked up through siteOf).
// The result is sorted by date then start.
func GenerateInstances(
	templates, existing []Session, holidays []Holiday, siteOf func(studentID string) string,
	from, to core.Date, now time.Time,
) ([]Session, error) {
	if err := CheckDateRange(from, to); err != nil {
		return nil, err
	}

	type key struct {
		templateID string
		week       string
	}
	done := make(map[key]bool, len(existing))
	for _, s := range existing {
		if s.TemplateID != "" && s.Occurrence() != nil {
			done[key{s.TemplateID, s.Occurrence().WeekStart().String()}] = true
		}
	}

	isHoliday := func(date core.Date, site string) bool {
		for _, h := range holidays {
			if h.Date.Equal(date) && h.AppliesTo(site) {
				return true
			}
		}
		return false
	}

	instances := make([]Session, 0)
	for _, date := range datesBetween(from, to) {
		weekday := date.ISOWeekday()
		for _, tmpl := range templates {
			if !tmpl.IsTemplate() || tmpl.DayOfWeek != weekday || tmpl.Status == StatusCancelled {
				continue
			}
			k := key{tmpl.ID, date.WeekStart().String()}
			if done[k] {
				continue
			}
			site := ""
			if siteOf != nil {
				site = siteOf(tmpl.StudentID)
			}
			if isHoliday(date, site) {
				continue
			}
			done[k] = true

			inst := tmpl
			d := date
			inst.ID = uuid.New().String()
			inst.TemplateID = tmpl.ID
			inst.SessionDate = &d
			inst.OriginalDate = &d
			inst.Status = StatusScheduled
			inst.ManuallyModified = false
			inst.CreatedAt = now
			inst.UpdatedAt = now
			instances = append(instances, inst)
		}
	}

	sort.SliceStable(instances, func(i, j int) bool {
		di, dj := *instances[i].SessionDate, *instances[j].SessionDate
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return instances[i].Start < instances[j].Start
	})
	return instances, nil
}

// CheckDateRange validates a [from, to] range accepted by GenerateInstances.
func CheckDateRange(from, to core.Date) error {
	if from.After(to) {
		return ErrInvalidDateRange
	}
	if int(to.Sub(from.Time).Hours()/24)+1 > MaxGenerateDays {
		return ErrDateRangeTooLong
	}
	return nil
}
