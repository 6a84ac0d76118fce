package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
)

type scheduleRepository struct {
	db *DB
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db *DB) schedule.Repository {
	return &scheduleRepository{db: db}
}

func matchItem(providerID, site string, day int, f schedule.ItemFilter) bool {
	if f.DayOfWeek != 0 && day != f.DayOfWeek {
		return false
	}
	if len(f.ProviderIDs) == 0 && len(f.SchoolSites) == 0 {
		return true
	}
	return inSlice(providerID, f.ProviderIDs) || site != "" && inSlice(site, f.SchoolSites)
}

func (repo *scheduleRepository) CreateBellSchedule(_ context.Context, b schedule.BellSchedule) (schedule.BellSchedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	b.ID = uuid.New().String()
	b.GradeLevels = append([]string(nil), b.GradeLevels...)
	repo.db.t.bells[b.ID] = b
	return b, nil
}

func (repo *scheduleRepository) QueryBellSchedules(_ context.Context, f schedule.ItemFilter) ([]schedule.BellSchedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	bells := make([]schedule.BellSchedule, 0)
	for _, b := range repo.db.t.bells {
		if matchItem(b.ProviderID, b.SchoolSite, b.DayOfWeek, f) {
			bells = append(bells, b)
		}
	}
	sort.Slice(bells, func(i, j int) bool {
		return lessSlot(bells[i].DayOfWeek, bells[i].Start, bells[i].ID, bells[j].DayOfWeek, bells[j].Start, bells[j].ID)
	})
	return bells, nil
}

func (repo *scheduleRepository) GetBellSchedule(_ context.Context, id string) (schedule.BellSchedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if b, ok := repo.db.t.bells[id]; ok {
		return b, nil
	}
	return schedule.BellSchedule{}, schedule.ErrBellScheduleNotFound
}

func (repo *scheduleRepository) DeleteBellSchedule(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.bells[id]; !ok {
		return schedule.ErrBellScheduleNotFound
	}
	delete(repo.db.t.bells, id)
	return nil
}

func (repo *scheduleRepository) CreateSpecialActivity(_ context.Context, a schedule.SpecialActivity) (schedule.SpecialActivity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a.ID = uuid.New().String()
	repo.db.t.activities[a.ID] = a
	return a, nil
}

func (repo *scheduleRepository) QuerySpecialActivities(_ context.Context, f schedule.ItemFilter) ([]schedule.SpecialActivity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	activities := make([]schedule.SpecialActivity, 0)
	for _, a := range repo.db.t.activities {
		if matchItem(a.ProviderID, a.SchoolSite, a.DayOfWeek, f) {
			activities = append(activities, a)
		}
	}
	sort.Slice(activities, func(i, j int) bool {
		return lessSlot(activities[i].DayOfWeek, activities[i].Start, activities[i].ID, activities[j].DayOfWeek, activities[j].Start, activities[j].ID)
	})
	return activities, nil
}

func (repo *scheduleRepository) GetSpecialActivity(_ context.Context, id string) (schedule.SpecialActivity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.t.activities[id]; ok {
		return a, nil
	}
	return schedule.SpecialActivity{}, schedule.ErrSpecialActivityNotFound
}

func (repo *scheduleRepository) DeleteSpecialActivity(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.activities[id]; !ok {
		return schedule.ErrSpecialActivityNotFound
	}
	delete(repo.db.t.activities, id)
	return nil
}

func (repo *scheduleRepository) UpsertSchoolHours(_ context.Context, h schedule.SchoolHours) (schedule.SchoolHours, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	h.ID = ""
	for id, existing := range repo.db.t.hours {
		if existing.ProviderID == h.ProviderID && existing.SchoolSite == h.SchoolSite &&
			existing.DayOfWeek == h.DayOfWeek && existing.GradeLevel == h.GradeLevel {
			h.ID = id
			break
		}
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	repo.db.t.hours[h.ID] = h
	return h, nil
}

func (repo *scheduleRepository) QuerySchoolHours(_ context.Context, f schedule.ItemFilter) ([]schedule.SchoolHours, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	hours := make([]schedule.SchoolHours, 0)
	for _, h := range repo.db.t.hours {
		if matchItem(h.ProviderID, h.SchoolSite, h.DayOfWeek, f) {
			hours = append(hours, h)
		}
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].DayOfWeek != hours[j].DayOfWeek {
			return hours[i].DayOfWeek < hours[j].DayOfWeek
		}
		if hours[i].GradeLevel != hours[j].GradeLevel {
			return hours[i].GradeLevel < hours[j].GradeLevel
		}
		return hours[i].ID < hours[j].ID
	})
	return hours, nil
}

func (repo *scheduleRepository) CreateHoliday(_ context.Context, h schedule.Holiday) (schedule.Holiday, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.t.holidays {
		if existing.SchoolSite == h.SchoolSite && existing.Date.Equal(h.Date) {
			return schedule.Holiday{}, schedule.ErrHolidayExists
		}
	}
	h.ID = uuid.New().String()
	repo.db.t.holidays[h.ID] = h
	return h, nil
}

func inDateRange(d, from, to core.Date) bool {
	return (from.IsZero() || !d.Before(from)) && (to.IsZero() || !d.After(to))
}

func (repo *scheduleRepository) QueryHolidays(_ context.Context, f schedule.HolidayFilter) ([]schedule.Holiday, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	holidays := make([]schedule.Holiday, 0)
	for _, h := range repo.db.t.holidays {
		if len(f.SchoolSites) > 0 && h.SchoolSite != "" && !inSlice(h.SchoolSite, f.SchoolSites) {
			continue
		}
		if !inDateRange(h.Date, f.From, f.To) {
			continue
		}
		holidays = append(holidays, h)
	}
	sort.Slice(holidays, func(i, j int) bool {
		if !holidays[i].Date.Equal(holidays[j].Date) {
			return holidays[i].Date.Before(holidays[j].Date)
		}
		return holidays[i].SchoolSite < holidays[j].SchoolSite
	})
	return holidays, nil
}

func cloneSession(s schedule.Session) schedule.Session {
	if s.SessionDate != nil {
		d := *s.SessionDate
		s.SessionDate = &d
	}
	if s.OriginalDate != nil {
		d := *s.OriginalDate
		s.OriginalDate = &d
	}
	return s
}

func (repo *scheduleRepository) CreateSessions(_ context.Context, sessions ...schedule.Session) ([]schedule.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// check constraints before inserting anything
	for i, s := range sessions {
		if _, ok := repo.db.t.students[s.StudentID]; !ok {
			return nil, errors.Errorf("session %d: unknown student %s", i, s.StudentID)
		}
		if s.TemplateID == "" || s.SessionDate == nil {
			continue
		}
		if _, ok := repo.db.t.sessions[s.TemplateID]; !ok {
			return nil, errors.Errorf("session %d: unknown template %s", i, s.TemplateID)
		}
		for _, existing := range repo.db.t.sessions {
			if existing.TemplateID == s.TemplateID && existing.SessionDate != nil && existing.Occurrence().Equal(*s.Occurrence()) {
				return nil, errors.Errorf("session %d: duplicate instance of %s on %s", i, s.TemplateID, s.Occurrence())
			}
		}
	}

	created := make([]schedule.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		s = cloneSession(s)
		repo.db.t.sessions[s.ID] = s
		created = append(created, cloneSession(s))
	}
	return created, nil
}

func (repo *scheduleRepository) GetSession(_ context.Context, id string) (schedule.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.t.sessions[id]; ok {
		return cloneSession(s), nil
	}
	return schedule.Session{}, schedule.ErrNotFound
}

func matchSession(s schedule.Session, f schedule.SessionFilter) bool {
	if len(f.IDs) > 0 && !inSlice(s.ID, f.IDs) {
		return false
	}
	if len(f.ProviderIDs) > 0 || len(f.StudentIDs) > 0 || len(f.SEAIDs) > 0 || f.Participant != "" {
		involved := inSlice(s.ProviderID, f.ProviderIDs) ||
			inSlice(s.StudentID, f.StudentIDs) ||
			s.AssignedToSEAID != "" && inSlice(s.AssignedToSEAID, f.SEAIDs) ||
			f.Participant != "" && (s.ProviderID == f.Participant || s.AssignedToSEAID == f.Participant || s.AssignedToSpecialistID == f.Participant)
		if !involved {
			return false
		}
	}
	if len(f.TemplateIDs) > 0 && !inSlice(s.TemplateID, f.TemplateIDs) {
		return false
	}
	if f.DayOfWeek != 0 && s.DayOfWeek != f.DayOfWeek {
		return false
	}
	switch f.Kind {
	case schedule.KindTemplate:
		if !s.IsTemplate() {
			return false
		}
	case schedule.KindInstance:
		if s.IsTemplate() {
			return false
		}
	}
	if !s.IsTemplate() && !inDateRange(*s.SessionDate, f.From, f.To) {
		return false
	}
	if !f.OccurrenceFrom.IsZero() || !f.OccurrenceTo.IsZero() {
		if s.IsTemplate() || !inDateRange(*s.Occurrence(), f.OccurrenceFrom, f.OccurrenceTo) {
			return false
		}
	}
	if len(f.Statuses) > 0 && !inSlice(s.Status, f.Statuses) {
		return false
	}
	return true
}

func (repo *scheduleRepository) QuerySessions(_ context.Context, f schedule.SessionFilter) ([]schedule.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sessions := make([]schedule.Session, 0)
	for _, s := range repo.db.t.sessions {
		if matchSession(s, f) {
			sessions = append(sessions, cloneSession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.IsTemplate() != b.IsTemplate() {
			return a.IsTemplate()
		}
		if !a.IsTemplate() && !a.SessionDate.Equal(*b.SessionDate) {
			return a.SessionDate.Before(*b.SessionDate)
		}
		return lessSlot(a.DayOfWeek, a.Start, a.ID, b.DayOfWeek, b.Start, b.ID)
	})
	return sessions, nil
}

func (repo *scheduleRepository) UpdateSession(_ context.Context, s schedule.Session) (schedule.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.sessions[s.ID]; !ok {
		return schedule.Session{}, schedule.ErrNotFound
	}
	repo.db.t.sessions[s.ID] = cloneSession(s)
	return s, nil
}

func (repo *scheduleRepository) DeleteSession(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.sessions[id]; !ok {
		return schedule.ErrNotFound
	}
	repo.db.deleteSession(id)
	return nil
}

func lessSlot(dayA int, startA schedule.TimeOfDay, idA string, dayB int, startB schedule.TimeOfDay, idB string) bool {
	if dayA != dayB {
		return dayA < dayB
	}
	if startA != startB {
		return startA < startB
	}
	return idA < idB
}
