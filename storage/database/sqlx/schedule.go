package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
)

const (
	bellColumns     = `id, provider_id, grade_levels, day_of_week, start_time, end_time, period_name, school_site, created_at`
	activityColumns = `id, provider_id, teacher_name, day_of_week, start_time, end_time, activity_name, school_site, created_at`
	hoursColumns    = `id, provider_id, school_site, day_of_week, grade_level, start_time, end_time, updated_at`
	holidayColumns  = `id, school_site, date, name, created_at`
	sessionColumns  = `id, provider_id, student_id, day_of_week, start_time, end_time, service_type, delivered_by,
	assigned_to_sea_id, assigned_to_specialist_id, template_id, session_date, original_date, status, notes,
	manually_modified, created_at, updated_at`
)

type bellRow struct {
	ID          string             `db:"id"`
	ProviderID  string             `db:"provider_id"`
	GradeLevels pq.StringArray     `db:"grade_levels"`
	DayOfWeek   int                `db:"day_of_week"`
	Start       schedule.TimeOfDay `db:"start_time"`
	End         schedule.TimeOfDay `db:"end_time"`
	PeriodName  string             `db:"period_name"`
	SchoolSite  null.String        `db:"school_site"`
	CreatedAt   time.Time          `db:"created_at"`
}

func (r bellRow) bell() schedule.BellSchedule {
	return schedule.BellSchedule{
		ID:          r.ID,
		ProviderID:  r.ProviderID,
		GradeLevels: []string(r.GradeLevels),
		DayOfWeek:   r.DayOfWeek,
		Start:       r.Start,
		End:         r.End,
		PeriodName:  r.PeriodName,
		SchoolSite:  r.SchoolSite.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type activityRow struct {
	ID           string             `db:"id"`
	ProviderID   string             `db:"provider_id"`
	TeacherName  string             `db:"teacher_name"`
	DayOfWeek    int                `db:"day_of_week"`
	Start        schedule.TimeOfDay `db:"start_time"`
	End          schedule.TimeOfDay `db:"end_time"`
	ActivityName string             `db:"activity_name"`
	SchoolSite   null.String        `db:"school_site"`
	CreatedAt    time.Time          `db:"created_at"`
}

func (r activityRow) activity() schedule.SpecialActivity {
	return schedule.SpecialActivity{
		ID:           r.ID,
		ProviderID:   r.ProviderID,
		TeacherName:  r.TeacherName,
		DayOfWeek:    r.DayOfWeek,
		Start:        r.Start,
		End:          r.End,
		ActivityName: r.ActivityName,
		SchoolSite:   r.SchoolSite.String,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type hoursRow struct {
	ID         string             `db:"id"`
	ProviderID string             `db:"provider_id"`
	SchoolSite string             `db:"school_site"`
	DayOfWeek  int                `db:"day_of_week"`
	GradeLevel string             `db:"grade_level"`
	Start      schedule.TimeOfDay `db:"start_time"`
	End        schedule.TimeOfDay `db:"end_time"`
	UpdatedAt  time.Time          `db:"updated_at"`
}

func (r hoursRow) hours() schedule.SchoolHours {
	return schedule.SchoolHours{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		SchoolSite: r.SchoolSite,
		DayOfWeek:  r.DayOfWeek,
		GradeLevel: r.GradeLevel,
		Start:      r.Start,
		End:        r.End,
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type holidayRow struct {
	ID         string    `db:"id"`
	SchoolSite string    `db:"school_site"`
	Date       core.Date `db:"date"`
	Name       string    `db:"name"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r holidayRow) holiday() schedule.Holiday {
	return schedule.Holiday{
		ID:         r.ID,
		SchoolSite: r.SchoolSite,
		Date:       r.Date,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type sessionRow struct {
	ID                     string             `db:"id"`
	ProviderID             string             `db:"provider_id"`
	StudentID              string             `db:"student_id"`
	DayOfWeek              int                `db:"day_of_week"`
	Start                  schedule.TimeOfDay `db:"start_time"`
	End                    schedule.TimeOfDay `db:"end_time"`
	ServiceType            string             `db:"service_type"`
	DeliveredBy            string             `db:"delivered_by"`
	AssignedToSEAID        null.String        `db:"assigned_to_sea_id"`
	AssignedToSpecialistID null.String        `db:"assigned_to_specialist_id"`
	TemplateID             null.String        `db:"template_id"`
	SessionDate            null.Time          `db:"session_date"`
	OriginalDate           null.Time          `db:"original_date"`
	Status                 string             `db:"status"`
	Notes                  null.String        `db:"notes"`
	ManuallyModified       bool               `db:"manually_modified"`
	CreatedAt              time.Time          `db:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at"`
}

func (r sessionRow) session() schedule.Session {
	s := schedule.Session{
		ID:                     r.ID,
		ProviderID:             r.ProviderID,
		StudentID:              r.StudentID,
		DayOfWeek:              r.DayOfWeek,
		Start:                  r.Start,
		End:                    r.End,
		ServiceType:            r.ServiceType,
		DeliveredBy:            r.DeliveredBy,
		AssignedToSEAID:        r.AssignedToSEAID.String,
		AssignedToSpecialistID: r.AssignedToSpecialistID.String,
		TemplateID:             r.TemplateID.String,
		Status:                 r.Status,
		Notes:                  r.Notes.String,
		ManuallyModified:       r.ManuallyModified,
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
	if r.SessionDate.Valid {
		d := core.DateOf(r.SessionDate.Time)
		s.SessionDate = &d
	}
	if r.OriginalDate.Valid {
		d := core.DateOf(r.OriginalDate.Time)
		s.OriginalDate = &d
	}
	return s
}

// sessionArgs returns the column values of s in sessionColumns order.
func sessionArgs(s schedule.Session) []interface{} {
	return []interface{}{
		s.ID, s.ProviderID, s.StudentID, s.DayOfWeek, s.Start, s.End, s.ServiceType, s.DeliveredBy,
		nullString(s.AssignedToSEAID), nullString(s.AssignedToSpecialistID), nullString(s.TemplateID),
		nullDate(s.SessionDate), nullDate(s.OriginalDate), s.Status, nullString(s.Notes), s.ManuallyModified, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	}
}

type scheduleRepository struct {
	db core.DBExecutor
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db core.DBExecutor) schedule.Repository {
	return &scheduleRepository{db: db}
}

func (repo *scheduleRepository) exec(ctx context.Context) core.DBExecutor {
	return core.ExecutorFromContext(ctx, repo.db)
}

func itemWhere(f schedule.ItemFilter) where {
	var w where
	var conds []string
	var args []interface{}
	if len(f.ProviderIDs) > 0 {
		conds = append(conds, "provider_id::text IN (?)")
		args = append(args, f.ProviderIDs)
	}
	if len(f.SchoolSites) > 0 {
		conds = append(conds, "school_site IN (?)")
		args = append(args, f.SchoolSites)
	}
	w.anyOf(conds, args)
	if f.DayOfWeek != 0 {
		w.add("day_of_week = ?", f.DayOfWeek)
	}
	return w
}

func (repo *scheduleRepository) CreateBellSchedule(ctx context.Context, b schedule.BellSchedule) (schedule.BellSchedule, error) {
	b.ID = uuid.New().String()
	_, err := execAffected(ctx, repo.exec(ctx),
		`INSERT INTO bell_schedules (`+bellColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProviderID, pq.StringArray(b.GradeLevels), b.DayOfWeek, b.Start, b.End, b.PeriodName,
		nullString(b.SchoolSite), b.CreatedAt.UTC())
	if err != nil {
		return schedule.BellSchedule{}, errors.Wrap(err, "inserting bell schedule")
	}
	return b, nil
}

func (repo *scheduleRepository) QueryBellSchedules(ctx context.Context, f schedule.ItemFilter) ([]schedule.BellSchedule, error) {
	w := itemWhere(f)
	var rows []bellRow
	query := "SELECT " + bellColumns + " FROM bell_schedules" + w.String() + " ORDER BY day_of_week, start_time, id"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying bell schedules")
	}
	bells := make([]schedule.BellSchedule, 0, len(rows))
	for _, r := range rows {
		bells = append(bells, r.bell())
	}
	return bells, nil
}

func (repo *scheduleRepository) GetBellSchedule(ctx context.Context, id string) (schedule.BellSchedule, error) {
	var row bellRow
	if err := getOne(ctx, repo.exec(ctx), &row, "SELECT "+bellColumns+" FROM bell_schedules WHERE id = ?", id); err != nil {
		return schedule.BellSchedule{}, trapNotFound(err, schedule.ErrBellScheduleNotFound, "getting bell schedule")
	}
	return row.bell(), nil
}

func (repo *scheduleRepository) DeleteBellSchedule(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, "bell_schedules", id, schedule.ErrBellScheduleNotFound)
}

func (repo *scheduleRepository) CreateSpecialActivity(ctx context.Context, a schedule.SpecialActivity) (schedule.SpecialActivity, error) {
	a.ID = uuid.New().String()
	_, err := execAffected(ctx, repo.exec(ctx),
		`INSERT INTO special_activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProviderID, a.TeacherName, a.DayOfWeek, a.Start, a.End, a.ActivityName,
		nullString(a.SchoolSite), a.CreatedAt.UTC())
	if err != nil {
		return schedule.SpecialActivity{}, errors.Wrap(err, "inserting special activity")
	}
	return a, nil
}

func (repo *scheduleRepository) QuerySpecialActivities(ctx context.Context, f schedule.ItemFilter) ([]schedule.SpecialActivity, error) {
	w := itemWhere(f)
	var rows []activityRow
	query := "SELECT " + activityColumns + " FROM special_activities" + w.String() + " ORDER BY day_of_week, start_time, id"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying special activities")
	}
	activities := make([]schedule.SpecialActivity, 0, len(rows))
	for _, r := range rows {
		activities = append(activities, r.activity())
	}
	return activities, nil
}

func (repo *scheduleRepository) GetSpecialActivity(ctx context.Context, id string) (schedule.SpecialActivity, error) {
	var row activityRow
	if err := getOne(ctx, repo.exec(ctx), &row, "SELECT "+activityColumns+" FROM special_activities WHERE id = ?", id); err != nil {
		return schedule.SpecialActivity{}, trapNotFound(err, schedule.ErrSpecialActivityNotFound, "getting special activity")
	}
	return row.activity(), nil
}

func (repo *scheduleRepository) DeleteSpecialActivity(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, "special_activities", id, schedule.ErrSpecialActivityNotFound)
}

func (repo *scheduleRepository) UpsertSchoolHours(ctx context.Context, h schedule.SchoolHours) (schedule.SchoolHours, error) {
	query := `INSERT INTO school_hours (` + hoursColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, school_site, day_of_week, grade_level)
		DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, updated_at = EXCLUDED.updated_at
		RETURNING id`
	var id string
	err := getOne(ctx, repo.exec(ctx), &id, query,
		uuid.New().String(), h.ProviderID, h.SchoolSite, h.DayOfWeek, h.GradeLevel, h.Start, h.End, h.UpdatedAt.UTC())
	if err != nil {
		return schedule.SchoolHours{}, errors.Wrap(err, "upserting school hours")
	}
	h.ID = id
	return h, nil
}

func (repo *scheduleRepository) QuerySchoolHours(ctx context.Context, f schedule.ItemFilter) ([]schedule.SchoolHours, error) {
	w := itemWhere(f)
	var rows []hoursRow
	query := "SELECT " + hoursColumns + " FROM school_hours" + w.String() + " ORDER BY day_of_week, grade_level, id"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying school hours")
	}
	hours := make([]schedule.SchoolHours, 0, len(rows))
	for _, r := range rows {
		hours = append(hours, r.hours())
	}
	return hours, nil
}

func (repo *scheduleRepository) CreateHoliday(ctx context.Context, h schedule.Holiday) (schedule.Holiday, error) {
	h.ID = uuid.New().String()
	_, err := execAffected(ctx, repo.exec(ctx),
		`INSERT INTO holidays (`+holidayColumns+`) VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.SchoolSite, h.Date, h.Name, h.CreatedAt.UTC())
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return schedule.Holiday{}, schedule.ErrHolidayExists
		}
		return schedule.Holiday{}, errors.Wrap(err, "inserting holiday")
	}
	return h, nil
}

func (repo *scheduleRepository) QueryHolidays(ctx context.Context, f schedule.HolidayFilter) ([]schedule.Holiday, error) {
	var w where
	if len(f.SchoolSites) > 0 {
		w.add("(school_site = '' OR school_site IN (?))", f.SchoolSites)
	}
	if !f.From.IsZero() {
		w.add("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("date <= ?", f.To)
	}

	var rows []holidayRow
	query := "SELECT " + holidayColumns + " FROM holidays" + w.String() + " ORDER BY date, school_site"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying holidays")
	}
	holidays := make([]schedule.Holiday, 0, len(rows))
	for _, r := range rows {
		holidays = append(holidays, r.holiday())
	}
	return holidays, nil
}

func (repo *scheduleRepository) CreateSessions(ctx context.Context, sessions ...schedule.Session) ([]schedule.Session, error) {
	exec := repo.exec(ctx)
	created := make([]schedule.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		_, err := execAffected(ctx, exec,
			`INSERT INTO schedule_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionArgs(s)...)
		if err != nil {
			return nil, errors.Wrap(err, "inserting session")
		}
		created = append(created, s)
	}
	return created, nil
}

func (repo *scheduleRepository) GetSession(ctx context.Context, id string) (schedule.Session, error) {
	var row sessionRow
	if err := getOne(ctx, repo.exec(ctx), &row, "SELECT "+sessionColumns+" FROM schedule_sessions WHERE id = ?", id); err != nil {
		return schedule.Session{}, trapNotFound(err, schedule.ErrNotFound, "getting session")
	}
	return row.session(), nil
}

func sessionWhere(f schedule.SessionFilter) where {
	var w where
	if len(f.IDs) > 0 {
		w.add("id::text IN (?)", f.IDs)
	}

	var conds []string
	var args []interface{}
	if len(f.ProviderIDs) > 0 {
		conds = append(conds, "provider_id::text IN (?)")
		args = append(args, f.ProviderIDs)
	}
	if len(f.StudentIDs) > 0 {
		conds = append(conds, "student_id::text IN (?)")
		args = append(args, f.StudentIDs)
	}
	if len(f.SEAIDs) > 0 {
		conds = append(conds, "assigned_to_sea_id::text IN (?)")
		args = append(args, f.SEAIDs)
	}
	if f.Participant != "" {
		conds = append(conds, "? IN (provider_id::text, assigned_to_sea_id::text, assigned_to_specialist_id::text)")
		args = append(args, f.Participant)
	}
	w.anyOf(conds, args)

	if len(f.TemplateIDs) > 0 {
		w.add("template_id::text IN (?)", f.TemplateIDs)
	}
	if f.DayOfWeek != 0 {
		w.add("day_of_week = ?", f.DayOfWeek)
	}
	switch f.Kind {
	case schedule.KindTemplate:
		w.add("session_date IS NULL")
	case schedule.KindInstance:
		w.add("session_date IS NOT NULL")
	}
	if !f.From.IsZero() {
		w.add("(session_date IS NULL OR session_date >= ?)", f.From)
	}
	if !f.To.IsZero() {
		w.add("(session_date IS NULL OR session_date <= ?)", f.To)
	}
	if !f.OccurrenceFrom.IsZero() {
		w.add("COALESCE(original_date, session_date) >= ?", f.OccurrenceFrom)
	}
	if !f.OccurrenceTo.IsZero() {
		w.add("COALESCE(original_date, session_date) <= ?", f.OccurrenceTo)
	}
	if len(f.Statuses) > 0 {
		w.add("status IN (?)", f.Statuses)
	}
	return w
}

func (repo *scheduleRepository) QuerySessions(ctx context.Context, f schedule.SessionFilter) ([]schedule.Session, error) {
	w := sessionWhere(f)
	var rows []sessionRow
	query := "SELECT " + sessionColumns + " FROM schedule_sessions" + w.String() +
		" ORDER BY session_date NULLS FIRST, day_of_week, start_time, id"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]schedule.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo *scheduleRepository) UpdateSession(ctx context.Context, s schedule.Session) (schedule.Session, error) {
	n, err := execAffected(ctx, repo.exec(ctx),
		`UPDATE schedule_sessions SET day_of_week = ?, start_time = ?, end_time = ?, service_type = ?, delivered_by = ?,
			assigned_to_sea_id = ?, assigned_to_specialist_id = ?, session_date = ?, original_date = ?, status = ?,
			notes = ?, manually_modified = ?, updated_at = ? WHERE id = ?`,
		s.DayOfWeek, s.Start, s.End, s.ServiceType, s.DeliveredBy,
		nullString(s.AssignedToSEAID), nullString(s.AssignedToSpecialistID),
		nullDate(s.SessionDate), nullDate(s.OriginalDate), s.Status, nullString(s.Notes),
		s.ManuallyModified, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return schedule.Session{}, trapNotFound(err, schedule.ErrNotFound, "updating session")
	}
	if n == 0 {
		return schedule.Session{}, schedule.ErrNotFound
	}
	return s, nil
}

func (repo *scheduleRepository) DeleteSession(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, "schedule_sessions", id, schedule.ErrNotFound)
}

func (repo *scheduleRepository) deleteByID(ctx context.Context, table, id string, notFound error) error {
	n, err := execAffected(ctx, repo.exec(ctx), "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return trapNotFound(err, notFound, "deleting from "+table)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
