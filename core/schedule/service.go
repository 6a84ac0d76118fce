package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

var (
	ErrNotFound                = core.NewNotFoundError("session")
	ErrBellScheduleNotFound    = core.NewNotFoundError("bell schedule")
	ErrSpecialActivityNotFound = core.NewNotFoundError("special activity")
	ErrHolidayExists           = errors.New("a holiday already exists on this date")

	// NowFunc is overridden in tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		CreateBellSchedule(ctx context.Context, b BellSchedule) (BellSchedule, error)
		QueryBellSchedules(ctx context.Context, filter ItemFilter) ([]BellSchedule, error)
		GetBellSchedule(ctx context.Context, id string) (BellSchedule, error)
		DeleteBellSchedule(ctx context.Context, id string) error

		CreateSpecialActivity(ctx context.Context, a SpecialActivity) (SpecialActivity, error)
		QuerySpecialActivities(ctx context.Context, filter ItemFilter) ([]SpecialActivity, error)
		GetSpecialActivity(ctx context.Context, id string) (SpecialActivity, error)
		DeleteSpecialActivity(ctx context.Context, id string) error

		// UpsertSchoolHours replaces the row of the same provider, site, day and grade.
		UpsertSchoolHours(ctx context.Context, h SchoolHours) (SchoolHours, error)
		QuerySchoolHours(ctx context.Context, filter ItemFilter) ([]SchoolHours, error)

		// CreateHoliday returns ErrHolidayExists for a second holiday on the same site and date.
		CreateHoliday(ctx context.Context, h Holiday) (Holiday, error)
		QueryHolidays(ctx context.Context, filter HolidayFilter) ([]Holiday, error)

		// CreateSessions assigns IDs to sessions that have none.
		CreateSessions(ctx context.Context, sessions ...Session) ([]Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		QuerySessions(ctx context.Context, filter SessionFilter) ([]Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)
		// DeleteSession also deletes the instances of a template.
		DeleteSession(ctx context.Context, id string) error
	}

	Service interface {
		CreateBellSchedule(ctx context.Context, v school.Viewer, nb NewBellSchedule) (BellSchedule, error)
		ImportBellSchedules(ctx context.Context, v school.Viewer, r io.Reader, site string) ([]BellSchedule, error)
		QueryBellSchedules(ctx context.Context, v school.Viewer, day int) ([]BellSchedule, error)
		DeleteBellSchedule(ctx context.Context, v school.Viewer, id string) error

		CreateSpecialActivity(ctx context.Context, v school.Viewer, na NewSpecialActivity) (SpecialActivity, error)
		QuerySpecialActivities(ctx context.Context, v school.Viewer, day int) ([]SpecialActivity, error)
		DeleteSpecialActivity(ctx context.Context, v school.Viewer, id string) error

		SetSchoolHours(ctx context.Context, v school.Viewer, nh NewSchoolHours) (SchoolHours, error)
		QuerySchoolHours(ctx context.Context, v school.Viewer) ([]SchoolHours, error)

		CreateHoliday(ctx context.Context, v school.Viewer, nh NewHoliday) (Holiday, error)
		QueryHolidays(ctx context.Context, v school.Viewer, from, to core.Date) ([]Holiday, error)

		CreateSession(ctx context.Context, v school.Viewer, ns NewSession) (Session, error)
		CheckConflicts(ctx context.Context, v school.Viewer, ns NewSession) ([]Conflict, error)
		GetSession(ctx context.Context, v school.Viewer, id string) (Session, error)
		QuerySessions(ctx context.Context, v school.Viewer, q SessionQuery) ([]Session, error)
		DeleteSession(ctx context.Context, v school.Viewer, id string) error
		Move(ctx context.Context, v school.Viewer, id string, mv MoveSession) (Session, error)
		AssignSEA(ctx context.Context, v school.Viewer, id string, as AssignSession) (Session, error)
		Generate(ctx context.Context, v school.Viewer, from, to core.Date) ([]Session, error)
		// GenerateAll materializes every template; used by the admin CLI.
		GenerateAll(ctx context.Context, from, to core.Date) ([]Session, error)
		Week(ctx context.Context, v school.Viewer, weekStart core.Date, mode ViewMode) (WeekView, error)
		Suggest(ctx context.Context, v school.Viewer, studentID string, day int) ([]TimeRange, error)

		// Instance returns the instance of session id on date, materializing it from its template if needed.
		Instance(ctx context.Context, v school.Viewer, id string, date core.Date) (Session, error)
		SetStatus(ctx context.Context, v school.Viewer, id, status string) (Session, error)
		Today() core.Date
	}

	Options struct {
		// MaxConcurrent defaults to DefaultMaxConcurrent; a negative value disables the capacity check.
		MaxConcurrent         int
		DefaultSessionMinutes int
		Location              *time.Location
		CacheTTL              time.Duration
	}

	service struct {
		repo     Repository
		students student.Repository
		users    user.Repository
		tx       core.Transactor
		cache    core.Cache
		validate *validator.Validate
		opts     Options
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository, students student.Repository, users user.Repository,
	tx core.Transactor, cache core.Cache, validate *validator.Validate, opts Options,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.DefaultSessionMinutes <= 0 {
		opts.DefaultSessionMinutes = 30
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &service{
		repo:     repo,
		students: students,
		users:    users,
		tx:       tx,
		cache:    cache,
		validate: validate,
		opts:     opts,
	}
}

// Today is the current date in the schedule's time zone.
func (svc *service) Today() core.Date {
	return core.DateOf(NowFunc().In(svc.opts.Location))
}

// invalidate drops every cached schedule view. Cache errors only delay freshness until the TTL.
func (svc *service) invalidate(ctx context.Context) {
	_, _ = svc.cache.Incr(ctx, core.ScheduleGenerationKey)
}

func fieldError(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: msg})
}

func canManageItems(v school.Viewer) bool {
	return v.User.IsProvider() || v.User.IsAdmin()
}

// sitesOf lists the sites whose shared items (bell schedules, activities, holidays) v sees.
func sitesOf(v school.Viewer) []string {
	var sites []string
	if v.User.SchoolSite != "" {
		sites = append(sites, v.User.SchoolSite)
	}
	if v.User.IsAdmin() {
		for _, s := range v.Scope.Sites {
			if !core.StringInSlice(s, sites) {
				sites = append(sites, s)
			}
		}
	}
	return sites
}

// itemSite resolves the site a new item is created at.
func itemSite(v school.Viewer, site string) (string, error) {
	if site == "" || site == v.User.SchoolSite {
		return v.User.SchoolSite, nil
	}
	if !v.Manages(site, v.User.SchoolDistrict) {
		return "", core.ErrForbidden
	}
	return site, nil
}

func (svc *service) canChangeItem(v school.Viewer, ownerID, site string) bool {
	return v.User.ID == ownerID || v.Manages(site, v.User.SchoolDistrict)
}

func (svc *service) newBellSchedule(v school.Viewer, nb NewBellSchedule) (BellSchedule, error) {
	if !canManageItems(v) {
		return BellSchedule{}, core.ErrForbidden
	}
	nb.Clean()
	if err := svc.validate.Struct(nb); err != nil {
		return BellSchedule{}, err
	}
	site, err := itemSite(v, nb.SchoolSite)
	if err != nil {
		return BellSchedule{}, err
	}
	start, _ := ParseTimeOfDay(nb.StartTime)
	end, _ := ParseTimeOfDay(nb.EndTime)
	return BellSchedule{
		ProviderID:  v.ID(),
		GradeLevels: nb.GradeLevels,
		DayOfWeek:   nb.DayOfWeek,
		Start:       start,
		End:         end,
		PeriodName:  nb.PeriodName,
		SchoolSite:  site,
		CreatedAt:   NowFunc().UTC(),
	}, nil
}

func (svc *service) CreateBellSchedule(ctx context.Context, v school.Viewer, nb NewBellSchedule) (BellSchedule, error) {
	b, err := svc.newBellSchedule(v, nb)
	if err != nil {
		return BellSchedule{}, err
	}
	if b, err = svc.repo.CreateBellSchedule(ctx, b); err != nil {
		return BellSchedule{}, errors.Wrap(err, "creating bell schedule")
	}
	svc.invalidate(ctx)
	return b, nil
}

func (svc *service) ImportBellSchedules(ctx context.Context, v school.Viewer, r io.Reader, site string) ([]BellSchedule, error) {
	rows, err := ReadBellScheduleSheet(r)
	if err != nil {
		return nil, err
	}

	bells := make([]BellSchedule, 0, len(rows))
	for _, row := range rows {
		row.Input.SchoolSite = site
		b, err := svc.newBellSchedule(v, row.Input)
		if err != nil {
			if _, ok := errors.Cause(err).(validator.ValidationErrors); ok {
				return nil, fieldError(fmt.Sprintf("row %d", row.Line), "invalid bell schedule")
			}
			return nil, err
		}
		bells = append(bells, b)
	}

	created := make([]BellSchedule, 0, len(bells))
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, b := range bells {
			b, err := svc.repo.CreateBellSchedule(ctx, b)
			if err != nil {
				return err
			}
			created = append(created, b)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "importing bell schedules")
	}
	svc.invalidate(ctx)
	return created, nil
}

func (svc *service) QueryBellSchedules(ctx context.Context, v school.Viewer, day int) ([]BellSchedule, error) {
	return svc.repo.QueryBellSchedules(ctx, ItemFilter{ProviderIDs: []string{v.ID()}, SchoolSites: sitesOf(v), DayOfWeek: day})
}

func (svc *service) DeleteBellSchedule(ctx context.Context, v school.Viewer, id string) error {
	b, err := svc.repo.GetBellSchedule(ctx, id)
	if err != nil {
		return err
	}
	if !svc.canChangeItem(v, b.ProviderID, b.SchoolSite) {
		return core.ErrForbidden
	}
	if err = svc.repo.DeleteBellSchedule(ctx, id); err != nil {
		return errors.Wrap(err, "deleting bell schedule")
	}
	svc.invalidate(ctx)
	return nil
}

func (svc *service) CreateSpecialActivity(ctx context.Context, v school.Viewer, na NewSpecialActivity) (SpecialActivity, error) {
	if !canManageItems(v) {
		return SpecialActivity{}, core.ErrForbidden
	}
	na.Clean()
	if err := svc.validate.Struct(na); err != nil {
		return SpecialActivity{}, err
	}
	site, err := itemSite(v, na.SchoolSite)
	if err != nil {
		return SpecialActivity{}, err
	}
	start, _ := ParseTimeOfDay(na.StartTime)
	end, _ := ParseTimeOfDay(na.EndTime)

	a, err := svc.repo.CreateSpecialActivity(ctx, SpecialActivity{
		ProviderID:   v.ID(),
		TeacherName:  na.TeacherName,
		DayOfWeek:    na.DayOfWeek,
		Start:        start,
		End:          end,
		ActivityName: na.ActivityName,
		SchoolSite:   site,
		CreatedAt:    NowFunc().UTC(),
	})
	if err != nil {
		return SpecialActivity{}, errors.Wrap(err, "creating special activity")
	}
	svc.invalidate(ctx)
	return a, nil
}

func (svc *service) QuerySpecialActivities(ctx context.Context, v school.Viewer, day int) ([]SpecialActivity, error) {
	return svc.repo.QuerySpecialActivities(ctx, ItemFilter{ProviderIDs: []string{v.ID()}, SchoolSites: sitesOf(v), DayOfWeek: day})
}

func (svc *service) DeleteSpecialActivity(ctx context.Context, v school.Viewer, id string) error {
	a, err := svc.repo.GetSpecialActivity(ctx, id)
	if err != nil {
		return err
	}
	if !svc.canChangeItem(v, a.ProviderID, a.SchoolSite) {
		return core.ErrForbidden
	}
	if err = svc.repo.DeleteSpecialActivity(ctx, id); err != nil {
		return errors.Wrap(err, "deleting special activity")
	}
	svc.invalidate(ctx)
	return nil
}

func (svc *service) SetSchoolHours(ctx context.Context, v school.Viewer, nh NewSchoolHours) (SchoolHours, error) {
	if !canManageItems(v) {
		return SchoolHours{}, core.ErrForbidden
	}
	nh.Clean()
	if err := svc.validate.Struct(nh); err != nil {
		return SchoolHours{}, err
	}
	site, err := itemSite(v, nh.SchoolSite)
	if err != nil {
		return SchoolHours{}, err
	}
	start, _ := ParseTimeOfDay(nh.StartTime)
	end, _ := ParseTimeOfDay(nh.EndTime)

	h, err := svc.repo.UpsertSchoolHours(ctx, SchoolHours{
		ProviderID: v.ID(),
		SchoolSite: site,
		DayOfWeek:  nh.DayOfWeek,
		GradeLevel: nh.GradeLevel,
		Start:      start,
		End:        end,
		UpdatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		return SchoolHours{}, errors.Wrap(err, "saving school hours")
	}
	svc.invalidate(ctx)
	return h, nil
}

func (svc *service) QuerySchoolHours(ctx context.Context, v school.Viewer) ([]SchoolHours, error) {
	return svc.repo.QuerySchoolHours(ctx, ItemFilter{ProviderIDs: []string{v.ID()}, SchoolSites: sitesOf(v)})
}

func (svc *service) CreateHoliday(ctx context.Context, v school.Viewer, nh NewHoliday) (Holiday, error) {
	if !canManageItems(v) {
		return Holiday{}, core.ErrForbidden
	}
	nh.Clean()
	if err := svc.validate.Struct(nh); err != nil {
		return Holiday{}, err
	}
	if nh.Date.IsZero() {
		return Holiday{}, fieldError("date", "this field is required")
	}

	site := nh.SchoolSite
	// district admins may declare holidays for every site
	if site != "" || v.User.Role != user.RoleDistrictAdmin {
		var err error
		if site, err = itemSite(v, site); err != nil {
			return Holiday{}, err
		}
	}

	h, err := svc.repo.CreateHoliday(ctx, Holiday{
		SchoolSite: site,
		Date:       nh.Date,
		Name:       nh.Name,
		CreatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrHolidayExists {
			return Holiday{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
		}
		return Holiday{}, errors.Wrap(err, "creating holiday")
	}
	svc.invalidate(ctx)
	return h, nil
}

func (svc *service) QueryHolidays(ctx context.Context, v school.Viewer, from, to core.Date) ([]Holiday, error) {
	sites := sitesOf(v)
	if len(sites) == 0 {
		sites = []string{""}
	}
	return svc.repo.QueryHolidays(ctx, HolidayFilter{SchoolSites: sites, From: from, To: to})
}

// studentFor loads the student of a session being written by v.
func (svc *service) studentFor(ctx context.Context, v school.Viewer, id string) (student.Student, error) {
	st, err := svc.students.GetStudent(ctx, id)
	if err != nil {
		return student.Student{}, err
	}
	if !student.CanRead(v, st) {
		return student.Student{}, student.ErrNotFound
	}
	if !student.CanWrite(v, st) {
		return student.Student{}, core.ErrForbidden
	}
	return st, nil
}

func (svc *service) sea(ctx context.Context, id string, provider user.User, field string) (user.User, error) {
	sea, err := svc.users.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, fieldError(field, "unknown SEA")
		}
		return user.User{}, errors.Wrap(err, "finding SEA")
	}
	if !sea.IsSEA() || !sea.Active() {
		return user.User{}, fieldError(field, "user is not an active SEA")
	}
	if !provider.SameSite(sea) {
		return user.User{}, fieldError(field, "SEA must work at the provider's school site")
	}
	return sea, nil
}

func (svc *service) specialist(ctx context.Context, id string, provider user.User, field string) (user.User, error) {
	sp, err := svc.users.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, fieldError(field, "unknown specialist")
		}
		return user.User{}, errors.Wrap(err, "finding specialist")
	}
	if !sp.IsProvider() || !sp.Active() || sp.ID == provider.ID {
		return user.User{}, fieldError(field, "user is not another active provider")
	}
	if !provider.SameSite(sp) {
		return user.User{}, fieldError(field, "specialist must work at the provider's school site")
	}
	return sp, nil
}

// buildSession validates ns and turns it into an unsaved session.
func (svc *service) buildSession(ctx context.Context, v school.Viewer, ns NewSession) (Session, student.Student, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Session{}, student.Student{}, err
	}
	if ns.AssignedToSEAID != "" && ns.AssignedToSpecialistID != "" {
		return Session{}, student.Student{}, fieldError("assigned_to_specialist_id", "a session is delivered by an SEA or a specialist, not both")
	}

	st, err := svc.studentFor(ctx, v, ns.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Session{}, student.Student{}, fieldError("student_id", "unknown student")
		}
		return Session{}, student.Student{}, err
	}
	provider, err := svc.users.GetUser(ctx, user.GetFilter{ID: st.ProviderID})
	if err != nil {
		return Session{}, student.Student{}, errors.Wrap(err, "finding provider")
	}

	start, _ := ParseTimeOfDay(ns.StartTime)
	minutes := st.MinutesPerSession
	if minutes <= 0 {
		minutes = svc.opts.DefaultSessionMinutes
	}
	end := start.Add(minutes)
	if ns.EndTime != "" {
		end, _ = ParseTimeOfDay(ns.EndTime)
	}
	if end >= Midnight {
		return Session{}, student.Student{}, fieldError("start_time", "session must end before midnight")
	}

	day := ns.DayOfWeek
	if ns.SessionDate != nil {
		wd := ns.SessionDate.ISOWeekday()
		if wd > 5 {
			return Session{}, student.Student{}, fieldError("session_date", "sessions cannot be scheduled on weekends")
		}
		if day != 0 && day != wd {
			return Session{}, student.Student{}, fieldError("day_of_week", "does not match session_date")
		}
		day = wd
	}

	serviceType := ns.ServiceType
	if serviceType == "" {
		serviceType = provider.Role
	}
	sess := Session{
		ProviderID:  provider.ID,
		StudentID:   st.ID,
		DayOfWeek:   day,
		Start:       start,
		End:         end,
		ServiceType: serviceType,
		DeliveredBy: DeliveredByProvider,
		SessionDate: ns.SessionDate,
		Status:      StatusScheduled,
		Notes:       ns.Notes,
	}
	if ns.AssignedToSEAID != "" {
		sea, err := svc.sea(ctx, ns.AssignedToSEAID, provider, "assigned_to_sea_id")
		if err != nil {
			return Session{}, student.Student{}, err
		}
		sess.AssignedToSEAID = sea.ID
		sess.DeliveredBy = DeliveredBySEA
	}
	if ns.AssignedToSpecialistID != "" {
		sp, err := svc.specialist(ctx, ns.AssignedToSpecialistID, provider, "assigned_to_specialist_id")
		if err != nil {
			return Session{}, student.Student{}, err
		}
		sess.AssignedToSpecialistID = sp.ID
		sess.DeliveredBy = DeliveredBySpecialist
	}
	return sess, st, nil
}

// conflictInput loads what DetectConflicts needs for cand's day.
func (svc *service) conflictInput(ctx context.Context, cand Session, st student.Student) (ConflictInput, error) {
	items := ItemFilter{ProviderIDs: []string{cand.ProviderID}, DayOfWeek: cand.DayOfWeek}
	if st.SchoolSite != "" {
		items.SchoolSites = []string{st.SchoolSite}
	}
	in := ConflictInput{Candidate: cand, Student: st, MaxConcurrent: svc.opts.MaxConcurrent}

	var err error
	if in.BellSchedules, err = svc.repo.QueryBellSchedules(ctx, items); err != nil {
		return in, errors.Wrap(err, "loading bell schedules")
	}
	if in.SpecialActivities, err = svc.repo.QuerySpecialActivities(ctx, items); err != nil {
		return in, errors.Wrap(err, "loading special activities")
	}
	if in.SchoolHours, err = svc.repo.QuerySchoolHours(ctx, items); err != nil {
		return in, errors.Wrap(err, "loading school hours")
	}

	filter := SessionFilter{
		ProviderIDs: []string{cand.ProviderID},
		StudentIDs:  []string{st.ID},
		DayOfWeek:   cand.DayOfWeek,
	}
	if cand.AssignedToSEAID != "" {
		filter.SEAIDs = []string{cand.AssignedToSEAID}
	}
	if cand.IsTemplate() {
		filter.From = svc.Today()
	} else {
		filter.From, filter.To = *cand.SessionDate, *cand.SessionDate
		hf := HolidayFilter{SchoolSites: []string{st.SchoolSite}, From: *cand.SessionDate, To: *cand.SessionDate}
		if in.Holidays, err = svc.repo.QueryHolidays(ctx, hf); err != nil {
			return in, errors.Wrap(err, "loading holidays")
		}
	}
	if in.Sessions, err = svc.repo.QuerySessions(ctx, filter); err != nil {
		return in, errors.Wrap(err, "loading sessions")
	}
	return in, nil
}

// checkConflicts returns a *ConflictError unless cand is conflict-free or force applies.
// An invalid time range can never be forced.
func (svc *service) checkConflicts(ctx context.Context, cand Session, st student.Student, force bool, kinds ...ConflictKind) error {
	in, err := svc.conflictInput(ctx, cand, st)
	if err != nil {
		return err
	}
	conflicts := DetectConflicts(in)
	if len(kinds) > 0 {
		conflicts = filterKinds(conflicts, kinds...)
	}
	if len(conflicts) == 0 {
		return nil
	}
	if force && conflicts[0].Kind != ConflictInvalidRange {
		return nil
	}
	return &ConflictError{Conflicts: conflicts}
}

func filterKinds(conflicts []Conflict, kinds ...ConflictKind) []Conflict {
	out := make([]Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (svc *service) CreateSession(ctx context.Context, v school.Viewer, ns NewSession) (Session, error) {
	sess, st, err := svc.buildSession(ctx, v, ns)
	if err != nil {
		return Session{}, err
	}
	if err = svc.checkConflicts(ctx, sess, st, ns.Force); err != nil {
		return Session{}, err
	}

	now := NowFunc().UTC()
	sess.CreatedAt, sess.UpdatedAt = now, now
	created, err := svc.repo.CreateSessions(ctx, sess)
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	svc.invalidate(ctx)
	return created[0], nil
}

func (svc *service) CheckConflicts(ctx context.Context, v school.Viewer, ns NewSession) ([]Conflict, error) {
	sess, st, err := svc.buildSession(ctx, v, ns)
	if err != nil {
		return nil, err
	}
	in, err := svc.conflictInput(ctx, sess, st)
	if err != nil {
		return nil, err
	}
	return DetectConflicts(in), nil
}

// studentsOf maps the students of sessions by ID.
func (svc *service) studentsOf(ctx context.Context, sessions []Session) (map[string]student.Student, error) {
	students := make(map[string]student.Student)
	ids := make([]string, 0)
	for _, s := range sessions {
		if !core.StringInSlice(s.StudentID, ids) {
			ids = append(ids, s.StudentID)
		}
	}
	if len(ids) == 0 {
		return students, nil
	}
	sts, err := svc.students.QueryStudents(ctx, student.QueryFilter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "loading students")
	}
	for _, st := range sts {
		students[st.ID] = st
	}
	return students, nil
}

// visibleSessions narrows filter to the sessions v may see.
func (svc *service) visibleSessions(ctx context.Context, v school.Viewer, filter SessionFilter, mode ViewMode) ([]Session, error) {
	usr := v.User
	switch {
	case usr.IsProvider():
		filter.Participant = usr.ID
	case usr.IsSEA():
		filter.SEAIDs = []string{usr.ID}
	case usr.IsTeacher() || usr.IsAdmin():
		var sf student.QueryFilter
		if usr.IsTeacher() {
			if usr.Name == "" {
				return []Session{}, nil
			}
			sf.TeacherName = usr.Name
			if usr.SchoolSite != "" {
				sf.SchoolSites = []string{usr.SchoolSite}
			}
		} else {
			if v.Scope.IsEmpty() {
				return []Session{}, nil
			}
			sf.SchoolSites = v.Scope.Sites
			sf.SchoolDistricts = v.Scope.Districts
		}
		sts, err := svc.students.QueryStudents(ctx, sf)
		if err != nil {
			return nil, errors.Wrap(err, "loading students")
		}
		if len(sts) == 0 {
			return []Session{}, nil
		}
		for _, st := range sts {
			filter.StudentIDs = append(filter.StudentIDs, st.ID)
		}
	default:
		return []Session{}, nil
	}

	sessions, err := svc.repo.QuerySessions(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	students, err := svc.studentsOf(ctx, sessions)
	if err != nil {
		return nil, err
	}
	return Visible(v, sessions, students, mode), nil
}

func (svc *service) GetSession(ctx context.Context, v school.Viewer, id string) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	students, err := svc.studentsOf(ctx, []Session{sess})
	if err != nil {
		return Session{}, err
	}
	if len(Visible(v, []Session{sess}, students, ViewAll)) == 0 {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (svc *service) QuerySessions(ctx context.Context, v school.Viewer, q SessionQuery) ([]Session, error) {
	filter := SessionFilter{DayOfWeek: q.DayOfWeek, Kind: q.Kind, From: q.From, To: q.To}
	sessions, err := svc.visibleSessions(ctx, v, filter, q.Mode)
	if err != nil || q.StudentID == "" {
		return sessions, err
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.StudentID == q.StudentID {
			out = append(out, s)
		}
	}
	return out, nil
}

// writableSession loads session id and its student for a change by v.
func (svc *service) writableSession(ctx context.Context, v school.Viewer, id string) (Session, student.Student, error) {
	sess, err := svc.GetSession(ctx, v, id)
	if err != nil {
		return Session{}, student.Student{}, err
	}
	st, err := svc.students.GetStudent(ctx, sess.StudentID)
	if err != nil {
		return Session{}, student.Student{}, errors.Wrap(err, "finding student")
	}
	if !student.CanWrite(v, st) {
		return Session{}, student.Student{}, core.ErrForbidden
	}
	return sess, st, nil
}

// deliverableSession returns the session when v may record its outcome: writers over the
// student (owner and managing admins, reported by the bool) or the SEA/specialist delivering it.
// Teachers never qualify.
func (svc *service) deliverableSession(ctx context.Context, v school.Viewer, id string) (Session, bool, error) {
	if v.User.IsTeacher() {
		return Session{}, false, core.ErrForbidden
	}
	sess, err := svc.GetSession(ctx, v, id)
	if err != nil {
		return Session{}, false, err
	}
	st, err := svc.students.GetStudent(ctx, sess.StudentID)
	if err != nil {
		return Session{}, false, errors.Wrap(err, "finding student")
	}
	if student.CanWrite(v, st) {
		return sess, true, nil
	}
	if sess.AssignedToSEAID == v.ID() || sess.AssignedToSpecialistID == v.ID() {
		return sess, false, nil
	}
	return Session{}, false, core.ErrForbidden
}

func (svc *service) DeleteSession(ctx context.Context, v school.Viewer, id string) error {
	if _, _, err := svc.writableSession(ctx, v, id); err != nil {
		return err
	}
	if err := svc.repo.DeleteSession(ctx, id); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	svc.invalidate(ctx)
	return nil
}

// propagate applies fn to the future scheduled instances of tmpl that were not modified individually.
// Instances for which fn returns false are left unchanged.
func (svc *service) propagate(ctx context.Context, tmpl Session, fn func(inst *Session) bool) error {
	instances, err := svc.repo.QuerySessions(ctx, SessionFilter{
		TemplateIDs: []string{tmpl.ID},
		Kind:        KindInstance,
		From:        svc.Today(),
		Statuses:    []string{StatusScheduled},
	})
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if inst.ManuallyModified {
			continue
		}
		if !fn(&inst) {
			continue
		}
		inst.UpdatedAt = tmpl.UpdatedAt
		if _, err = svc.repo.UpdateSession(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (svc *service) Move(ctx context.Context, v school.Viewer, id string, mv MoveSession) (Session, error) {
	if err := svc.validate.Struct(mv); err != nil {
		return Session{}, err
	}
	sess, st, err := svc.writableSession(ctx, v, id)
	if err != nil {
		return Session{}, err
	}

	start, _ := ParseTimeOfDay(mv.StartTime)
	moved := sess
	moved.Start = start
	moved.End = start.Add(sess.Duration())
	if moved.End >= Midnight {
		return Session{}, fieldError("start_time", "session must end before midnight")
	}
	if sess.IsTemplate() {
		if mv.SessionDate != nil {
			return Session{}, fieldError("session_date", "weekly sessions have no date")
		}
		moved.DayOfWeek = mv.DayOfWeek
	} else {
		var date core.Date
		if mv.SessionDate != nil {
			date = *mv.SessionDate
		} else {
			date = sess.SessionDate.WeekStart().AddDays(mv.DayOfWeek - 1)
		}
		if date.ISOWeekday() > 5 {
			return Session{}, fieldError("session_date", "sessions cannot be scheduled on weekends")
		}
		moved.DayOfWeek = date.ISOWeekday()
		moved.SessionDate = &date
		moved.ManuallyModified = true
	}

	if err = svc.checkConflicts(ctx, moved, st, mv.Force); err != nil {
		return Session{}, err
	}

	moved.UpdatedAt = NowFunc().UTC()
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if moved, err = svc.repo.UpdateSession(ctx, moved); err != nil {
			return err
		}
		if !moved.IsTemplate() {
			return nil
		}
		today := svc.Today()
		return svc.propagate(ctx, moved, func(inst *Session) bool {
			date := inst.SessionDate.WeekStart().AddDays(moved.DayOfWeek - 1)
			if date.Before(today) {
				return false
			}
			inst.DayOfWeek = moved.DayOfWeek
			inst.Start = moved.Start
			inst.End = moved.End
			inst.SessionDate = &date
			inst.OriginalDate = &date
			return true
		})
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "moving session")
	}
	svc.invalidate(ctx)
	return moved, nil
}

func (svc *service) AssignSEA(ctx context.Context, v school.Viewer, id string, as AssignSession) (Session, error) {
	sess, st, err := svc.writableSession(ctx, v, id)
	if err != nil {
		return Session{}, err
	}

	upd := sess
	if as.SEAID == "" {
		upd.AssignedToSEAID = ""
		upd.DeliveredBy = DeliveredByProvider
	} else {
		provider, err := svc.users.GetUser(ctx, user.GetFilter{ID: sess.ProviderID})
		if err != nil {
			return Session{}, errors.Wrap(err, "finding provider")
		}
		sea, err := svc.sea(ctx, as.SEAID, provider, "sea_id")
		if err != nil {
			return Session{}, err
		}
		upd.AssignedToSEAID = sea.ID
		upd.AssignedToSpecialistID = ""
		upd.DeliveredBy = DeliveredBySEA
		if err = svc.checkConflicts(ctx, upd, st, as.Force, ConflictSEASession); err != nil {
			return Session{}, err
		}
	}
	if !upd.IsTemplate() {
		upd.ManuallyModified = true
	}

	upd.UpdatedAt = NowFunc().UTC()
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if upd, err = svc.repo.UpdateSession(ctx, upd); err != nil {
			return err
		}
		if !upd.IsTemplate() {
			return nil
		}
		return svc.propagate(ctx, upd, func(inst *Session) bool {
			inst.AssignedToSEAID = upd.AssignedToSEAID
			inst.AssignedToSpecialistID = upd.AssignedToSpecialistID
			inst.DeliveredBy = upd.DeliveredBy
			return true
		})
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "assigning session")
	}
	svc.invalidate(ctx)
	return upd, nil
}

func (svc *service) Generate(ctx context.Context, v school.Viewer, from, to core.Date) ([]Session, error) {
	visible, err := svc.visibleSessions(ctx, v, SessionFilter{Kind: KindTemplate}, ViewAll)
	if err != nil {
		return nil, err
	}
	templates := make([]Session, 0, len(visible))
	for _, s := range visible {
		if s.ProviderID == v.ID() || v.User.IsAdmin() {
			templates = append(templates, s)
		}
	}
	return svc.generate(ctx, templates, from, to)
}

func (svc *service) GenerateAll(ctx context.Context, from, to core.Date) ([]Session, error) {
	templates, err := svc.repo.QuerySessions(ctx, SessionFilter{Kind: KindTemplate})
	if err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	return svc.generate(ctx, templates, from, to)
}

func (svc *service) generate(ctx context.Context, templates []Session, from, to core.Date) ([]Session, error) {
	if err := CheckDateRange(from, to); err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "to", Error: err.Error()})
	}
	if len(templates) == 0 {
		return []Session{}, nil
	}

	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	existing, err := svc.repo.QuerySessions(ctx, SessionFilter{
		TemplateIDs:    ids,
		Kind:           KindInstance,
		OccurrenceFrom: from.WeekStart(),
		OccurrenceTo:   to.WeekStart().AddDays(6),
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying instances")
	}
	holidays, err := svc.repo.QueryHolidays(ctx, HolidayFilter{From: from, To: to})
	if err != nil {
		return nil, errors.Wrap(err, "querying holidays")
	}
	students, err := svc.studentsOf(ctx, templates)
	if err != nil {
		return nil, err
	}
	siteOf := func(id string) string { return students[id].SchoolSite }

	instances, err := GenerateInstances(templates, existing, holidays, siteOf, from, to, NowFunc().UTC())
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return instances, nil
	}

	var created []Session
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = svc.repo.CreateSessions(ctx, instances...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating instances")
	}
	svc.invalidate(ctx)
	return created, nil
}

func (svc *service) weekKey(ctx context.Context, v school.Viewer, weekStart core.Date, mode ViewMode) (string, bool) {
	gen, _, err := svc.cache.Get(ctx, core.ScheduleGenerationKey)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("schedule:week:%s:%s:%s:%s", gen, v.ID(), weekStart, mode), true
}

func (svc *service) Week(ctx context.Context, v school.Viewer, weekStart core.Date, mode ViewMode) (WeekView, error) {
	weekStart = weekStart.WeekStart()
	if mode == "" {
		mode = ViewAll
	}

	key, cacheable := svc.weekKey(ctx, v, weekStart, mode)
	if cacheable {
		if data, ok, err := svc.cache.Get(ctx, key); err == nil && ok {
			var week WeekView
			if err = json.Unmarshal(data, &week); err == nil {
				return week, nil
			}
		}
	}

	sessions, err := svc.visibleSessions(ctx, v, SessionFilter{From: weekStart, To: weekStart.AddDays(4)}, mode)
	if err != nil {
		return WeekView{}, err
	}
	// instances of this week moved to another one still account for their template
	movedOut, err := svc.visibleSessions(ctx, v, SessionFilter{
		Kind:           KindInstance,
		OccurrenceFrom: weekStart,
		OccurrenceTo:   weekStart.AddDays(6),
	}, mode)
	if err != nil {
		return WeekView{}, err
	}
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		seen[s.ID] = true
	}
	for _, s := range movedOut {
		if !seen[s.ID] {
			sessions = append(sessions, s)
		}
	}
	holidays, err := svc.repo.QueryHolidays(ctx, HolidayFilter{
		SchoolSites: []string{v.User.SchoolSite},
		From:        weekStart,
		To:          weekStart.AddDays(4),
	})
	if err != nil {
		return WeekView{}, errors.Wrap(err, "querying holidays")
	}

	week := BuildWeek(weekStart, sessions, holidays, v.User.SchoolSite)
	if cacheable {
		if data, err := json.Marshal(week); err == nil {
			_ = svc.cache.Set(ctx, key, data, svc.opts.CacheTTL)
		}
	}
	return week, nil
}

func (svc *service) Suggest(ctx context.Context, v school.Viewer, studentID string, day int) ([]TimeRange, error) {
	if day < 1 || day > 5 {
		return nil, fieldError("day_of_week", "must be a school day between 1 (Monday) and 5 (Friday)")
	}
	st, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.CanRead(v, st) {
		return nil, student.ErrNotFound
	}

	cand := Session{
		ProviderID:  st.ProviderID,
		StudentID:   st.ID,
		DayOfWeek:   day,
		DeliveredBy: DeliveredByProvider,
		Status:      StatusScheduled,
	}
	in, err := svc.conflictInput(ctx, cand, st)
	if err != nil {
		return nil, err
	}
	minutes := st.MinutesPerSession
	if minutes <= 0 {
		minutes = svc.opts.DefaultSessionMinutes
	}
	return SuggestSlots(in, minutes), nil
}

func (svc *service) Instance(ctx context.Context, v school.Viewer, id string, date core.Date) (Session, error) {
	sess, _, err := svc.deliverableSession(ctx, v, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsTemplate() {
		if !sess.SessionDate.Equal(date) {
			return Session{}, fieldError("session_date", "does not match the session's date")
		}
		return sess, nil
	}
	week := date.WeekStart()
	existing, err := svc.repo.QuerySessions(ctx, SessionFilter{
		TemplateIDs:    []string{sess.ID},
		Kind:           KindInstance,
		OccurrenceFrom: week,
		OccurrenceTo:   week.AddDays(6),
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "querying instances")
	}
	for _, inst := range existing {
		if inst.SessionDate.Equal(date) {
			return inst, nil
		}
	}
	if len(existing) > 0 {
		return Session{}, fieldError("session_date", fmt.Sprintf("session was moved to %s", existing[0].SessionDate))
	}
	if date.ISOWeekday() != sess.DayOfWeek {
		return Session{}, fieldError("session_date", fmt.Sprintf("session takes place on %s", WeekdayName(sess.DayOfWeek)))
	}

	now := NowFunc().UTC()
	inst := sess
	inst.ID = ""
	inst.TemplateID = sess.ID
	inst.SessionDate = &date
	inst.OriginalDate = &date
	inst.Status = StatusScheduled
	inst.ManuallyModified = false
	inst.CreatedAt, inst.UpdatedAt = now, now
	created, err := svc.repo.CreateSessions(ctx, inst)
	if err != nil {
		return Session{}, errors.Wrap(err, "creating instance")
	}
	svc.invalidate(ctx)
	return created[0], nil
}

func (svc *service) SetStatus(ctx context.Context, v school.Viewer, id, status string) (Session, error) {
	switch status {
	case StatusScheduled, StatusCompleted, StatusCancelled:
	default:
		return Session{}, fieldError("status", "must be one of scheduled, completed or cancelled")
	}
	sess, writer, err := svc.deliverableSession(ctx, v, id)
	if err != nil {
		return Session{}, err
	}
	// delivering staff only mark their own dated sessions done or not
	if !writer && (sess.IsTemplate() || status == StatusCancelled) {
		return Session{}, core.ErrForbidden
	}
	if sess.Status == status {
		return sess, nil
	}
	sess.Status = status
	sess.UpdatedAt = NowFunc().UTC()
	if sess, err = svc.repo.UpdateSession(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "updating session status")
	}
	svc.invalidate(ctx)
	return sess, nil
}
