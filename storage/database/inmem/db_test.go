package inmemdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/attendance"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

type fixture struct {
	db         *DB
	users      user.Repository
	students   student.Repository
	schedule   schedule.Repository
	attendance attendance.Repository

	provider user.User
	sea      user.User
	student  student.Student
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	db := NewDB()
	f := &fixture{
		db:         db,
		users:      NewUserRepository(db),
		students:   NewStudentRepository(db),
		schedule:   NewScheduleRepository(db),
		attendance: NewAttendanceRepository(db),
	}

	var err error
	f.provider, err = f.users.CreateUser(ctx, user.User{Name: "Pat", Email: "pat@test.com", Role: user.RoleResource, SchoolSite: "Lincoln"})
	require.NoError(t, err)
	f.sea, err = f.users.CreateUser(ctx, user.User{Name: "Sam", Email: "sam@test.com", Role: user.RoleSEA, SchoolSite: "Lincoln"})
	require.NoError(t, err)
	f.student, err = f.students.CreateStudent(ctx, student.Student{
		ProviderID: f.provider.ID, Initials: "JD", GradeLevel: "3", SchoolSite: "Lincoln", SessionsPerWeek: 2, MinutesPerSession: 30,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) template(t *testing.T, day int, start string) schedule.Session {
	s, err := f.schedule.CreateSessions(context.Background(), schedule.Session{
		ProviderID:  f.provider.ID,
		StudentID:   f.student.ID,
		DayOfWeek:   day,
		Start:       schedule.MustParseTimeOfDay(start),
		End:         schedule.MustParseTimeOfDay(start).Add(30),
		DeliveredBy: schedule.DeliveredByProvider,
		Status:      schedule.StatusScheduled,
	})
	require.NoError(t, err)
	require.Len(t, s, 1)
	return s[0]
}

func (f *fixture) instance(t *testing.T, tmpl schedule.Session, date core.Date) schedule.Session {
	inst := tmpl
	inst.ID = ""
	inst.TemplateID = tmpl.ID
	inst.SessionDate = &date
	s, err := f.schedule.CreateSessions(context.Background(), inst)
	require.NoError(t, err)
	return s[0]
}

func TestWithinTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := f.students.CreateStudent(ctx, student.Student{ProviderID: f.provider.ID, Initials: "AB", GradeLevel: "K"})
		require.NoError(t, err)
		// nested calls join the outer transaction
		return f.db.WithinTx(ctx, func(ctx context.Context) error { return boom })
	})
	assert.Equal(t, boom, err)

	students, err := f.students.QueryStudents(ctx, student.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, students, 1, "rolled back")

	err = f.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := f.students.CreateStudent(ctx, student.Student{ProviderID: f.provider.ID, Initials: "AB", GradeLevel: "K"})
		return err
	})
	require.NoError(t, err)
	students, err = f.students.QueryStudents(ctx, student.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestQueryStudentsOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, st := range []student.Student{
		{ProviderID: f.provider.ID, Initials: "ZZ", GradeLevel: "K", TeacherName: "Ms. Lee", SchoolSite: "Lincoln"},
		{ProviderID: f.provider.ID, Initials: "AA", GradeLevel: "10", SchoolSite: "Adams"},
		{ProviderID: f.provider.ID, Initials: "AB", GradeLevel: "TK", SchoolSite: "Adams"},
	} {
		_, err := f.students.CreateStudent(ctx, st)
		require.NoError(t, err)
	}

	students, err := f.students.QueryStudents(ctx, student.QueryFilter{})
	require.NoError(t, err)
	var initials []string
	for _, st := range students {
		initials = append(initials, st.Initials)
	}
	assert.Equal(t, []string{"AB", "ZZ", "JD", "AA"}, initials)

	students, err = f.students.QueryStudents(ctx, student.QueryFilter{TeacherName: "ms. lee"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "ZZ", students[0].Initials)

	students, err = f.students.QueryStudents(ctx, student.QueryFilter{SchoolSites: []string{"Adams"}, Search: "A"})
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestQuerySessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mon := f.template(t, 1, "09:00")
	tue := f.template(t, 2, "10:00")
	tue.AssignedToSEAID = f.sea.ID
	tue.DeliveredBy = schedule.DeliveredBySEA
	_, err := f.schedule.UpdateSession(ctx, tue)
	require.NoError(t, err)
	inst := f.instance(t, mon, core.NewDate(2024, time.September, 9))

	tests := []struct {
		name   string
		filter schedule.SessionFilter
		want   []string
	}{
		{"all", schedule.SessionFilter{}, []string{mon.ID, tue.ID, inst.ID}},
		{"templates", schedule.SessionFilter{Kind: schedule.KindTemplate}, []string{mon.ID, tue.ID}},
		{"instances", schedule.SessionFilter{Kind: schedule.KindInstance}, []string{inst.ID}},
		{"sea participant", schedule.SessionFilter{Participant: f.sea.ID}, []string{tue.ID}},
		{"provider or sea", schedule.SessionFilter{ProviderIDs: []string{"nobody"}, SEAIDs: []string{f.sea.ID}}, []string{tue.ID}},
		{"day", schedule.SessionFilter{DayOfWeek: 1}, []string{mon.ID, inst.ID}},
		{"template ids", schedule.SessionFilter{TemplateIDs: []string{mon.ID}}, []string{inst.ID}},
		{
			"date range only restricts instances",
			schedule.SessionFilter{From: core.NewDate(2024, time.September, 10)},
			[]string{mon.ID, tue.ID},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sessions, err := f.schedule.QuerySessions(ctx, tc.filter)
			require.NoError(t, err)
			var got []string
			for _, s := range sessions {
				got = append(got, s.ID)
			}
			assert.ElementsMatch(t, tc.want, got)
		})
	}
}

func TestCreateSessionsRejectsDuplicateInstance(t *testing.T) {
	f := newFixture(t)
	mon := f.template(t, 1, "09:00")
	date := core.NewDate(2024, time.September, 9)
	f.instance(t, mon, date)

	dup := mon
	dup.ID = ""
	dup.TemplateID = mon.ID
	dup.SessionDate = &date
	_, err := f.schedule.CreateSessions(context.Background(), dup)
	assert.Error(t, err)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mon := f.template(t, 1, "09:00")
	inst := f.instance(t, mon, core.NewDate(2024, time.September, 9))
	_, err := f.attendance.UpsertAttendance(ctx, attendance.Attendance{
		SessionID: inst.ID, StudentID: f.student.ID, SessionDate: *inst.SessionDate, Present: true, RecordedBy: f.sea.ID,
	})
	require.NoError(t, err)

	// removing the SEA only clears references
	_, err = f.users.DeleteUsersByID(ctx, []string{f.sea.ID})
	require.NoError(t, err)
	records, err := f.attendance.QueryAttendance(ctx, attendance.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].RecordedBy)

	require.NoError(t, f.schedule.DeleteSession(ctx, mon.ID))
	_, err = f.schedule.GetSession(ctx, inst.ID)
	assert.True(t, core.IsNotFound(err))
	records, err = f.attendance.QueryAttendance(ctx, attendance.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)

	f.template(t, 2, "10:00")
	n, err := f.users.DeleteUsersByID(ctx, []string{f.provider.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sessions, err := f.schedule.QuerySessions(ctx, schedule.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	_, err = f.students.GetStudent(ctx, f.student.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestHolidaysAndHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := core.NewDate(2024, time.November, 11)

	_, err := f.schedule.CreateHoliday(ctx, schedule.Holiday{Date: date, Name: "Veterans Day"})
	require.NoError(t, err)
	_, err = f.schedule.CreateHoliday(ctx, schedule.Holiday{Date: date, Name: "Again"})
	assert.Equal(t, schedule.ErrHolidayExists, err)
	_, err = f.schedule.CreateHoliday(ctx, schedule.Holiday{SchoolSite: "Adams", Date: date.AddDays(1), Name: "Site day"})
	require.NoError(t, err)

	holidays, err := f.schedule.QueryHolidays(ctx, schedule.HolidayFilter{SchoolSites: []string{"Lincoln"}})
	require.NoError(t, err)
	require.Len(t, holidays, 1, "district-wide holidays match every site")
	assert.Equal(t, "Veterans Day", holidays[0].Name)

	hours := schedule.SchoolHours{
		ProviderID: f.provider.ID, SchoolSite: "Lincoln", DayOfWeek: 1, GradeLevel: "K",
		Start: schedule.MustParseTimeOfDay("08:00"), End: schedule.MustParseTimeOfDay("12:00"),
	}
	first, err := f.schedule.UpsertSchoolHours(ctx, hours)
	require.NoError(t, err)
	hours.End = schedule.MustParseTimeOfDay("13:00")
	second, err := f.schedule.UpsertSchoolHours(ctx, hours)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := f.schedule.QuerySchoolHours(ctx, schedule.ItemFilter{SchoolSites: []string{"Lincoln"}})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "13:00", all[0].End.String())
}

func TestUpsertAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.instance(t, f.template(t, 1, "09:00"), core.NewDate(2024, time.September, 9))

	a := attendance.Attendance{SessionID: inst.ID, StudentID: f.student.ID, SessionDate: *inst.SessionDate, Present: true}
	first, err := f.attendance.UpsertAttendance(ctx, a)
	require.NoError(t, err)

	a.Present = false
	a.AbsenceReason = "sick"
	second, err := f.attendance.UpsertAttendance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	records, err := f.attendance.QueryAttendance(ctx, attendance.QueryFilter{StudentIDs: []string{f.student.ID}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Present)
	assert.Equal(t, "sick", records[0].AbsenceReason)

	_, err = f.attendance.UpsertAttendance(ctx, attendance.Attendance{SessionID: "missing", SessionDate: *inst.SessionDate})
	assert.Error(t, err)
}
