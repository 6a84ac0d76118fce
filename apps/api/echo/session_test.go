package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/speddy/speddy/apps/api/echo"
	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/user"
)

type conflictBody struct {
	Error     string              `json:"error"`
	Conflicts []schedule.Conflict `json:"conflicts"`
}

func datePtr(y, m, d int) *core.Date {
	date := core.NewDate(y, time.Month(m), d)
	return &date
}

func createSession(t *testing.T, usr user.User, ns schedule.NewSession) schedule.Session {
	t.Helper()
	rec := do(t, http.MethodPost, "/v1/sessions", ns, &usr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess schedule.Session
	decode(t, rec, &sess)
	return sess
}

func createBell(t *testing.T, usr user.User, nb schedule.NewBellSchedule) schedule.BellSchedule {
	t.Helper()
	rec := do(t, http.MethodPost, "/v1/bell-schedules", nb, &usr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b schedule.BellSchedule
	decode(t, rec, &b)
	return b
}

func Test_sessionApi_create(t *testing.T) {
	fx := seed(t)

	first := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})
	assert.True(t, first.IsTemplate())
	assert.Equal(t, "09:30", first.End.String(), "defaults to the student's session length")
	assert.Equal(t, user.RoleResource, first.ServiceType)
	assert.Equal(t, schedule.DeliveredByProvider, first.DeliveredBy)
	assert.Equal(t, schedule.StatusScheduled, first.Status)

	overlapping := schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:15"}
	rec := do(t, http.MethodPost, "/v1/sessions", overlapping, &fx.provider)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var body conflictBody
	decode(t, rec, &body)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, schedule.ConflictStudentSession, body.Conflicts[0].Kind)
	assert.Equal(t, first.ID, body.Conflicts[0].RefID)

	overlapping.Force = true
	createSession(t, fx.provider, overlapping)

	createBell(t, fx.provider, schedule.NewBellSchedule{
		GradeLevels: []string{"1", "2"}, DayOfWeek: 2, StartTime: "10:00", EndTime: "10:30", PeriodName: "Recess",
	})
	rec = do(t, http.MethodPost, "/v1/sessions/check", schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 2, StartTime: "10:15"}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var check CheckResponse
	decode(t, rec, &check)
	require.Len(t, check.Conflicts, 1)
	assert.Equal(t, schedule.ConflictBellSchedule, check.Conflicts[0].Kind)

	rec = do(t, http.MethodPost, "/v1/sessions/check", schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 2, StartTime: "10:30"}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &check)
	assert.Empty(t, check.Conflicts)

	runCodeTests(t, []httpTest{
		{name: "teacher", method: http.MethodPost, path: "/v1/sessions", body: schedule.NewSession{
			StudentID: fx.student.ID, DayOfWeek: 3, StartTime: "09:00",
		}, usr: &fx.teacher, wantCode: http.StatusForbidden},
		{name: "someone else's student", method: http.MethodPost, path: "/v1/sessions", body: schedule.NewSession{
			StudentID: fx.student.ID, DayOfWeek: 3, StartTime: "09:00",
		}, usr: &fx.otherProvider, wantCode: http.StatusBadRequest},
		{name: "weekend", method: http.MethodPost, path: "/v1/sessions", body: schedule.NewSession{
			StudentID: fx.student.ID, StartTime: "09:00", SessionDate: datePtr(2024, 3, 16),
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "no day", method: http.MethodPost, path: "/v1/sessions", body: schedule.NewSession{
			StudentID: fx.student.ID, StartTime: "09:00",
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "ends before it starts", method: http.MethodPost, path: "/v1/sessions", body: schedule.NewSession{
			StudentID: fx.student.ID, DayOfWeek: 3, StartTime: "09:00", EndTime: "08:00", Force: true,
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "one-off", method: http.MethodPost, path: "/v1/sessions", body: schedule.NewSession{
			StudentID: fx.student.ID, StartTime: "13:00", SessionDate: datePtr(2024, 3, 14),
		}, usr: &fx.provider, wantCode: http.StatusCreated},
	})
}

func Test_sessionApi_moveAndAssign(t *testing.T) {
	fx := seed(t)
	sess := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})
	path := "/v1/sessions/" + sess.ID

	rec := do(t, http.MethodPost, path+"/move", schedule.MoveSession{DayOfWeek: 2, StartTime: "13:00"}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var moved schedule.Session
	decode(t, rec, &moved)
	assert.Equal(t, 2, moved.DayOfWeek)
	assert.Equal(t, "13:00-13:30", moved.Range().String())

	createBell(t, fx.provider, schedule.NewBellSchedule{
		GradeLevels: []string{"2"}, DayOfWeek: 2, StartTime: "14:00", EndTime: "14:45", PeriodName: "PE",
	})
	rec = do(t, http.MethodPost, path+"/move", schedule.MoveSession{DayOfWeek: 2, StartTime: "14:15"}, &fx.provider)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	rec = do(t, http.MethodPost, path+"/move", schedule.MoveSession{DayOfWeek: 2, StartTime: "14:15", Force: true}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	runCodeTests(t, []httpTest{
		{name: "assign to a teacher", method: http.MethodPost, path: path + "/assign", body: schedule.AssignSession{SEAID: fx.teacher.ID}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "assign by the SEA", method: http.MethodPost, path: path + "/assign", body: schedule.AssignSession{SEAID: fx.sea.ID}, usr: &fx.sea, wantCode: http.StatusNotFound},
		{name: "assign", method: http.MethodPost, path: path + "/assign", body: schedule.AssignSession{SEAID: fx.sea.ID}, usr: &fx.provider, wantCode: http.StatusOK},
		{name: "other provider", method: http.MethodGet, path: path, usr: &fx.otherProvider, wantCode: http.StatusNotFound},
		{name: "assigned SEA", method: http.MethodGet, path: path, usr: &fx.sea, wantCode: http.StatusOK},
		{name: "student's teacher", method: http.MethodGet, path: path, usr: &fx.teacher, wantCode: http.StatusOK},
		{name: "site admin", method: http.MethodGet, path: path, usr: &fx.siteAdmin, wantCode: http.StatusOK},
		{name: "bad mode", method: http.MethodGet, path: "/v1/sessions?mode=everything", usr: &fx.provider, wantCode: http.StatusBadRequest},
	})

	count := func(path string, usr user.User) int {
		rec := do(t, http.MethodGet, path, nil, &usr)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got []schedule.Session
		decode(t, rec, &got)
		return len(got)
	}
	assert.Equal(t, 0, count("/v1/sessions?mode=mine", fx.provider))
	assert.Equal(t, 1, count("/v1/sessions?mode=sea", fx.provider))
	assert.Equal(t, 1, count("/v1/sessions", fx.sea))

	rec = do(t, http.MethodPost, path+"/assign", schedule.AssignSession{}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var unassigned schedule.Session
	decode(t, rec, &unassigned)
	assert.Equal(t, schedule.DeliveredByProvider, unassigned.DeliveredBy)
	assert.Empty(t, unassigned.AssignedToSEAID)
	assert.Equal(t, 0, count("/v1/sessions", fx.sea))
}

func Test_sessionApi_generateAndWeek(t *testing.T) {
	fx := seed(t)
	monday := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})
	createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 3, StartTime: "10:00"})

	holiday := schedule.NewHoliday{Date: *datePtr(2024, 3, 20), Name: "Spring break"}
	rec := do(t, http.MethodPost, "/v1/holidays", holiday, &fx.provider)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, http.MethodPost, "/v1/holidays", holiday, &fx.provider)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	generate := func(from, to *core.Date) []schedule.Session {
		rec := do(t, http.MethodPost, "/v1/sessions/generate", GenerateRequest{From: *from, To: *to}, &fx.provider)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var got []schedule.Session
		decode(t, rec, &got)
		return got
	}
	created := generate(datePtr(2024, 3, 11), datePtr(2024, 3, 22))
	require.Len(t, created, 3, "the holiday is skipped")
	assert.Equal(t, "2024-03-11", created[0].SessionDate.String())
	assert.Equal(t, "2024-03-13", created[1].SessionDate.String())
	assert.Equal(t, "2024-03-18", created[2].SessionDate.String())
	assert.Equal(t, monday.ID, created[0].TemplateID)
	assert.Empty(t, generate(datePtr(2024, 3, 11), datePtr(2024, 3, 22)), "generation is idempotent")

	rec = do(t, http.MethodPost, "/v1/sessions/generate", GenerateRequest{From: *datePtr(2024, 3, 22), To: *datePtr(2024, 3, 11)}, &fx.provider)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	week := func(start string) schedule.WeekView {
		rec := do(t, http.MethodGet, "/v1/schedule/week?week_start="+start, nil, &fx.provider)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got schedule.WeekView
		decode(t, rec, &got)
		require.Len(t, got.Days, 5)
		return got
	}
	w := week("2024-03-13")
	assert.Equal(t, "2024-03-11", w.WeekStart.String())
	assert.Len(t, w.Days[0].Sessions, 1)
	assert.Len(t, w.Days[1].Sessions, 0)
	assert.Len(t, w.Days[2].Sessions, 1)
	w = week("2024-03-18")
	assert.Equal(t, "Spring break", w.Days[2].Holiday)
	assert.Empty(t, w.Days[2].Sessions)

	rec = do(t, http.MethodPost, "/v1/sessions/"+monday.ID+"/status", StatusRequest{Status: schedule.StatusCancelled, Date: datePtr(2024, 3, 18)}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var inst schedule.Session
	decode(t, rec, &inst)
	assert.Equal(t, monday.ID, inst.TemplateID)
	assert.Equal(t, schedule.StatusCancelled, inst.Status)

	// the cached week is refreshed after the change
	w = week("2024-03-18")
	assert.Empty(t, w.Days[0].Sessions)

	instances := func() []schedule.Session {
		rec := do(t, http.MethodGet, "/v1/sessions?kind=instance&from=2024-03-11&to=2024-03-22", nil, &fx.provider)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got []schedule.Session
		decode(t, rec, &got)
		return got
	}
	assert.Len(t, instances(), 3)

	rec = do(t, http.MethodDelete, "/v1/sessions/"+monday.ID, nil, &fx.provider)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	left := instances()
	require.Len(t, left, 1, "instances go with their template")
	assert.Equal(t, "2024-03-13", left[0].SessionDate.String())

	runCodeTests(t, []httpTest{
		{name: "bad kind", method: http.MethodGet, path: "/v1/sessions?kind=weekly", usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "bad date", method: http.MethodGet, path: "/v1/sessions?from=03/11/2024", usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "bad status", method: http.MethodPost, path: "/v1/sessions/" + left[0].ID + "/status", body: StatusRequest{Status: "done"}, usr: &fx.provider, wantCode: http.StatusBadRequest},
	})
}

func Test_sessionApi_suggest(t *testing.T) {
	fx := seed(t)

	rec := do(t, http.MethodPost, "/v1/school-hours", schedule.NewSchoolHours{
		DayOfWeek: 3, GradeLevel: "default", StartTime: "08:30", EndTime: "09:30",
	}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	createBell(t, fx.provider, schedule.NewBellSchedule{
		GradeLevels: []string{"2"}, DayOfWeek: 3, StartTime: "08:30", EndTime: "09:00", PeriodName: "Assembly",
	})

	rec = do(t, http.MethodGet, "/v1/schedule/suggest?day=3&student_id="+fx.student.ID, nil, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var slots []schedule.TimeRange
	decode(t, rec, &slots)
	require.Len(t, slots, 1)
	assert.Equal(t, "09:00-09:30", slots[0].String())

	runCodeTests(t, []httpTest{
		{name: "no student", method: http.MethodGet, path: "/v1/schedule/suggest?day=3", usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "weekend", method: http.MethodGet, path: "/v1/schedule/suggest?day=6&student_id=" + fx.student.ID, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "unknown student", method: http.MethodGet, path: "/v1/schedule/suggest?day=3&student_id=nope", usr: &fx.provider, wantCode: http.StatusNotFound},
	})
}

func Test_sessionApi_status(t *testing.T) {
	fx := seed(t)
	tmpl := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})
	path := "/v1/sessions/" + tmpl.ID + "/status"

	runCodeTests(t, []httpTest{
		{name: "teacher cancels the weekly session", method: http.MethodPost, path: path, body: StatusRequest{Status: schedule.StatusCancelled}, usr: &fx.teacher, wantCode: http.StatusForbidden},
		{name: "teacher cancels one date", method: http.MethodPost, path: path, body: StatusRequest{Status: schedule.StatusCancelled, Date: datePtr(2024, 3, 11)}, usr: &fx.teacher, wantCode: http.StatusForbidden},
		{name: "unassigned sea", method: http.MethodPost, path: path, body: StatusRequest{Status: schedule.StatusCompleted, Date: datePtr(2024, 3, 11)}, usr: &fx.sea, wantCode: http.StatusNotFound},
		{name: "other provider", method: http.MethodPost, path: path, body: StatusRequest{Status: schedule.StatusCancelled}, usr: &fx.otherProvider, wantCode: http.StatusNotFound},
	})

	rec := do(t, http.MethodGet, "/v1/sessions/"+tmpl.ID, nil, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got schedule.Session
	decode(t, rec, &got)
	assert.Equal(t, schedule.StatusScheduled, got.Status)

	rec = do(t, http.MethodGet, "/v1/sessions?kind=instance", nil, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var instances []schedule.Session
	decode(t, rec, &instances)
	assert.Empty(t, instances, "rejected requests materialize nothing")

	rec = do(t, http.MethodPost, path, StatusRequest{Status: schedule.StatusCancelled, Date: datePtr(2024, 3, 11)}, &fx.siteAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &got)
	assert.Equal(t, schedule.StatusCancelled, got.Status)
	assert.Equal(t, "2024-03-11", got.SessionDate.String())
}

func Test_sessionApi_moveThenGenerate(t *testing.T) {
	fx := seed(t)
	tmpl := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})

	generate := func() []schedule.Session {
		rec := do(t, http.MethodPost, "/v1/sessions/generate", GenerateRequest{From: *datePtr(2024, 3, 18), To: *datePtr(2024, 3, 22)}, &fx.provider)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var got []schedule.Session
		decode(t, rec, &got)
		return got
	}
	created := generate()
	require.Len(t, created, 1)

	rec := do(t, http.MethodPost, "/v1/sessions/"+created[0].ID+"/move", schedule.MoveSession{DayOfWeek: 2, StartTime: "09:00"}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, generate())

	rec = do(t, http.MethodGet, "/v1/sessions?kind=instance&from=2024-03-18&to=2024-03-22", nil, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var instances []schedule.Session
	decode(t, rec, &instances)
	require.Len(t, instances, 1)
	assert.Equal(t, "2024-03-19", instances[0].SessionDate.String())
	assert.Equal(t, tmpl.ID, instances[0].TemplateID)
}
