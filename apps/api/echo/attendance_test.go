package echoapi_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	. "github.com/speddy/speddy/apps/api/echo"
	"github.com/speddy/speddy/core/attendance"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/user"
)

func boolPtr(b bool) *bool { return &b }

func record(t *testing.T, usr user.User, na attendance.NewAttendance) attendance.Attendance {
	t.Helper()
	rec := do(t, http.MethodPost, "/v1/attendance", na, &usr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a attendance.Attendance
	decode(t, rec, &a)
	return a
}

func instanceOn(t *testing.T, usr user.User, date string) schedule.Session {
	t.Helper()
	rec := do(t, http.MethodGet, "/v1/sessions?kind=instance&from="+date+"&to="+date, nil, &usr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got []schedule.Session
	decode(t, rec, &got)
	require.Len(t, got, 1)
	return got[0]
}

func Test_attendanceApi_record(t *testing.T) {
	fx := seed(t)
	monday := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})

	present := record(t, fx.provider, attendance.NewAttendance{
		SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 11), Present: boolPtr(true), Notes: "worked on sight words",
	})
	assert.True(t, present.Present)
	assert.Equal(t, fx.student.ID, present.StudentID)
	assert.Equal(t, fx.provider.ID, present.RecordedBy)

	inst := instanceOn(t, fx.provider, "2024-03-11")
	assert.Equal(t, monday.ID, inst.TemplateID)
	assert.Equal(t, present.SessionID, inst.ID)
	assert.Equal(t, schedule.StatusCompleted, inst.Status)

	absent := record(t, fx.provider, attendance.NewAttendance{
		SessionID: inst.ID, SessionDate: *datePtr(2024, 3, 11), Present: boolPtr(false), AbsenceReason: "Sick",
	})
	assert.Equal(t, present.ID, absent.ID, "one record per session and date")
	assert.False(t, absent.Present)
	assert.Equal(t, "Sick", absent.AbsenceReason)
	assert.Equal(t, schedule.StatusScheduled, instanceOn(t, fx.provider, "2024-03-11").Status)

	oneOff := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, StartTime: "13:00", SessionDate: datePtr(2024, 3, 12)})
	rec := do(t, http.MethodPost, "/v1/sessions/"+oneOff.ID+"/status", StatusRequest{Status: schedule.StatusCancelled}, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	runCodeTests(t, []httpTest{
		{name: "future", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 18), Present: boolPtr(true),
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "teacher", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 11), Present: boolPtr(true),
		}, usr: &fx.teacher, wantCode: http.StatusForbidden},
		{name: "wrong weekday", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 12), Present: boolPtr(true),
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "missing present", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 11),
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "missing date", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: monday.ID, Present: boolPtr(true),
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "cancelled", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: oneOff.ID, SessionDate: *datePtr(2024, 3, 12), Present: boolPtr(true),
		}, usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "other provider", method: http.MethodPost, path: "/v1/attendance", body: attendance.NewAttendance{
			SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 11), Present: boolPtr(true),
		}, usr: &fx.otherProvider, wantCode: http.StatusNotFound},
	})
}

func Test_attendanceApi_reports(t *testing.T) {
	fx := seed(t)
	monday := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 1, StartTime: "09:00"})
	wednesday := createSession(t, fx.provider, schedule.NewSession{StudentID: fx.student.ID, DayOfWeek: 3, StartTime: "10:00"})
	record(t, fx.provider, attendance.NewAttendance{
		SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 11), Present: boolPtr(false), AbsenceReason: "Sick",
	})
	record(t, fx.provider, attendance.NewAttendance{
		SessionID: wednesday.ID, SessionDate: *datePtr(2024, 3, 13), Present: boolPtr(true), Notes: "fluency probe",
	})
	record(t, fx.provider, attendance.NewAttendance{
		SessionID: monday.ID, SessionDate: *datePtr(2024, 3, 4), Present: boolPtr(true),
	})

	query := func(path string, usr user.User) []attendance.Attendance {
		rec := do(t, http.MethodGet, path, nil, &usr)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got []attendance.Attendance
		decode(t, rec, &got)
		return got
	}
	all := query("/v1/attendance", fx.provider)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-03-04", all[0].SessionDate.String(), "sorted by date")
	assert.Len(t, query("/v1/attendance?from=2024-03-11&to=2024-03-15", fx.provider), 2)
	assert.Len(t, query("/v1/attendance?student_id="+fx.student.ID, fx.teacher), 3)
	assert.Len(t, query("/v1/attendance?from=2024-03-11", fx.siteAdmin), 2)
	assert.Empty(t, query("/v1/attendance", fx.otherProvider))

	rec := do(t, http.MethodGet, "/v1/attendance/summary?from=2024-03-11&to=2024-03-15&student_id="+fx.student.ID, nil, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary attendance.Summary
	decode(t, rec, &summary)
	assert.Equal(t, 2, summary.Recorded)
	assert.Equal(t, 1, summary.Attended)
	assert.Equal(t, 1, summary.Missed)
	assert.InDelta(t, 0.5, summary.Rate, 0.001)

	req := newRequest(t, http.MethodGet, "/v1/attendance/export?from=2024-03-11&to=2024-03-15", nil, &fx.provider)
	rec = serve(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="attendance_2024-03-11_2024-03-15.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Attendance")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Student", "Grade", "Time", "Service", "Delivered by", "Present", "Absence reason", "Notes"}, rows[0])
	assert.Equal(t, []string{"2024-03-11", "JD", "2", "09:00-09:30", "resource", "provider", "no", "Sick"}, rows[1])
	assert.Equal(t, []string{"2024-03-13", "JD", "2", "10:00-10:30", "resource", "provider", "yes", "", "fluency probe"}, rows[2])

	runCodeTests(t, []httpTest{
		{name: "summary without student", method: http.MethodGet, path: "/v1/attendance/summary", usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "summary of someone else's student", method: http.MethodGet, path: "/v1/attendance/summary?student_id=" + fx.student.ID, usr: &fx.otherProvider, wantCode: http.StatusNotFound},
		{name: "inverted range", method: http.MethodGet, path: "/v1/attendance?from=2024-03-15&to=2024-03-11", usr: &fx.provider, wantCode: http.StatusBadRequest},
		{name: "no token", method: http.MethodGet, path: "/v1/attendance", wantCode: http.StatusUnauthorized},
	})
}
