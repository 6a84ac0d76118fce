package attendance

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/student"
)

func TestSummarize(t *testing.T) {
	from, to := core.NewDate(2024, 9, 1), core.NewDate(2024, 9, 30)

	s := Summarize("st1", from, to, nil)
	assert.Equal(t, Summary{StudentID: "st1", From: from, To: to}, s)

	s = Summarize("st1", from, to, []Attendance{{Present: true}, {Present: false}, {Present: true}, {Present: true}})
	assert.Equal(t, 4, s.Recorded)
	assert.Equal(t, 3, s.Attended)
	assert.Equal(t, 1, s.Missed)
	assert.InDelta(t, 0.75, s.Rate, 1e-9)
}

func TestBuildWorkbook(t *testing.T) {
	sessions := map[string]schedule.Session{
		"i1": {
			ID: "i1", StudentID: "st1", ServiceType: "speech", DeliveredBy: schedule.DeliveredByProvider,
			Start: schedule.MustParseTimeOfDay("09:00"), End: schedule.MustParseTimeOfDay("09:30"),
		},
	}
	students := map[string]student.Student{"st1": {ID: "st1", Initials: "JD", GradeLevel: "3"}}
	records := []Attendance{
		{SessionID: "i1", StudentID: "st1", SessionDate: core.NewDate(2024, 9, 9), Present: true},
		{SessionID: "i1", StudentID: "st1", SessionDate: core.NewDate(2024, 9, 16), AbsenceReason: "sick"},
	}

	f, err := buildWorkbook(records, sessions, students)
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	back, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer back.Close()

	assert.Equal(t, []string{exportSheet}, back.GetSheetList())
	rows, err := back.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Date", rows[0][0])
	require.GreaterOrEqual(t, len(rows[1]), 7)
	assert.Equal(t, []string{"2024-09-09", "JD", "3", "09:00-09:30", "speech", "provider", "yes"}, rows[1][:7])
	require.GreaterOrEqual(t, len(rows[2]), 8)
	assert.Equal(t, []string{"2024-09-16", "JD", "3", "09:00-09:30", "speech", "provider", "no", "sick"}, rows[2][:8])
}
