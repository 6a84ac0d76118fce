package schedule

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/speddy/speddy/core"
)

func sheet(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadBellScheduleSheet(t *testing.T) {
	buf := sheet(t,
		[]interface{}{"Grades", "Day", "Start Time", "End Time", "Period"},
		[]interface{}{"K, 1", "Monday", "10:00", "10:15", "Recess"},
		[]interface{}{"3;4", 3, "12:00 PM", "12:45 PM", "Lunch"},
		[]interface{}{"5", "fri", "1:30PM", "14:00", "Assembly"},
	)

	rows, err := ReadBellScheduleSheet(buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, NewBellSchedule{
		GradeLevels: []string{"K", "1"},
		DayOfWeek:   1,
		StartTime:   "10:00",
		EndTime:     "10:15",
		PeriodName:  "Recess",
	}, rows[0].Input)

	assert.Equal(t, []string{"3", "4"}, rows[1].Input.GradeLevels)
	assert.Equal(t, 3, rows[1].Input.DayOfWeek)
	assert.Equal(t, "12:00", rows[1].Input.StartTime)
	assert.Equal(t, "12:45", rows[1].Input.EndTime)

	assert.Equal(t, 4, rows[2].Line)
	assert.Equal(t, 5, rows[2].Input.DayOfWeek)
	assert.Equal(t, "13:30", rows[2].Input.StartTime)
}

func TestReadBellScheduleSheet_Errors(t *testing.T) {
	tests := []struct {
		name  string
		rows  [][]interface{}
		field string
	}{
		{
			name:  "missing column",
			rows:  [][]interface{}{{"Grades", "Day", "Start", "End"}},
			field: "file",
		},
		{
			name: "bad day",
			rows: [][]interface{}{
				{"Grades", "Day", "Start", "End", "Period"},
				{"K", "Saturday", "10:00", "10:15", "Recess"},
			},
			field: "row 2",
		},
		{
			name: "bad time",
			rows: [][]interface{}{
				{"Grades", "Day", "Start", "End", "Period"},
				{"K", "1", "10:00", "lunch", "Recess"},
			},
			field: "row 2",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadBellScheduleSheet(sheet(t, tc.rows...))
			require.Error(t, err)
			verr, ok := err.(*core.ValidationError)
			require.True(t, ok)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tc.field, verr.Fields[0].Field)
		})
	}

	_, err := ReadBellScheduleSheet(bytes.NewBufferString("not a workbook"))
	assert.Error(t, err)
}
