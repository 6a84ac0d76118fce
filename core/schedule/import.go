package schedule

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/speddy/speddy/core"
)

// BellScheduleRow is one data row of an imported bell schedule sheet.
type BellScheduleRow struct {
	Line  int
	Input NewBellSchedule
}

var bellScheduleColumns = map[string]string{
	"grades":       "grades",
	"grade_levels": "grades",
	"grade levels": "grades",
	"day":          "day",
	"day_of_week":  "day",
	"start":        "start",
	"start_time":   "start",
	"start time":   "start",
	"end":          "end",
	"end_time":     "end",
	"end time":     "end",
	"period":       "period",
	"period_name":  "period",
	"period name":  "period",
}

// ReadBellScheduleSheet reads the first sheet of an xlsx workbook. The first row holds the headers
// grades, day, start, end and period; grades are separated by commas, days are 1-5 or weekday names.
func ReadBellScheduleSheet(r io.Reader) ([]BellScheduleRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "file", Error: "not a valid xlsx workbook"})
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "workbook has no sheets"})
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "reading sheet")
	}
	if len(rows) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "sheet is empty"})
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		if name, ok := bellScheduleColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[name] = i
		}
	}
	for _, name := range []string{"grades", "day", "start", "end", "period"} {
		if _, ok := cols[name]; !ok {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "missing column " + name})
		}
	}

	cell := func(row []string, name string) string {
		if i := cols[name]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	out := make([]BellScheduleRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if strings.Join(row, "") == "" {
			continue
		}
		day, ok := parseSheetDay(cell(row, "day"))
		if !ok {
			return nil, core.NewValidationError(nil, core.FieldError{Field: fmt.Sprintf("row %d", line), Error: "invalid day"})
		}
		start, err := parseSheetTime(cell(row, "start"))
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: fmt.Sprintf("row %d", line), Error: "invalid start time"})
		}
		end, err := parseSheetTime(cell(row, "end"))
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: fmt.Sprintf("row %d", line), Error: "invalid end time"})
		}

		var grades []string
		for _, g := range strings.FieldsFunc(cell(row, "grades"), func(r rune) bool { return r == ',' || r == ';' }) {
			if g = strings.TrimSpace(g); g != "" {
				grades = append(grades, g)
			}
		}
		out = append(out, BellScheduleRow{
			Line: line,
			Input: NewBellSchedule{
				GradeLevels: grades,
				DayOfWeek:   day,
				StartTime:   start.String(),
				EndTime:     end.String(),
				PeriodName:  cell(row, "period"),
			},
		})
	}
	return out, nil
}

func parseSheetDay(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 1 && n <= 5
	}
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0, false
	}
	for i, name := range Weekdays {
		if strings.HasPrefix(strings.ToLower(name), s) {
			return i + 1, true
		}
	}
	return 0, false
}

// parseSheetTime accepts 24-hour times as well as spreadsheet formats such as "1:30 PM".
func parseSheetTime(s string) (TimeOfDay, error) {
	if t, err := ParseTimeOfDay(s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"3:04 PM", "3:04PM", "3:04:05 PM", "15:04:05"} {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return TimeOfDay(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, errors.Errorf("invalid time %q", s)
}
