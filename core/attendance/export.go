package attendance

import (
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/student"
)

const exportSheet = "Attendance"

var exportHeader = []interface{}{
	"Date", "Student", "Grade", "Time", "Service", "Delivered by", "Present", "Absence reason", "Notes",
}

func buildWorkbook(records []Attendance, sessions map[string]schedule.Session, students map[string]student.Student) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "naming sheet")
	}

	write := func(row int, values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		return f.SetSheetRow(exportSheet, cell, &values)
	}

	if err := write(1, exportHeader); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "writing header")
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(exportSheet, 1, 1, style)
	}
	_ = f.SetColWidth(exportSheet, "A", "A", 12)
	_ = f.SetColWidth(exportSheet, "H", "I", 30)

	for i, r := range records {
		sess := sessions[r.SessionID]
		st := students[r.StudentID]
		present := "no"
		if r.Present {
			present = "yes"
		}
		row := []interface{}{
			r.SessionDate.String(),
			st.Initials,
			st.GradeLevel,
			sess.Range().String(),
			sess.ServiceType,
			sess.DeliveredBy,
			present,
			r.AbsenceReason,
			r.Notes,
		}
		if err := write(i+2, row); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "writing row")
		}
	}
	return f, nil
}
