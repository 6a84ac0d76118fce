package main

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

const (
	digestTemplate  = "weekly_schedule"
	digestSheet     = "Schedule"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type (
	digestSession struct {
		Time        string
		Student     string
		Grade       string
		ServiceType string
		DeliveredBy string // empty when the provider delivers it
	}

	digestDay struct {
		Label    string
		Date     string
		Sessions []digestSession
	}

	digestData struct {
		Name      string
		WeekStart string
		Days      []digestDay
	}
)

// digest emails every active provider its schedule for the week of date, with a spreadsheet copy.
// Providers without sessions that week are skipped.
func (cli *commandLine) digest(date core.Date) error {
	ctx := context.Background()
	if date.IsZero() {
		date = cli.app.ScheduleSvc.Today().WeekStart().AddDays(7)
	}
	weekStart := date.WeekStart()

	active := true
	providers, err := cli.app.UserSvc.Query(ctx, &user.QueryFilter{Roles: user.ProviderRoles, IsActive: &active}, nil)
	if err != nil {
		return errors.Wrap(err, "querying providers")
	}

	messages := make([]*core.EmailMessage, 0, len(providers))
	for _, p := range providers {
		msg, err := cli.digestMessage(ctx, p, weekStart)
		if err != nil {
			return errors.Wrapf(err, "building digest of %s", p.Email)
		}
		if msg != nil {
			messages = append(messages, msg)
		}
	}
	cli.app.Mail.SendMessages(messages...)
	fmt.Fprintf(cli.out, "sent %d schedules for the week of %s\n", len(messages), weekStart)
	return nil
}

func (cli *commandLine) digestMessage(ctx context.Context, provider user.User, weekStart core.Date) (*core.EmailMessage, error) {
	v, err := cli.app.SchoolSvc.Viewer(ctx, provider)
	if err != nil {
		return nil, err
	}
	week, err := cli.app.ScheduleSvc.Week(ctx, v, weekStart, schedule.ViewAll)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	for _, day := range week.Days {
		for _, s := range day.Sessions {
			if !core.StringInSlice(s.StudentID, ids) {
				ids = append(ids, s.StudentID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sts, err := cli.app.Students.QueryStudents(ctx, student.QueryFilter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "loading students")
	}
	students := make(map[string]student.Student, len(sts))
	for _, st := range sts {
		students[st.ID] = st
	}

	data := digestData{Name: provider.Name, WeekStart: week.WeekStart.String()}
	for _, day := range week.Days {
		dd := digestDay{Label: fmt.Sprintf("%s %s", day.Name, day.Date), Date: day.Date.String()}
		if day.Holiday != "" {
			dd.Label += " (" + day.Holiday + ")"
		}
		for _, s := range day.Sessions {
			ds := digestSession{
				Time:        s.Range().String(),
				Student:     students[s.StudentID].Initials,
				Grade:       students[s.StudentID].GradeLevel,
				ServiceType: s.ServiceType,
			}
			if s.DeliveredBy != schedule.DeliveredByProvider {
				ds.DeliveredBy = s.DeliveredBy
			}
			dd.Sessions = append(dd.Sessions, ds)
		}
		data.Days = append(data.Days, dd)
	}

	xlsx, err := digestWorkbook(data)
	if err != nil {
		return nil, err
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: provider.Name, Address: provider.Email}},
		Subject:      "Your schedule for the week of " + data.WeekStart,
		TemplateName: digestTemplate,
		TemplateData: data,
	}
	if err = msg.Attach(xlsx, "schedule_"+data.WeekStart+".xlsx", xlsxContentType); err != nil {
		return nil, err
	}
	return msg, nil
}

func digestWorkbook(data digestData) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", digestSheet); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}

	rows := [][]interface{}{{"Date", "Day", "Time", "Student", "Grade", "Service", "Delivered by"}}
	for _, day := range data.Days {
		for _, s := range day.Sessions {
			deliveredBy := s.DeliveredBy
			if deliveredBy == "" {
				deliveredBy = schedule.DeliveredByProvider
			}
			rows = append(rows, []interface{}{day.Date, day.Label, s.Time, s.Student, s.Grade, s.ServiceType, deliveredBy})
		}
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err = f.SetSheetRow(digestSheet, cell, &rows[i]); err != nil {
			return nil, errors.Wrap(err, "writing row")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf, nil
}
