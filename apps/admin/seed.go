package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

type (
	fixtures struct {
		Users         []userFixture        `yaml:"users"`
		Students      []studentFixture     `yaml:"students"`
		BellSchedules []bellFixture        `yaml:"bell_schedules"`
		SchoolHours   []schoolHoursFixture `yaml:"school_hours"`
		Holidays      []holidayFixture     `yaml:"holidays"`
	}

	userFixture struct {
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Role     string `yaml:"role"`
		Site     string `yaml:"school_site"`
		District string `yaml:"school_district"`
		Password string `yaml:"password"`
	}

	sessionFixture struct {
		Day   int    `yaml:"day"`
		Start string `yaml:"start"`
		SEA   string `yaml:"sea"` // email
	}

	studentFixture struct {
		Provider          string           `yaml:"provider"` // email
		Initials          string           `yaml:"initials"`
		GradeLevel        string           `yaml:"grade_level"`
		TeacherName       string           `yaml:"teacher_name"`
		SessionsPerWeek   int              `yaml:"sessions_per_week"`
		MinutesPerSession int              `yaml:"minutes_per_session"`
		Sessions          []sessionFixture `yaml:"sessions"`
	}

	bellFixture struct {
		Provider string   `yaml:"provider"` // email
		Grades   []string `yaml:"grades"`
		Day      int      `yaml:"day"`
		Start    string   `yaml:"start"`
		End      string   `yaml:"end"`
		Period   string   `yaml:"period"`
	}

	schoolHoursFixture struct {
		Provider string `yaml:"provider"` // email
		Day      int    `yaml:"day"`
		Grade    string `yaml:"grade"`
		Start    string `yaml:"start"`
		End      string `yaml:"end"`
	}

	holidayFixture struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
		Site string `yaml:"school_site"` // empty for every site
	}
)

func readFixtures(path string) (fixtures, error) {
	var fx fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, errors.Wrap(err, "reading fixtures")
	}
	if err = yaml.Unmarshal(data, &fx); err != nil {
		return fx, errors.Wrap(err, "parsing fixtures")
	}
	return fx, nil
}

// seed loads a fixtures file in a single transaction. Profiles that already exist are reused.
func (cli *commandLine) seed(path string) error {
	fx, err := readFixtures(path)
	if err != nil {
		return err
	}

	var counts struct{ users, students, sessions, bells, hours, holidays int }
	err = cli.app.Tx.WithinTx(context.Background(), func(ctx context.Context) error {
		viewers := make(map[string]school.Viewer)
		viewer := func(email string) (school.Viewer, error) {
			email = core.CleanString(email, true /* lower */)
			if v, ok := viewers[email]; ok {
				return v, nil
			}
			usr, err := cli.app.UserSvc.GetByEmail(ctx, email)
			if err != nil {
				return school.Viewer{}, errors.Wrapf(err, "finding %s", email)
			}
			v, err := cli.app.SchoolSvc.Viewer(ctx, usr)
			if err != nil {
				return school.Viewer{}, err
			}
			viewers[email] = v
			return v, nil
		}

		for _, uf := range fx.Users {
			if _, err := cli.app.UserSvc.GetByEmail(ctx, core.CleanString(uf.Email, true)); err == nil {
				continue
			} else if !core.IsNotFound(err) {
				return err
			}
			nu := user.NewUser{
				Name:            uf.Name,
				Email:           uf.Email,
				Role:            uf.Role,
				SchoolSite:      uf.Site,
				SchoolDistrict:  uf.District,
				Password:        uf.Password,
				PasswordConfirm: uf.Password,
			}
			if err := nu.Validate(ctx, cli.app.Validate, cli.app.UserSvc); err != nil {
				return errors.Wrapf(err, "user %s", uf.Email)
			}
			usr, err := cli.app.UserSvc.Create(ctx, nu)
			if err != nil {
				return errors.Wrapf(err, "user %s", uf.Email)
			}
			if usr.IsAdmin() {
				if err = cli.grantOwnScope(ctx, usr); err != nil {
					return err
				}
			}
			counts.users++
		}

		for _, sf := range fx.Students {
			v, err := viewer(sf.Provider)
			if err != nil {
				return err
			}
			st, err := cli.app.StudentSvc.Create(ctx, v, student.NewStudent{
				Initials:          sf.Initials,
				GradeLevel:        sf.GradeLevel,
				TeacherName:       sf.TeacherName,
				SessionsPerWeek:   sf.SessionsPerWeek,
				MinutesPerSession: sf.MinutesPerSession,
			})
			if err != nil {
				return errors.Wrapf(err, "student %s", sf.Initials)
			}
			counts.students++

			for _, ss := range sf.Sessions {
				ns := schedule.NewSession{StudentID: st.ID, DayOfWeek: ss.Day, StartTime: ss.Start}
				if ss.SEA != "" {
					sea, err := viewer(ss.SEA)
					if err != nil {
						return err
					}
					ns.AssignedToSEAID = sea.ID()
				}
				if _, err = cli.app.ScheduleSvc.CreateSession(ctx, v, ns); err != nil {
					return errors.Wrapf(err, "session of %s on %s", st.Initials, schedule.WeekdayName(ss.Day))
				}
				counts.sessions++
			}
		}

		for _, bf := range fx.BellSchedules {
			v, err := viewer(bf.Provider)
			if err != nil {
				return err
			}
			_, err = cli.app.ScheduleSvc.CreateBellSchedule(ctx, v, schedule.NewBellSchedule{
				GradeLevels: bf.Grades,
				DayOfWeek:   bf.Day,
				StartTime:   bf.Start,
				EndTime:     bf.End,
				PeriodName:  bf.Period,
			})
			if err != nil {
				return errors.Wrapf(err, "bell schedule %s", bf.Period)
			}
			counts.bells++
		}

		for _, hf := range fx.SchoolHours {
			v, err := viewer(hf.Provider)
			if err != nil {
				return err
			}
			_, err = cli.app.ScheduleSvc.SetSchoolHours(ctx, v, schedule.NewSchoolHours{
				DayOfWeek:  hf.Day,
				GradeLevel: hf.Grade,
				StartTime:  hf.Start,
				EndTime:    hf.End,
			})
			if err != nil {
				return errors.Wrapf(err, "school hours of %s", schedule.WeekdayName(hf.Day))
			}
			counts.hours++
		}

		for _, hf := range fx.Holidays {
			date, err := core.ParseDate(hf.Date)
			if err != nil {
				return errors.Wrapf(err, "holiday %s", hf.Name)
			}
			_, err = cli.app.Schedules.CreateHoliday(ctx, schedule.Holiday{
				SchoolSite: core.CleanString(hf.Site),
				Date:       date,
				Name:       core.CleanString(hf.Name),
				CreatedAt:  time.Now().UTC(),
			})
			if err != nil {
				if errors.Cause(err) == schedule.ErrHolidayExists {
					continue
				}
				return errors.Wrapf(err, "holiday %s", hf.Name)
			}
			counts.holidays++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "seeded %d users, %d students, %d sessions, %d bell schedules, %d school hours, %d holidays\n",
		counts.users, counts.students, counts.sessions, counts.bells, counts.hours, counts.holidays)
	return nil
}
