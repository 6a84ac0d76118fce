package attendance

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
)

type (
	Repository interface {
		// UpsertAttendance replaces the record of the same session and date.
		UpsertAttendance(ctx context.Context, a Attendance) (Attendance, error)
		QueryAttendance(ctx context.Context, filter QueryFilter) ([]Attendance, error)
	}

	Service interface {
		Record(ctx context.Context, v school.Viewer, na NewAttendance) (Attendance, error)
		Query(ctx context.Context, v school.Viewer, filter Filter) ([]Attendance, error)
		Summary(ctx context.Context, v school.Viewer, studentID string, from, to core.Date) (Summary, error)
		// ExportXLSX writes the records matching filter as an xlsx workbook.
		ExportXLSX(ctx context.Context, v school.Viewer, filter Filter, w io.Writer) error
	}

	service struct {
		repo     Repository
		sessions schedule.Service
		students student.Repository
		tx       core.Transactor
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository, sessions schedule.Service, students student.Repository,
	tx core.Transactor, validate *validator.Validate,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(sessions, "sessions"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	return &service{repo: repo, sessions: sessions, students: students, tx: tx, validate: validate}
}

func (svc *service) Record(ctx context.Context, v school.Viewer, na NewAttendance) (Attendance, error) {
	if v.User.IsTeacher() {
		return Attendance{}, core.ErrForbidden
	}
	na.Clean()
	if err := svc.validate.Struct(na); err != nil {
		return Attendance{}, err
	}
	if na.SessionDate.IsZero() {
		return Attendance{}, core.NewValidationError(nil, core.FieldError{Field: "session_date", Error: "this field is required"})
	}
	if na.SessionDate.After(svc.sessions.Today()) {
		return Attendance{}, core.NewValidationError(nil, core.FieldError{Field: "session_date", Error: "cannot record attendance in the future"})
	}

	var rec Attendance
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		inst, err := svc.sessions.Instance(ctx, v, na.SessionID, na.SessionDate)
		if err != nil {
			return err
		}
		if inst.Status == schedule.StatusCancelled {
			return core.NewValidationError(nil, core.FieldError{Field: "session_id", Error: "session was cancelled"})
		}

		now := time.Now().UTC()
		a := Attendance{
			SessionID:   inst.ID,
			StudentID:   inst.StudentID,
			SessionDate: na.SessionDate,
			Present:     *na.Present,
			Notes:       na.Notes,
			RecordedBy:  v.ID(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if !a.Present {
			a.AbsenceReason = na.AbsenceReason
		}
		if rec, err = svc.repo.UpsertAttendance(ctx, a); err != nil {
			return errors.Wrap(err, "saving attendance")
		}

		switch {
		case a.Present && inst.Status != schedule.StatusCompleted:
			_, err = svc.sessions.SetStatus(ctx, v, inst.ID, schedule.StatusCompleted)
		case !a.Present && inst.Status == schedule.StatusCompleted:
			_, err = svc.sessions.SetStatus(ctx, v, inst.ID, schedule.StatusScheduled)
		}
		return err
	})
	if err != nil {
		return Attendance{}, err
	}
	return rec, nil
}

// collect returns the records of the session instances v can see, with those instances by ID.
func (svc *service) collect(ctx context.Context, v school.Viewer, filter Filter) ([]Attendance, map[string]schedule.Session, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, nil, core.NewValidationError(nil, core.FieldError{Field: "from", Error: "must not be after to"})
	}

	sessions, err := svc.sessions.QuerySessions(ctx, v, schedule.SessionQuery{
		StudentID: filter.StudentID,
		Kind:      schedule.KindInstance,
		From:      filter.From,
		To:        filter.To,
		Mode:      schedule.ViewAll,
	})
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]schedule.Session, len(sessions))
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	if len(ids) == 0 {
		return []Attendance{}, byID, nil
	}

	qf := QueryFilter{SessionIDs: ids, From: filter.From, To: filter.To}
	if filter.StudentID != "" {
		qf.StudentIDs = []string{filter.StudentID}
	}
	records, err := svc.repo.QueryAttendance(ctx, qf)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying attendance")
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].SessionDate.Equal(records[j].SessionDate) {
			return records[i].SessionDate.Before(records[j].SessionDate)
		}
		return byID[records[i].SessionID].Start < byID[records[j].SessionID].Start
	})
	return records, byID, nil
}

func (svc *service) Query(ctx context.Context, v school.Viewer, filter Filter) ([]Attendance, error) {
	records, _, err := svc.collect(ctx, v, filter)
	return records, err
}

func (svc *service) Summary(ctx context.Context, v school.Viewer, studentID string, from, to core.Date) (Summary, error) {
	st, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	if !student.CanRead(v, st) {
		return Summary{}, student.ErrNotFound
	}
	records, err := svc.Query(ctx, v, Filter{StudentID: studentID, From: from, To: to})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(studentID, from, to, records), nil
}

func (svc *service) ExportXLSX(ctx context.Context, v school.Viewer, filter Filter, w io.Writer) error {
	records, sessions, err := svc.collect(ctx, v, filter)
	if err != nil {
		return err
	}

	ids := make([]string, 0)
	for _, r := range records {
		if !core.StringInSlice(r.StudentID, ids) {
			ids = append(ids, r.StudentID)
		}
	}
	students := make(map[string]student.Student, len(ids))
	if len(ids) > 0 {
		sts, err := svc.students.QueryStudents(ctx, student.QueryFilter{IDs: ids})
		if err != nil {
			return errors.Wrap(err, "loading students")
		}
		for _, st := range sts {
			students[st.ID] = st
		}
	}

	f, err := buildWorkbook(records, sessions, students)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err = f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}
