package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/attendance"
)

const attendanceColumns = `id, session_id, student_id, session_date, present, absence_reason, notes, recorded_by,
	created_at, updated_at`

type attendanceRow struct {
	ID            string      `db:"id"`
	SessionID     string      `db:"session_id"`
	StudentID     string      `db:"student_id"`
	SessionDate   core.Date   `db:"session_date"`
	Present       bool        `db:"present"`
	AbsenceReason null.String `db:"absence_reason"`
	Notes         null.String `db:"notes"`
	RecordedBy    null.String `db:"recorded_by"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (r attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:            r.ID,
		SessionID:     r.SessionID,
		StudentID:     r.StudentID,
		SessionDate:   r.SessionDate,
		Present:       r.Present,
		AbsenceReason: r.AbsenceReason.String,
		Notes:         r.Notes.String,
		RecordedBy:    r.RecordedBy.String,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	db core.DBExecutor
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db core.DBExecutor) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) exec(ctx context.Context) core.DBExecutor {
	return core.ExecutorFromContext(ctx, repo.db)
}

func (repo *attendanceRepository) UpsertAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	query := `INSERT INTO attendance (` + attendanceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, session_date) DO UPDATE SET
			present = EXCLUDED.present, absence_reason = EXCLUDED.absence_reason, notes = EXCLUDED.notes,
			recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
		RETURNING ` + attendanceColumns

	var row attendanceRow
	err := getOne(ctx, repo.exec(ctx), &row, query,
		uuid.New().String(), a.SessionID, a.StudentID, a.SessionDate, a.Present, nullString(a.AbsenceReason),
		nullString(a.Notes), nullString(a.RecordedBy), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "upserting attendance")
	}
	return row.attendance(), nil
}

func (repo *attendanceRepository) QueryAttendance(ctx context.Context, f attendance.QueryFilter) ([]attendance.Attendance, error) {
	var w where
	if len(f.SessionIDs) > 0 {
		w.add("session_id::text IN (?)", f.SessionIDs)
	}
	if len(f.StudentIDs) > 0 {
		w.add("student_id::text IN (?)", f.StudentIDs)
	}
	if !f.From.IsZero() {
		w.add("session_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("session_date <= ?", f.To)
	}

	var rows []attendanceRow
	query := "SELECT " + attendanceColumns + " FROM attendance" + w.String() + " ORDER BY session_date, id"
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	records := make([]attendance.Attendance, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.attendance())
	}
	return records, nil
}
