package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/student"
)

const studentColumns = `id, provider_id, initials, grade_level, teacher_name, school_site, school_district,
	sessions_per_week, minutes_per_session, created_at, updated_at`

type studentRow struct {
	ID                string      `db:"id"`
	ProviderID        string      `db:"provider_id"`
	Initials          string      `db:"initials"`
	GradeLevel        string      `db:"grade_level"`
	TeacherName       null.String `db:"teacher_name"`
	SchoolSite        null.String `db:"school_site"`
	SchoolDistrict    null.String `db:"school_district"`
	SessionsPerWeek   int         `db:"sessions_per_week"`
	MinutesPerSession int         `db:"minutes_per_session"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:                r.ID,
		ProviderID:        r.ProviderID,
		Initials:          r.Initials,
		GradeLevel:        r.GradeLevel,
		TeacherName:       r.TeacherName.String,
		SchoolSite:        r.SchoolSite.String,
		SchoolDistrict:    r.SchoolDistrict.String,
		SessionsPerWeek:   r.SessionsPerWeek,
		MinutesPerSession: r.MinutesPerSession,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	db core.DBExecutor
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db core.DBExecutor) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) exec(ctx context.Context) core.DBExecutor {
	return core.ExecutorFromContext(ctx, repo.db)
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	st.ID = uuid.New().String()
	_, err := execAffected(ctx, repo.exec(ctx),
		`INSERT INTO students (`+studentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ProviderID, st.Initials, st.GradeLevel, nullString(st.TeacherName), nullString(st.SchoolSite),
		nullString(st.SchoolDistrict), st.SessionsPerWeek, st.MinutesPerSession, st.CreatedAt.UTC(), st.UpdatedAt.UTC())
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, f student.QueryFilter) ([]student.Student, error) {
	var w where
	if len(f.IDs) > 0 {
		w.add("id::text IN (?)", f.IDs)
	}
	if len(f.ProviderIDs) > 0 {
		w.add("provider_id::text IN (?)", f.ProviderIDs)
	}
	var conds []string
	var args []interface{}
	if len(f.SchoolSites) > 0 {
		conds = append(conds, "school_site IN (?)")
		args = append(args, f.SchoolSites)
	}
	if len(f.SchoolDistricts) > 0 {
		conds = append(conds, "school_district IN (?)")
		args = append(args, f.SchoolDistricts)
	}
	w.anyOf(conds, args)
	if f.GradeLevel != "" {
		w.add("grade_level = ?", f.GradeLevel)
	}
	if f.TeacherName != "" {
		w.add("lower(teacher_name) = lower(?)", f.TeacherName)
	}
	if f.Search != "" {
		w.add("initials LIKE ?", f.Search+"%")
	}

	query := "SELECT " + studentColumns + " FROM students" + w.String() +
		" ORDER BY array_position(?::text[], grade_level), initials, id"
	args = append(w.args, pq.StringArray(student.GradeLevels))

	var rows []studentRow
	if err := selectAll(ctx, repo.exec(ctx), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	if err := getOne(ctx, repo.exec(ctx), &row, "SELECT "+studentColumns+" FROM students WHERE id = ?", id); err != nil {
		return student.Student{}, trapNotFound(err, student.ErrNotFound, "getting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	n, err := execAffected(ctx, repo.exec(ctx),
		`UPDATE students SET initials = ?, grade_level = ?, teacher_name = ?, sessions_per_week = ?,
			minutes_per_session = ?, updated_at = ? WHERE id = ?`,
		st.Initials, st.GradeLevel, nullString(st.TeacherName), st.SessionsPerWeek, st.MinutesPerSession,
		st.UpdatedAt.UTC(), st.ID)
	if err != nil {
		return student.Student{}, trapNotFound(err, student.ErrNotFound, "updating student")
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return st, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	n, err := execAffected(ctx, repo.exec(ctx), "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return trapNotFound(err, student.ErrNotFound, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}
