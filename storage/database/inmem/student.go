package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/speddy/speddy/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(_ context.Context, st student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	st.ID = uuid.New().String()
	repo.db.t.students[st.ID] = st
	return st, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, f student.QueryFilter) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0)
	for _, st := range repo.db.t.students {
		if len(f.IDs) > 0 && !inSlice(st.ID, f.IDs) {
			continue
		}
		if len(f.ProviderIDs) > 0 && !inSlice(st.ProviderID, f.ProviderIDs) {
			continue
		}
		if len(f.SchoolSites) > 0 || len(f.SchoolDistricts) > 0 {
			if !inSlice(st.SchoolSite, f.SchoolSites) && !inSlice(st.SchoolDistrict, f.SchoolDistricts) {
				continue
			}
		}
		if f.GradeLevel != "" && st.GradeLevel != f.GradeLevel {
			continue
		}
		if f.TeacherName != "" && !strings.EqualFold(st.TeacherName, f.TeacherName) {
			continue
		}
		if f.Search != "" && !strings.HasPrefix(st.Initials, f.Search) {
			continue
		}
		students = append(students, st)
	}

	sort.Slice(students, func(i, j int) bool {
		gi, gj := student.GradeIndex(students[i].GradeLevel), student.GradeIndex(students[j].GradeLevel)
		if gi != gj {
			return gi < gj
		}
		if students[i].Initials != students[j].Initials {
			return students[i].Initials < students[j].Initials
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if st, ok := repo.db.t.students[id]; ok {
		return st, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, st student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.students[st.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.t.students[st.ID] = st
	return st, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.students[id]; !ok {
		return student.ErrNotFound
	}
	repo.db.deleteStudent(id)
	return nil
}
