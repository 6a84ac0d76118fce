package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertAttendance(_ context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.sessions[a.SessionID]; !ok {
		return attendance.Attendance{}, errors.Errorf("unknown session %s", a.SessionID)
	}
	for id, existing := range repo.db.t.attendance {
		if existing.SessionID == a.SessionID && existing.SessionDate.Equal(a.SessionDate) {
			a.ID = id
			a.CreatedAt = existing.CreatedAt
			break
		}
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	repo.db.t.attendance[a.ID] = a
	return a, nil
}

func (repo *attendanceRepository) QueryAttendance(_ context.Context, f attendance.QueryFilter) ([]attendance.Attendance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]attendance.Attendance, 0)
	for _, a := range repo.db.t.attendance {
		if len(f.SessionIDs) > 0 && !inSlice(a.SessionID, f.SessionIDs) {
			continue
		}
		if len(f.StudentIDs) > 0 && !inSlice(a.StudentID, f.StudentIDs) {
			continue
		}
		if !inDateRange(a.SessionDate, f.From, f.To) {
			continue
		}
		records = append(records, a)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SessionDate.Equal(records[j].SessionDate) {
			return records[i].SessionDate.Before(records[j].SessionDate)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}
