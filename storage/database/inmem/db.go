// Package inmemdb implements every repository in memory. It backs the tests and
// `database.engine=memory` runs.
package inmemdb

import (
	"context"
	"strings"
	"sync"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/attendance"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

type tables struct {
	users       map[string]user.User
	permissions map[string]school.AdminPermission
	students    map[string]student.Student
	bells       map[string]schedule.BellSchedule
	activities  map[string]schedule.SpecialActivity
	hours       map[string]schedule.SchoolHours
	holidays    map[string]schedule.Holiday
	sessions    map[string]schedule.Session
	attendance  map[string]attendance.Attendance
}

func newTables() tables {
	return tables{
		users:       make(map[string]user.User),
		permissions: make(map[string]school.AdminPermission),
		students:    make(map[string]student.Student),
		bells:       make(map[string]schedule.BellSchedule),
		activities:  make(map[string]schedule.SpecialActivity),
		hours:       make(map[string]schedule.SchoolHours),
		holidays:    make(map[string]schedule.Holiday),
		sessions:    make(map[string]schedule.Session),
		attendance:  make(map[string]attendance.Attendance),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t tables) clone() tables {
	return tables{
		users:       copyMap(t.users),
		permissions: copyMap(t.permissions),
		students:    copyMap(t.students),
		bells:       copyMap(t.bells),
		activities:  copyMap(t.activities),
		hours:       copyMap(t.hours),
		holidays:    copyMap(t.holidays),
		sessions:    copyMap(t.sessions),
		attendance:  copyMap(t.attendance),
	}
}

// DB holds all tables. Stored values are never mutated in place.
type DB struct {
	mutex sync.RWMutex
	tx    sync.Mutex
	t     tables
}

var _ core.Transactor = (*DB)(nil)

func NewDB() *DB {
	return &DB{t: newTables()}
}

type txKey struct{}

// WithinTx runs fn with exclusive access to transactions and restores every table if fn fails.
// Nested calls join the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	db.tx.Lock()
	defer db.tx.Unlock()

	db.mutex.RLock()
	snapshot := db.t.clone()
	db.mutex.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.mutex.Lock()
		db.t = snapshot
		db.mutex.Unlock()
		return err
	}
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.t = newTables()
}

// deleteStudent removes a student with its sessions and attendance. Callers hold the write lock.
func (db *DB) deleteStudent(id string) {
	delete(db.t.students, id)
	for sid, s := range db.t.sessions {
		if s.StudentID == id {
			delete(db.t.sessions, sid)
		}
	}
	for aid, a := range db.t.attendance {
		if a.StudentID == id {
			delete(db.t.attendance, aid)
		}
	}
}

// deleteSession removes a session, its instances and their attendance. Callers hold the write lock.
func (db *DB) deleteSession(id string) {
	delete(db.t.sessions, id)
	for sid, s := range db.t.sessions {
		if s.TemplateID == id {
			db.deleteSession(sid)
		}
	}
	for aid, a := range db.t.attendance {
		if a.SessionID == id {
			delete(db.t.attendance, aid)
		}
	}
}

// deleteUser removes a user and cascades like the SQL schema does. Callers hold the write lock.
func (db *DB) deleteUser(id string) {
	delete(db.t.users, id)
	for pid, p := range db.t.permissions {
		if p.AdminID == id {
			delete(db.t.permissions, pid)
		}
	}
	for sid, st := range db.t.students {
		if st.ProviderID == id {
			db.deleteStudent(sid)
		}
	}
	for bid, b := range db.t.bells {
		if b.ProviderID == id {
			delete(db.t.bells, bid)
		}
	}
	for aid, a := range db.t.activities {
		if a.ProviderID == id {
			delete(db.t.activities, aid)
		}
	}
	for hid, h := range db.t.hours {
		if h.ProviderID == id {
			delete(db.t.hours, hid)
		}
	}
	for sid, s := range db.t.sessions {
		switch {
		case s.ProviderID == id:
			db.deleteSession(sid)
		case s.AssignedToSEAID == id || s.AssignedToSpecialistID == id:
			if s.AssignedToSEAID == id {
				s.AssignedToSEAID = ""
			}
			if s.AssignedToSpecialistID == id {
				s.AssignedToSpecialistID = ""
			}
			db.t.sessions[sid] = s
		}
	}
	for aid, a := range db.t.attendance {
		if a.RecordedBy == id {
			a.RecordedBy = ""
			db.t.attendance[aid] = a
		}
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inSlice(s string, slice []string) bool {
	return core.StringInSlice(s, slice)
}
