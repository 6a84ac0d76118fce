package attendance

import (
	"time"

	"github.com/speddy/speddy/core"
)

// Attendance is recorded once per session instance.
type Attendance struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	StudentID     string    `json:"student_id"`
	SessionDate   core.Date `json:"session_date"`
	Present       bool      `json:"present"`
	AbsenceReason string    `json:"absence_reason,omitempty"`
	Notes         string    `json:"notes"`
	RecordedBy    string    `json:"recorded_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewAttendance records attendance of a session on a date. SessionID may reference
// a weekly session; its instance for the date is created as needed.
type NewAttendance struct {
	SessionID     string    `json:"session_id" validate:"required"`
	SessionDate   core.Date `json:"session_date"`
	Present       *bool     `json:"present" validate:"required"`
	AbsenceReason string    `json:"absence_reason" validate:"max=200"`
	Notes         string    `json:"notes" validate:"max=1000"`
}

func (na *NewAttendance) Clean() {
	na.SessionID = core.CleanString(na.SessionID)
	na.AbsenceReason = core.CleanString(na.AbsenceReason)
	na.Notes = core.CleanString(na.Notes)
}

// QueryFilter is used by repositories. Zero dates leave the range open.
type QueryFilter struct {
	SessionIDs []string
	StudentIDs []string
	From       core.Date
	To         core.Date
}

// Filter is what API clients may filter attendance by.
type Filter struct {
	StudentID string
	From      core.Date
	To        core.Date
}

type Summary struct {
	StudentID string    `json:"student_id"`
	From      core.Date `json:"from"`
	To        core.Date `json:"to"`
	Recorded  int       `json:"recorded"`
	Attended  int       `json:"attended"`
	Missed    int       `json:"missed"`
	// Rate is Attended/Recorded, 0 when nothing was recorded.
	Rate float64 `json:"rate"`
}

// Summarize counts records.
func Summarize(studentID string, from, to core.Date, records []Attendance) Summary {
	s := Summary{StudentID: studentID, From: from, To: to}
	for _, r := range records {
		s.Recorded++
		if r.Present {
			s.Attended++
		} else {
			s.Missed++
		}
	}
	if s.Recorded > 0 {
		s.Rate = float64(s.Attended) / float64(s.Recorded)
	}
	return s
}
