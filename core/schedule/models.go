package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/speddy/speddy/core"
)

const (
	DeliveredByProvider   = "provider"
	DeliveredBySEA        = "sea"
	DeliveredBySpecialist = "specialist"

	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"

	// DefaultGrade is the SchoolHours grade used when no row exists for the student's grade.
	DefaultGrade = "default"

	DefaultMaxConcurrent = 6
)

var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// WeekdayName returns the English name of an ISO weekday (1 = Monday).
func WeekdayName(day int) string {
	if day < 1 || day > len(Weekdays) {
		return ""
	}
	return Weekdays[day-1]
}

// BellSchedule is a recurring school period (lunch, recess...) during which the listed grades are unavailable.
type BellSchedule struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"provider_id"`
	GradeLevels []string  `json:"grade_levels"`
	DayOfWeek   int       `json:"day_of_week"`
	Start       TimeOfDay `json:"start_time"`
	End         TimeOfDay `json:"end_time"`
	PeriodName  string    `json:"period_name"`
	SchoolSite  string    `json:"school_site"`
	CreatedAt   time.Time `json:"created_at"`
}

func (b BellSchedule) Range() TimeRange { return TimeRange{b.Start, b.End} }

func (b BellSchedule) AppliesTo(grade string) bool {
	for _, g := range b.GradeLevels {
		if strings.EqualFold(g, grade) {
			return true
		}
	}
	return false
}

// SpecialActivity is a recurring class activity (PE, library...) of one teacher.
type SpecialActivity struct {
	ID           string    `json:"id"`
	ProviderID   string    `json:"provider_id"`
	TeacherName  string    `json:"teacher_name"`
	DayOfWeek    int       `json:"day_of_week"`
	Start        TimeOfDay `json:"start_time"`
	End          TimeOfDay `json:"end_time"`
	ActivityName string    `json:"activity_name"`
	SchoolSite   string    `json:"school_site"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a SpecialActivity) Range() TimeRange { return TimeRange{a.Start, a.End} }

type SchoolHours struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	SchoolSite string    `json:"school_site"`
	DayOfWeek  int       `json:"day_of_week"`
	GradeLevel string    `json:"grade_level"`
	Start      TimeOfDay `json:"start_time"`
	End        TimeOfDay `json:"end_time"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (h SchoolHours) Range() TimeRange { return TimeRange{h.Start, h.End} }

// Holiday is a day without sessions. An empty SchoolSite applies to every site.
type Holiday struct {
	ID         string    `json:"id"`
	SchoolSite string    `json:"school_site"`
	Date       core.Date `json:"date"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h Holiday) AppliesTo(site string) bool {
	return h.SchoolSite == "" || h.SchoolSite == site
}

// Session is a weekly template when SessionDate is nil, a dated instance otherwise.
type Session struct {
	ID                     string     `json:"id"`
	ProviderID             string     `json:"provider_id"`
	StudentID              string     `json:"student_id"`
	DayOfWeek              int        `json:"day_of_week"`
	Start                  TimeOfDay  `json:"start_time"`
	End                    TimeOfDay  `json:"end_time"`
	ServiceType            string     `json:"service_type"`
	DeliveredBy            string     `json:"delivered_by"`
	AssignedToSEAID        string     `json:"assigned_to_sea_id,omitempty"`
	AssignedToSpecialistID string     `json:"assigned_to_specialist_id,omitempty"`
	TemplateID             string     `json:"template_id,omitempty"`
	SessionDate            *core.Date `json:"session_date"`
	OriginalDate           *core.Date `json:"original_date,omitempty"`
	Status                 string     `json:"status"`
	Notes                  string     `json:"notes"`
	ManuallyModified       bool       `json:"manually_modified"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (s Session) IsTemplate() bool { return s.SessionDate == nil }

// Occurrence is the date the template originally placed an instance on,
// which stays fixed when the instance is moved.
func (s Session) Occurrence() *core.Date {
	if s.OriginalDate != nil {
		return s.OriginalDate
	}
	return s.SessionDate
}

func (s Session) Range() TimeRange { return TimeRange{s.Start, s.End} }
func (s Session) Duration() int    { return int(s.End - s.Start) }

// OccursOn reports whether the session takes place on date: instances on their own date,
// templates on every date of their weekday.
func (s Session) OccursOn(date core.Date) bool {
	if s.IsTemplate() {
		return s.DayOfWeek == date.ISOWeekday()
	}
	return s.SessionDate.Equal(date)
}

type NewBellSchedule struct {
	GradeLevels []string `json:"grade_levels" validate:"required,min=1,dive,gradelevel"`
	DayOfWeek   int      `json:"day_of_week" validate:"required,weekday"`
	StartTime   string   `json:"start_time" validate:"required,hhmm"`
	EndTime     string   `json:"end_time" validate:"required,hhmm"`
	PeriodName  string   `json:"period_name" validate:"required,max=100"`
	SchoolSite  string   `json:"school_site"`
}

func (nb NewBellSchedule) timeFields() (string, string) { return nb.StartTime, nb.EndTime }

func (nb *NewBellSchedule) Clean() {
	for i, g := range nb.GradeLevels {
		nb.GradeLevels[i] = strings.ToUpper(core.CleanString(g))
	}
	nb.PeriodName = core.CleanString(nb.PeriodName)
	nb.SchoolSite = core.CleanString(nb.SchoolSite)
}

type NewSpecialActivity struct {
	TeacherName  string `json:"teacher_name" validate:"required,max=100"`
	DayOfWeek    int    `json:"day_of_week" validate:"required,weekday"`
	StartTime    string `json:"start_time" validate:"required,hhmm"`
	EndTime      string `json:"end_time" validate:"required,hhmm"`
	ActivityName string `json:"activity_name" validate:"required,max=100"`
	SchoolSite   string `json:"school_site"`
}

func (na NewSpecialActivity) timeFields() (string, string) { return na.StartTime, na.EndTime }

func (na *NewSpecialActivity) Clean() {
	na.TeacherName = core.CleanString(na.TeacherName)
	na.ActivityName = core.CleanString(na.ActivityName)
	na.SchoolSite = core.CleanString(na.SchoolSite)
}

type NewSchoolHours struct {
	DayOfWeek  int    `json:"day_of_week" validate:"required,weekday"`
	GradeLevel string `json:"grade_level" validate:"required,oneof=TK K default"`
	StartTime  string `json:"start_time" validate:"required,hhmm"`
	EndTime    string `json:"end_time" validate:"required,hhmm"`
	SchoolSite string `json:"school_site"`
}

func (nh NewSchoolHours) timeFields() (string, string) { return nh.StartTime, nh.EndTime }

func (nh *NewSchoolHours) Clean() {
	nh.GradeLevel = core.CleanString(nh.GradeLevel)
	if !strings.EqualFold(nh.GradeLevel, DefaultGrade) {
		nh.GradeLevel = strings.ToUpper(nh.GradeLevel)
	} else {
		nh.GradeLevel = DefaultGrade
	}
	nh.SchoolSite = core.CleanString(nh.SchoolSite)
}

type NewHoliday struct {
	Date       core.Date `json:"date"`
	Name       string    `json:"name" validate:"required,max=100"`
	SchoolSite string    `json:"school_site"`
}

func (nh *NewHoliday) Clean() {
	nh.Name = core.CleanString(nh.Name)
	nh.SchoolSite = core.CleanString(nh.SchoolSite)
}

type NewSession struct {
	StudentID   string `json:"student_id" validate:"required"`
	DayOfWeek   int    `json:"day_of_week" validate:"required_without=SessionDate,omitempty,weekday"`
	StartTime   string `json:"start_time" validate:"required,hhmm"`
	EndTime     string `json:"end_time" validate:"omitempty,hhmm"` // defaults to the student's session length
	ServiceType string `json:"service_type" validate:"max=50"`
	// AssignedToSEAID delegates the session to an SEA.
	AssignedToSEAID string `json:"assigned_to_sea_id"`
	// AssignedToSpecialistID delegates the session to another provider.
	AssignedToSpecialistID string `json:"assigned_to_specialist_id"`
	// SessionDate creates a one-off instance instead of a weekly template.
	SessionDate *core.Date `json:"session_date"`
	Notes       string     `json:"notes" validate:"max=1000"`
	Force       bool       `json:"force"`
}

func (ns NewSession) timeFields() (string, string) { return ns.StartTime, ns.EndTime }

func (ns *NewSession) Clean() {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.ServiceType = core.CleanString(ns.ServiceType, true /* lower */)
	ns.AssignedToSEAID = core.CleanString(ns.AssignedToSEAID)
	ns.AssignedToSpecialistID = core.CleanString(ns.AssignedToSpecialistID)
	ns.Notes = core.CleanString(ns.Notes)
	if ns.SessionDate != nil && ns.SessionDate.IsZero() {
		ns.SessionDate = nil
	}
}

// MoveSession drags a session to another slot. Instances stay within their week
// unless SessionDate is given.
type MoveSession struct {
	DayOfWeek   int        `json:"day_of_week" validate:"required_without=SessionDate,omitempty,weekday"`
	StartTime   string     `json:"start_time" validate:"required,hhmm"`
	SessionDate *core.Date `json:"session_date"`
	Force       bool       `json:"force"`
}

type AssignSession struct {
	// SEAID empty resets delivery to the provider.
	SEAID string `json:"sea_id"`
	Force bool   `json:"force"`
}

type ConflictKind string

const (
	ConflictInvalidRange     ConflictKind = "invalid_range"
	ConflictHoliday          ConflictKind = "holiday"
	ConflictSchoolHours      ConflictKind = "school_hours"
	ConflictBellSchedule     ConflictKind = "bell_schedule"
	ConflictSpecialActivity  ConflictKind = "special_activity"
	ConflictStudentSession   ConflictKind = "student_session"
	ConflictSEASession       ConflictKind = "sea_session"
	ConflictProviderCapacity ConflictKind = "provider_capacity"
)

var conflictOrder = map[ConflictKind]int{
	ConflictInvalidRange:     0,
	ConflictHoliday:          1,
	ConflictSchoolHours:      2,
	ConflictBellSchedule:     3,
	ConflictSpecialActivity:  4,
	ConflictStudentSession:   5,
	ConflictSEASession:       6,
	ConflictProviderCapacity: 7,
}

type Conflict struct {
	Kind        ConflictKind `json:"kind"`
	Start       TimeOfDay    `json:"start_time"`
	End         TimeOfDay    `json:"end_time"`
	Description string       `json:"description"`
	RefID       string       `json:"ref_id,omitempty"`
}

// ConflictError is returned when a session cannot be saved without force.
type ConflictError struct {
	Conflicts []Conflict
}

func (err *ConflictError) Error() string {
	if len(err.Conflicts) == 1 {
		return "schedule conflict: " + err.Conflicts[0].Description
	}
	return fmt.Sprintf("schedule conflicts: %d", len(err.Conflicts))
}

type SessionKind string

const (
	KindAll      SessionKind = ""
	KindTemplate SessionKind = "template"
	KindInstance SessionKind = "instance"
)

// SessionFilter is used by repositories. A session matches the participant lists
// (ProviderIDs, StudentIDs, SEAIDs, Participant) when it matches any non-empty one of them;
// every other field narrows the result. From/To only restrict instances.
type SessionFilter struct {
	IDs         []string
	ProviderIDs []string
	StudentIDs  []string
	SEAIDs      []string
	// Participant matches provider, SEA or specialist.
	Participant string
	TemplateIDs []string
	DayOfWeek   int
	Kind        SessionKind
	From        core.Date
	To          core.Date
	// OccurrenceFrom and OccurrenceTo bound instances by their original date.
	OccurrenceFrom core.Date
	OccurrenceTo   core.Date
	Statuses       []string
}

// ItemFilter selects bell schedules, special activities and school hours owned by
// any of ProviderIDs or located at any of SchoolSites.
type ItemFilter struct {
	ProviderIDs []string
	SchoolSites []string
	DayOfWeek   int
}

type HolidayFilter struct {
	// SchoolSites also matches district-wide holidays (empty site).
	SchoolSites []string
	From        core.Date
	To          core.Date
}

// SessionQuery is what API clients may filter sessions by.
type SessionQuery struct {
	StudentID string
	DayOfWeek int
	Kind      SessionKind
	From      core.Date
	To        core.Date
	Mode      ViewMode
}
