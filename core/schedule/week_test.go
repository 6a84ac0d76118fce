package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
)

func TestBuildWeek(t *testing.T) {
	wednesday := core.NewDate(2024, 9, 11)
	sessions := []Session{
		{ID: "t-mon", StudentID: "b", DayOfWeek: 1, Start: tod("10:00"), End: tod("10:30")},
		{ID: "t-mon-2", StudentID: "a", DayOfWeek: 1, Start: tod("09:00"), End: tod("09:30")},
		{ID: "t-tue", StudentID: "a", DayOfWeek: 2, Start: tod("09:00"), End: tod("09:30")},
		{ID: "i-tue", StudentID: "a", DayOfWeek: 2, Start: tod("11:00"), End: tod("11:30"), TemplateID: "t-tue", SessionDate: datePtr(2024, 9, 10), Status: StatusScheduled},
		{ID: "i-thu", StudentID: "c", DayOfWeek: 4, Start: tod("08:00"), End: tod("08:30"), SessionDate: datePtr(2024, 9, 12), Status: StatusCancelled},
		{ID: "i-next", StudentID: "c", DayOfWeek: 1, Start: tod("08:00"), End: tod("08:30"), SessionDate: datePtr(2024, 9, 16), Status: StatusScheduled},
	}
	holidays := []Holiday{{Date: core.NewDate(2024, 9, 13), Name: "Staff day", SchoolSite: "Lincoln"}}

	week := BuildWeek(wednesday, sessions, holidays, "Lincoln")
	assert.Equal(t, core.NewDate(2024, 9, 9), week.WeekStart)
	require.Len(t, week.Days, 5)

	assert.Equal(t, "Monday", week.Days[0].Name)
	assert.Equal(t, []string{"t-mon-2", "t-mon"}, ids(week.Days[0].Sessions))
	assert.Equal(t, []string{"i-tue"}, ids(week.Days[1].Sessions))
	assert.Empty(t, week.Days[2].Sessions)
	assert.Empty(t, week.Days[3].Sessions)
	assert.Equal(t, "Staff day", week.Days[4].Holiday)
	assert.Equal(t, core.NewDate(2024, 9, 13), week.Days[4].Date)

	other := BuildWeek(wednesday, sessions, holidays, "Roosevelt")
	assert.Empty(t, other.Days[4].Holiday)
}

func TestBuildWeekMovedInstances(t *testing.T) {
	sessions := []Session{
		{ID: "t-mon", StudentID: "a", DayOfWeek: 1, Start: tod("09:00"), End: tod("09:30")},
		{ID: "i-mon", StudentID: "a", DayOfWeek: 2, Start: tod("09:00"), End: tod("09:30"), TemplateID: "t-mon",
			SessionDate: datePtr(2024, 9, 10), OriginalDate: datePtr(2024, 9, 9), ManuallyModified: true, Status: StatusScheduled},
		{ID: "t-wed", StudentID: "b", DayOfWeek: 3, Start: tod("10:00"), End: tod("10:30")},
		{ID: "i-wed", StudentID: "b", DayOfWeek: 2, Start: tod("10:00"), End: tod("10:30"), TemplateID: "t-wed",
			SessionDate: datePtr(2024, 9, 17), OriginalDate: datePtr(2024, 9, 11), ManuallyModified: true, Status: StatusScheduled},
	}

	week := BuildWeek(core.NewDate(2024, 9, 9), sessions, nil, "Lincoln")
	assert.Empty(t, week.Days[0].Sessions, "the template is covered by the moved instance")
	assert.Equal(t, []string{"i-mon"}, ids(week.Days[1].Sessions))
	assert.Empty(t, week.Days[2].Sessions, "moved to next week")
}
