package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestSlots(t *testing.T) {
	in := ConflictInput{
		Candidate: candidate(2, "00:00", "00:00"),
		Student:   testStudent,
		SchoolHours: []SchoolHours{
			{DayOfWeek: 2, GradeLevel: DefaultGrade, Start: tod("08:00"), End: tod("09:30")},
		},
		BellSchedules: []BellSchedule{
			{DayOfWeek: 2, GradeLevels: []string{"3"}, Start: tod("08:30"), End: tod("09:00"), PeriodName: "Assembly"},
		},
	}

	slots := SuggestSlots(in, 30)
	require.Len(t, slots, 2)
	assert.Equal(t, TimeRange{tod("08:00"), tod("08:30")}, slots[0])
	assert.Equal(t, TimeRange{tod("09:00"), tod("09:30")}, slots[1])

	slots = SuggestSlots(in, 20)
	assert.Equal(t, tod("08:00"), slots[0].Start)
	assert.Equal(t, tod("09:10"), slots[len(slots)-1].Start)
	assert.Len(t, slots, 6)

	assert.Empty(t, SuggestSlots(in, 0))
	assert.Empty(t, SuggestSlots(in, 120))
}
