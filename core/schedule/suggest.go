package schedule

const (
	// SuggestStep is the granularity of suggested start times, in minutes.
	SuggestStep = 5

	defaultDayStart = TimeOfDay(8 * 60)
	defaultDayEnd   = TimeOfDay(15 * 60)
)

// SuggestSlots returns every conflict-free slot of the given length on the candidate's day.
// Slots start every SuggestStep minutes within the student's school hours, or 08:00-15:00
// when none are configured.
func SuggestSlots(in ConflictInput, minutes int) []TimeRange {
	slots := make([]TimeRange, 0)
	if minutes <= 0 {
		return slots
	}

	window := TimeRange{defaultDayStart, defaultDayEnd}
	if hours, ok := hoursFor(in.SchoolHours, in.Candidate.DayOfWeek, in.Student); ok {
		window = hours.Range()
	}

	for start := window.Start; start.Add(minutes) <= window.End; start = start.Add(SuggestStep) {
		probe := in
		probe.Candidate.Start = start
		probe.Candidate.End = start.Add(minutes)
		if len(DetectConflicts(probe)) == 0 {
			slots = append(slots, probe.Candidate.Range())
		}
	}
	return slots
}
