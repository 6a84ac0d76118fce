package sqlxrepos

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
)

func TestWhere(t *testing.T) {
	var w where
	assert.Equal(t, "", w.String())

	w.add("day_of_week = ?", 2)
	w.anyOf(nil, nil)
	w.anyOf([]string{"provider_id::text IN (?)", "school_site IN (?)"}, []interface{}{[]string{"p1"}, []string{"A", "B"}})
	assert.Equal(t, " WHERE day_of_week = ? AND (provider_id::text IN (?) OR school_site IN (?))", w.String())
	assert.Len(t, w.args, 3)
}

func TestSessionWhereExpandsLists(t *testing.T) {
	w := sessionWhere(schedule.SessionFilter{
		ProviderIDs: []string{"p1", "p2"},
		Participant: "sea1",
		Kind:        schedule.KindInstance,
		Statuses:    []string{schedule.StatusScheduled},
	})

	query, args, err := sqlx.In("SELECT id FROM schedule_sessions"+w.String(), w.args...)
	require.NoError(t, err)
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	assert.Equal(t,
		"SELECT id FROM schedule_sessions WHERE (provider_id::text IN ($1, $2) OR $3 IN (provider_id::text, assigned_to_sea_id::text, assigned_to_specialist_id::text))"+
			" AND session_date IS NOT NULL AND status IN ($4)",
		query)
	assert.Equal(t, []interface{}{"p1", "p2", "sea1", schedule.StatusScheduled}, args)
}

func TestSessionWhereOccurrenceRange(t *testing.T) {
	from := core.NewDate(2024, 3, 11)
	to := from.AddDays(6)
	w := sessionWhere(schedule.SessionFilter{TemplateIDs: []string{"t1"}, OccurrenceFrom: from, OccurrenceTo: to})
	assert.Equal(t,
		" WHERE template_id::text IN (?) AND COALESCE(original_date, session_date) >= ? AND COALESCE(original_date, session_date) <= ?",
		w.String())
	assert.Equal(t, []interface{}{[]string{"t1"}, from, to}, w.args)
}

func TestItemWhere(t *testing.T) {
	w := itemWhere(schedule.ItemFilter{SchoolSites: []string{"Lincoln"}, DayOfWeek: 3})
	assert.Equal(t, " WHERE (school_site IN (?)) AND day_of_week = ?", w.String())
	assert.Equal(t, []interface{}{[]string{"Lincoln"}, 3}, w.args)
}
