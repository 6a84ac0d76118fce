package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
)

func TestGenerateInstances(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	monday := core.NewDate(2024, 9, 9)
	friday := core.NewDate(2024, 9, 13)

	templates := []Session{
		{ID: "wed", ProviderID: "p", StudentID: "st1", DayOfWeek: 3, Start: tod("10:00"), End: tod("10:30"), Status: StatusScheduled},
		{ID: "mon-late", ProviderID: "p", StudentID: "st1", DayOfWeek: 1, Start: tod("13:00"), End: tod("13:30"), Status: StatusScheduled},
		{ID: "mon-early", ProviderID: "p", StudentID: "st2", DayOfWeek: 1, Start: tod("08:00"), End: tod("08:30"), Status: StatusScheduled},
		{ID: "fri", ProviderID: "p", StudentID: "st2", DayOfWeek: 5, Start: tod("09:00"), End: tod("09:30"), Status: StatusScheduled},
	}
	sites := map[string]string{"st1": "Lincoln", "st2": "Roosevelt"}
	siteOf := func(id string) string { return sites[id] }

	t.Run("one instance per matching date, sorted", func(t *testing.T) {
		got, err := GenerateInstances(templates, nil, nil, siteOf, monday, friday, now)
		require.NoError(t, err)
		require.Len(t, got, 4)

		assert.Equal(t, "mon-early", got[0].TemplateID)
		assert.Equal(t, "mon-late", got[1].TemplateID)
		assert.Equal(t, "wed", got[2].TemplateID)
		assert.Equal(t, "fri", got[3].TemplateID)

		inst := got[2]
		assert.NotEmpty(t, inst.ID)
		assert.NotEqual(t, "wed", inst.ID)
		assert.Equal(t, core.NewDate(2024, 9, 11), *inst.SessionDate)
		assert.Equal(t, core.NewDate(2024, 9, 11), *inst.OriginalDate)
		assert.Equal(t, StatusScheduled, inst.Status)
		assert.Equal(t, tod("10:00"), inst.Start)
		assert.Equal(t, now, inst.CreatedAt)
		assert.False(t, inst.IsTemplate())
	})

	t.Run("existing instances are kept", func(t *testing.T) {
		existing := []Session{{ID: "x", TemplateID: "wed", SessionDate: datePtr(2024, 9, 11)}}
		got, err := GenerateInstances(templates, existing, nil, siteOf, monday, friday, now)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, s := range got {
			assert.NotEqual(t, "wed", s.TemplateID)
		}
	})

	t.Run("instances moved to another day still count for their week", func(t *testing.T) {
		existing := []Session{{ID: "x", TemplateID: "wed", SessionDate: &friday, OriginalDate: datePtr(2024, 9, 11)}}
		got, err := GenerateInstances(templates, existing, nil, siteOf, monday, friday, now)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, s := range got {
			assert.NotEqual(t, "wed", s.TemplateID)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := GenerateInstances(templates, nil, nil, siteOf, monday, friday, now)
		require.NoError(t, err)
		second, err := GenerateInstances(templates, first, nil, siteOf, monday, friday, now)
		require.NoError(t, err)
		assert.Empty(t, second)
	})

	t.Run("holidays at the student's site are skipped", func(t *testing.T) {
		holidays := []Holiday{
			{Date: monday, SchoolSite: "Lincoln", Name: "Staff day"},
			{Date: friday, Name: "District holiday"},
		}
		got, err := GenerateInstances(templates, nil, holidays, siteOf, monday, friday, now)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "mon-early", got[0].TemplateID) // Roosevelt is open
		assert.Equal(t, "wed", got[1].TemplateID)
	})

	t.Run("instances passed as templates are ignored", func(t *testing.T) {
		mixed := append([]Session{{ID: "inst", DayOfWeek: 1, SessionDate: &monday}}, templates...)
		got, err := GenerateInstances(mixed, nil, nil, siteOf, monday, monday, now)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("invalid ranges", func(t *testing.T) {
		_, err := GenerateInstances(templates, nil, nil, siteOf, friday, monday, now)
		assert.Equal(t, ErrInvalidDateRange, err)

		_, err = GenerateInstances(templates, nil, nil, siteOf, monday, monday.AddDays(MaxGenerateDays), now)
		assert.Equal(t, ErrDateRangeTooLong, err)

		_, err = GenerateInstances(templates, nil, nil, siteOf, monday, monday.AddDays(MaxGenerateDays-1), now)
		assert.NoError(t, err)
	})
}
