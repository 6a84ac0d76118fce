package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
)

// calendarApi serves what constrains a school day: bell schedules, special activities,
// school hours and holidays.
type calendarApi struct {
	svc schedule.Service
}

func registerCalendarAPI(g *echo.Group, deps ServerDeps) {
	api := calendarApi{svc: deps.ScheduleSvc}

	bg := g.Group("/bell-schedules")
	bg.GET("", api.queryBellSchedules)
	bg.POST("", api.createBellSchedule)
	bg.POST("/import", api.importBellSchedules)
	bg.DELETE("/:id", api.destroyBellSchedule)

	ag := g.Group("/special-activities")
	ag.GET("", api.querySpecialActivities)
	ag.POST("", api.createSpecialActivity)
	ag.DELETE("/:id", api.destroySpecialActivity)

	hg := g.Group("/school-hours")
	hg.GET("", api.querySchoolHours)
	hg.POST("", api.setSchoolHours)

	g.GET("/holidays", api.queryHolidays)
	g.POST("/holidays", api.createHoliday)
}

// Bell schedules

func (api *calendarApi) createBellSchedule(ctx echo.Context) error {
	var data schedule.NewBellSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBellSchedule")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	b, err := api.svc.CreateBellSchedule(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "creating bell schedule")
	}
	return ctx.JSON(http.StatusCreated, b)
}

// importBellSchedules reads the xlsx workbook uploaded as `file`.
func (api *calendarApi) importBellSchedules(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	bells, err := api.svc.ImportBellSchedules(ctx.Request().Context(), v, f, ctx.FormValue("school_site"))
	if err != nil {
		return errors.Wrap(err, "importing bell schedules")
	}
	return ctx.JSON(http.StatusCreated, bells)
}

func (api *calendarApi) queryBellSchedules(ctx echo.Context) error {
	day, err := queryInt(ctx, "day")
	if err != nil {
		return err
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	bells, err := api.svc.QueryBellSchedules(ctx.Request().Context(), v, day)
	if err != nil {
		return errors.Wrap(err, "querying bell schedules")
	}
	if bells == nil {
		bells = []schedule.BellSchedule{}
	}
	return ctx.JSON(http.StatusOK, bells)
}

func (api *calendarApi) destroyBellSchedule(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteBellSchedule(ctx.Request().Context(), v, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting bell schedule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Special activities

func (api *calendarApi) createSpecialActivity(ctx echo.Context) error {
	var data schedule.NewSpecialActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSpecialActivity")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.CreateSpecialActivity(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "creating special activity")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *calendarApi) querySpecialActivities(ctx echo.Context) error {
	day, err := queryInt(ctx, "day")
	if err != nil {
		return err
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	activities, err := api.svc.QuerySpecialActivities(ctx.Request().Context(), v, day)
	if err != nil {
		return errors.Wrap(err, "querying special activities")
	}
	if activities == nil {
		activities = []schedule.SpecialActivity{}
	}
	return ctx.JSON(http.StatusOK, activities)
}

func (api *calendarApi) destroySpecialActivity(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSpecialActivity(ctx.Request().Context(), v, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting special activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// School hours

func (api *calendarApi) setSchoolHours(ctx echo.Context) error {
	var data schedule.NewSchoolHours
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchoolHours")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	h, err := api.svc.SetSchoolHours(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "setting school hours")
	}
	return ctx.JSON(http.StatusOK, h)
}

func (api *calendarApi) querySchoolHours(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	hours, err := api.svc.QuerySchoolHours(ctx.Request().Context(), v)
	if err != nil {
		return errors.Wrap(err, "querying school hours")
	}
	if hours == nil {
		hours = []schedule.SchoolHours{}
	}
	return ctx.JSON(http.StatusOK, hours)
}

// Holidays

func (api *calendarApi) createHoliday(ctx echo.Context) error {
	var data schedule.NewHoliday
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewHoliday")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	h, err := api.svc.CreateHoliday(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "creating holiday")
	}
	return ctx.JSON(http.StatusCreated, h)
}

func (api *calendarApi) queryHolidays(ctx echo.Context) error {
	from, err := queryDate(ctx, "from")
	if err != nil {
		return err
	}
	to, err := queryDate(ctx, "to")
	if err != nil {
		return err
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	holidays, err := api.svc.QueryHolidays(ctx.Request().Context(), v, from, to)
	if err != nil {
		return errors.Wrap(err, "querying holidays")
	}
	if holidays == nil {
		holidays = []schedule.Holiday{}
	}
	return ctx.JSON(http.StatusOK, holidays)
}
