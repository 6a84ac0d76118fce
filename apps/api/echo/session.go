package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/schedule"
)

// generateWeeks is how far ahead POST /sessions/generate materializes when `to` is omitted.
const generateWeeks = 4

type sessionApi struct {
	svc schedule.Service
}

func registerSessionAPI(g *echo.Group, deps ServerDeps) {
	api := sessionApi{svc: deps.ScheduleSvc}

	sg := g.Group("/sessions")
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.POST("/check", api.check)
	sg.POST("/generate", api.generate)
	sg.GET("/:id", api.retrieve)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/move", api.move)
	sg.POST("/:id/assign", api.assign)
	sg.POST("/:id/status", api.setStatus)

	wg := g.Group("/schedule")
	wg.GET("/week", api.week)
	wg.GET("/suggest", api.suggest)
}

type (
	CheckResponse struct {
		Conflicts []schedule.Conflict `json:"conflicts"`
	}

	GenerateRequest struct {
		From core.Date `json:"from"`
		To   core.Date `json:"to"`
	}

	// StatusRequest changes the status of a session. Date selects the instance of a weekly session.
	StatusRequest struct {
		Status string     `json:"status"`
		Date   *core.Date `json:"date"`
	}
)

func (api *sessionApi) create(ctx echo.Context) error {
	var data schedule.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.CreateSession(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

// check reports the conflicts of a session without saving it.
func (api *sessionApi) check(ctx echo.Context) error {
	var data schedule.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	conflicts, err := api.svc.CheckConflicts(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "checking conflicts")
	}
	if conflicts == nil {
		conflicts = []schedule.Conflict{}
	}
	return ctx.JSON(http.StatusOK, CheckResponse{Conflicts: conflicts})
}

func (api *sessionApi) query(ctx echo.Context) error {
	var (
		q   schedule.SessionQuery
		err error
	)
	if q.DayOfWeek, err = queryInt(ctx, "day"); err != nil {
		return err
	}
	if q.From, err = queryDate(ctx, "from"); err != nil {
		return err
	}
	if q.To, err = queryDate(ctx, "to"); err != nil {
		return err
	}
	switch kind := schedule.SessionKind(ctx.QueryParam("kind")); kind {
	case schedule.KindAll, schedule.KindTemplate, schedule.KindInstance:
		q.Kind = kind
	default:
		return invalidParam("kind")
	}
	mode, ok := schedule.ParseViewMode(ctx.QueryParam("mode"))
	if !ok {
		return invalidParam("mode")
	}
	q.Mode = mode
	q.StudentID = ctx.QueryParam("student_id")

	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), v, q)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []schedule.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	sess, err := api.svc.GetSession(ctx.Request().Context(), v, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSession(ctx.Request().Context(), v, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) move(ctx echo.Context) error {
	var data schedule.MoveSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MoveSession")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.Move(ctx.Request().Context(), v, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "moving session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) assign(ctx echo.Context) error {
	var data schedule.AssignSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignSession")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.AssignSEA(ctx.Request().Context(), v, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) setStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	id := ctx.Param("id")
	if data.Date != nil && !data.Date.IsZero() {
		inst, err := api.svc.Instance(reqCtx, v, id, *data.Date)
		if err != nil {
			return errors.Wrap(err, "getting session instance")
		}
		id = inst.ID
	}

	sess, err := api.svc.SetStatus(reqCtx, v, id, data.Status)
	if err != nil {
		return errors.Wrap(err, "setting session status")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// generate materializes the viewer's weekly sessions into dated instances.
func (api *sessionApi) generate(ctx echo.Context) error {
	var data GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	if data.From.IsZero() {
		data.From = api.svc.Today()
	}
	if data.To.IsZero() {
		data.To = data.From.AddDays(7*generateWeeks - 1)
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	created, err := api.svc.Generate(ctx.Request().Context(), v, data.From, data.To)
	if err != nil {
		return errors.Wrap(err, "generating sessions")
	}
	if created == nil {
		created = []schedule.Session{}
	}
	return ctx.JSON(http.StatusCreated, created)
}

func (api *sessionApi) week(ctx echo.Context) error {
	weekStart, err := queryDate(ctx, "week_start")
	if err != nil {
		return err
	}
	if weekStart.IsZero() {
		weekStart = api.svc.Today()
	}
	mode, ok := schedule.ParseViewMode(ctx.QueryParam("mode"))
	if !ok {
		return invalidParam("mode")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	week, err := api.svc.Week(ctx.Request().Context(), v, weekStart, mode)
	if err != nil {
		return errors.Wrap(err, "building week")
	}
	return ctx.JSON(http.StatusOK, week)
}

func (api *sessionApi) suggest(ctx echo.Context) error {
	day, err := queryInt(ctx, "day")
	if err != nil {
		return err
	}
	studentID := ctx.QueryParam("student_id")
	if studentID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	slots, err := api.svc.Suggest(ctx.Request().Context(), v, studentID, day)
	if err != nil {
		return errors.Wrap(err, "suggesting slots")
	}
	if slots == nil {
		slots = []schedule.TimeRange{}
	}
	return ctx.JSON(http.StatusOK, slots)
}
