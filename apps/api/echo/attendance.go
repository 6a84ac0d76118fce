package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/attendance"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type attendanceApi struct {
	svc attendance.Service
}

func registerAttendanceAPI(g *echo.Group, deps ServerDeps) {
	api := attendanceApi{svc: deps.AttendanceSvc}

	ag := g.Group("/attendance")
	ag.POST("", api.record)
	ag.GET("", api.query)
	ag.GET("/summary", api.summary)
	ag.GET("/export", api.export)
}

func bindAttendanceFilter(ctx echo.Context) (attendance.Filter, error) {
	var (
		filter attendance.Filter
		err    error
	)
	if filter.From, err = queryDate(ctx, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryDate(ctx, "to"); err != nil {
		return filter, err
	}
	filter.StudentID = ctx.QueryParam("student_id")
	return filter, nil
}

func (api *attendanceApi) record(ctx echo.Context) error {
	var data attendance.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.Record(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return err
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	records, err := api.svc.Query(ctx.Request().Context(), v, filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return err
	}
	if filter.StudentID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.Summary(ctx.Request().Context(), v, filter.StudentID, filter.From, filter.To)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *attendanceApi) export(ctx echo.Context) error {
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return err
	}
	v, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := api.svc.ExportXLSX(ctx.Request().Context(), v, filter, &buf); err != nil {
		return errors.Wrap(err, "exporting attendance")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportFilename(filter)))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func exportFilename(filter attendance.Filter) string {
	name := "attendance"
	if !filter.From.IsZero() {
		name += "_" + filter.From.String()
	}
	if !filter.To.IsZero() {
		name += "_" + filter.To.String()
	}
	return name + ".xlsx"
}
