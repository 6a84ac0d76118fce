package schedule

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/speddy/speddy/core"
)

var (
	hhmmTag  = "hhmm"
	hhmmText = "{0} must be a time of day formatted as HH:MM"

	weekdayTag  = "weekday"
	weekdayText = "{0} must be a school day between 1 (Monday) and 5 (Friday)"

	requiredWithoutTag = "required_without"
	requiredText       = "this field is required"

	timeOrderTag  = "timeorder"
	timeOrderText = "end time must be after start time"
)

type timeRanged interface {
	timeFields() (start, end string)
}

// InitValidators registers the schedule validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(hhmmTag, hhmmValidation)
	registerFieldTranslation(validate, translator, hhmmTag, hhmmText)

	_ = validate.RegisterValidation(weekdayTag, weekdayValidation)
	registerFieldTranslation(validate, translator, weekdayTag, weekdayText)

	core.RegisterCustomTranslation(validate, translator, requiredWithoutTag, requiredText, true)

	validate.RegisterStructValidation(
		timeOrderStructValidation,
		NewBellSchedule{}, NewSpecialActivity{}, NewSchoolHours{}, NewSession{},
	)
	core.RegisterCustomTranslation(validate, translator, timeOrderTag, timeOrderText)
}

func registerFieldTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func hhmmValidation(fl validator.FieldLevel) bool {
	_, err := ParseTimeOfDay(fl.Field().String())
	return err == nil
}

func weekdayValidation(fl validator.FieldLevel) bool {
	day := fl.Field().Int()
	return day >= 1 && day <= 5
}

func timeOrderStructValidation(sl validator.StructLevel) {
	r, ok := sl.Current().Interface().(timeRanged)
	if !ok {
		return
	}
	startStr, endStr := r.timeFields()
	if endStr == "" {
		return
	}
	start, err := ParseTimeOfDay(startStr)
	if err != nil {
		return
	}
	end, err := ParseTimeOfDay(endStr)
	if err != nil {
		return
	}
	if end <= start {
		sl.ReportError(endStr, "end_time", "EndTime", timeOrderTag, "")
	}
}
