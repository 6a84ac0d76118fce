package student

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/speddy/speddy/core"
)

var (
	gradeLevelTag  = "gradelevel"
	gradeLevelText = "grade level must be one of TK, K or 1 to 12"
)

// InitValidators registers the student validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(gradeLevelTag, gradeLevelValidation)
	core.RegisterCustomTranslation(validate, translator, gradeLevelTag, gradeLevelText)
}

func gradeLevelValidation(fl validator.FieldLevel) bool {
	return GradeIndex(NormalizeGrade(fl.Field().String())) >= 0
}
