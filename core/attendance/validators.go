package attendance

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kilabu/core"
)

var (
	// custom validation tags & texts
	statusTag  = "attendance_status"
	statusText = "must be one of: " + joinStatuses()
)

// InitValidators registers the attendance validation tags. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

// statusValidation only allows the known attendance statuses.
func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).IsValid()
}

func joinStatuses() string {
	names := make([]string, 0, len(Statuses))
	for _, s := range Statuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// Validate cleans and validates the new session. Students may appear only once.
func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ns.Entries))
	for _, e := range ns.Entries {
		if _, dup := seen[e.StudentID]; dup {
			return core.NewValidationError(nil, core.FieldError{Field: "entries", Error: "student " + e.StudentID + " is listed more than once"})
		}
		seen[e.StudentID] = struct{}{}
	}
	return nil
}
