package validator

import (
	"context"

	"github.com/go-playground/validator"
)

var global *validator.Validate

const (
	studentIDLen = 10
	pinLen       = 4

	ErrFieldRequired     = "Field is required"
	ErrStudentIDFormat   = "Student ID must be 10 characters, like 2023-00000"
	ErrPinFormat         = "PIN must be exactly 4 characters"
	ErrUnknownValidation = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("studentid", validateStudentID)
	_ = v.RegisterValidation("pin", validatePin)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

// Length only, matching the paper form: the original form caps input
// at 10 and 4 characters and checks nothing else.
func validateStudentID(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) == studentIDLen
}

func validatePin(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) == pinLen
}

// FieldError reports the first failed rule so callers can pick a
// message for the exact field and rule that broke.
type FieldError struct {
	Field string
	Tag   string
	msg   string
}

func (e *FieldError) Error() string {
	return e.msg + ": " + e.Field
}

func Validate(ctx context.Context, structure any) *FieldError {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) *FieldError {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "studentid":
		msg = ErrStudentIDFormat
	case "pin":
		msg = ErrPinFormat
	default:
		msg = ErrUnknownValidation
	}
	return &FieldError{Field: ve.Field(), Tag: ve.Tag(), msg: msg}
}
