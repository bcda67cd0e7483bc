package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/payroll-engine/payroll"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("leavetype", func(fl validator.FieldLevel) bool {
		_, err := payroll.ParseLeaveType(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("targetstatus", func(fl validator.FieldLevel) bool {
		return payroll.LeaveStatus(fl.Field().String()).IsTarget()
	})
	return v
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// validateStruct returns nil when s passes every `validate` tag.
func validateStruct(s any) []FieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		e := FieldError{Field: fe.Field(), Tag: fe.Tag()}
		switch fe.Tag() {
		case "required":
			e.Message = fmt.Sprintf("%s is required", e.Field)
		case "max":
			e.Message = fmt.Sprintf("%s must be at most %s characters", e.Field, fe.Param())
		case "email":
			e.Message = "invalid email format"
		case "datetime":
			e.Message = fmt.Sprintf("%s must be a date formatted %s", e.Field, fe.Param())
		case "leavetype":
			e.Message = fmt.Sprintf("%s must be %q or %q", e.Field, payroll.LeaveFull, payroll.LeaveHalf)
		case "targetstatus":
			e.Message = fmt.Sprintf("%s must be %q or %q", e.Field, payroll.StatusApproved, payroll.StatusRejected)
		default:
			e.Message = fmt.Sprintf("%s failed %s validation", e.Field, fe.Tag())
		}
		out = append(out, e)
	}
	return out
}
