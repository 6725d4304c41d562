package nodesystem

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(parameterSpecRules, ParameterSpec{})
	return v
}

// parameterSpecRules requires bounds on numeric sliders.
func parameterSpecRules(sl validator.StructLevel) {
	p := sl.Current().Interface().(ParameterSpec)
	if p.InputType != "slider" {
		return
	}
	if p.Min == nil {
		sl.ReportError(p.Min, "min", "Min", "slider_min", "")
	}
	if p.Max == nil {
		sl.ReportError(p.Max, "max", "Max", "slider_max", "")
	}
	if p.Min != nil && p.Max != nil && *p.Min >= *p.Max {
		sl.ReportError(p.Max, "max", "Max", "slider_range", fmt.Sprint(*p.Min))
	}
}

// validateStruct validates s and formats the failures into one error.
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, formatFieldError(e))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return err
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "excludes":
		return fmt.Sprintf("%s must not contain %q", field, e.Param())
	case "slider_min":
		return fmt.Sprintf("%s is required for sliders", field)
	case "slider_max":
		return fmt.Sprintf("%s is required for sliders", field)
	case "slider_range":
		return fmt.Sprintf("%s must be greater than min %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
