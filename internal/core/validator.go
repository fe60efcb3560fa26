package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"thermostat/internal/control"
	"thermostat/internal/types"
)

// Validator wraps go-playground/validator with the controller's custom tags.
//
//	target_temp: value lies within the accepted setpoint range (°F).
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// FieldError describes one failed field constraint.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// NewValidator creates a Validator and registers custom tags.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("target_temp", validateTargetTemp); err != nil {
		logger.Error("failed to register validation tag", "tag", "target_temp", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

func validateTargetTemp(fl validator.FieldLevel) bool {
	var t float64
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		t = fl.Field().Float()
	case reflect.Int, reflect.Int64, reflect.Int32:
		t = float64(fl.Field().Int())
	default:
		return false
	}
	return t >= control.MinTargetTemp && t <= control.MaxTargetTemp
}

// ValidateStruct validates s. Failures return an AppError whose Details
// carry the per-field violations. A target_temp violation uses the
// dedicated out-of-range code.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	code := types.ErrCodeValidationMissingField
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "target_temp" {
			code = types.ErrCodeValidationTargetRange
		}
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}

	return types.NewAppErrorWithDetails(code, fields[0].Message, nil,
		map[string]any{"fields": fields})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "target_temp":
		return fmt.Sprintf("%s must be between %.0f and %.0f °F",
			fe.Field(), control.MinTargetTemp, control.MaxTargetTemp)
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
