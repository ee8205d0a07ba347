package api

import (
	stderrors "errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/disposition-service/pkg/errors"
)

// BindAndValidate binds the JSON request body into obj and validates its
// binding tags
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		return bindError(err, "invalid request body")
	}
	return nil
}

// BindQueryAndValidate binds query parameters into obj and validates them
func BindQueryAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		return bindError(err, "invalid query parameters")
	}
	return nil
}

func bindError(err error, prefix string) *errors.AppError {
	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		return errors.ErrValidationWithFields("validation failed", FieldErrors(validationErrors))
	}
	return errors.ErrBadRequest(fmt.Sprintf("%s: %v", prefix, err))
}

// FieldErrors renders validator errors keyed by JSON field name
func FieldErrors(validationErrors validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fe.Field()] = errorMessage(fe)
	}
	return fields
}

func errorMessage(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "direction":
		return fmt.Sprintf("%s must be export or import", field)
	case "dive":
		return fmt.Sprintf("%s contains an invalid entry", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
