package utils

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateStruct runs the `validate` tags of v and returns the failing field
// names mapped to the failed tag. A non-validation error is returned as err.
func ValidateStruct(v any) (map[string]string, error) {
	err := getValidator().Struct(v)
	if err == nil {
		return nil, nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil, err
	}
	return ProcessValidationErrors(ves), nil
}

func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// FormatFieldErrors renders field errors deterministically, e.g. "Amount=required, IPK=required".
func FormatFieldErrors(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, ", ")
}
