package services

import (
	"errors"
	"fmt"
	"strings"

	duochat_errors "duochat/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags of s and reports every failing field
// as a validation error.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", duochat_errors.ErrValidation, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", duochat_errors.ErrValidation, strings.Join(fields, ", "))
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", duochat_errors.ErrValidation, msg)
}
