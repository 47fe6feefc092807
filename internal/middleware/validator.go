package middleware

import (
	"github.com/go-playground/validator/v10"
)

// Validator adapts validator/v10 to echo.Validator so handlers can call
// c.Validate on bound request bodies.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator with the default rule set.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}
