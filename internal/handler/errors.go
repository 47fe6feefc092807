package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/apperr"
)

// errorBody is the envelope of every failed API response.
type errorBody struct {
	Reason  string `json:"reason"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError renders err as the API error envelope.  Internal causes are
// logged, never returned.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	ae := apperr.Wrap(err)
	if ae.Kind == apperr.Internal {
		log.Error("request failed", zap.String("path", c.Path()), zap.String("reason", ae.Reason), zap.Error(err))
	}
	return c.JSON(apperr.HTTPStatus(ae), echo.Map{"error": errorBody{
		Reason:  ae.Reason,
		Kind:    string(ae.Kind),
		Message: apperr.PublicMessage(ae),
	}})
}

// bindValid binds the JSON body into v and validates it.
func bindValid(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Invalid("invalid_body", "request body is not valid JSON")
	}
	if err := c.Validate(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return apperr.Invalid("invalid_field", ve[0].Field()+" failed "+ve[0].Tag())
		}
		return apperr.Invalid("invalid_body", "request body is invalid")
	}
	return nil
}

// unauthorized answers requests whose token lacks a usable subject.
func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": errorBody{
		Reason:  "invalid_token",
		Kind:    "unauthenticated",
		Message: "token has no subject",
	}})
}
